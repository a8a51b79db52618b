package domain

type QueryType string

const (
	QueryTypeGeneralInquiry      QueryType = "general_inquiry"
	QueryTypeLegalInterpretation QueryType = "legal_interpretation"
	QueryTypeSimilarCase         QueryType = "similar_case"
)

type Keyword struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// StatuteReference is a law name plus article number. LawName is empty when
// the question cites a bare article.
type StatuteReference struct {
	LawName   string `json:"law_name,omitempty"`
	Article   string `json:"article"`
	Paragraph string `json:"paragraph,omitempty"`
}

// QueryAnalysis is derived once per question and read-only afterwards.
type QueryAnalysis struct {
	RawQuery          string             `json:"raw_query"`
	QueryType         QueryType          `json:"query_type"`
	Keywords          []Keyword          `json:"keywords"`
	StatuteReferences []StatuteReference `json:"statute_references"`
	ProductTerms      []string           `json:"product_terms"`
	DisputeTypes      []string           `json:"dispute_types"`
	LawNames          []string           `json:"law_names"`
	HasAmount         bool               `json:"has_amount"`
	HasDate           bool               `json:"has_date"`
}

// Terms returns keyword terms in relevance order.
func (a QueryAnalysis) Terms() []string {
	out := make([]string, 0, len(a.Keywords))
	for _, kw := range a.Keywords {
		out = append(out, kw.Term)
	}
	return out
}
