package domain

import (
	"strings"
	"time"
)

// DocType names one logical corpus.
type DocType string

const (
	DocTypeStatute       DocType = "statute"
	DocTypeCriteria      DocType = "criteria"
	DocTypeMediationCase DocType = "mediation_case"
	DocTypeCounselCase   DocType = "counsel_case"
)

// CorpusOrder lists corpora in stage order.
var CorpusOrder = []DocType{
	DocTypeStatute,
	DocTypeCriteria,
	DocTypeMediationCase,
	DocTypeCounselCase,
}

func ParseDocType(raw string) (DocType, bool) {
	candidate := DocType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range CorpusOrder {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}

// SearchFilter narrows a corpus query. Empty slices mean no restriction.
// DocTypes accepts corpus names (statute, criteria, mediation_case,
// counsel_case) as well as storage-level document types inside a corpus (for
// example criteria_item or criteria_resolution).
type SearchFilter struct {
	DocTypes   []string `json:"doc_types,omitempty"`
	ChunkTypes []string `json:"chunk_types,omitempty"`
	SourceOrgs []string `json:"source_orgs,omitempty"`
}

func (f SearchFilter) IsEmpty() bool {
	return len(f.DocTypes) == 0 && len(f.ChunkTypes) == 0 && len(f.SourceOrgs) == 0
}

// SearchResult is one retrieved passage. Values are never mutated after
// construction; WithSimilarity returns a fresh copy.
type SearchResult struct {
	ChunkID      string     `json:"chunk_id"`
	DocID        string     `json:"doc_id"`
	ChunkType    string     `json:"chunk_type"`
	Content      string     `json:"content"`
	DocTitle     string     `json:"doc_title"`
	DocType      DocType    `json:"doc_type"`
	CategoryPath []string   `json:"category_path"`
	Similarity   float64    `json:"similarity"`
	SourceOrg    *string    `json:"source_org,omitempty"`
	URL          *string    `json:"url,omitempty"`
	DecisionDate *string    `json:"decision_date,omitempty"`
	CollectedAt  *time.Time `json:"collected_at,omitempty"`
}

func (r SearchResult) WithSimilarity(similarity float64) SearchResult {
	out := r
	if r.CategoryPath != nil {
		out.CategoryPath = append([]string(nil), r.CategoryPath...)
	}
	out.Similarity = similarity
	return out
}

func (r SearchResult) SourceOrgValue() string {
	if r.SourceOrg == nil {
		return ""
	}
	return *r.SourceOrg
}

// StringPtr returns nil for blank values.
func StringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
