package domain

import "time"

// SearchResponse is the unified payload handed to outer layers.
type SearchResponse struct {
	RequestID            string         `json:"request_id,omitempty"`
	Query                string         `json:"query"`
	QueryType            QueryType      `json:"query_type"`
	Analysis             QueryAnalysis  `json:"analysis"`
	Results              []SearchResult `json:"results"`
	StageStats           StageStats     `json:"stage_stats"`
	Stages               []StageResult  `json:"stages"`
	AgencyRecommendation []AgencyScore  `json:"agency_recommendation"`
	DenseAvailable       bool           `json:"dense_available"`
	Elapsed              time.Duration  `json:"-"`
}

// Citation is the shape the answer generator receives.
type Citation struct {
	Index        int     `json:"index"`
	ChunkID      string  `json:"chunk_id"`
	DocID        string  `json:"doc_id"`
	DocTitle     string  `json:"doc_title"`
	DocType      DocType `json:"doc_type"`
	ChunkType    string  `json:"chunk_type"`
	SourceOrg    string  `json:"source_org,omitempty"`
	URL          string  `json:"url,omitempty"`
	DecisionDate string  `json:"decision_date,omitempty"`
	Similarity   float64 `json:"similarity"`
	Content      string  `json:"content"`
}

type ChatAnswer struct {
	RequestID  string        `json:"request_id,omitempty"`
	Query      string        `json:"query"`
	Answer     string        `json:"answer"`
	Citations  []Citation    `json:"citations"`
	Agencies   []AgencyScore `json:"agency_recommendation"`
	StageStats StageStats    `json:"stage_stats"`
}
