package domain

import "time"

// RetrievalLog is the audit record emitted once per search request.
type RetrievalLog struct {
	ID                string            `json:"id"`
	RequestID         string            `json:"request_id,omitempty"`
	Query             string            `json:"query"`
	QueryType         QueryType         `json:"query_type"`
	DenseAvailable    bool              `json:"dense_available"`
	Stages            []StageResult     `json:"stages"`
	Stats             StageStats        `json:"stage_stats"`
	ResultCount       int               `json:"result_count"`
	TopChunks         []RetrievalLogHit `json:"top_chunks"`
	RecommendedAgency AgencyCode        `json:"recommended_agency,omitempty"`
	ElapsedMS         float64           `json:"elapsed_ms"`
	CreatedAt         time.Time         `json:"created_at"`
}

type RetrievalLogHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocType    DocType `json:"doc_type"`
	Similarity float64 `json:"similarity"`
}
