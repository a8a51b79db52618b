package domain

import "time"

// StageResult is per-corpus bookkeeping for one orchestration run.
type StageResult struct {
	Stage             int           `json:"stage"`
	Corpus            DocType       `json:"corpus"`
	Count             int           `json:"count"`
	Elapsed           time.Duration `json:"-"`
	ElapsedMS         float64       `json:"elapsed_ms"`
	FallbackTriggered bool          `json:"fallback_triggered"`
	Error             string        `json:"error,omitempty"`
}

type StageStats struct {
	LawCount          int  `json:"law_count"`
	CriteriaCount     int  `json:"criteria_count"`
	MediationCount    int  `json:"mediation_count"`
	CounselCount      int  `json:"counsel_count"`
	FallbackTriggered bool `json:"fallback_triggered"`
}

// MultiStageResult is the unified, deduplicated output of the orchestrator.
type MultiStageResult struct {
	Results []SearchResult `json:"results"`
	Stages  []StageResult  `json:"stages"`
	Stats   StageStats     `json:"stage_stats"`
}
