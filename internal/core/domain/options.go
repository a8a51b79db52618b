package domain

import (
	"fmt"
	"maps"
	"math"
	"time"
)

const weightTolerance = 1e-6

// RetrievalOptions tunes one orchestration run. Built once from configuration
// and copied per request when a caller supplies overrides.
type RetrievalOptions struct {
	LawTopK            int
	CriteriaTopK       int
	MediationTopK      int
	CounselTopK        int
	MediationThreshold int

	VectorWeight  float64
	KeywordWeight float64
	// WeightedCorpora use VectorWeight/KeywordWeight when fusing; all other
	// corpora fuse with pure RRF (1.0/1.0).
	WeightedCorpora []DocType
	// CorpusWeights replaces the shared pair for a weighted corpus.
	CorpusWeights map[DocType]WeightPair

	RuleWeight float64
	StatWeight float64

	RRFK                int
	CandidateMultiplier int
	CallTimeout         time.Duration

	// TopK caps the assembled result set. Zero means the sum of stage budgets.
	TopK       int
	AgencyTopN int

	ExpandMediationQuery bool

	Filter SearchFilter
}

// WeightPair is a dense/lexical fusion weight pair summing to 1.0.
type WeightPair struct {
	Vector  float64 `json:"vector" yaml:"vector"`
	Keyword float64 `json:"keyword" yaml:"keyword"`
}

func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{
		LawTopK:             3,
		CriteriaTopK:        3,
		MediationTopK:       5,
		CounselTopK:         3,
		MediationThreshold:  2,
		VectorWeight:        0.7,
		KeywordWeight:       0.3,
		RuleWeight:          0.7,
		StatWeight:          0.3,
		RRFK:                60,
		CandidateMultiplier: 2,
		CallTimeout:         5 * time.Second,
		AgencyTopN:          3,
		// Statute text matches on exact legal terms.
		CorpusWeights: map[DocType]WeightPair{
			DocTypeStatute: {Vector: 0.4, Keyword: 0.6},
		},
	}
}

// Validate rejects configurations that must never reach a stage.
func (o RetrievalOptions) Validate() error {
	topKs := map[string]int{
		"law_top_k":       o.LawTopK,
		"criteria_top_k":  o.CriteriaTopK,
		"mediation_top_k": o.MediationTopK,
		"counsel_top_k":   o.CounselTopK,
	}
	for _, name := range []string{"law_top_k", "criteria_top_k", "mediation_top_k", "counsel_top_k"} {
		if topKs[name] <= 0 {
			return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("%s must be positive, got %d", name, topKs[name]))
		}
	}
	if o.MediationThreshold < 0 {
		return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("mediation_threshold must not be negative"))
	}
	if err := validateWeightPair("vector_weight", o.VectorWeight, "keyword_weight", o.KeywordWeight); err != nil {
		return err
	}
	if err := validateWeightPair("rule_weight", o.RuleWeight, "stat_weight", o.StatWeight); err != nil {
		return err
	}
	if o.RRFK <= 0 {
		return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("rrf_k must be positive, got %d", o.RRFK))
	}
	if o.CandidateMultiplier < 2 {
		return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("candidate_multiplier must be at least 2, got %d", o.CandidateMultiplier))
	}
	if o.CallTimeout <= 0 {
		return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("call_timeout must be positive"))
	}
	if o.TopK < 0 {
		return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("top_k must not be negative"))
	}
	for _, corpus := range o.WeightedCorpora {
		if _, ok := ParseDocType(string(corpus)); !ok {
			return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("unknown weighted corpus %q", corpus))
		}
	}
	for corpus, pair := range o.CorpusWeights {
		if _, ok := ParseDocType(string(corpus)); !ok {
			return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("unknown corpus %q in corpus weights", corpus))
		}
		name := string(corpus)
		if err := validateWeightPair(name+".vector", pair.Vector, name+".keyword", pair.Keyword); err != nil {
			return err
		}
	}
	return nil
}

func validateWeightPair(leftName string, left float64, rightName string, right float64) error {
	if math.IsNaN(left) || math.IsNaN(right) || left < 0 || right < 0 {
		return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("%s and %s must be non-negative", leftName, rightName))
	}
	if math.Abs(left+right-1.0) > weightTolerance {
		return WrapError(ErrInvalidConfig, "validate retrieval options", fmt.Errorf("%s + %s must equal 1.0, got %.4f", leftName, rightName, left+right))
	}
	return nil
}

func (o RetrievalOptions) TopKFor(corpus DocType) int {
	switch corpus {
	case DocTypeStatute:
		return o.LawTopK
	case DocTypeCriteria:
		return o.CriteriaTopK
	case DocTypeMediationCase:
		return o.MediationTopK
	case DocTypeCounselCase:
		return o.CounselTopK
	default:
		return 0
	}
}

// FinalTopK is the cap applied by the result assembler.
func (o RetrievalOptions) FinalTopK() int {
	if o.TopK > 0 {
		return o.TopK
	}
	return o.LawTopK + o.CriteriaTopK + o.MediationTopK + o.CounselTopK
}

// FusionWeights returns the dense and lexical RRF weights for a corpus.
func (o RetrievalOptions) FusionWeights(corpus DocType) (float64, float64) {
	for _, weighted := range o.WeightedCorpora {
		if weighted != corpus {
			continue
		}
		if pair, ok := o.CorpusWeights[corpus]; ok {
			return pair.Vector, pair.Keyword
		}
		return o.VectorWeight, o.KeywordWeight
	}
	return 1.0, 1.0
}

// RetrievalOverrides carries per-call adjustments. Nil fields keep the
// configured value.
type RetrievalOverrides struct {
	LawTopK            *int     `json:"law_top_k,omitempty"`
	CriteriaTopK       *int     `json:"criteria_top_k,omitempty"`
	MediationTopK      *int     `json:"mediation_top_k,omitempty"`
	CounselTopK        *int     `json:"counsel_top_k,omitempty"`
	MediationThreshold *int     `json:"mediation_threshold,omitempty"`
	VectorWeight       *float64 `json:"vector_weight,omitempty"`
	KeywordWeight      *float64 `json:"keyword_weight,omitempty"`
	RuleWeight         *float64 `json:"rule_weight,omitempty"`
	StatWeight         *float64 `json:"stat_weight,omitempty"`
	RRFK               *int     `json:"rrf_k,omitempty"`
	CallTimeoutMS      *int     `json:"call_timeout_ms,omitempty"`
	TopK               *int     `json:"top_k,omitempty"`
	AgencyTopN         *int     `json:"agency_top_n,omitempty"`

	ChunkTypes []string `json:"chunk_types,omitempty"`
	SourceOrgs []string `json:"source_orgs,omitempty"`
	DocTypes   []string `json:"doc_types,omitempty"`
}

// WithOverrides applies per-call overrides. Invalid results are reported as
// ErrInvalidInput since they originate from the caller. A caller-supplied
// vector/keyword pair applies to every weighted corpus.
func (o RetrievalOptions) WithOverrides(ov RetrievalOverrides) (RetrievalOptions, error) {
	out := o
	out.WeightedCorpora = append([]DocType(nil), o.WeightedCorpora...)
	out.CorpusWeights = maps.Clone(o.CorpusWeights)
	if ov.VectorWeight != nil || ov.KeywordWeight != nil {
		out.CorpusWeights = nil
	}

	setInt(&out.LawTopK, ov.LawTopK)
	setInt(&out.CriteriaTopK, ov.CriteriaTopK)
	setInt(&out.MediationTopK, ov.MediationTopK)
	setInt(&out.CounselTopK, ov.CounselTopK)
	setInt(&out.MediationThreshold, ov.MediationThreshold)
	setInt(&out.RRFK, ov.RRFK)
	setInt(&out.TopK, ov.TopK)
	setInt(&out.AgencyTopN, ov.AgencyTopN)
	setFloat(&out.VectorWeight, ov.VectorWeight)
	setFloat(&out.KeywordWeight, ov.KeywordWeight)
	setFloat(&out.RuleWeight, ov.RuleWeight)
	setFloat(&out.StatWeight, ov.StatWeight)
	if ov.CallTimeoutMS != nil {
		out.CallTimeout = time.Duration(*ov.CallTimeoutMS) * time.Millisecond
	}

	if len(ov.ChunkTypes) > 0 {
		out.Filter.ChunkTypes = append([]string(nil), ov.ChunkTypes...)
	}
	if len(ov.SourceOrgs) > 0 {
		out.Filter.SourceOrgs = append([]string(nil), ov.SourceOrgs...)
	}
	if len(ov.DocTypes) > 0 {
		out.Filter.DocTypes = append([]string(nil), ov.DocTypes...)
	}

	if err := out.Validate(); err != nil {
		return o, WrapError(ErrInvalidInput, "apply retrieval overrides", err)
	}
	return out, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
