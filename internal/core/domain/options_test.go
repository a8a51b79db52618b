package domain

import (
	"math"
	"testing"
	"time"
)

func TestDefaultRetrievalOptionsValid(t *testing.T) {
	if err := DefaultRetrievalOptions().Validate(); err != nil {
		t.Fatalf("default options must be valid: %v", err)
	}
}

func TestRetrievalOptionsValidateRejects(t *testing.T) {
	cases := map[string]func(*RetrievalOptions){
		"zero law top k":        func(o *RetrievalOptions) { o.LawTopK = 0 },
		"negative counsel":      func(o *RetrievalOptions) { o.CounselTopK = -1 },
		"negative threshold":    func(o *RetrievalOptions) { o.MediationThreshold = -1 },
		"rule weights sum":      func(o *RetrievalOptions) { o.RuleWeight = 0.8 },
		"fusion weights sum":    func(o *RetrievalOptions) { o.VectorWeight = 0.5 },
		"negative weight":       func(o *RetrievalOptions) { o.RuleWeight, o.StatWeight = 1.2, -0.2 },
		"nan weight":            func(o *RetrievalOptions) { o.StatWeight = math.NaN() },
		"zero rrf k":            func(o *RetrievalOptions) { o.RRFK = 0 },
		"multiplier below two":  func(o *RetrievalOptions) { o.CandidateMultiplier = 1 },
		"zero timeout":          func(o *RetrievalOptions) { o.CallTimeout = 0 },
		"unknown weighted type": func(o *RetrievalOptions) { o.WeightedCorpora = []DocType{"faq"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultRetrievalOptions()
			mutate(&opts)
			err := opts.Validate()
			if !IsKind(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRetrievalOptionsValidateAcceptsWeightTolerance(t *testing.T) {
	opts := DefaultRetrievalOptions()
	opts.RuleWeight = 0.6
	opts.StatWeight = 0.4000005
	if err := opts.Validate(); err != nil {
		t.Fatalf("expected sum within tolerance to pass: %v", err)
	}
}

func TestFusionWeightsOnlyForWeightedCorpora(t *testing.T) {
	opts := DefaultRetrievalOptions()
	opts.WeightedCorpora = []DocType{DocTypeMediationCase}

	if d, l := opts.FusionWeights(DocTypeStatute); d != 1.0 || l != 1.0 {
		t.Fatalf("expected plain RRF for statute, got %v/%v", d, l)
	}
	if d, l := opts.FusionWeights(DocTypeMediationCase); d != 0.7 || l != 0.3 {
		t.Fatalf("expected configured weights for mediation, got %v/%v", d, l)
	}
}

func TestFusionWeightsPreferCorpusPair(t *testing.T) {
	opts := DefaultRetrievalOptions()
	opts.WeightedCorpora = []DocType{DocTypeStatute, DocTypeCriteria}

	if d, l := opts.FusionWeights(DocTypeStatute); d != 0.4 || l != 0.6 {
		t.Fatalf("expected lexical-leaning statute weights, got %v/%v", d, l)
	}
	if d, l := opts.FusionWeights(DocTypeCriteria); d != 0.7 || l != 0.3 {
		t.Fatalf("expected shared weights for criteria, got %v/%v", d, l)
	}

	vector, keyword := 0.5, 0.5
	out, err := opts.WithOverrides(RetrievalOverrides{VectorWeight: &vector, KeywordWeight: &keyword})
	if err != nil {
		t.Fatalf("WithOverrides() error = %v", err)
	}
	if d, l := out.FusionWeights(DocTypeStatute); d != 0.5 || l != 0.5 {
		t.Fatalf("expected caller pair to apply to statute, got %v/%v", d, l)
	}
	if d, _ := opts.FusionWeights(DocTypeStatute); d != 0.4 {
		t.Fatalf("overrides must not mutate the base options")
	}
}

func TestValidateRejectsBadCorpusPair(t *testing.T) {
	opts := DefaultRetrievalOptions()
	opts.CorpusWeights = map[DocType]WeightPair{DocTypeCriteria: {Vector: 0.9, Keyword: 0.9}}
	if err := opts.Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	opts.CorpusWeights = map[DocType]WeightPair{"faq": {Vector: 0.5, Keyword: 0.5}}
	if err := opts.Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown corpus, got %v", err)
	}
}

func TestFinalTopK(t *testing.T) {
	opts := DefaultRetrievalOptions()
	if got := opts.FinalTopK(); got != 14 {
		t.Fatalf("expected sum of stage budgets 14, got %d", got)
	}
	opts.TopK = 4
	if got := opts.FinalTopK(); got != 4 {
		t.Fatalf("expected explicit top_k 4, got %d", got)
	}
}

func TestWithOverridesAppliesValues(t *testing.T) {
	law, timeout := 7, 250
	rule, stat := 0.5, 0.5
	opts, err := DefaultRetrievalOptions().WithOverrides(RetrievalOverrides{
		LawTopK:       &law,
		RuleWeight:    &rule,
		StatWeight:    &stat,
		CallTimeoutMS: &timeout,
		ChunkTypes:    []string{"article"},
	})
	if err != nil {
		t.Fatalf("WithOverrides() error = %v", err)
	}
	if opts.LawTopK != 7 || opts.RuleWeight != 0.5 || opts.CallTimeout != 250*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", opts)
	}
	if len(opts.Filter.ChunkTypes) != 1 || opts.Filter.ChunkTypes[0] != "article" {
		t.Fatalf("expected chunk type filter, got %+v", opts.Filter)
	}
}

func TestWithOverridesRejectsInvalid(t *testing.T) {
	rule := 0.9
	base := DefaultRetrievalOptions()
	out, err := base.WithOverrides(RetrievalOverrides{RuleWeight: &rule})
	if !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if out.RuleWeight != base.RuleWeight {
		t.Fatalf("expected base options back on error, got rule weight %v", out.RuleWeight)
	}
}

func TestParseDocType(t *testing.T) {
	if got, ok := ParseDocType(" Mediation_Case "); !ok || got != DocTypeMediationCase {
		t.Fatalf("expected mediation_case, got %q %v", got, ok)
	}
	if _, ok := ParseDocType("faq"); ok {
		t.Fatalf("expected faq to be unknown")
	}
}

func TestSearchResultWithSimilarityCopies(t *testing.T) {
	original := SearchResult{ChunkID: "a", CategoryPath: []string{"가전"}, Similarity: 0.1}
	updated := original.WithSimilarity(0.9)
	updated.CategoryPath[0] = "changed"

	if original.CategoryPath[0] != "가전" || original.Similarity != 0.1 {
		t.Fatalf("original mutated: %+v", original)
	}
}
