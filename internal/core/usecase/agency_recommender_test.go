package usecase

import (
	"math"
	"strings"
	"testing"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

func mustRecommender(t *testing.T, rule, stat float64) *AgencyRecommender {
	t.Helper()
	r, err := NewAgencyRecommender(rule, stat)
	if err != nil {
		t.Fatalf("NewAgencyRecommender() error = %v", err)
	}
	return r
}

func TestRecommendDefaultsToKCAWithoutSignals(t *testing.T) {
	scores := mustRecommender(t, 0.7, 0.3).Recommend("zzz", nil, 3)

	if len(scores) != 3 {
		t.Fatalf("expected 3 agencies, got %d", len(scores))
	}
	if scores[0].AgencyCode != domain.AgencyKCA {
		t.Fatalf("expected KCA first, got %s", scores[0].AgencyCode)
	}
	if math.Abs(scores[0].FinalScore-0.7) > 1e-9 {
		t.Fatalf("expected KCA final score 0.7, got %v", scores[0].FinalScore)
	}
	// ECMC and KCDRC share a floor and keep table order.
	if scores[1].AgencyCode != domain.AgencyECMC || scores[2].AgencyCode != domain.AgencyKCDRC {
		t.Fatalf("expected table order on ties, got %v, %v", scores[1].AgencyCode, scores[2].AgencyCode)
	}
	for _, s := range scores {
		if math.IsNaN(s.FinalScore) || math.IsInf(s.FinalScore, 0) {
			t.Fatalf("non-finite score %+v", s)
		}
	}
}

func TestRecommendECMCForOnlineShopping(t *testing.T) {
	scores := mustRecommender(t, 0.7, 0.3).Recommend("온라인 쇼핑몰에서 산 옷 배송이 안 와요", nil, 3)

	if scores[0].AgencyCode != domain.AgencyECMC {
		t.Fatalf("expected ECMC first, got %+v", scores)
	}
	if scores[0].RuleScore != 1.0 {
		t.Fatalf("expected normalized rule score 1.0, got %v", scores[0].RuleScore)
	}
}

func TestRecommendKCDRCForGameItems(t *testing.T) {
	scores := mustRecommender(t, 0.7, 0.3).Recommend("게임 아이템 결제 취소가 안 됩니다", nil, 1)

	if len(scores) != 1 || scores[0].AgencyCode != domain.AgencyKCDRC {
		t.Fatalf("expected KCDRC only, got %+v", scores)
	}
}

func TestRecommendStatScoreFromSourceOrg(t *testing.T) {
	results := []domain.SearchResult{
		{ChunkID: "1", SourceOrg: domain.StringPtr("콘텐츠분쟁조정위원회")},
		{ChunkID: "2", SourceOrg: domain.StringPtr("콘텐츠분쟁조정위원회")},
		{ChunkID: "3", SourceOrg: domain.StringPtr("KCDRC")},
	}
	scores := mustRecommender(t, 0.5, 0.5).Recommend("zzz", results, 3)

	if scores[0].AgencyCode != domain.AgencyKCDRC {
		t.Fatalf("expected KCDRC first from distribution, got %+v", scores)
	}
	if scores[0].StatScore != 1.0 {
		t.Fatalf("expected stat score 1.0, got %v", scores[0].StatScore)
	}
}

func TestRecommendTracesCategoryLabels(t *testing.T) {
	results := []domain.SearchResult{
		{ChunkID: "1", CategoryPath: []string{"전자거래분쟁조정위원회", "배송 지연"}},
		{ChunkID: "2", CategoryPath: []string{"기타"}},
	}
	explanation := mustRecommender(t, 0.7, 0.3).Explain("zzz", results)

	if explanation.Distribution[domain.AgencyECMC] != 1 {
		t.Fatalf("expected one ECMC result, got %v", explanation.Distribution)
	}
	if len(explanation.Distribution) != 3 {
		t.Fatalf("expected every agency in distribution, got %v", explanation.Distribution)
	}
	if explanation.TotalResults != 2 || explanation.RuleWeight != 0.7 || explanation.StatWeight != 0.3 {
		t.Fatalf("unexpected explanation %+v", explanation)
	}
	if len(explanation.Recommendations) != 3 {
		t.Fatalf("expected full ranking, got %d", len(explanation.Recommendations))
	}
}

func TestRecommendTopNDefault(t *testing.T) {
	if got := mustRecommender(t, 0.7, 0.3).Recommend("환불", nil, 0); len(got) != 3 {
		t.Fatalf("expected default top 3, got %d", len(got))
	}
}

func TestNewAgencyRecommenderRejectsWeights(t *testing.T) {
	if _, err := NewAgencyRecommender(0.8, 0.3); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewAgencyRecommender(-0.1, 1.1); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for negative weight, got %v", err)
	}
}

func TestFormatRecommendation(t *testing.T) {
	text := FormatRecommendation(mustRecommender(t, 0.7, 0.3).Recommend("zzz", nil, 1))
	if !strings.HasPrefix(text, "1. 한국소비자원 (KCA)") {
		t.Fatalf("unexpected rendering %q", text)
	}
	if FormatRecommendation(nil) == "" {
		t.Fatalf("expected placeholder for empty ranking")
	}
}

func TestWithKeywordsExtendsRuleTables(t *testing.T) {
	base := mustRecommender(t, 1.0, 0.0)
	if top := base.Recommend("드론 수입 문의", nil, 1)[0].AgencyCode; top != domain.AgencyKCA {
		t.Fatalf("expected KCA before extension, got %s", top)
	}

	extended, err := base.WithKeywords(map[domain.AgencyCode]map[string]float64{
		domain.AgencyECMC: {"드론": 3},
	})
	if err != nil {
		t.Fatalf("WithKeywords() error = %v", err)
	}
	if top := extended.Recommend("드론 수입 문의", nil, 1)[0].AgencyCode; top != domain.AgencyECMC {
		t.Fatalf("expected ECMC after extension, got %s", top)
	}
	reweighted, err := extended.WithWeights(0.7, 0.3)
	if err != nil {
		t.Fatalf("WithWeights() error = %v", err)
	}
	if top := reweighted.Recommend("드론 수입 문의", nil, 1)[0].AgencyCode; top != domain.AgencyECMC {
		t.Fatalf("expected extensions to survive reweighting, got %s", top)
	}
}

func TestWithKeywordsRejectsInvalidEntries(t *testing.T) {
	base := mustRecommender(t, 0.7, 0.3)
	if _, err := base.WithKeywords(map[domain.AgencyCode]map[string]float64{"XYZ": {"a": 1}}); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown agency, got %v", err)
	}
	if _, err := base.WithKeywords(map[domain.AgencyCode]map[string]float64{domain.AgencyKCA: {"환불": 0}}); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero weight, got %v", err)
	}
}
