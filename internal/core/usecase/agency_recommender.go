package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

const defaultAgencyTopN = 3

type weightedTerm struct {
	term   string
	weight float64
}

type agencyProfile struct {
	code        domain.AgencyCode
	name        string
	description string
	floor       float64
	keywords    []weightedTerm
	// aliases match source_org or category labels of retrieved results.
	aliases []string
}

// agencyProfiles is in tie-break order. KCA carries the highest floor and is
// the default recommendation for unmatched questions.
var agencyProfiles = []agencyProfile{
	{
		code:        domain.AgencyKCA,
		name:        "한국소비자원",
		description: "일반 소비자 피해구제 및 소비자분쟁조정위원회 조정",
		floor:       0.10,
		keywords: []weightedTerm{
			{"환불", 1.0}, {"교환", 1.0}, {"수리", 1.0}, {"하자", 1.0}, {"품질", 0.8},
			{"보증", 0.8}, {"가전", 0.8}, {"자동차", 0.8}, {"헬스장", 0.8}, {"학원", 0.8},
			{"세탁", 0.8}, {"여행", 0.8}, {"항공", 0.8}, {"숙박", 0.8}, {"의류", 0.6},
			{"화장품", 0.6}, {"위약금", 0.8}, {"계약", 0.6}, {"부작용", 0.8}, {"피해구제", 1.2},
			{"소비자원", 1.5},
		},
		aliases: []string{"한국소비자원", "소비자원", "소비자분쟁조정위원회", "kca"},
	},
	{
		code:        domain.AgencyECMC,
		name:        "전자거래분쟁조정위원회",
		description: "온라인 쇼핑몰, 오픈마켓 등 전자상거래 분쟁 조정",
		floor:       0.05,
		keywords: []weightedTerm{
			{"온라인", 1.0}, {"쇼핑몰", 1.2}, {"인터넷", 1.0}, {"오픈마켓", 1.2}, {"전자상거래", 1.5},
			{"통신판매", 1.2}, {"배송", 1.0}, {"직구", 1.0}, {"해외구매", 1.0}, {"중고거래", 1.0},
			{"택배", 0.8}, {"결제", 0.6}, {"sns", 0.6}, {"마켓", 0.8}, {"앱", 0.4},
		},
		aliases: []string{"전자거래분쟁조정위원회", "전자문서·전자거래분쟁조정위원회", "전자거래", "ecmc"},
	},
	{
		code:        domain.AgencyKCDRC,
		name:        "콘텐츠분쟁조정위원회",
		description: "게임, 웹툰, 음원, 영상 등 디지털 콘텐츠 이용 분쟁 조정",
		floor:       0.05,
		keywords: []weightedTerm{
			{"게임", 1.2}, {"아이템", 1.2}, {"콘텐츠", 1.5}, {"웹툰", 1.2}, {"음원", 1.2},
			{"스트리밍", 1.0}, {"구독", 1.0}, {"동영상", 1.0}, {"인앱", 1.2}, {"이용권", 0.8},
			{"ott", 1.0}, {"전자책", 1.0}, {"캐시", 0.8}, {"앱스토어", 0.8},
		},
		aliases: []string{"콘텐츠분쟁조정위원회", "콘텐츠분쟁", "kcdrc"},
	},
}

// AgencyRecommender blends keyword rules with the agency distribution of
// retrieved results. Its tables are read-only.
type AgencyRecommender struct {
	ruleWeight float64
	statWeight float64
	// extra keywords per agency, added to the built-in tables.
	extra map[domain.AgencyCode][]weightedTerm
}

func NewAgencyRecommender(ruleWeight, statWeight float64) (*AgencyRecommender, error) {
	if math.IsNaN(ruleWeight) || math.IsNaN(statWeight) || ruleWeight < 0 || statWeight < 0 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new agency recommender", fmt.Errorf("weights must be non-negative"))
	}
	if math.Abs(ruleWeight+statWeight-1.0) > 1e-6 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new agency recommender",
			fmt.Errorf("rule_weight + stat_weight must equal 1.0, got %.4f", ruleWeight+statWeight))
	}
	return &AgencyRecommender{ruleWeight: ruleWeight, statWeight: statWeight}, nil
}

// WithWeights returns a recommender using different blend weights.
func (r *AgencyRecommender) WithWeights(ruleWeight, statWeight float64) (*AgencyRecommender, error) {
	if ruleWeight == r.ruleWeight && statWeight == r.statWeight {
		return r, nil
	}
	out, err := NewAgencyRecommender(ruleWeight, statWeight)
	if err != nil {
		return nil, err
	}
	out.extra = r.extra
	return out, nil
}

// WithKeywords returns a recommender whose rule tables also contain the given
// lowercase terms. Unknown agencies and non-positive weights are rejected.
func (r *AgencyRecommender) WithKeywords(keywords map[domain.AgencyCode]map[string]float64) (*AgencyRecommender, error) {
	extra := make(map[domain.AgencyCode][]weightedTerm, len(keywords))
	for code, terms := range keywords {
		if _, ok := profileFor(code); !ok {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "agency keywords", fmt.Errorf("unknown agency %q", code))
		}
		names := make([]string, 0, len(terms))
		for term := range terms {
			names = append(names, term)
		}
		sort.Strings(names)
		for _, term := range names {
			weight := terms[term]
			clean := strings.ToLower(strings.TrimSpace(term))
			if clean == "" || math.IsNaN(weight) || weight <= 0 {
				return nil, domain.WrapError(domain.ErrInvalidConfig, "agency keywords", fmt.Errorf("invalid keyword %q for %s", term, code))
			}
			extra[code] = append(extra[code], weightedTerm{clean, weight})
		}
	}
	out := *r
	out.extra = extra
	return &out, nil
}

// Recommend ranks agencies by final score. The output is never empty.
func (r *AgencyRecommender) Recommend(question string, results []domain.SearchResult, topN int) []domain.AgencyScore {
	if topN <= 0 {
		topN = defaultAgencyTopN
	}
	scores := r.score(question, results)
	if topN < len(scores) {
		scores = scores[:topN]
	}
	return scores
}

func (r *AgencyRecommender) Explain(question string, results []domain.SearchResult) domain.AgencyExplanation {
	distribution := agencyDistribution(results)
	full := make(map[domain.AgencyCode]int, len(agencyProfiles))
	for _, p := range agencyProfiles {
		full[p.code] = distribution[p.code]
	}
	return domain.AgencyExplanation{
		Recommendations: r.score(question, results),
		Distribution:    full,
		TotalResults:    len(results),
		RuleWeight:      r.ruleWeight,
		StatWeight:      r.statWeight,
	}
}

func (r *AgencyRecommender) score(question string, results []domain.SearchResult) []domain.AgencyScore {
	lower := strings.ToLower(question)

	rules := make([]float64, len(agencyProfiles))
	maxRule := 0.0
	for i, p := range agencyProfiles {
		rules[i] = p.ruleScore(lower, r.extra[p.code])
		if rules[i] > maxRule {
			maxRule = rules[i]
		}
	}

	distribution := agencyDistribution(results)
	total := len(results)

	scores := make([]domain.AgencyScore, 0, len(agencyProfiles))
	for i, p := range agencyProfiles {
		rule := 0.0
		if maxRule > 0 {
			rule = rules[i] / maxRule
		}
		stat := 0.0
		if total > 0 {
			stat = float64(distribution[p.code]) / float64(total)
		}
		scores = append(scores, domain.AgencyScore{
			AgencyCode:  p.code,
			Name:        p.name,
			FinalScore:  r.ruleWeight*rule + r.statWeight*stat,
			RuleScore:   rule,
			StatScore:   stat,
			Description: p.description,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].FinalScore > scores[j].FinalScore
	})
	return scores
}

// ruleScore is log-scaled matched weight over total weight, never below the
// agency floor.
func (p agencyProfile) ruleScore(lower string, extra []weightedTerm) float64 {
	total, matched := 0.0, 0.0
	for _, kw := range append(p.keywords[:len(p.keywords):len(p.keywords)], extra...) {
		total += kw.weight
		if strings.Contains(lower, kw.term) {
			matched += kw.weight
		}
	}
	raw := 0.0
	if matched > 0 && total > 0 {
		raw = math.Log1p(matched) / math.Log1p(total)
	}
	return math.Max(raw, p.floor)
}

func profileFor(code domain.AgencyCode) (agencyProfile, bool) {
	for _, p := range agencyProfiles {
		if p.code == code {
			return p, true
		}
	}
	return agencyProfile{}, false
}

func agencyDistribution(results []domain.SearchResult) map[domain.AgencyCode]int {
	out := make(map[domain.AgencyCode]int)
	for _, result := range results {
		if code, ok := traceAgency(result); ok {
			out[code]++
		}
	}
	return out
}

// traceAgency attributes a result to an agency by source_org, then by
// category labels.
func traceAgency(result domain.SearchResult) (domain.AgencyCode, bool) {
	if org := strings.ToLower(strings.TrimSpace(result.SourceOrgValue())); org != "" {
		if code, ok := matchAgencyAlias(org); ok {
			return code, true
		}
	}
	for _, label := range result.CategoryPath {
		if code, ok := matchAgencyAlias(strings.ToLower(label)); ok {
			return code, true
		}
	}
	return "", false
}

func matchAgencyAlias(value string) (domain.AgencyCode, bool) {
	for _, p := range agencyProfiles {
		if strings.EqualFold(value, string(p.code)) {
			return p.code, true
		}
		for _, alias := range p.aliases {
			if strings.Contains(value, alias) {
				return p.code, true
			}
		}
	}
	return "", false
}

// FormatRecommendation renders a ranking as numbered plain text.
func FormatRecommendation(scores []domain.AgencyScore) string {
	if len(scores) == 0 {
		return "추천 기관 없음"
	}
	var b strings.Builder
	for i, s := range scores {
		fmt.Fprintf(&b, "%d. %s (%s) 점수 %.2f [규칙 %.2f, 통계 %.2f]\n", i+1, s.Name, s.AgencyCode, s.FinalScore, s.RuleScore, s.StatScore)
		if s.Description != "" {
			fmt.Fprintf(&b, "   %s\n", s.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
