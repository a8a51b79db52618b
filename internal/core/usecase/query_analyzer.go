package usecase

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

const (
	defaultMaxKeywords = 15
	maxProductTerms    = 5
	minKeywordRunes    = 2
)

var (
	articlePattern        = regexp.MustCompile(`제\s*(\d+)\s*조(?:\s*의\s*(\d+))?(?:\s*제?\s*(\d+)\s*항)?`)
	englishArticlePattern = regexp.MustCompile(`(?i)\barticle\s+(\d+)(?:\s*\(\s*(\d+)\s*\))?`)
	articleTokenPattern   = regexp.MustCompile(`^제\d+조`)
	tokenPattern          = regexp.MustCompile(`[\p{L}\p{N}]+`)
	amountPattern         = regexp.MustCompile(`\d[\d,]*\s*(?:만\s*)?(?:원|달러|won|krw)`)
	datePattern           = regexp.MustCompile(`\d{4}\s*[.\-/년]|\d{1,2}\s*월\s*\d{1,2}\s*일`)
)

// QueryAnalyzer is rule-based and never fails. Its lookup tables are
// package-level and read-only, so one analyzer may serve concurrent requests.
type QueryAnalyzer struct {
	maxKeywords int
}

func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{maxKeywords: defaultMaxKeywords}
}

func (a *QueryAnalyzer) Analyze(question string) domain.QueryAnalysis {
	raw := strings.TrimSpace(question)
	analysis := domain.QueryAnalysis{
		RawQuery:          raw,
		QueryType:         domain.QueryTypeGeneralInquiry,
		Keywords:          []domain.Keyword{},
		StatuteReferences: []domain.StatuteReference{},
		ProductTerms:      []string{},
		DisputeTypes:      []string{},
		LawNames:          []string{},
	}
	if raw == "" {
		return analysis
	}

	lower := strings.ToLower(raw)
	analysis.LawNames = extractLawNames(raw)
	analysis.StatuteReferences = extractStatuteReferences(raw, analysis.LawNames)
	analysis.ProductTerms = extractProductTerms(lower)
	analysis.DisputeTypes = inferDisputeTypes(lower)
	analysis.Keywords = a.extractKeywords(lower)
	analysis.HasAmount = amountPattern.MatchString(lower)
	analysis.HasDate = datePattern.MatchString(raw)
	analysis.QueryType = classifyQuery(lower, analysis)
	return analysis
}

func classifyQuery(lower string, analysis domain.QueryAnalysis) domain.QueryType {
	if len(analysis.StatuteReferences) > 0 || len(analysis.LawNames) > 0 {
		return domain.QueryTypeLegalInterpretation
	}
	if countContained(lower, legalTerms) >= 2 {
		return domain.QueryTypeLegalInterpretation
	}
	if countContained(lower, precedentPhrases) > 0 {
		return domain.QueryTypeSimilarCase
	}
	return domain.QueryTypeGeneralInquiry
}

func (a *QueryAnalyzer) extractKeywords(lower string) []domain.Keyword {
	limit := a.maxKeywords
	if limit <= 0 {
		limit = defaultMaxKeywords
	}

	seen := make(map[string]struct{})
	keywords := make([]domain.Keyword, 0)
	for _, token := range tokenPattern.FindAllString(lower, -1) {
		term := normalizeToken(token)
		if utf8.RuneCountInString(term) < minKeywordRunes {
			continue
		}
		if _, stop := stopWords[term]; stop {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		keywords = append(keywords, domain.Keyword{Term: term, Weight: termWeight(term)})
	}

	// Stable sort keeps first-occurrence order among equal weights.
	sort.SliceStable(keywords, func(i, j int) bool {
		return keywords[i].Weight > keywords[j].Weight
	})
	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

func normalizeToken(token string) string {
	tokenRunes := utf8.RuneCountInString(token)
	for _, suffix := range particleSuffixes {
		if !strings.HasSuffix(token, suffix) {
			continue
		}
		if tokenRunes-utf8.RuneCountInString(suffix) < minKeywordRunes {
			continue
		}
		return strings.TrimSuffix(token, suffix)
	}
	return token
}

func termWeight(term string) float64 {
	if w, ok := domainTermWeights[term]; ok {
		return w
	}
	if articleTokenPattern.MatchString(term) {
		return articleWeight
	}
	if _, ok := lawAliases[term]; ok {
		return lawNameWeight
	}
	if _, ok := productSynonyms[term]; ok {
		return productWeight
	}
	best := baseKeywordWeight
	for known, w := range domainTermWeights {
		if w > best && strings.Contains(term, known) {
			best = w
		}
	}
	return best
}

type lawMatch struct {
	name  string
	start int
	end   int
}

func extractLawNames(text string) []string {
	matches := make([]lawMatch, 0)
	for _, alias := range lawAliasesByLength {
		offset := 0
		for {
			idx := strings.Index(text[offset:], alias)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(alias)
			offset = end
			if overlapsAny(matches, start, end) {
				continue
			}
			matches = append(matches, lawMatch{name: lawAliases[alias], start: start, end: end})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	names := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.name]; ok {
			continue
		}
		seen[m.name] = struct{}{}
		names = append(names, m.name)
	}
	return names
}

func overlapsAny(matches []lawMatch, start, end int) bool {
	for _, m := range matches {
		if start < m.end && m.start < end {
			return true
		}
	}
	return false
}

func extractStatuteReferences(text string, lawNames []string) []domain.StatuteReference {
	refs := make([]domain.StatuteReference, 0)
	seen := make(map[domain.StatuteReference]struct{})
	add := func(ref domain.StatuteReference) {
		if ref.LawName == "" && len(lawNames) == 1 {
			ref.LawName = lawNames[0]
		}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	for _, m := range articlePattern.FindAllStringSubmatchIndex(text, -1) {
		ref := domain.StatuteReference{
			LawName: lawNameBefore(text[:m[0]]),
			Article: text[m[2]:m[3]],
		}
		if m[4] >= 0 {
			ref.Article += "의" + text[m[4]:m[5]]
		}
		if m[6] >= 0 {
			ref.Paragraph = text[m[6]:m[7]]
		}
		add(ref)
	}
	for _, m := range englishArticlePattern.FindAllStringSubmatchIndex(text, -1) {
		ref := domain.StatuteReference{
			LawName: lawNameBefore(text[:m[0]]),
			Article: text[m[2]:m[3]],
		}
		if m[4] >= 0 {
			ref.Paragraph = text[m[4]:m[5]]
		}
		add(ref)
	}
	return refs
}

// lawNameBefore resolves the statute named immediately before an article
// citation, e.g. "민법 제750조" or "민법의 제750조".
func lawNameBefore(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "의"))
	for _, alias := range lawAliasesByLength {
		if strings.HasSuffix(trimmed, alias) {
			return lawAliases[alias]
		}
	}
	return ""
}

func extractProductTerms(lower string) []string {
	type hit struct {
		term string
		pos  int
	}
	hits := make([]hit, 0)
	seen := make(map[string]struct{})
	for _, synonym := range productSynonymsByLength {
		idx := strings.Index(lower, synonym)
		if idx < 0 {
			continue
		}
		canonical := productSynonyms[synonym]
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		hits = append(hits, hit{term: canonical, pos: idx})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if len(out) == maxProductTerms {
			break
		}
		out = append(out, h.term)
	}
	return out
}

func inferDisputeTypes(lower string) []string {
	out := make([]string, 0)
	for _, rule := range disputeRules {
		if countContained(lower, rule.keywords) > 0 {
			out = append(out, rule.name)
		}
	}
	return out
}

func countContained(text string, needles []string) int {
	count := 0
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			count++
		}
	}
	return count
}
