package usecase

import (
	"sort"
	"unicode/utf8"
)

const (
	baseKeywordWeight = 1.0
	productWeight     = 1.5
	lawNameWeight     = 2.0
	articleWeight     = 2.5
)

// domainTermWeights boosts consumer-dispute and legal vocabulary.
var domainTermWeights = map[string]float64{
	"환불":       2.0,
	"환급":       2.0,
	"교환":       1.8,
	"반품":       1.8,
	"청약철회":     2.5,
	"위약금":      2.2,
	"손해배상":     2.5,
	"불법행위":     2.5,
	"배상":       2.0,
	"하자":       2.0,
	"불량":       1.8,
	"결함":       1.8,
	"고장":       1.6,
	"수리":       1.6,
	"보증":       1.6,
	"품질보증":     2.0,
	"보증기간":     2.0,
	"내용연수":     2.0,
	"계약":       1.5,
	"해지":       1.8,
	"해제":       1.8,
	"취소":       1.6,
	"약관":       1.8,
	"배송":       1.5,
	"지연":       1.4,
	"결제":       1.5,
	"할부":       1.6,
	"구독":       1.6,
	"자동결제":     1.8,
	"소비자":      1.2,
	"분쟁":       1.2,
	"조정":       1.3,
	"피해":       1.3,
	"구제":       1.4,
	"쇼핑몰":      1.5,
	"온라인":      1.4,
	"통신판매":     1.8,
	"오픈마켓":     1.8,
	"중고":       1.4,
	"세탁":       1.5,
	"부작용":      1.6,
	"과실":       1.8,
	"책임":       1.4,
	"refund":   2.0,
	"warranty": 1.6,
	"defect":   1.8,
	"contract": 1.5,
}

// legalTerms push a question towards legal interpretation when two or more
// appear.
var legalTerms = []string{
	"법률", "법적", "위법", "불법행위", "손해배상", "책임", "의무", "권리",
	"규정", "조항", "해석", "판결", "효력", "무효", "채무불이행", "법원",
}

// precedentPhrases mark a request for comparable cases.
var precedentPhrases = []string{
	"사례", "판례", "선례", "결정례", "비슷한", "유사한", "유사 ", "조정 결과",
	"similar case", "precedent",
}

// lawAliases maps every recognised statute spelling to its short name.
var lawAliases = map[string]string{
	"민법":                      "민법",
	"상법":                      "상법",
	"소비자기본법":                  "소비자기본법",
	"전자상거래법":                  "전자상거래법",
	"전자상거래 등에서의 소비자보호에 관한 법률": "전자상거래법",
	"전자상거래소비자보호법":             "전자상거래법",
	"할부거래법":                   "할부거래법",
	"할부거래에 관한 법률":             "할부거래법",
	"방문판매법":                   "방문판매법",
	"방문판매 등에 관한 법률":           "방문판매법",
	"약관규제법":                   "약관규제법",
	"약관의 규제에 관한 법률":           "약관규제법",
	"제조물책임법":                  "제조물책임법",
	"콘텐츠산업 진흥법":               "콘텐츠산업진흥법",
	"콘텐츠산업진흥법":                "콘텐츠산업진흥법",
	"전기통신사업법":                 "전기통신사업법",
	"표시광고법":                   "표시광고법",
	"표시·광고의 공정화에 관한 법률":       "표시광고법",
	"여객자동차 운수사업법":             "여객자동차운수사업법",
	"개인정보 보호법":                "개인정보보호법",
	"개인정보보호법":                 "개인정보보호법",
}

// lawAliasesByLength lists aliases longest first so that the most specific
// spelling wins.
var lawAliasesByLength = sortedByRuneLength(mapKeys(lawAliases))

// productSynonyms maps product spellings to a canonical product term.
var productSynonyms = map[string]string{
	"휴대폰":  "휴대폰",
	"핸드폰":  "휴대폰",
	"스마트폰": "휴대폰",
	"아이폰":  "휴대폰",
	"갤럭시":  "휴대폰",
	"노트북":  "노트북",
	"랩탑":   "노트북",
	"컴퓨터":  "컴퓨터",
	"태블릿":  "태블릿",
	"냉장고":  "냉장고",
	"세탁기":  "세탁기",
	"건조기":  "건조기",
	"에어컨":  "에어컨",
	"tv":   "TV",
	"텔레비전": "TV",
	"티비":   "TV",
	"정수기":  "정수기",
	"이어폰":  "이어폰",
	"자동차":  "자동차",
	"중고차":  "자동차",
	"차량":   "자동차",
	"항공권":  "항공권",
	"항공":   "항공권",
	"숙박":   "숙박",
	"호텔":   "숙박",
	"펜션":   "숙박",
	"여행":   "여행",
	"헬스장":  "헬스장",
	"피트니스": "헬스장",
	"학원":   "학원",
	"게임":   "게임",
	"아이템":  "게임",
	"음원":   "디지털콘텐츠",
	"웹툰":   "디지털콘텐츠",
	"동영상":  "디지털콘텐츠",
	"가구":   "가구",
	"침대":   "가구",
	"소파":   "가구",
	"의류":   "의류",
	"신발":   "신발",
	"운동화":  "신발",
	"화장품":  "화장품",
	"안경":   "안경",
	"렌즈":   "안경",
}

var productSynonymsByLength = sortedByRuneLength(mapKeys(productSynonyms))

type disputeRule struct {
	name     string
	keywords []string
}

// disputeRules is evaluated in order; output preserves it.
var disputeRules = []disputeRule{
	{name: "환불", keywords: []string{"환불", "환급", "돌려받"}},
	{name: "교환", keywords: []string{"교환"}},
	{name: "수리", keywords: []string{"수리", "a/s", "애프터서비스", "고장"}},
	{name: "하자", keywords: []string{"하자", "불량", "결함", "파손"}},
	{name: "계약해지", keywords: []string{"해지", "해제", "위약금", "청약철회", "취소"}},
	{name: "배송", keywords: []string{"배송", "배달", "미배송"}},
	{name: "요금", keywords: []string{"요금", "청구", "과금", "자동결제"}},
	{name: "안전", keywords: []string{"부작용", "상해", "화상", "안전"}},
	{name: "표시광고", keywords: []string{"허위", "과장", "광고"}},
}

var stopWords = map[string]struct{}{
	"무엇": {}, "어떻게": {}, "어떤": {}, "있나요": {}, "있는지": {}, "관련": {},
	"대해": {}, "대한": {}, "경우": {}, "그리고": {}, "하지만": {}, "그런데": {},
	"제가": {}, "저는": {}, "우리": {}, "이런": {}, "저런": {}, "그냥": {},
	"알려주세요": {}, "알려줘": {}, "궁금합니다": {}, "궁금해요": {}, "가능한가요": {},
	"가능": {}, "해야": {}, "하나요": {}, "되나요": {}, "어디": {}, "언제": {},
	"누가": {}, "얼마": {}, "정도": {}, "때문": {}, "지금": {}, "현재": {},
	"the": {}, "and": {}, "what": {}, "how": {}, "for": {}, "with": {},
	"can": {}, "does": {}, "about": {}, "is": {}, "are": {}, "my": {},
}

// particleSuffixes are stripped once from the end of a token.
var particleSuffixes = sortedByRuneLength([]string{
	"은", "는", "이", "가", "을", "를", "의", "에", "에서", "에게", "한테",
	"으로", "로", "와", "과", "도", "만", "부터", "까지", "이나", "나",
	"이랑", "랑", "께서", "인가요", "인지", "입니다", "습니다", "나요", "까요",
	"받고", "받을", "받으려면", "하려면", "하려고", "했는데", "하는데", "했어요",
	"해요", "해주세요", "됐는데", "되는지", "인데", "이요",
})

func mapKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sortedByRuneLength(values []string) []string {
	out := append([]string(nil), values...)
	sort.Slice(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i]), utf8.RuneCountInString(out[j])
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}
