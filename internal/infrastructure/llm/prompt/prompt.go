// Package prompt builds the answer-generation prompts shared by every LLM
// provider.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

const Disclaimer = "※ 본 답변은 검색된 법령·기준·사례를 바탕으로 한 참고 정보이며 법률 자문이 아닙니다. 구체적인 사안은 한국소비자원(1372) 등 관련 기관에 상담하시기 바랍니다."

// Section headings, in answer order.
var Sections = []string{
	"## 요약",
	"## 관련 법령 및 기준",
	"## 유사 사례",
	"## 권장 조치 및 상담 기관",
}

// System is the instruction block sent as the system message.
var System = strings.Join([]string{
	"당신은 한국 소비자 분쟁 상담을 돕는 어시스턴트입니다.",
	"반드시 아래 [근거 자료]에 있는 내용만 사용하여 답하고, 근거가 부족하면 부족하다고 명확히 밝히십시오.",
	"인용할 때는 [근거 번호]를 붙이십시오. 법령 조문과 사례 번호를 지어내지 마십시오.",
	"답변은 다음 네 개의 제목을 순서대로 사용하십시오:",
	strings.Join(Sections, "\n"),
}, "\n")

var docTypeLabels = map[domain.DocType]string{
	domain.DocTypeStatute:       "법령",
	domain.DocTypeCriteria:      "분쟁해결기준",
	domain.DocTypeMediationCase: "조정사례",
	domain.DocTypeCounselCase:   "상담사례",
}

// User renders the question, the numbered evidence and the agency ranking.
func User(question string, citations []domain.Citation, agencies []domain.AgencyScore) string {
	var b strings.Builder
	b.WriteString("[근거 자료]\n")
	if len(citations) == 0 {
		b.WriteString("검색된 근거 자료가 없습니다.\n")
	}
	for _, c := range citations {
		b.WriteString(citationHeader(c))
		b.WriteString("\n")
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}

	if len(agencies) > 0 {
		b.WriteString("[추천 상담 기관]\n")
		for i, a := range agencies {
			fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, a.Name, a.AgencyCode, a.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("[질문]\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\n위 근거 자료만 사용하여 답변을 작성하십시오.")
	return b.String()
}

func citationHeader(c domain.Citation) string {
	label := docTypeLabels[c.DocType]
	if label == "" {
		label = string(c.DocType)
	}
	parts := []string{fmt.Sprintf("[근거 %d] %s", c.Index, label)}
	if c.DocTitle != "" {
		parts = append(parts, c.DocTitle)
	}
	if c.SourceOrg != "" {
		parts = append(parts, "기관: "+c.SourceOrg)
	}
	if c.DecisionDate != "" {
		parts = append(parts, "결정일: "+c.DecisionDate)
	}
	parts = append(parts, fmt.Sprintf("유사도: %.3f", c.Similarity))
	return strings.Join(parts, ", ")
}

// WithDisclaimer appends the disclaimer unless the answer already ends with it.
func WithDisclaimer(answer string) string {
	answer = strings.TrimSpace(answer)
	if strings.HasSuffix(answer, Disclaimer) {
		return answer
	}
	if answer == "" {
		return Disclaimer
	}
	return answer + "\n\n" + Disclaimer
}

// Stub assembles a deterministic answer from the evidence alone. It is used
// when no model is configured.
func Stub(question string, citations []domain.Citation, agencies []domain.AgencyScore) string {
	byType := make(map[domain.DocType][]domain.Citation)
	for _, c := range citations {
		byType[c.DocType] = append(byType[c.DocType], c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n질문 \"%s\"에 대해 %d건의 근거 자료를 찾았습니다.\n\n", Sections[0], strings.TrimSpace(question), len(citations))

	b.WriteString(Sections[1] + "\n")
	writeCitationList(&b, append(byType[domain.DocTypeStatute], byType[domain.DocTypeCriteria]...))

	b.WriteString("\n" + Sections[2] + "\n")
	writeCitationList(&b, append(byType[domain.DocTypeMediationCase], byType[domain.DocTypeCounselCase]...))

	b.WriteString("\n" + Sections[3] + "\n")
	if len(agencies) == 0 {
		b.WriteString("- 한국소비자원(1372)\n")
	}
	for _, a := range agencies {
		fmt.Fprintf(&b, "- %s (%s)\n", a.Name, a.AgencyCode)
	}
	return WithDisclaimer(b.String())
}

func writeCitationList(b *strings.Builder, citations []domain.Citation) {
	if len(citations) == 0 {
		b.WriteString("- 해당 근거 없음\n")
		return
	}
	for _, c := range citations {
		title := c.DocTitle
		if title == "" {
			title = c.DocID
		}
		fmt.Fprintf(b, "- [근거 %d] %s\n", c.Index, title)
	}
}
