package domain

type AgencyCode string

const (
	AgencyKCA   AgencyCode = "KCA"
	AgencyECMC  AgencyCode = "ECMC"
	AgencyKCDRC AgencyCode = "KCDRC"
)

type AgencyScore struct {
	AgencyCode  AgencyCode `json:"agency_code"`
	Name        string     `json:"name"`
	FinalScore  float64    `json:"final_score"`
	RuleScore   float64    `json:"rule_score"`
	StatScore   float64    `json:"stat_score"`
	Description string     `json:"description"`
}

// AgencyExplanation is the auditable breakdown behind a recommendation.
type AgencyExplanation struct {
	Recommendations []AgencyScore      `json:"recommendations"`
	Distribution    map[AgencyCode]int `json:"distribution"`
	TotalResults    int                `json:"total_results"`
	RuleWeight      float64            `json:"rule_weight"`
	StatWeight      float64            `json:"stat_weight"`
}
