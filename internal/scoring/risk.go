package scoring

import "strings"

// Category is a discrete investment risk level.
type Category string

const (
	CategoryLow     Category = "Low"
	CategoryMedium  Category = "Medium"
	CategoryHigh    Category = "High"
	CategoryExtreme Category = "Extreme"
)

// Categories lists every category from least to most risky.
var Categories = []Category{CategoryLow, CategoryMedium, CategoryHigh, CategoryExtreme}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// RiskAssessment is the derived risk for a country.
type RiskAssessment struct {
	Score    float64  `json:"risk_score"`
	Category Category `json:"category"`
}

const (
	// neutralPoliticalRisk is used when no stability reading exists.
	neutralPoliticalRisk = 5.0
	// embassySaturation is the mission count above which embassy risk bottoms out.
	embassySaturation = 5
)

// CalculateRisk combines a political-stability index (roughly -2.5..+2.5)
// and a diplomatic mission count into a 0..100 risk score.
// A nil stability counts as medium political risk; negative counts as zero missions.
func CalculateRisk(stability *float64, embassyCount int) RiskAssessment {
	politicalRisk := neutralPoliticalRisk
	if stability != nil {
		politicalRisk = ((-*stability + 2.5) / 5) * 10
	}

	if embassyCount < 0 {
		embassyCount = 0
	}
	embassyRisk := 1.0
	if embassyCount <= embassySaturation {
		embassyRisk = float64(embassySaturation - embassyCount)
	}

	score := clamp(politicalRisk*10 + embassyRisk*5)
	return RiskAssessment{Score: score, Category: Categorize(score)}
}

// Categorize buckets a risk score. Upper bounds are inclusive:
// [0,30] Low, (30,60] Medium, (60,80] High, (80,100] Extreme.
func Categorize(score float64) Category {
	switch {
	case score <= 30:
		return CategoryLow
	case score <= 60:
		return CategoryMedium
	case score <= 80:
		return CategoryHigh
	default:
		return CategoryExtreme
	}
}
