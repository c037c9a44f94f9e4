package aggregate

import (
	"time"

	"github.com/neexbeast/greenscore/internal/presence"
	"github.com/neexbeast/greenscore/internal/scoring"
)

// Query names the location to score. City defaults to the resolved country name.
type Query struct {
	Country string
	City    string
}

// Degradation records a signal that was substituted with a default.
type Degradation struct {
	Signal string `json:"signal"`
	Reason string `json:"reason"`
}

// PresenceInfo describes how the diplomatic presence count was obtained.
type PresenceInfo struct {
	Source          string                `json:"source"`
	ServedFromCache bool                  `json:"served_from_cache"`
	FallbackUsed    bool                  `json:"fallback_used"`
	UsedVariant     *presence.VariantPair `json:"used_variant,omitempty"`
	Failures        []presence.Attempt    `json:"failures,omitempty"`
}

// ScoreResult is the full outcome of one aggregation.
type ScoreResult struct {
	Country   string `json:"country"`
	City      string `json:"city"`
	ISO2      string `json:"iso2"`
	ISO3      string `json:"iso3"`
	Currency  string `json:"currency"`
	Region    string `json:"region"`
	Subregion string `json:"subregion,omitempty"`
	Continent string `json:"continent,omitempty"`

	WindSpeed      float64  `json:"wind_speed"`
	CloudCover     float64  `json:"cloud_cover"`
	SolarPotential *float64 `json:"solar_potential"`
	SolarScore     float64  `json:"solar_score"`
	WindScore      float64  `json:"wind_score"`
	CurrencyRate   *float64 `json:"currency_rate"`
	Stability      *float64 `json:"stability"`
	StabilityYear  string   `json:"stability_year,omitempty"`

	DiplomaticPresence int          `json:"diplomatic_presence"`
	Presence           PresenceInfo `json:"presence"`

	Risk     scoring.RiskAssessment `json:"risk"`
	Weights  scoring.Weights        `json:"weights"`
	ScoreRaw float64                `json:"score_raw"`
	Score    int                    `json:"score"`

	Degradations []Degradation `json:"degradations,omitempty"`
	Degraded     bool          `json:"degraded"`
	ComputedAt   time.Time     `json:"computed_at"`
}
