package scoring

import (
	"fmt"
	"math"
	"strings"
)

// Weights is the blend applied to the normalized signals.
// Solar + Wind + Risk sums to 1.0.
type Weights struct {
	Solar float64 `json:"solar"`
	Wind  float64 `json:"wind"`
	Risk  float64 `json:"risk"`
}

var (
	SolarHeavy = Weights{Solar: 0.6, Wind: 0.3, Risk: 0.1}
	WindHeavy  = Weights{Solar: 0.3, Wind: 0.6, Risk: 0.1}
	Balanced   = Weights{Solar: 0.5, Wind: 0.4, Risk: 0.1}
)

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Risk + w.Wind + w.Solar
}

// Validate checks that no weight is negative and that they sum to 1.0.
func (w Weights) Validate() error {
	if w.Solar < 0 || w.Wind < 0 || w.Risk < 0 {
		return fmt.Errorf("negative weight in %+v", w)
	}
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return fmt.Errorf("weights sum to %f, want 1.0", w.Sum())
	}
	return nil
}

// solarHeavyCountries are tropical and high-irradiance markets.
var solarHeavyCountries = map[string]bool{
	"australia":            true,
	"chile":                true,
	"egypt":                true,
	"india":                true,
	"indonesia":            true,
	"kenya":                true,
	"malaysia":             true,
	"mexico":               true,
	"morocco":              true,
	"philippines":          true,
	"saudi arabia":         true,
	"singapore":            true,
	"sri lanka":            true,
	"thailand":             true,
	"united arab emirates": true,
	"vietnam":              true,
}

// windHeavyCountries are temperate and coastal markets.
var windHeavyCountries = map[string]bool{
	"belgium":        true,
	"canada":         true,
	"denmark":        true,
	"germany":        true,
	"ireland":        true,
	"netherlands":    true,
	"new zealand":    true,
	"norway":         true,
	"poland":         true,
	"sweden":         true,
	"united kingdom": true,
	"united states":  true,
	"uruguay":        true,
}

// ResolveWeights picks the blend for a country. Rules are evaluated in order
// and the first match wins; unmatched input falls back to Balanced.
func ResolveWeights(commonName, region, subregion, continent string) Weights {
	name := normalizeName(commonName)
	sub := normalizeName(subregion)
	cont := normalizeName(continent)

	switch {
	case solarHeavyCountries[name]:
		return SolarHeavy
	case windHeavyCountries[name]:
		return WindHeavy
	case cont == "africa" || normalizeName(region) == "africa",
		cont == "south america" || sub == "south america",
		sub == "southern asia" || sub == "south asia":
		return SolarHeavy
	case sub == "northern europe",
		cont == "north america" || sub == "north america" || sub == "northern america":
		return WindHeavy
	default:
		return Balanced
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
