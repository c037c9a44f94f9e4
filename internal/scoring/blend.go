package scoring

import "math"

// Blend combines normalized solar and wind scores with a risk score:
// clamp(0, 100, solar*w.Solar + wind*w.Wind - risk*w.Risk).
func Blend(solarScore, windScore, riskScore float64, w Weights) float64 {
	return clamp(solarScore*w.Solar + windScore*w.Wind - riskScore*w.Risk)
}

// Round returns the presentation value of a 0..100 score.
func Round(score float64) int {
	return int(math.Round(score))
}
