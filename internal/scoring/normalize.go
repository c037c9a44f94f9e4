package scoring

import "math"

const (
	// windSaturationMs is the wind speed at which the wind score reaches 100.
	windSaturationMs = 15.0
	// solarSaturationKWh is the daily irradiance at which the solar score reaches 100.
	solarSaturationKWh = 6.0
)

// NormalizeWind maps a wind speed in m/s onto 0..100.
// Negative or NaN input is clamped to 0 rather than rejected.
func NormalizeWind(windSpeedMs float64) float64 {
	return clamp(windSpeedMs / windSaturationMs * 100)
}

// NormalizeSolar maps solar potential in kWh/m²/day onto 0..100.
func NormalizeSolar(kWhPerM2Day float64) float64 {
	return clamp(kWhPerM2Day / solarSaturationKWh * 100)
}

// NormalizeSolarSample normalizes an optional solar reading; nil scores as 0 kWh.
func NormalizeSolarSample(kWhPerM2Day *float64) float64 {
	if kWhPerM2Day == nil {
		return NormalizeSolar(0)
	}
	return NormalizeSolar(*kWhPerM2Day)
}

// clamp bounds v to [0, 100]. NaN becomes 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}
