package upstream

import "encoding/json"

// CountryProfile holds resolved facts about a country.
type CountryProfile struct {
	CommonName     string   `json:"common_name"`
	OfficialName   string   `json:"official_name,omitempty"`
	ISO2           string   `json:"iso2"`
	ISO3           string   `json:"iso3"`
	Currency       string   `json:"currency"`
	Region         string   `json:"region"`
	Subregion      string   `json:"subregion"`
	Continent      string   `json:"continent"`
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	HasCoordinates bool     `json:"has_coordinates"`
	AltSpellings   []string `json:"alt_spellings,omitempty"`
}

// WeatherSample is a current-conditions reading for a city.
type WeatherSample struct {
	WindSpeedMs float64 `json:"wind_speed_ms"`
	CloudPct    float64 `json:"cloud_pct"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// ExchangeRates maps ISO 4217 currency codes to their rate against the base currency.
type ExchangeRates map[string]float64

// StabilityReading is the latest non-null political-stability index.
// Value is nil when no historical value exists.
type StabilityReading struct {
	Value *float64 `json:"value"`
	Year  string   `json:"year,omitempty"`
}

// SolarSample is long-term average irradiance; KWhPerM2Day is nil when the
// upstream omitted the value.
type SolarSample struct {
	KWhPerM2Day *float64 `json:"kwh_per_m2_day"`
}

// Mission is a single diplomatic mission reported by the presence upstream.
type Mission struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Type        string `json:"type,omitempty"`
	City        string `json:"city,omitempty"`
}

// Presence is a successful diplomatic-presence lookup for one name pair.
type Presence struct {
	Count    int             `json:"count"`
	Missions []Mission       `json:"missions"`
	Raw      json.RawMessage `json:"-"`
}
