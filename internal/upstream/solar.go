package upstream

import (
	"context"
	"fmt"
	"net/http"
)

// SolarClient fetches long-term all-sky surface irradiance from NASA POWER.
type SolarClient struct {
	baseURL string
	client  *http.Client
	locator countryLocator
}

// countryLocator is the interface satisfied by CountriesClient.
type countryLocator interface {
	Resolve(ctx context.Context, name string) (*CountryProfile, error)
}

const powerDefaultURL = "https://power.larc.nasa.gov/api/temporal/climatology/point"

const (
	solarParameter = "ALLSKY_SFC_SW_DWN"
	// powerFillValue marks missing data in NASA POWER responses.
	powerFillValue = -999
)

// NewSolarClient constructs a SolarClient. locator resolves country centroids
// for FetchByCountry.
func NewSolarClient(locator countryLocator) *SolarClient {
	return &SolarClient{baseURL: powerDefaultURL, client: newHTTPClient(), locator: locator}
}

// NewSolarClientWithURL constructs a SolarClient pointing at a custom base URL (for tests).
func NewSolarClientWithURL(baseURL string, locator countryLocator) *SolarClient {
	return &SolarClient{baseURL: baseURL, client: newHTTPClient(), locator: locator}
}

type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

// FetchByCoords retrieves the annual mean kWh/m²/day at a point. A missing or
// fill value yields a nil sample value, not an error.
func (c *SolarClient) FetchByCoords(ctx context.Context, lat, lon float64) (*SolarSample, error) {
	endpoint := fmt.Sprintf("%s?parameters=%s&community=RE&longitude=%.4f&latitude=%.4f&format=JSON",
		c.baseURL, solarParameter, lon, lat)

	var raw powerResponse
	if err := doGet(ctx, c.client, "nasapower", endpoint, &raw); err != nil {
		return nil, fmt.Errorf("nasa power fetch for %.4f,%.4f: %w", lat, lon, err)
	}

	sample := &SolarSample{}
	if v, ok := raw.Properties.Parameter[solarParameter]["ANN"]; ok && v != powerFillValue && v >= 0 {
		sample.KWhPerM2Day = &v
	}
	return sample, nil
}

// FetchByCountry resolves the country centroid and fetches irradiance there.
// A country without coordinates yields a nil sample value.
func (c *SolarClient) FetchByCountry(ctx context.Context, country string) (*SolarSample, error) {
	if c.locator == nil {
		return nil, fmt.Errorf("nasa power fetch for %s: no country locator configured", country)
	}

	profile, err := c.locator.Resolve(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("resolving centroid for %s: %w", country, err)
	}
	if !profile.HasCoordinates {
		return &SolarSample{}, nil
	}

	return c.FetchByCoords(ctx, profile.Lat, profile.Lon)
}
