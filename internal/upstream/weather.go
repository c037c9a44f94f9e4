package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// WeatherClient fetches current weather from OpenWeatherMap.
type WeatherClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

const owmDefaultURL = "https://api.openweathermap.org/data/2.5/weather"

// NewWeatherClient constructs a WeatherClient with the given API key.
func NewWeatherClient(apiKey string) *WeatherClient {
	return &WeatherClient{apiKey: apiKey, baseURL: owmDefaultURL, client: newHTTPClient()}
}

// NewWeatherClientWithURL constructs a WeatherClient pointing at a custom base URL (for tests).
func NewWeatherClientWithURL(baseURL, apiKey string) *WeatherClient {
	return &WeatherClient{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

type owmResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
}

// Fetch retrieves current wind and cloud cover for the given city.
func (c *WeatherClient) Fetch(ctx context.Context, city string) (*WeatherSample, error) {
	endpoint := c.baseURL + "?q=" + url.QueryEscape(city) + "&appid=" + url.QueryEscape(c.apiKey) + "&units=metric"

	var raw owmResponse
	if err := doGet(ctx, c.client, "openweathermap", endpoint, &raw); err != nil {
		return nil, fmt.Errorf("openweathermap fetch for %s: %w", city, err)
	}

	return &WeatherSample{
		WindSpeedMs: raw.Wind.Speed,
		CloudPct:    raw.Clouds.All,
		Lat:         raw.Coord.Lat,
		Lon:         raw.Coord.Lon,
	}, nil
}
