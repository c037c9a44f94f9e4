package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode"
)

// CountriesClient resolves country names and codes via RestCountries (no API key required).
type CountriesClient struct {
	baseURL string
	client  *http.Client
}

const countriesDefaultURL = "https://restcountries.com/v3.1"

// NewCountriesClient constructs a CountriesClient.
func NewCountriesClient() *CountriesClient {
	return &CountriesClient{baseURL: countriesDefaultURL, client: newHTTPClient()}
}

// NewCountriesClientWithURL constructs a CountriesClient pointing at a custom base URL (for tests).
func NewCountriesClientWithURL(baseURL string) *CountriesClient {
	return &CountriesClient{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient()}
}

type restCountriesEntry struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	CCA2       string `json:"cca2"`
	CCA3       string `json:"cca3"`
	Currencies map[string]struct {
		Name string `json:"name"`
	} `json:"currencies"`
	Region       string    `json:"region"`
	Subregion    string    `json:"subregion"`
	Continents   []string  `json:"continents"`
	LatLng       []float64 `json:"latlng"`
	AltSpellings []string  `json:"altSpellings"`
}

// Resolve looks up exactly one country by full name or by ISO2/ISO3 code.
// Unknown names return ErrCountryNotFound; several matches return ErrAmbiguousCountry.
func (c *CountriesClient) Resolve(ctx context.Context, name string) (*CountryProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyQuery
	}

	var endpoint string
	if looksLikeCode(name) {
		endpoint = c.baseURL + "/alpha/" + url.PathEscape(name)
	} else {
		endpoint = c.baseURL + "/name/" + url.PathEscape(name) + "?fullText=true"
	}

	var raw []restCountriesEntry
	if err := doGet(ctx, c.client, "restcountries", endpoint, &raw); err != nil {
		var ue *Error
		if errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrCountryNotFound, name)
		}
		return nil, fmt.Errorf("restcountries lookup for %s: %w", name, err)
	}

	switch len(raw) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrCountryNotFound, name)
	case 1:
		return toProfile(raw[0]), nil
	default:
		return nil, fmt.Errorf("%w: %s matched %d countries", ErrAmbiguousCountry, name, len(raw))
	}
}

func toProfile(e restCountriesEntry) *CountryProfile {
	codes := make([]string, 0, len(e.Currencies))
	for code := range e.Currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	p := &CountryProfile{
		CommonName:   e.Name.Common,
		OfficialName: e.Name.Official,
		ISO2:         e.CCA2,
		ISO3:         e.CCA3,
		Region:       e.Region,
		Subregion:    e.Subregion,
		AltSpellings: e.AltSpellings,
	}
	if len(codes) > 0 {
		p.Currency = codes[0]
	}
	if len(e.Continents) > 0 {
		p.Continent = e.Continents[0]
	}
	if len(e.LatLng) == 2 {
		p.Lat, p.Lon = e.LatLng[0], e.LatLng[1]
		p.HasCoordinates = true
	}
	return p
}

// looksLikeCode reports whether s is a 2 or 3 letter ISO code.
func looksLikeCode(s string) bool {
	if len(s) != 2 && len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
