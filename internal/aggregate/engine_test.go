package aggregate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/presence"
	"github.com/neexbeast/greenscore/internal/scoring"
	"github.com/neexbeast/greenscore/internal/upstream"
)

// --- function-field fakes ---

type resolverFunc func(ctx context.Context, name string) (*upstream.CountryProfile, error)

func (f resolverFunc) Resolve(ctx context.Context, name string) (*upstream.CountryProfile, error) {
	return f(ctx, name)
}

type weatherFunc func(ctx context.Context, city string) (*upstream.WeatherSample, error)

func (f weatherFunc) Fetch(ctx context.Context, city string) (*upstream.WeatherSample, error) {
	return f(ctx, city)
}

type ratesFunc func(ctx context.Context) (upstream.ExchangeRates, error)

func (f ratesFunc) Fetch(ctx context.Context) (upstream.ExchangeRates, error) { return f(ctx) }

type stabilityFunc func(ctx context.Context, iso3 string) (*upstream.StabilityReading, error)

func (f stabilityFunc) Fetch(ctx context.Context, iso3 string) (*upstream.StabilityReading, error) {
	return f(ctx, iso3)
}

type fakeSolar struct {
	byCoords  func(ctx context.Context, lat, lon float64) (*upstream.SolarSample, error)
	byCountry func(ctx context.Context, country string) (*upstream.SolarSample, error)
}

func (f *fakeSolar) FetchByCoords(ctx context.Context, lat, lon float64) (*upstream.SolarSample, error) {
	return f.byCoords(ctx, lat, lon)
}

func (f *fakeSolar) FetchByCountry(ctx context.Context, country string) (*upstream.SolarSample, error) {
	return f.byCountry(ctx, country)
}

type fakePresence struct {
	lookup func(ctx context.Context, source, destination string) (presence.Result, error)
	total  func(ctx context.Context, destination string) (presence.Result, error)
}

func (f *fakePresence) Lookup(ctx context.Context, source, destination string) (presence.Result, error) {
	return f.lookup(ctx, source, destination)
}

func (f *fakePresence) Total(ctx context.Context, destination string) (presence.Result, error) {
	return f.total(ctx, destination)
}

func ptr(v float64) *float64 { return &v }

var brazil = &upstream.CountryProfile{
	CommonName:     "Brazil",
	ISO2:           "BR",
	ISO3:           "BRA",
	Currency:       "BRL",
	Region:         "Americas",
	Subregion:      "South America",
	Continent:      "South America",
	Lat:            -10,
	Lon:            -55,
	HasCoordinates: true,
}

// brazilClients returns collaborators that produce the reference Brazil
// score: solar 5.5 kWh, wind 8 m/s, stability -0.2, 12 missions.
func brazilClients() aggregate.Clients {
	return aggregate.Clients{
		Countries: resolverFunc(func(_ context.Context, name string) (*upstream.CountryProfile, error) {
			return brazil, nil
		}),
		Weather: weatherFunc(func(_ context.Context, city string) (*upstream.WeatherSample, error) {
			return &upstream.WeatherSample{WindSpeedMs: 8, CloudPct: 40}, nil
		}),
		Exchange: ratesFunc(func(context.Context) (upstream.ExchangeRates, error) {
			return upstream.ExchangeRates{"BRL": 5.0, "EUR": 0.92}, nil
		}),
		Stability: stabilityFunc(func(_ context.Context, iso3 string) (*upstream.StabilityReading, error) {
			return &upstream.StabilityReading{Value: ptr(-0.2), Year: "2022"}, nil
		}),
		Solar: &fakeSolar{
			byCoords: func(context.Context, float64, float64) (*upstream.SolarSample, error) {
				return &upstream.SolarSample{KWhPerM2Day: ptr(5.5)}, nil
			},
			byCountry: func(context.Context, string) (*upstream.SolarSample, error) {
				return &upstream.SolarSample{KWhPerM2Day: ptr(5.5)}, nil
			},
		},
		Presence: &fakePresence{
			lookup: func(_ context.Context, src, dst string) (presence.Result, error) {
				return presence.Result{Source: src, Destination: dst, Count: 12}, nil
			},
			total: func(_ context.Context, dst string) (presence.Result, error) {
				return presence.Result{Source: "*", Destination: dst, Count: 12}, nil
			},
		},
	}
}

func newEngine(c aggregate.Clients, opts aggregate.Options) *aggregate.Engine {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return aggregate.NewEngine(c, opts)
}

// --- happy path ---

func TestScore_Brazil(t *testing.T) {
	var gotCity string
	c := brazilClients()
	c.Weather = weatherFunc(func(_ context.Context, city string) (*upstream.WeatherSample, error) {
		gotCity = city
		return &upstream.WeatherSample{WindSpeedMs: 8, CloudPct: 40}, nil
	})
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newEngine(c, aggregate.Options{Now: func() time.Time { return fixed }})

	res, err := e.Score(context.Background(), aggregate.Query{Country: "Brazil"})
	require.NoError(t, err)

	assert.Equal(t, "Brazil", gotCity, "city defaults to the resolved country name")
	assert.Equal(t, "Brazil", res.Country)
	assert.Equal(t, "BRA", res.ISO3)
	assert.Equal(t, 92, scoring.Round(res.SolarScore))
	assert.Equal(t, 53, scoring.Round(res.WindScore))
	assert.InDelta(t, 59.0, res.Risk.Score, 1e-9)
	assert.Equal(t, scoring.CategoryMedium, res.Risk.Category)
	assert.Equal(t, scoring.SolarHeavy, res.Weights)
	assert.Equal(t, 65, res.Score)
	assert.Equal(t, 12, res.DiplomaticPresence)
	require.NotNil(t, res.CurrencyRate)
	assert.Equal(t, 5.0, *res.CurrencyRate)
	assert.Equal(t, "2022", res.StabilityYear)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Degradations)
	assert.Equal(t, fixed, res.ComputedAt)
}

func TestScore_UsesGivenCity(t *testing.T) {
	var gotCity string
	c := brazilClients()
	c.Weather = weatherFunc(func(_ context.Context, city string) (*upstream.WeatherSample, error) {
		gotCity = city
		return &upstream.WeatherSample{WindSpeedMs: 3}, nil
	})

	res, err := newEngine(c, aggregate.Options{}).Score(context.Background(), aggregate.Query{Country: "Brazil", City: " Recife "})
	require.NoError(t, err)
	assert.Equal(t, "Recife", gotCity)
	assert.Equal(t, "Recife", res.City)
}

func TestScore_PairwisePresenceWhenSourceConfigured(t *testing.T) {
	var src, dst string
	c := brazilClients()
	c.Presence = &fakePresence{
		lookup: func(_ context.Context, s, d string) (presence.Result, error) {
			src, dst = s, d
			return presence.Result{Source: s, Destination: d, Count: 1, ServedFromCache: true}, nil
		},
		total: func(context.Context, string) (presence.Result, error) {
			t.Error("total must not be used when a source is configured")
			return presence.Result{}, nil
		},
	}

	res, err := newEngine(c, aggregate.Options{PresenceSource: "Germany"}).Score(context.Background(), aggregate.Query{Country: "Brazil"})
	require.NoError(t, err)
	assert.Equal(t, "Germany", src)
	assert.Equal(t, "Brazil", dst)
	assert.Equal(t, 1, res.DiplomaticPresence)
	assert.True(t, res.Presence.ServedFromCache)
}

func TestScore_SolarFallsBackToCountryWithoutCoordinates(t *testing.T) {
	noCoords := *brazil
	noCoords.HasCoordinates = false

	var byCountry string
	c := brazilClients()
	c.Countries = resolverFunc(func(context.Context, string) (*upstream.CountryProfile, error) { return &noCoords, nil })
	c.Solar = &fakeSolar{
		byCoords: func(context.Context, float64, float64) (*upstream.SolarSample, error) {
			t.Error("coordinates must not be used")
			return nil, nil
		},
		byCountry: func(_ context.Context, country string) (*upstream.SolarSample, error) {
			byCountry = country
			return &upstream.SolarSample{KWhPerM2Day: ptr(5.5)}, nil
		},
	}

	res, err := newEngine(c, aggregate.Options{}).Score(context.Background(), aggregate.Query{Country: "Brazil"})
	require.NoError(t, err)
	assert.Equal(t, "Brazil", byCountry)
	assert.Equal(t, 65, res.Score)
}

// --- degradations ---

func TestScore_DegradedSignals(t *testing.T) {
	c := brazilClients()
	c.Exchange = ratesFunc(func(context.Context) (upstream.ExchangeRates, error) {
		return upstream.ExchangeRates{"EUR": 0.92}, nil
	})
	c.Stability = stabilityFunc(func(context.Context, string) (*upstream.StabilityReading, error) {
		return &upstream.StabilityReading{}, nil
	})
	c.Solar = &fakeSolar{byCoords: func(context.Context, float64, float64) (*upstream.SolarSample, error) {
		return &upstream.SolarSample{}, nil
	}}
	c.Presence = &fakePresence{total: func(_ context.Context, dst string) (presence.Result, error) {
		return presence.Result{Destination: dst, Count: 135, FallbackUsed: true}, nil
	}}

	res, err := newEngine(c, aggregate.Options{}).Score(context.Background(), aggregate.Query{Country: "Brazil"})
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	signals := make([]string, 0, len(res.Degradations))
	for _, d := range res.Degradations {
		signals = append(signals, d.Signal)
	}
	assert.Equal(t, []string{"exchange", "presence", "solar", "stability"}, signals)

	assert.Nil(t, res.CurrencyRate)
	assert.Nil(t, res.Stability)
	assert.Nil(t, res.SolarPotential)
	assert.Equal(t, 0.0, res.SolarScore)
	assert.True(t, res.Presence.FallbackUsed)
	// neutral political risk 5 -> 50, saturated embassy risk 1 -> 5
	assert.InDelta(t, 55.0, res.Risk.Score, 1e-9)
}

func TestScore_PresenceLookupErrorNeverFatal(t *testing.T) {
	c := brazilClients()
	c.Presence = &fakePresence{total: func(ctx context.Context, _ string) (presence.Result, error) {
		<-ctx.Done()
		return presence.Result{}, ctx.Err()
	}}

	e := newEngine(c, aggregate.Options{UpstreamTimeout: time.Second, PresenceTimeout: 20 * time.Millisecond})
	res, err := e.Score(context.Background(), aggregate.Query{Country: "Brazil"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 0, res.DiplomaticPresence)
	assert.True(t, res.Presence.FallbackUsed)
}

type hangingFetcher struct{ calls atomic.Int32 }

func (f *hangingFetcher) Fetch(ctx context.Context, _, _ string) (*upstream.Presence, error) {
	f.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestScore_PresenceTimeoutUsesCachedFallback(t *testing.T) {
	fetcher := &hangingFetcher{}
	store := presence.NewMemoryStore()
	noProfiles := resolverFunc(func(context.Context, string) (*upstream.CountryProfile, error) {
		return nil, upstream.ErrCountryNotFound
	})

	c := brazilClients()
	c.Presence = presence.NewCache(store, noProfiles, fetcher)
	e := newEngine(c, aggregate.Options{
		UpstreamTimeout: time.Second,
		PresenceTimeout: 50 * time.Millisecond,
		PresenceSource:  "Germany",
	})

	for i := 0; i < 2; i++ {
		res, err := e.Score(context.Background(), aggregate.Query{Country: "Brazil"})
		require.NoError(t, err)
		assert.Equal(t, 135, res.DiplomaticPresence)
		assert.True(t, res.Presence.FallbackUsed)
		assert.InDelta(t, 59.0, res.Risk.Score, 1e-9)
		assert.Equal(t, scoring.CategoryMedium, res.Risk.Category)
		assert.Equal(t, 65, res.Score)
	}
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

// --- fatal paths ---

func TestScore_EmptyCountry(t *testing.T) {
	var calls atomic.Int32
	c := brazilClients()
	c.Countries = resolverFunc(func(context.Context, string) (*upstream.CountryProfile, error) {
		calls.Add(1)
		return brazil, nil
	})

	_, err := newEngine(c, aggregate.Options{}).Score(context.Background(), aggregate.Query{Country: "  "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrEmptyQuery))
	assert.True(t, aggregate.IsResolution(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestScore_CountryNotFound(t *testing.T) {
	var weatherCalls atomic.Int32
	c := brazilClients()
	c.Countries = resolverFunc(func(context.Context, string) (*upstream.CountryProfile, error) {
		return nil, upstream.ErrCountryNotFound
	})
	c.Weather = weatherFunc(func(context.Context, string) (*upstream.WeatherSample, error) {
		weatherCalls.Add(1)
		return &upstream.WeatherSample{}, nil
	})

	_, err := newEngine(c, aggregate.Options{}).Score(context.Background(), aggregate.Query{Country: "Atlantis"})
	require.Error(t, err)

	var se *aggregate.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, aggregate.StageResolve, se.Stage)
	assert.True(t, aggregate.IsResolution(err))
	assert.Equal(t, int32(0), weatherCalls.Load())
}

func TestScore_RequiredUpstreamFailureIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		stage aggregate.Stage
		patch func(c *aggregate.Clients)
	}{
		{"weather", aggregate.StageWeather, func(c *aggregate.Clients) {
			c.Weather = weatherFunc(func(context.Context, string) (*upstream.WeatherSample, error) {
				return nil, &upstream.Error{Upstream: "openweathermap", StatusCode: 503}
			})
		}},
		{"exchange", aggregate.StageExchange, func(c *aggregate.Clients) {
			c.Exchange = ratesFunc(func(context.Context) (upstream.ExchangeRates, error) {
				return nil, &upstream.Error{Upstream: "exchangerate", StatusCode: 503}
			})
		}},
		{"stability", aggregate.StageStability, func(c *aggregate.Clients) {
			c.Stability = stabilityFunc(func(context.Context, string) (*upstream.StabilityReading, error) {
				return nil, &upstream.Error{Upstream: "worldbank", StatusCode: 503}
			})
		}},
		{"solar", aggregate.StageSolar, func(c *aggregate.Clients) {
			c.Solar = &fakeSolar{byCoords: func(context.Context, float64, float64) (*upstream.SolarSample, error) {
				return nil, &upstream.Error{Upstream: "nasa-power", StatusCode: 503}
			}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := brazilClients()
			tt.patch(&c)

			_, err := newEngine(c, aggregate.Options{}).Score(context.Background(), aggregate.Query{Country: "Brazil"})
			require.Error(t, err)

			var se *aggregate.StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.stage, se.Stage)
			assert.Equal(t, 503, upstream.StatusCode(err))
			assert.False(t, aggregate.IsResolution(err))
		})
	}
}

func TestScore_StageTimeoutIsUpstreamFailure(t *testing.T) {
	c := brazilClients()
	c.Weather = weatherFunc(func(ctx context.Context, _ string) (*upstream.WeatherSample, error) {
		<-ctx.Done()
		return nil, &upstream.Error{Upstream: "openweathermap", Timeout: true, Err: ctx.Err()}
	})

	_, err := newEngine(c, aggregate.Options{UpstreamTimeout: 30 * time.Millisecond}).
		Score(context.Background(), aggregate.Query{Country: "Brazil"})
	require.Error(t, err)

	var se *aggregate.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, aggregate.StageWeather, se.Stage)
	var ue *upstream.Error
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Timeout)
}

func TestScore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := brazilClients()
	c.Weather = weatherFunc(func(ctx context.Context, _ string) (*upstream.WeatherSample, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := newEngine(c, aggregate.Options{}).Score(ctx, aggregate.Query{Country: "Brazil"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestScore_PanickingStageIsFatal(t *testing.T) {
	c := brazilClients()
	c.Stability = stabilityFunc(func(context.Context, string) (*upstream.StabilityReading, error) {
		panic("boom")
	})

	_, err := newEngine(c, aggregate.Options{}).Score(context.Background(), aggregate.Query{Country: "Brazil"})
	require.Error(t, err)

	var se *aggregate.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, aggregate.StageStability, se.Stage)
	assert.Contains(t, err.Error(), "boom")
}
