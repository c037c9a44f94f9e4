// Package aggregate computes a country's renewable-investment score from the
// upstream signals.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/neexbeast/greenscore/internal/metrics"
	"github.com/neexbeast/greenscore/internal/presence"
	"github.com/neexbeast/greenscore/internal/scoring"
	"github.com/neexbeast/greenscore/internal/upstream"
)

const defaultUpstreamTimeout = 10 * time.Second

// CountryResolver is satisfied by upstream.CountriesClient.
type CountryResolver interface {
	Resolve(ctx context.Context, name string) (*upstream.CountryProfile, error)
}

// WeatherFetcher is satisfied by upstream.WeatherClient.
type WeatherFetcher interface {
	Fetch(ctx context.Context, city string) (*upstream.WeatherSample, error)
}

// RatesFetcher is satisfied by upstream.ExchangeClient.
type RatesFetcher interface {
	Fetch(ctx context.Context) (upstream.ExchangeRates, error)
}

// StabilityFetcher is satisfied by upstream.StabilityClient.
type StabilityFetcher interface {
	Fetch(ctx context.Context, iso3 string) (*upstream.StabilityReading, error)
}

// SolarFetcher is satisfied by upstream.SolarClient.
type SolarFetcher interface {
	FetchByCoords(ctx context.Context, lat, lon float64) (*upstream.SolarSample, error)
	FetchByCountry(ctx context.Context, country string) (*upstream.SolarSample, error)
}

// PresenceLookup is satisfied by presence.Cache.
type PresenceLookup interface {
	Lookup(ctx context.Context, source, destination string) (presence.Result, error)
	Total(ctx context.Context, destination string) (presence.Result, error)
}

// Clients bundles the collaborators of an Engine.
type Clients struct {
	Countries CountryResolver
	Weather   WeatherFetcher
	Exchange  RatesFetcher
	Stability StabilityFetcher
	Solar     SolarFetcher
	Presence  PresenceLookup
}

// Options tunes an Engine. Zero values take defaults.
type Options struct {
	// UpstreamTimeout bounds each upstream stage.
	UpstreamTimeout time.Duration
	// PresenceTimeout bounds the presence stage, which may try many spellings.
	// Defaults to three times UpstreamTimeout.
	PresenceTimeout time.Duration
	// PresenceSource is the sending country for pairwise presence lookups.
	// Empty means the total across major senders.
	PresenceSource string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Engine runs aggregations. It holds no per-request state.
type Engine struct {
	clients         Clients
	timeout         time.Duration
	presenceTimeout time.Duration
	presenceSource  string
	log             *slog.Logger
	now             func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine(clients Clients, opts Options) *Engine {
	e := &Engine{
		clients:         clients,
		timeout:         opts.UpstreamTimeout,
		presenceTimeout: opts.PresenceTimeout,
		presenceSource:  strings.TrimSpace(opts.PresenceSource),
		log:             opts.Logger,
		now:             opts.Now,
	}
	if e.timeout <= 0 {
		e.timeout = defaultUpstreamTimeout
	}
	if e.presenceTimeout <= 0 {
		e.presenceTimeout = 3 * e.timeout
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Score resolves the country, gathers every signal concurrently and blends
// them into a score. It fails with *StageError when the country cannot be
// resolved or a required upstream fails, and with the context error when ctx
// is done.
func (e *Engine) Score(ctx context.Context, q Query) (*ScoreResult, error) {
	profile, err := e.resolve(ctx, q.Country)
	if err != nil {
		return nil, e.failed(ctx, err)
	}

	city := strings.TrimSpace(q.City)
	if city == "" {
		city = profile.CommonName
	}

	var (
		weather   *upstream.WeatherSample
		rate      *float64
		stability *upstream.StabilityReading
		pres      presence.Result
		solar     *upstream.SolarSample
	)

	p := newPipeline(ctx, e.log)
	launch(p, StageWeather, e.timeout, &weather, func(ctx context.Context) outcome[*upstream.WeatherSample] {
		return e.weatherStage(ctx, city)
	})
	launch(p, StageExchange, e.timeout, &rate, func(ctx context.Context) outcome[*float64] {
		return e.exchangeStage(ctx, profile.Currency)
	})
	launch(p, StageStability, e.timeout, &stability, func(ctx context.Context) outcome[*upstream.StabilityReading] {
		return e.stabilityStage(ctx, profile.ISO3)
	})
	launch(p, StagePresence, e.presenceTimeout, &pres, func(ctx context.Context) outcome[presence.Result] {
		return e.presenceStage(ctx, profile.CommonName)
	})
	launch(p, StageSolar, e.timeout, &solar, func(ctx context.Context) outcome[*upstream.SolarSample] {
		return e.solarStage(ctx, profile)
	})

	degradations, err := p.wait()
	if err != nil {
		return nil, e.failed(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(degradations, func(i, j int) bool { return degradations[i].Signal < degradations[j].Signal })

	windScore := scoring.NormalizeWind(weather.WindSpeedMs)
	solarScore := scoring.NormalizeSolarSample(solar.KWhPerM2Day)
	risk := scoring.CalculateRisk(stability.Value, pres.Count)
	weights := scoring.ResolveWeights(profile.CommonName, profile.Region, profile.Subregion, profile.Continent)
	raw := scoring.Blend(solarScore, windScore, risk.Score, weights)

	metrics.ScoresTotal.WithLabelValues(string(risk.Category)).Inc()

	res := &ScoreResult{
		Country:   profile.CommonName,
		City:      city,
		ISO2:      profile.ISO2,
		ISO3:      profile.ISO3,
		Currency:  profile.Currency,
		Region:    profile.Region,
		Subregion: profile.Subregion,
		Continent: profile.Continent,

		WindSpeed:      weather.WindSpeedMs,
		CloudCover:     weather.CloudPct,
		SolarPotential: solar.KWhPerM2Day,
		SolarScore:     solarScore,
		WindScore:      windScore,
		CurrencyRate:   rate,
		Stability:      stability.Value,
		StabilityYear:  stability.Year,

		DiplomaticPresence: pres.Count,
		Presence: PresenceInfo{
			Source:          pres.Source,
			ServedFromCache: pres.ServedFromCache,
			FallbackUsed:    pres.FallbackUsed,
			UsedVariant:     pres.UsedVariant,
			Failures:        pres.Failures,
		},

		Risk:     risk,
		Weights:  weights,
		ScoreRaw: raw,
		Score:    scoring.Round(raw),

		Degradations: degradations,
		Degraded:     len(degradations) > 0,
		ComputedAt:   e.now().UTC(),
	}

	e.log.Info("score computed",
		"country", res.Country,
		"city", res.City,
		"score", res.Score,
		"risk_category", res.Risk.Category,
		"degraded", res.Degraded,
	)

	return res, nil
}

func (e *Engine) resolve(ctx context.Context, country string) (*upstream.CountryProfile, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return nil, &StageError{Stage: StageResolve, Err: upstream.ErrEmptyQuery}
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	profile, err := e.clients.Countries.Resolve(rctx, country)
	if err != nil {
		return nil, &StageError{Stage: StageResolve, Err: err}
	}
	if profile == nil {
		return nil, &StageError{Stage: StageResolve, Err: upstream.ErrCountryNotFound}
	}
	return profile, nil
}

// failed maps a pipeline error to what Score returns and counts it.
func (e *Engine) failed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var se *StageError
	if errors.As(err, &se) {
		metrics.StageFailuresTotal.WithLabelValues(string(se.Stage)).Inc()
		if IsResolution(err) {
			e.log.Info("country not resolved", "err", err)
		} else {
			e.log.Error("aggregation failed", "stage", se.Stage, "err", err)
		}
	}
	return err
}

func (e *Engine) weatherStage(ctx context.Context, city string) outcome[*upstream.WeatherSample] {
	w, err := e.clients.Weather.Fetch(ctx, city)
	if err != nil {
		return fatal[*upstream.WeatherSample](err)
	}
	if w == nil {
		return fatal[*upstream.WeatherSample](fmt.Errorf("empty weather response for %s", city))
	}
	return ok(w)
}

func (e *Engine) exchangeStage(ctx context.Context, currency string) outcome[*float64] {
	rates, err := e.clients.Exchange.Fetch(ctx)
	if err != nil {
		return fatal[*float64](err)
	}
	rate := rates.Rate(currency)
	if rate == nil {
		return degraded[*float64](nil, fmt.Sprintf("no exchange rate for currency %q", currency))
	}
	return ok(rate)
}

func (e *Engine) stabilityStage(ctx context.Context, iso3 string) outcome[*upstream.StabilityReading] {
	r, err := e.clients.Stability.Fetch(ctx, iso3)
	if err != nil {
		return fatal[*upstream.StabilityReading](err)
	}
	if r == nil || r.Value == nil {
		return degraded(&upstream.StabilityReading{}, "no historical stability value; neutral political risk used")
	}
	return ok(r)
}

func (e *Engine) presenceStage(ctx context.Context, country string) outcome[presence.Result] {
	var (
		res presence.Result
		err error
	)
	if e.presenceSource != "" {
		res, err = e.clients.Presence.Lookup(ctx, e.presenceSource, country)
	} else {
		res, err = e.clients.Presence.Total(ctx, country)
	}
	if err != nil {
		// Presence never aborts the aggregation.
		return degraded(presence.Result{Destination: country, FallbackUsed: true},
			fmt.Sprintf("presence lookup did not finish: %v", err))
	}
	if res.FallbackUsed {
		return degraded(res, fmt.Sprintf("no mission data matched; fallback count %d used", res.Count))
	}
	return ok(res)
}

func (e *Engine) solarStage(ctx context.Context, profile *upstream.CountryProfile) outcome[*upstream.SolarSample] {
	var (
		s   *upstream.SolarSample
		err error
	)
	if profile.HasCoordinates {
		s, err = e.clients.Solar.FetchByCoords(ctx, profile.Lat, profile.Lon)
	} else {
		s, err = e.clients.Solar.FetchByCountry(ctx, profile.CommonName)
	}
	if err != nil {
		return fatal[*upstream.SolarSample](err)
	}
	if s == nil || s.KWhPerM2Day == nil {
		return degraded(&upstream.SolarSample{}, "no solar irradiance value; solar score is 0")
	}
	return ok(s)
}
