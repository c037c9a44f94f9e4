package aggregate

import (
	"errors"
	"fmt"

	"github.com/neexbeast/greenscore/internal/upstream"
)

// Stage names a step of the aggregation.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageWeather   Stage = "weather"
	StageExchange  Stage = "exchange"
	StageStability Stage = "stability"
	StagePresence  Stage = "presence"
	StageSolar     Stage = "solar"
)

// StageError is a fatal failure of one stage. It aborts the aggregation.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsResolution reports whether err means the country query did not identify
// exactly one country.
func IsResolution(err error) bool {
	return errors.Is(err, upstream.ErrEmptyQuery) ||
		errors.Is(err, upstream.ErrCountryNotFound) ||
		errors.Is(err, upstream.ErrAmbiguousCountry)
}
