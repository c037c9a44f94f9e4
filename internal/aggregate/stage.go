package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeDegraded
	outcomeFatal
)

// outcome is the tagged result of a stage.
type outcome[T any] struct {
	kind   outcomeKind
	value  T
	reason string
	err    error
}

func ok[T any](v T) outcome[T] {
	return outcome[T]{kind: outcomeOK, value: v}
}

func degraded[T any](v T, reason string) outcome[T] {
	return outcome[T]{kind: outcomeDegraded, value: v, reason: reason}
}

func fatal[T any](err error) outcome[T] {
	return outcome[T]{kind: outcomeFatal, err: err}
}

// pipeline runs stages concurrently. The first fatal outcome cancels the rest.
type pipeline struct {
	g   *errgroup.Group
	ctx context.Context
	log *slog.Logger

	mu           sync.Mutex
	degradations []Degradation
}

func newPipeline(ctx context.Context, log *slog.Logger) *pipeline {
	g, gCtx := errgroup.WithContext(ctx)
	return &pipeline{g: g, ctx: gCtx, log: log}
}

// launch runs fn under its own timeout and stores a non-fatal value in dst.
func launch[T any](p *pipeline, stage Stage, timeout time.Duration, dst *T, fn func(context.Context) outcome[T]) {
	p.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("stage panicked", "stage", stage, "recover", r)
				err = &StageError{Stage: stage, Err: fmt.Errorf("panicked: %v", r)}
			}
		}()

		ctx, cancel := context.WithTimeout(p.ctx, timeout)
		defer cancel()

		o := fn(ctx)
		switch o.kind {
		case outcomeFatal:
			return &StageError{Stage: stage, Err: o.err}
		case outcomeDegraded:
			p.log.Warn("stage degraded", "stage", stage, "reason", o.reason)
			p.mu.Lock()
			p.degradations = append(p.degradations, Degradation{Signal: string(stage), Reason: o.reason})
			p.mu.Unlock()
		}
		*dst = o.value
		return nil
	})
}

// wait blocks until every stage is done and returns the first fatal error.
func (p *pipeline) wait() ([]Degradation, error) {
	if err := p.g.Wait(); err != nil {
		return nil, err
	}
	return p.degradations, nil
}
