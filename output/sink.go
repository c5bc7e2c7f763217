// Package output persists generated records. Every sink is initialised once
// before a batch starts and then receives each record as soon as it is built.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/kgsynth/dataset"
)

// ErrUnavailable is wrapped by every OutputError.
var ErrUnavailable = errors.New("kgsynth: output destination unavailable")

// OutputError reports a sink that could not be initialised or written.
type OutputError struct {
	Sink string
	Op   string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output %s: %s: %v", e.Sink, e.Op, e.Err)
}

func (e *OutputError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Sink is one output destination.
type Sink interface {
	Name() string
	// Init creates the destination with its empty shape. It is a no-op for
	// a destination that already exists.
	Init(ctx context.Context) error
	// Write appends one record.
	Write(ctx context.Context, rec *dataset.Record) error
	Close() error
}

// RunBinder is implemented by sinks that tag what they write with the ID of
// the current batch run.
type RunBinder interface {
	BindRun(runID string)
}

// Multi fans every call out to a list of sinks in order.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

// Init initialises every sink and stops at the first failure.
func (m Multi) Init(ctx context.Context) error {
	for _, s := range m {
		if err := s.Init(ctx); err != nil {
			return wrap(s.Name(), "init", err)
		}
		slog.Info("output: sink ready", "sink", s.Name())
	}
	return nil
}

// Write hands rec to every sink and stops at the first failure.
func (m Multi) Write(ctx context.Context, rec *dataset.Record) error {
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			return wrap(s.Name(), "write", err)
		}
	}
	return nil
}

// BindRun forwards runID to every sink that accepts it.
func (m Multi) BindRun(runID string) {
	for _, s := range m {
		if b, ok := s.(RunBinder); ok {
			b.BindRun(runID)
		}
	}
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, wrap(s.Name(), "close", err))
		}
	}
	return errors.Join(errs...)
}

func wrap(sink, op string, err error) error {
	var oe *OutputError
	if errors.As(err, &oe) {
		return err
	}
	return &OutputError{Sink: sink, Op: op, Err: err}
}
