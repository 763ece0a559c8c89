// Package outcome implements the four-state result discipline used by every
// pipeline stage: Success, Failure, Cancelled and Warned (partial success).
//
// Cancellation rides context.Context. The contract at every call site is
// cancellation-first: a Cancelled outcome from a collaborator propagates
// before Failure is even considered, and caller-requested cancellation is
// never reported as an error. Stage-level timeouts are the one exception;
// context.DeadlineExceeded surfaces as a Failure at the boundary that owns
// the deadline.
package outcome

import (
	"context"
	"errors"
	"fmt"
)

// State tags the variant an Outcome holds.
type State string

// Outcome states.
const (
	StateSuccess   State = "SUCCESS"
	StateFailure   State = "FAILURE"
	StateCancelled State = "CANCELLED"
	StateWarned    State = "WARNED"
)

// Outcome is a tagged four-state result. The zero value is a Failure with no
// error; always construct through Success, Failure, Cancelled, Warned or
// Partial.
type Outcome[T any] struct {
	state            State
	value            T
	err              error
	warnings         []string
	confidence       float64
	missingDataRatio float64
}

// Success wraps a completed value. Confidence is 1.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{state: StateSuccess, value: value, confidence: 1}
}

// Failure wraps an unrecoverable error. No partial value is carried.
func Failure[T any](err error) Outcome[T] {
	return Outcome[T]{state: StateFailure, err: err, missingDataRatio: 1}
}

// Failuref is Failure with fmt.Errorf formatting.
func Failuref[T any](format string, args ...any) Outcome[T] {
	return Failure[T](fmt.Errorf(format, args...))
}

// Cancelled reports caller-requested cancellation. No value is carried.
func Cancelled[T any]() Outcome[T] {
	return Outcome[T]{state: StateCancelled, missingDataRatio: 1}
}

// Warned wraps a degraded value with its warnings, a confidence in [0,1] and
// the complementary missing-data ratio.
func Warned[T any](value T, warnings []string, confidence, missingDataRatio float64) Outcome[T] {
	return Outcome[T]{
		state:            StateWarned,
		value:            value,
		warnings:         warnings,
		confidence:       confidence,
		missingDataRatio: missingDataRatio,
	}
}

// Partial synthesizes the outcome of an enumerative operation interrupted
// after done of total items: Warned with confidence done/total when at least
// one item completed, Cancelled otherwise.
func Partial[T any](value T, done, total int, warning string) Outcome[T] {
	if done <= 0 || total <= 0 {
		return Cancelled[T]()
	}
	confidence := float64(done) / float64(total)
	return Warned(value, []string{warning}, confidence, 1-confidence)
}

// State returns the variant tag.
func (o Outcome[T]) State() State { return o.state }

// IsSuccess reports a full completion.
func (o Outcome[T]) IsSuccess() bool { return o.state == StateSuccess }

// IsFailure reports an unrecoverable error.
func (o Outcome[T]) IsFailure() bool { return o.state == StateFailure }

// IsCancelled reports caller-requested cancellation.
func (o Outcome[T]) IsCancelled() bool { return o.state == StateCancelled }

// IsWarned reports partial completion.
func (o Outcome[T]) IsWarned() bool { return o.state == StateWarned }

// Value returns the carried value. ok is true for Success and Warned.
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.state == StateSuccess || o.state == StateWarned
}

// Err returns the carried error, nil unless the outcome is a Failure.
func (o Outcome[T]) Err() error { return o.err }

// Warnings returns the warning list of a Warned outcome.
func (o Outcome[T]) Warnings() []string { return o.warnings }

// Confidence is 1 for Success, done/total for Warned, 0 otherwise.
func (o Outcome[T]) Confidence() float64 { return o.confidence }

// MissingDataRatio is 0 for Success, 1−confidence for Warned, 1 otherwise.
func (o Outcome[T]) MissingDataRatio() float64 { return o.missingDataRatio }

// FromErr classifies a collaborator error: context.Canceled becomes
// Cancelled, context.DeadlineExceeded becomes a timeout Failure, anything
// else a plain Failure. A nil error panics; callers decide their own success
// value.
func FromErr[T any](err error) Outcome[T] {
	switch {
	case err == nil:
		panic("outcome: FromErr called with nil error")
	case errors.Is(err, context.Canceled):
		return Cancelled[T]()
	case errors.Is(err, context.DeadlineExceeded):
		return Failure[T](fmt.Errorf("timeout: %w", err))
	default:
		return Failure[T](err)
	}
}

// Guard implements the pre-flight cancellation check: when ctx is already
// done it returns the terminal outcome and true, before any work starts.
func Guard[T any](ctx context.Context) (Outcome[T], bool) {
	if err := ctx.Err(); err != nil {
		return FromErr[T](err), true
	}
	return Outcome[T]{}, false
}

// Map transforms the carried value, preserving state, warnings and
// confidence.
func Map[T, U any](o Outcome[T], fn func(T) U) Outcome[U] {
	switch o.state {
	case StateSuccess:
		return Success(fn(o.value))
	case StateWarned:
		return Warned(fn(o.value), o.warnings, o.confidence, o.missingDataRatio)
	case StateCancelled:
		return Cancelled[U]()
	default:
		return Failure[U](o.err)
	}
}

// Bind chains a dependent operation, cancellation-first. A Warned input runs
// fn on its value and folds the input's warnings and confidence into the
// result; the lower confidence wins.
func Bind[T, U any](o Outcome[T], fn func(T) Outcome[U]) Outcome[U] {
	switch o.state {
	case StateCancelled:
		return Cancelled[U]()
	case StateFailure:
		return Failure[U](o.err)
	}
	r := fn(o.value)
	if o.state == StateWarned && (r.state == StateSuccess || r.state == StateWarned) {
		warnings := append(append([]string{}, o.warnings...), r.warnings...)
		confidence := o.confidence
		if r.state == StateWarned && r.confidence < confidence {
			confidence = r.confidence
		}
		return Warned(r.value, warnings, confidence, 1-confidence)
	}
	return r
}

// Wrap adds calling-operation context to a Failure's error and passes every
// other state through unchanged.
func Wrap[T any](o Outcome[T], format string, args ...any) Outcome[T] {
	if o.state != StateFailure {
		return o
	}
	prefix := fmt.Sprintf(format, args...)
	return Failure[T](fmt.Errorf("%s: %w", prefix, o.err))
}

// Capture runs fn, converting a panic into a Failure. Public stage
// boundaries use it so unexpected conditions never escape as panics.
func Capture[T any](fn func() Outcome[T]) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failuref[T]("panic: %v", r)
		}
	}()
	return fn()
}
