// Package dsperr holds the errors returned by the processing core.
//
// Every error is detected synchronously at the call that caused it and wrapped
// with context, so callers match with errors.Is.
package dsperr

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidParameter reports a value or index outside its declared domain.
	// Values that are clamped still report it after the clamped value is stored.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUninitializedEngine reports a call on an engine that was never created
	// or has already been destroyed.
	ErrUninitializedEngine = errors.New("engine not initialized")

	// ErrBufferSizeMismatch reports a sample or frame count above the capacity
	// fixed at creation.
	ErrBufferSizeMismatch = errors.New("buffer size mismatch")

	// ErrMalformedPreset reports a preset whose shape does not match the engine.
	ErrMalformedPreset = errors.New("malformed preset")

	// ErrClamped and ErrNotFinite refine ErrInvalidParameter: the first means
	// the clamped value was stored, the second that nothing was.
	ErrClamped   = errors.New("clamped")
	ErrNotFinite = errors.New("not finite")
)

// Clamp limits v to [lo, hi]. ok is false when v is NaN or infinite and must
// not be stored. err is non-nil whenever v was outside the range, including
// when it was clamped and is still usable.
func Clamp(name string, v, lo, hi float64) (clamped float64, ok bool, err error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: %s %w", ErrInvalidParameter, name, ErrNotFinite)
	}
	switch {
	case v < lo:
		return lo, true, fmt.Errorf("%w: %s %g below %g, %w", ErrInvalidParameter, name, v, lo, ErrClamped)
	case v > hi:
		return hi, true, fmt.Errorf("%w: %s %g above %g, %w", ErrInvalidParameter, name, v, hi, ErrClamped)
	}
	return v, true, nil
}

// Stored reports whether a setter that returned err still stored its value,
// which is the case when it succeeded or only clamped.
func Stored(err error) bool {
	return err == nil || (errors.Is(err, ErrClamped) && !errors.Is(err, ErrNotFinite))
}
