// Package types holds the shared, dependency-free records that every
// accelerator stage is built from: layer configuration, address records,
// pipeline state, and the error taxonomy used to report construction and
// verification failures.
package types

import "fmt"

// ConfigurationError reports an invalid ConvConfig at construction time
// (NewQuantConfig does no validation and never returns one). The layer must
// abort rather than proceed with a partially-derived configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: field %q: %s", e.Field, e.Reason)
}

// AddressOutOfBoundsError signals an Index Generator bug: an emitted
// address fell outside its declared base+size window.
type AddressOutOfBoundsError struct {
	Kind  string // "input" or "weight"
	Index int
	Addr  int
	Base  int
	Size  int
}

func (e *AddressOutOfBoundsError) Error() string {
	return fmt.Sprintf("%s address out of bounds at index %d: addr=%d not in [%d, %d)",
		e.Kind, e.Index, e.Addr, e.Base, e.Base+e.Size)
}

// CoordinateOutOfBoundsError is returned by StoreOutput when the caller
// supplies (y, x, c) beyond the declared output dimensions.
type CoordinateOutOfBoundsError struct {
	Y, X, C             int
	Height, Width, Chan int
}

func (e *CoordinateOutOfBoundsError) Error() string {
	return fmt.Sprintf("output coordinate (y=%d, x=%d, c=%d) out of bounds for %dx%dx%d",
		e.Y, e.X, e.C, e.Height, e.Width, e.Chan)
}

// VerifyFailure is one structured diagnostic entry produced by a Verify
// operation: component, index, and expected vs. actual.
type VerifyFailure struct {
	Component string
	Index     int
	Expected  string
	Actual    string
	Message   string
}

func (f VerifyFailure) String() string {
	return fmt.Sprintf("[%s] index=%d expected=%s actual=%s: %s",
		f.Component, f.Index, f.Expected, f.Actual, f.Message)
}

// VerifyResult aggregates every failure found by a Verify operation instead
// of raising mid-stream. OK is true iff Failures is empty.
type VerifyResult struct {
	OK       bool
	Failures []VerifyFailure
}

// Fail appends a structured failure and flips OK to false.
func (r *VerifyResult) Fail(component string, index int, expected, actual, message string) {
	r.OK = false
	r.Failures = append(r.Failures, VerifyFailure{
		Component: component,
		Index:     index,
		Expected:  expected,
		Actual:    actual,
		Message:   message,
	})
}

// NewVerifyResult returns a passing result with no failures recorded.
func NewVerifyResult() VerifyResult {
	return VerifyResult{OK: true}
}
