package credential

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProviderUnavailable marks a provider whose environment precondition
// was not met. The chain records it as skipped rather than failed.
var ErrProviderUnavailable = errors.New("not available in this environment")

// ProviderError wraps a failure from a named provider so that aggregated
// diagnostics can attribute each outcome.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AttemptStatus classifies the outcome of one provider in a chain
// traversal.
type AttemptStatus int

const (
	// AttemptSkipped: the provider reported itself unavailable and was not
	// invoked.
	AttemptSkipped AttemptStatus = iota
	// AttemptFailed: the provider was invoked and could not produce a
	// token.
	AttemptFailed
	// AttemptSucceeded: the provider produced the token that terminated
	// the chain.
	AttemptSucceeded
)

func (s AttemptStatus) String() string {
	switch s {
	case AttemptSkipped:
		return "skipped"
	case AttemptFailed:
		return "failed"
	case AttemptSucceeded:
		return "succeeded"
	}
	return "unknown"
}

// Attempt records the outcome of one provider during a single chain
// traversal, in the order the providers are configured.
type Attempt struct {
	Provider string
	Status   AttemptStatus
	Err      error
}

// Reason renders the attempt's outcome for diagnostics.
func (a Attempt) Reason() string {
	if a.Err == nil {
		return a.Status.String()
	}
	return a.Err.Error()
}

// ExhaustedError is returned when every provider in a chain was skipped or
// failed. It preserves each provider's identity and outcome in original
// order so the caller can diagnose which mechanisms were attempted and why
// each did not succeed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("multiple errors were encountered while attempting to authenticate:")
	for _, a := range e.Attempts {
		b.WriteString("\n\t")
		b.WriteString(a.Provider)
		b.WriteString(" (")
		b.WriteString(a.Status.String())
		b.WriteString("): ")
		b.WriteString(a.Reason())
	}
	return b.String()
}

// Unwrap exposes the per-provider errors for errors.Is/As matching.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
