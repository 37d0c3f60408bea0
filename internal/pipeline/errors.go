package pipeline

import (
	"fmt"

	"github.com/loqalabs/narrator/internal/tts"
)

// ValidationError rejects a request before any I/O.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Reason }

// BudgetExceededError rejects a request whose estimated cost is over the
// configured ceiling. No provider has been called when it is returned.
type BudgetExceededError struct {
	Provider     tts.Name
	TotalChars   int
	EstimatedUSD float64
	CeilingUSD   float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("estimated synthesis cost $%.4f exceeds budget $%.4f", e.EstimatedUSD, e.CeilingUSD)
}

// ProviderExhaustedError reports that both the primary and the fallback
// provider failed for a chunk.
type ProviderExhaustedError struct {
	Index       int
	Primary     tts.Name
	Fallback    tts.Name
	PrimaryErr  error
	FallbackErr error
}

func (e *ProviderExhaustedError) Error() string {
	return "synthesis failed on primary and fallback providers: " + e.PrimaryErr.Error() + " | " + e.FallbackErr.Error()
}

func (e *ProviderExhaustedError) Unwrap() []error { return []error{e.PrimaryErr, e.FallbackErr} }

// Retryable is true when either underlying failure was transient.
func (e *ProviderExhaustedError) Retryable() bool {
	return tts.IsRetryable(e.PrimaryErr) || tts.IsRetryable(e.FallbackErr)
}
