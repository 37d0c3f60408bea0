package pipeline

import (
	"unicode/utf8"

	"github.com/loqalabs/narrator/internal/tts"
)

// DefaultPrices are USD per million characters.
var DefaultPrices = map[tts.Name]float64{
	tts.OpenAI: 20,
	tts.Google: 16,
	tts.Kokoro: 0,
}

// CostEstimate is the projected spend of a request.
type CostEstimate struct {
	Provider        tts.Name `json:"provider"`
	TotalChars      int      `json:"totalChars"`
	PricePerMillion float64  `json:"pricePerMillion"`
	EstimatedUSD    float64  `json:"estimatedUsd"`
}

// EstimateCost sums the chunk lengths and prices them.
func EstimateCost(provider tts.Name, chunks []Chunk, pricePerMillion float64) CostEstimate {
	total := 0
	for _, c := range chunks {
		total += utf8.RuneCountInString(c.Text)
	}
	return CostEstimate{
		Provider:        provider,
		TotalChars:      total,
		PricePerMillion: pricePerMillion,
		EstimatedUSD:    float64(total) / 1_000_000 * pricePerMillion,
	}
}

// Check enforces ceiling. A non-positive ceiling disables the guard.
func (c CostEstimate) Check(ceiling float64) error {
	if ceiling > 0 && c.EstimatedUSD > ceiling {
		return &BudgetExceededError{
			Provider:     c.Provider,
			TotalChars:   c.TotalChars,
			EstimatedUSD: c.EstimatedUSD,
			CeilingUSD:   ceiling,
		}
	}
	return nil
}
