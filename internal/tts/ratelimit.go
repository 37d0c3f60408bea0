package tts

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit paces calls to p at rps requests per second. A non-positive
// rps returns p unchanged.
func WithRateLimit(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Synthesize(ctx context.Context, in Input) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Synthesize(ctx, in)
}
