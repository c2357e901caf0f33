package llm

import (
	"context"
	"fmt"

	"github.com/ppiankov/intentra/internal/worker"
)

// RateLimited throttles a provider with one token bucket per intent
type RateLimited struct {
	SlotProvider
	limiter *worker.Limiter
}

// NewRateLimited wraps p
func NewRateLimited(p SlotProvider, perSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		SlotProvider: p,
		limiter:      worker.NewLimiter(perSecond, burst),
	}
}

// FillMissingSlots waits for the intent's bucket, then delegates
func (r *RateLimited) FillMissingSlots(ctx context.Context, req SlotRequest) (map[string]any, error) {
	if err := r.limiter.Wait(ctx, req.Intent); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.SlotProvider.FillMissingSlots(ctx, req)
}
