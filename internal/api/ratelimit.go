package api

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"golang.org/x/time/rate"
)

// burstMultiplier sets the token bucket burst relative to the per-second
// rate, so a short pause can be spent on a quick follow-up burst without
// raising the sustained rate.
const burstMultiplier = 2

// rateLimitedTransport delays each request until the shared limiter grants
// a token. Every request through the client counts, refreshes and retries
// included.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base so the client issues at most
// perSecond requests per second. perSecond <= 0 returns base unchanged. A
// nil base means http.DefaultTransport.
func NewRateLimitedTransport(base http.RoundTripper, perSecond float64, logger *slog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	if perSecond <= 0 {
		return base
	}

	if logger == nil {
		logger = slog.Default()
	}

	burst := max(1, int(math.Ceil(perSecond))*burstMultiplier)

	logger.Info("api: request rate limited",
		slog.Float64("requests_per_second", perSecond),
		slog.Int("burst", burst),
	)

	return &rateLimitedTransport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("api: waiting for rate limiter: %w", err)
	}

	return t.base.RoundTrip(req)
}
