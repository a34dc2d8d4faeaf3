package service

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/chitragupta/chitragupta/gateway/internal/infrastructure/tantra"
)

// RetryConfig mirrors the backoff contract.
type RetryConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig matches production tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// retryableStatusCodes per provider conventions (529 is Anthropic overload).
var retryableStatusCodes = map[int]bool{
	429: true, 500: true, 502: true, 503: true, 529: true,
}

var retryableMessages = []string{
	"rate limit", "too many requests", "overloaded", "service unavailable",
	"bad gateway", "internal server error", "econnreset", "etimedout",
	"socket hang up",
}

// IsRetryableError classifies provider and transport failures. Cancellation
// is never retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var cancelled *CancellationError
	if errors.As(err, &cancelled) {
		return false
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var transport *tantra.TransportError
	if errors.As(err, &transport) {
		return !transport.Cancelled
	}
	var protocol *tantra.ProtocolError
	if errors.As(err, &protocol) {
		return false
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) && retryableStatusCodes[provErr.StatusCode] {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryableMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// ParseRetryAfter interprets a Retry-After header value: integer seconds or
// an HTTP-date in the future. Zero, negative or unparseable values return
// nil.
func ParseRetryAfter(v string) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return nil
		}
		d := time.Duration(secs) * time.Second
		return &d
	}

	if t, err := time.Parse(time.RFC1123, v); err == nil {
		d := time.Until(t)
		if d <= 0 {
			return nil
		}
		return &d
	}
	if t, err := time.Parse(time.RFC1123Z, v); err == nil {
		d := time.Until(t)
		if d <= 0 {
			return nil
		}
		return &d
	}
	return nil
}

// ComputeDelay returns the wait before retry `attempt` (0-based):
// exponential base with up to half-base jitter, floored by Retry-After and
// capped by MaxDelay.
func ComputeDelay(attempt int, cfg RetryConfig, retryAfter *time.Duration) time.Duration {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}

	base := float64(cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		base *= cfg.BackoffMultiplier
	}
	jitter := float64(int64(rand.Float64() * base / 2))
	delay := time.Duration(base + jitter)

	if retryAfter != nil && *retryAfter > delay {
		delay = *retryAfter
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
