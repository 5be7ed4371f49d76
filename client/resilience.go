package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"
)

// ResilienceConfig enables the retrying, circuit-breaking transport around
// the base HTTP client.
type ResilienceConfig struct {
	Enabled bool
	Retry   RetryPolicy
	Breaker BreakerConfig
}

// RetryPolicy configures transport-level retries. Only transient transport
// failures and the listed status codes are retried; application-level 4xx
// responses are never replayed here.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	RetryStatuses  []int
}

// DefaultRetryPolicy returns the standard retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
		RetryStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold opens the circuit after this many consecutive
	// failures.
	FailureThreshold int
	// SuccessThreshold closes a half-open circuit after this many
	// consecutive successes.
	SuccessThreshold int
	// CoolDown is how long the circuit stays open before probing again.
	CoolDown time.Duration
}

// DefaultBreakerConfig returns the standard breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// circuitBreaker tracks backend health across requests.
type circuitBreaker struct {
	mu sync.Mutex

	cfg   BreakerConfig
	state breakerState

	failures  int
	successes int
	openedAt  time.Time
}

func newCircuitBreaker(cfg BreakerConfig) *circuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	return &circuitBreaker{cfg: cfg, state: breakerClosed}
}

func (b *circuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen {
		if time.Since(b.openedAt) < b.cfg.CoolDown {
			return ErrCircuitOpen
		}
		b.state = breakerHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures = 0
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = breakerClosed
			b.failures = 0
		}
	}
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = breakerOpen
			b.openedAt = time.Now()
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

func (b *circuitBreaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// resilientTransport retries transient failures with exponential backoff and
// sheds load through the circuit breaker.
type resilientTransport struct {
	base    http.RoundTripper
	policy  RetryPolicy
	breaker *circuitBreaker
}

func wrapResilient(base *http.Client, cfg ResilienceConfig) *http.Client {
	policy := cfg.Retry
	if policy.MaxRetries == 0 && policy.InitialBackoff == 0 {
		policy = DefaultRetryPolicy()
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	wrapped := *base
	wrapped.Transport = &resilientTransport{
		base:    transport,
		policy:  policy,
		breaker: newCircuitBreaker(cfg.Breaker),
	}
	return &wrapped
}

func (t *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.allow(); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(t.backoff(attempt)):
			}
			req = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			if retryableError(err) && attempt < t.policy.MaxRetries {
				continue
			}
			t.breaker.recordFailure()
			return nil, err
		}

		if t.retryableStatus(resp.StatusCode) {
			if attempt < t.policy.MaxRetries {
				resp.Body.Close()
				continue
			}
			// Retries exhausted; hand the final transient response back.
			t.breaker.recordFailure()
			return resp, nil
		}

		t.breaker.recordSuccess()
		return resp, nil
	}
}

func (t *resilientTransport) backoff(attempt int) time.Duration {
	d := float64(t.policy.InitialBackoff) * math.Pow(t.policy.Multiplier, float64(attempt-1))
	if max := float64(t.policy.MaxBackoff); d > max {
		d = max
	}
	if t.policy.Jitter > 0 {
		d += d * t.policy.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (t *resilientTransport) retryableStatus(code int) bool {
	for _, s := range t.policy.RetryStatuses {
		if code == s {
			return true
		}
	}
	return false
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
