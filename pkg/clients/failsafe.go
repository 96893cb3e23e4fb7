// Package clients carries the resilience plumbing for outbound HTTP calls
// (webhook notifications): failsafe-go retry policies and circuit breakers,
// plus a bounded shared transport.
package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"lookout/pkg/logging"
)

// CircuitBreakerState mirrors failsafe-go's breaker states with stable
// numeric values for the Prometheus gauge (0=closed, 1=half-open, 2=open).
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// CircuitBreakerConfig configures one named breaker.
type CircuitBreakerConfig struct {
	Name string

	// MinRequests is the sample size before FailureRatio is evaluated,
	// so a cold breaker does not trip on its first failure.
	MinRequests uint32
	// FailureRatio trips the breaker when failures/requests exceeds it.
	FailureRatio float64
	// Timeout is how long the breaker stays open before probing half-open.
	Timeout time.Duration
	// MaxRequests is the number of half-open successes required to close.
	MaxRequests uint32

	Logger        logging.Logger
	OnStateChange func(name string, from, to CircuitBreakerState)
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         "default",
		MinRequests:  10,
		FailureRatio: 0.5,
		Timeout:      15 * time.Second,
		MaxRequests:  1,
	}
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = "circuit-breaker"
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio == 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	return cfg
}

// failureThreshold converts the ratio into the absolute failure count
// failsafe-go expects, floored at one.
func (cfg CircuitBreakerConfig) failureThreshold() uint {
	n := uint(float64(cfg.MinRequests) * cfg.FailureRatio)
	if n < 1 {
		n = 1
	}
	return n
}

// CircuitBreaker wraps a failsafe-go breaker and remembers its config so
// typed executors can be derived from the same thresholds.
type CircuitBreaker struct {
	cb  circuitbreaker.CircuitBreaker[any]
	cfg CircuitBreakerConfig
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg = cfg.withDefaults()

	builder := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(cfg.failureThreshold(), uint(cfg.MinRequests)).
		WithDelay(cfg.Timeout).
		WithSuccessThreshold(uint(cfg.MaxRequests))

	if cfg.Logger != nil || cfg.OnStateChange != nil {
		builder = builder.OnStateChanged(stateChangeHook(cfg))
	}

	return &CircuitBreaker{cb: builder.Build(), cfg: cfg}
}

func stateChangeHook(cfg CircuitBreakerConfig) func(circuitbreaker.StateChangedEvent) {
	return func(event circuitbreaker.StateChangedEvent) {
		from := convertState(event.OldState)
		to := convertState(event.NewState)

		if cfg.Logger != nil {
			cfg.Logger.WithFields(logging.Fields{
				"circuit_breaker": cfg.Name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state change")
		}
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(cfg.Name, from, to)
		}
	}
}

func convertState(state circuitbreaker.State) CircuitBreakerState {
	switch state {
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}

// Call runs fn through the breaker.
func (cb *CircuitBreaker) Call(fn func() error) error {
	_, err := failsafe.With(cb.cb).Get(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	return convertState(cb.cb.State())
}

func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// DefaultShouldRetry retries transport errors, 5xx responses, and 429s.
// Client errors are terminal: resending a payload the endpoint rejected
// once will not make it valid.
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// HTTPExecutorConfig configures retry + optional breaker for HTTP sends.
type HTTPExecutorConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	CircuitBreaker *CircuitBreaker

	// ShouldRetry overrides DefaultShouldRetry when set.
	ShouldRetry func(resp *http.Response, err error) bool
}

func (cfg HTTPExecutorConfig) normalized() HTTPExecutorConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultShouldRetry
	}
	return cfg
}

// NewHTTPRetryPolicy builds the retry half of the executor.
//
//nolint:bodyclose // [*http.Response] here is a type parameter, not a live response
func NewHTTPRetryPolicy(cfg HTTPExecutorConfig) retrypolicy.RetryPolicy[*http.Response] {
	cfg = cfg.normalized()
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			return cfg.ShouldRetry(resp, err)
		}).
		Build()
}

// NewHTTPExecutor combines the retry policy with a typed circuit breaker
// sharing the configured breaker's thresholds. The breaker sits outside
// the retries, so one failing send counts once against the ratio no
// matter how many attempts it burned.
//
//nolint:bodyclose // [*http.Response] here is a type parameter, not a live response
func NewHTTPExecutor(cfg HTTPExecutorConfig) failsafe.Executor[*http.Response] {
	retry := NewHTTPRetryPolicy(cfg)

	if cfg.CircuitBreaker == nil {
		return failsafe.With(retry)
	}

	bc := cfg.CircuitBreaker.cfg
	builder := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(bc.failureThreshold(), uint(bc.MinRequests)).
		WithDelay(bc.Timeout).
		WithSuccessThreshold(uint(bc.MaxRequests)).
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= 500)
		})
	if bc.Logger != nil || bc.OnStateChange != nil {
		builder = builder.OnStateChanged(stateChangeHook(bc))
	}

	return failsafe.With(retry, builder.Build())
}

// ExecuteHTTP runs one request function through the executor, bounded by ctx.
func ExecuteHTTP(ctx context.Context, executor failsafe.Executor[*http.Response], fn func() (*http.Response, error)) (*http.Response, error) {
	return executor.WithContext(ctx).Get(fn)
}
