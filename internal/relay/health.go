package relay

import (
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/enterprise-universe/universe-gateway/internal/gateway"
)

// CircuitObserver is told when a provider circuit opens or closes.
// *telemetry.Metrics satisfies it.
type CircuitObserver interface {
	SetCircuitOpen(provider string, open bool)
}

// HealthTracker manages circuit breakers for all providers.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
	observer              CircuitObserver
}

// NewHealthTracker creates a health tracker with the given circuit breaker
// config. observer may be nil.
func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration, observer CircuitObserver) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
		observer:              observer,
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for a provider.
func (ht *HealthTracker) GetBreaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	// Double-check after acquiring write lock
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	if ht.observer != nil {
		cb.onChange = func(_, to CircuitState) {
			ht.observer.SetCircuitOpen(provider, to == StateOpen)
		}
	}
	ht.breakers[provider] = cb
	return cb
}

// Allow reports whether a call to provider may go through.
func (ht *HealthTracker) Allow(provider string) bool {
	return ht.GetBreaker(provider).Allow()
}

// Record feeds the outcome of a gateway call into the provider's breaker.
// Only provider-side failures count: transport errors, timeouts, 5xx and
// 429 answers. Local errors, caller cancellation and other 4xx answers
// release a probe without judging the provider.
func (ht *HealthTracker) Record(provider string, err error) {
	cb := ht.GetBreaker(provider)
	if err == nil {
		cb.RecordSuccess()
		return
	}
	if countsAsFailure(err) {
		cb.RecordFailure()
		return
	}
	cb.Release()
}

func countsAsFailure(err error) bool {
	switch gateway.Kind(err) {
	case "network_error", "timeout", "decode_error":
		return true
	case "api_error":
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
		}
	}
	return false
}

// States returns the state of every provider that has a breaker, sorted by key.
func (ht *HealthTracker) States() []ProviderState {
	ht.mu.RLock()
	keys := make([]string, 0, len(ht.breakers))
	for k := range ht.breakers {
		keys = append(keys, k)
	}
	ht.mu.RUnlock()
	sort.Strings(keys)

	out := make([]ProviderState, 0, len(keys))
	for _, k := range keys {
		out = append(out, ProviderState{Provider: k, State: ht.GetBreaker(k).State().String()})
	}
	return out
}

type ProviderState struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
}
