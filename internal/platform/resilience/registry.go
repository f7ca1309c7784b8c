package resilience

import "sync"

// Registry keys circuit breakers by operation name so every guarded operation
// carries its own failure state.
type Registry struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

func NewRegistry(cfg CircuitBreakerConfig) *Registry {
	return &Registry{
		cfg:      NormalizeCircuitBreakerConfig(cfg),
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (r *Registry) Enabled() bool {
	return r.cfg.Enabled
}

// Allow reports whether the named operation may proceed. With the breaker
// feature disabled every call is admitted.
func (r *Registry) Allow(op string) error {
	if !r.cfg.Enabled {
		return nil
	}
	return r.breaker(op).Allow()
}

func (r *Registry) RecordSuccess(op string) {
	if !r.cfg.Enabled {
		return
	}
	r.breaker(op).RecordSuccess()
}

func (r *Registry) RecordFailure(op string) {
	if !r.cfg.Enabled {
		return
	}
	r.breaker(op).RecordFailure()
}

// Reset forces the named breaker closed. Unknown names are a no-op.
func (r *Registry) Reset(op string) {
	r.mu.Lock()
	b, ok := r.breakers[op]
	r.mu.Unlock()
	if ok {
		b.Reset()
	}
}

func (r *Registry) State(op string) CircuitState {
	r.mu.Lock()
	b, ok := r.breakers[op]
	r.mu.Unlock()
	if !ok {
		return CircuitStateClosed
	}
	return b.State()
}

// States returns a point-in-time view of all known breakers.
func (r *Registry) States() map[string]CircuitState {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for name, b := range r.breakers {
		names = append(names, name)
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]CircuitState, len(names))
	for i, name := range names {
		out[name] = breakers[i].State()
	}
	return out
}

func (r *Registry) breaker(op string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[op]
	if !ok {
		b = NewCircuitBreaker(r.cfg.FailureThreshold, r.cfg.OpenTimeout)
		r.breakers[op] = b
	}
	return b
}
