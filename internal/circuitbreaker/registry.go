package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry hands out one Breaker per upstream host. All providers talking to
// the same host share a breaker, so a host-wide outage is detected across
// providers.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	logger   *zap.Logger
}

// NewRegistry creates a Registry whose breakers use cfg (zero fields take the
// package defaults). State transitions are logged through logger.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		logger:   logger,
	}
}

// ForHost returns the breaker for host, creating it on first use.
func (r *Registry) ForHost(host string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[host]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[host]; ok {
		return b
	}
	cfg := r.cfg
	cfg.OnStateChange = func(from, to State) {
		r.logger.Warn("circuit breaker state change",
			zap.String("host", host),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	b = New(cfg)
	r.breakers[host] = b
	return b
}
