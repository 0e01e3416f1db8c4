package rabbitmq

import (
	"context"
	"errors"
	"sync"

	"github.com/sony/gobreaker"

	"artspire/internal/config"
	"artspire/internal/logger"
	"artspire/pkg/circuitbreaker"
)

// BreakerCaller guards a Caller with one circuit breaker per routing key,
// so a dead endpoint fails fast without affecting the others.
type BreakerCaller struct {
	next Caller
	cfg  config.CircuitBreakerConfig
	log  logger.Logger

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.Wrapper
}

func NewBreakerCaller(next Caller, cfg config.CircuitBreakerConfig, log logger.Logger) *BreakerCaller {
	if log == nil {
		log = logger.NopLogger()
	}
	return &BreakerCaller{
		next:     next,
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*circuitbreaker.Wrapper),
	}
}

func (b *BreakerCaller) Call(ctx context.Context, payload []byte, routingKey string) ([]byte, error) {
	result, err := b.breaker(routingKey).ExecuteWithContext(ctx, func() (interface{}, error) {
		return b.next.Call(ctx, payload, routingKey)
	})
	if err != nil {
		return nil, err
	}
	body, _ := result.([]byte)
	return body, nil
}

func (b *BreakerCaller) breaker(routingKey string) *circuitbreaker.Wrapper {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.breakers[routingKey]; ok {
		return w
	}

	cbCfg := circuitbreaker.FromConfig("rpc_"+routingKey, b.cfg)
	// A caller giving up says nothing about the endpoint's health.
	cbCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		b.log.Warnw("Circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	}

	w := circuitbreaker.NewWrapper(cbCfg)
	b.breakers[routingKey] = w
	return w
}
