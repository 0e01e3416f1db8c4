package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"artspire/internal/config"
)

func TestInit_DisabledInstallsPropagator(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	p, err := Init(config.TracingConfig{}, "auth-service")
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())

	var none *Provider
	assert.NoError(t, none.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		cfg  config.SamplerConfig
		want string
	}{
		{config.SamplerConfig{}, "AlwaysOnSampler"},
		{config.SamplerConfig{Type: "always_off"}, "AlwaysOffSampler"},
		{config.SamplerConfig{Type: "traceidratio", Param: 0.25}, "TraceIDRatioBased{0.25}"},
		{config.SamplerConfig{Type: "traceidratio", Param: -3}, "TraceIDRatioBased{0}"},
		{config.SamplerConfig{Type: "traceidratio", Param: 7}, "AlwaysOnSampler"},
		{config.SamplerConfig{Type: "parentbased_traceidratio", Param: 0.5}, "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Type, func(t *testing.T) {
			assert.Contains(t, Sampler(tt.cfg).Description(), tt.want)
		})
	}
}
