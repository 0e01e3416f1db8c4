package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artspire/internal/rabbitmq/rabbitmqtest"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                    { return s.name }
func (s stubChecker) Check(ctx context.Context) error { return s.err }

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name     string
		required error
		optional error
		want     Status
	}{
		{name: "all healthy", want: StatusHealthy},
		{name: "optional down", optional: errors.New("redis down"), want: StatusDegraded},
		{name: "required down", required: errors.New("postgres down"), want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			r.Register(stubChecker{name: "postgresql", err: tt.required})
			r.RegisterOptional(stubChecker{name: "redis", err: tt.optional})

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, 2)
		})
	}
}

func TestHandler(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(stubChecker{name: "rabbitmq", err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	Handler(r)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Equal(t, "connection refused", body.Checks["rabbitmq"].Message)
}

func TestRabbitMQChecker(t *testing.T) {
	b := rabbitmqtest.NewBroker()
	checker := NewRabbitMQChecker(b)
	assert.NoError(t, checker.Check(context.Background()))

	b.FailDials(1)
	assert.Error(t, checker.Check(context.Background()))
}
