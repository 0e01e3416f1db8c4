package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestCompilePolicy_EveryVariable(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for _, expr := range []string{
		`true`,
		`sub > 0`,
		`token_type == "access"`,
		`issued_at < expires_at`,
		`size(claims) >= 0`,
	} {
		t.Run(expr, func(t *testing.T) {
			p, err := eval.CompilePolicy(expr)
			require.NoError(t, err)
			assert.Equal(t, expr, p.String())
		})
	}
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name: "token type check",
			expr: `token_type == "access"`,
		},
		{
			name: "claims lookup",
			expr: `claims.username != ""`,
		},
		{
			name:      "invalid expression",
			expr:      `token_type ==== "access"`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `role == "admin"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePolicyExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	assert.NoError(t, eval.ValidatePolicyExpression(`sub > 0`))
	assert.Error(t, eval.ValidatePolicyExpression(`sub + 1`))
}

func TestPolicyAllows(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	now := time.Now()
	claims := map[string]interface{}{
		"type":          "access",
		"sub":           float64(7),
		"username":      "sugar",
		"email":         "sugar@example.com",
		"profile_image": nil,
		"iat":           float64(now.Unix()),
		"exp":           float64(now.Add(5 * time.Minute).Unix()),
	}

	tests := []struct {
		name   string
		policy string
		claims map[string]interface{}
		want   bool
	}{
		{
			name:   "access token accepted",
			policy: `token_type == "access" && sub > 0`,
			claims: claims,
			want:   true,
		},
		{
			name:   "refresh token rejected",
			policy: `token_type == "access"`,
			claims: map[string]interface{}{"type": "refresh", "sub": float64(7)},
			want:   false,
		},
		{
			name:   "lifetime bounded",
			policy: `expires_at - issued_at <= duration("10m")`,
			claims: claims,
			want:   true,
		},
		{
			name:   "custom claim via map",
			policy: `"username" in claims && claims.username == "sugar"`,
			claims: claims,
			want:   true,
		},
		{
			name:   "missing claims",
			policy: `sub > 0`,
			claims: nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := eval.CompilePolicy(tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.policy, p.String())

			got, err := p.Allows(context.Background(), tt.claims)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyEvaluationError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	p, err := eval.CompilePolicy(`claims.role == "admin"`)
	require.NoError(t, err)

	_, err = p.Allows(context.Background(), map[string]interface{}{"sub": float64(1)})
	assert.Error(t, err)
}
