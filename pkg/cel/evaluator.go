// Package cel evaluates claims policies: boolean CEL expressions over the
// claims of an already verified token.
package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("sub", cel.IntType),
		cel.Variable("token_type", cel.StringType),
		cel.Variable("issued_at", cel.TimestampType),
		cel.Variable("expires_at", cel.TimestampType),
		cel.Variable("claims", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidatePolicyExpression also requires the expression to yield a bool.
func (e *Evaluator) ValidatePolicyExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("policy expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// Policy is a compiled claims policy, safe for concurrent use.
type Policy struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompilePolicy(expression string) (*Policy, error) {
	if err := e.ValidatePolicyExpression(expression); err != nil {
		return nil, err
	}

	ast, _ := e.env.Compile(expression)
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Policy{expression: expression, program: program}, nil
}

func (p *Policy) String() string {
	return p.expression
}

// Allows evaluates the policy against claims as decoded from a JWT, where
// numbers are float64 and times are unix seconds.
func (p *Policy) Allows(ctx context.Context, claims map[string]interface{}) (bool, error) {
	result, _, err := p.program.ContextEval(ctx, claimsToVars(claims))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return allowed, nil
}

func claimsToVars(claims map[string]interface{}) map[string]interface{} {
	if claims == nil {
		claims = map[string]interface{}{}
	}
	tokenType, _ := claims["type"].(string)
	return map[string]interface{}{
		"sub":        numericClaim(claims["sub"]),
		"token_type": tokenType,
		"issued_at":  time.Unix(numericClaim(claims["iat"]), 0).UTC(),
		"expires_at": time.Unix(numericClaim(claims["exp"]), 0).UTC(),
		"claims":     claims,
	}
}

func numericClaim(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
