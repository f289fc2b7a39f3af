package reconcile

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"jobcost/internal/core/apperror"
)

// Scope restricts a run to the external entries for which a CEL expression
// holds, e.g. `account == "310" && amount > 0.0`.
type Scope struct {
	expr string
	prg  cel.Program
}

// NewScope compiles expr. The expression must evaluate to a bool.
func NewScope(expr string) (*Scope, error) {
	env, err := cel.NewEnv(
		cel.Variable("account", cel.StringType),
		cel.Variable("reference", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid reconciliation scope").
			WithDetail("field", "scope").
			WithDetail("reason", iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperror.NewValidation("reconciliation scope must be a boolean expression").
			WithDetail("field", "scope").
			WithDetail("type", ast.OutputType().String())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &Scope{expr: expr, prg: prg}, nil
}

// Includes evaluates the scope for one entry.
func (s *Scope) Includes(e ExternalEntry) (bool, error) {
	amount, _ := e.Amount.Float64()
	out, _, err := s.prg.Eval(map[string]any{
		"account":     e.Account,
		"reference":   e.Reference,
		"description": e.Description,
		"amount":      amount,
	})
	if err != nil {
		return false, apperror.NewValidation("reconciliation scope failed to evaluate").
			WithDetail("field", "scope").
			WithDetail("entry", e.ID).
			WithDetail("reason", err.Error())
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, apperror.NewValidation("reconciliation scope did not return a boolean").
			WithDetail("field", "scope")
	}
	return v, nil
}

// String returns the source expression.
func (s *Scope) String() string {
	return s.expr
}
