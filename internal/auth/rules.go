package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	ErrRuleEvaluation  = errors.New("access rule evaluation failed")
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidRuleExpr = errors.New("invalid access rule expression")
)

// RuleEngine evaluates per-function CEL access rules. Rules see the calling
// principal and the request payload and must yield a boolean.
type RuleEngine struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

func NewRuleEngine() (*RuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("principal", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	return &RuleEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile registers the rule for a function, replacing any previous one.
func (e *RuleEngine) Compile(functionName, expr string) error {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRuleExpr, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("creating program: %w", err)
	}

	e.mu.Lock()
	e.programs[functionName] = program
	e.mu.Unlock()
	return nil
}

// Clear drops all compiled rules (redeploy).
func (e *RuleEngine) Clear() {
	e.mu.Lock()
	e.programs = make(map[string]cel.Program)
	e.mu.Unlock()
}

// Evaluate runs the function's rule. Functions without a rule are allowed.
func (e *RuleEngine) Evaluate(functionName string, p *Principal, payload map[string]any) (bool, error) {
	e.mu.RLock()
	program, ok := e.programs[functionName]
	e.mu.RUnlock()

	if !ok {
		return true, nil
	}

	// Anonymous callers still present the principal keys so rules never
	// fail on missing map entries.
	principalVars := map[string]any{"id": "", "email": "", "role": ""}
	if p != nil {
		principalVars["id"] = p.ID
		principalVars["email"] = p.Email
		principalVars["role"] = p.Role
	}
	if payload == nil {
		payload = map[string]any{}
	}

	result, _, err := program.Eval(map[string]any{
		"principal": principalVars,
		"payload":   payload,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRuleEvaluation, err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: rule did not return boolean", ErrRuleEvaluation)
	}

	return allowed, nil
}

// HasRule reports whether a rule is registered for the function.
func (e *RuleEngine) HasRule(functionName string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.programs[functionName]
	return ok
}
