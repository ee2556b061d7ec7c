package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/fbik/avito-monitor-app/pkg/models"
)

// Evaluator compiles boolean expressions over an extracted candidate.
// Available variables: sender, text, display_time, is_new, position.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("sender", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("display_time", cel.StringType),
		cel.Variable("is_new", cel.BoolType),
		cel.Variable("position", cel.IntType),
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

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// Filter is a compiled filter expression, safe for concurrent use.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	if err := e.ValidateFilterExpression(expression); err != nil {
		return nil, err
	}

	program, err := e.CompileExpression(expression)
	if err != nil {
		return nil, err
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) Expression() string {
	return f.expression
}

func (f *Filter) Match(ctx context.Context, c models.Candidate) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, candidateVars(c))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// EvaluateFilter compiles and runs expression once. Prefer CompileFilter on hot paths.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, c models.Candidate) (bool, error) {
	f, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return f.Match(ctx, c)
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func candidateVars(c models.Candidate) map[string]interface{} {
	return map[string]interface{}{
		"sender":       c.Sender,
		"text":         c.Text,
		"display_time": c.DisplayTime,
		"is_new":       c.IsNew,
		"position":     int64(c.Position),
	}
}
