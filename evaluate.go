package settings

import (
	"fmt"
	"time"
)

// Evaluate executes an ad-hoc expression against the stack. Setting keys
// referenced by the expression resolve exactly like stored formulas do.
func (s *Stack) Evaluate(expression string) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	return s.evalFormula(NewFormula(expression), "", "", newResolveContext())
}

// evalFormula runs formula through the configured engine, guarding against
// self-referencing keys and logging the attempt.
func (s *Stack) evalFormula(formula *Formula, key, property string, rc *resolveContext) (any, error) {
	if !rc.enterFormula(key) {
		return nil, fmt.Errorf("%w: %q on stack %q", ErrCircularFormula, key, s.id)
	}
	defer rc.leaveFormula(key)

	evaluator, err := s.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	root := s.resolverRoot()
	ctx := &FormulaContext{
		resolver:  root,
		machine:   root.formulaMachine(),
		position:  root.formulaPosition(),
		functions: s.functions,
		rc:        rc,
	}
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, formula.Expression())
	duration := time.Since(start)
	evalErr = wrapFormulaError(engine, formula.Expression(), key, s.id, evalErr)
	s.formulaLogger().LogFormula(FormulaLogEvent{
		Engine:   engine,
		Expr:     formula.Expression(),
		Key:      key,
		StackID:  s.id,
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	rc.trace.add(Step{
		StackID:  s.id,
		Action:   TraceFormula,
		Key:      key,
		Property: property,
		Value:    value,
		Found:    true,
	})
	return value, nil
}

func (s *Stack) resolveEvaluator() (Evaluator, error) {
	if s.evaluator != nil {
		return s.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if s.programCache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(s.programCache))
	}
	if s.functions != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(s.functions))
	}
	evaluator := NewExprEvaluator(exprOpts...)
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	s.evaluator = evaluator
	return evaluator, nil
}

func (s *Stack) formulaLogger() FormulaLogger {
	if s.logger != nil {
		return s.logger
	}
	return noopFormulaLogger{}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*settings.exprEvaluator":
		return "expr"
	case "*settings.celEvaluator":
		return "cel"
	case "*settings.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}

// displayValue renders raw layer values for traces, keeping formulas in
// their file form.
func displayValue(value any) any {
	if formula, ok := value.(*Formula); ok {
		return formula.String()
	}
	return value
}
