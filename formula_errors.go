package settings

import (
	"errors"
	"fmt"
	"strings"
)

// FormulaError captures engine metadata alongside the originating error.
type FormulaError struct {
	Engine  string
	Expr    string
	Key     string
	StackID string
	Err     error
}

func (e *FormulaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settings: %s engine %s key=%s stack=%s: %v", e.Engine, describeExpression(e.Expr), e.Key, e.StackID, e.Err)
}

func (e *FormulaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var formulaErr *FormulaError
	if errors.As(err, &formulaErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "settings:") {
		return err
	}
	return fmt.Errorf("settings: %s engine: %w", engine, err)
}

func wrapFormulaError(engine, expr, key, stackID string, err error) error {
	if err == nil {
		return nil
	}

	var formulaErr *FormulaError
	if errors.As(err, &formulaErr) {
		if formulaErr.Engine == "" {
			formulaErr.Engine = engine
		}
		if formulaErr.Expr == "" {
			formulaErr.Expr = expr
		}
		if formulaErr.Key == "" {
			formulaErr.Key = key
		}
		if formulaErr.StackID == "" {
			formulaErr.StackID = stackID
		}
		return formulaErr
	}

	return &FormulaError{
		Engine:  engine,
		Expr:    expr,
		Key:     key,
		StackID: stackID,
		Err:     err,
	}
}
