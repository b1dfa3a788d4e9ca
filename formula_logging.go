package settings

import "time"

// FormulaLogEvent describes a formula evaluation attempt for logging.
type FormulaLogEvent struct {
	Engine   string
	Expr     string
	Key      string
	StackID  string
	Duration time.Duration
	Err      error
}

// FormulaLogger records formula evaluations.
type FormulaLogger interface {
	LogFormula(FormulaLogEvent)
}

// FormulaLoggerFunc adapts a function to FormulaLogger.
type FormulaLoggerFunc func(FormulaLogEvent)

// LogFormula implements FormulaLogger.
func (f FormulaLoggerFunc) LogFormula(event FormulaLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopFormulaLogger struct{}

func (noopFormulaLogger) LogFormula(FormulaLogEvent) {}
