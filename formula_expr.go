package settings

import (
	"fmt"
	"sort"

	exprlang "github.com/expr-lang/expr"
	exprast "github.com/expr-lang/expr/ast"
	exprparser "github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures an expr evaluator instance.
type ExprEvaluatorOption func(*exprEvaluator)

// ExprWithProgramCache wires a ProgramCache into the expr evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr evaluator.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// exprEvaluator executes setting formulas using github.com/expr-lang/expr.
// Referenced setting keys are discovered by walking the parsed expression
// and resolved through the formula context before the program runs.
type exprEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	e := &exprEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate compiles and runs expression against ctx.
func (e *exprEvaluator) Evaluate(ctx *FormulaContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEngineError("expr", fmt.Errorf("expression must not be empty"))
	}
	env, err := e.environment(ctx, expression)
	if err != nil {
		return nil, wrapFormulaError("expr", expression, "", "", err)
	}
	if e.cache == nil {
		result, err := exprlang.Eval(expression, env)
		if err != nil {
			return nil, wrapFormulaError("expr", expression, "", "", err)
		}
		return result, nil
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	result, err := exprlang.Run(program, env)
	if err != nil {
		return nil, wrapFormulaError("expr", expression, "", "", err)
	}
	return result, nil
}

// Compile returns a compiled formula that evaluates expression per
// invocation.
func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledFormula, error) {
	if expression == "" {
		return nil, wrapEngineError("expr", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &exprCompiledFormula{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *exprEvaluator) loadOrCompile(expression string) (*exprvm.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registryNames() {
		fn := e.registryFunction(name)
		options = append(options, exprlang.Function(name, fn))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapFormulaError("expr", expression, "", "", err)
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

type exprCompiledFormula struct {
	evaluator  *exprEvaluator
	program    *exprvm.Program
	expression string
}

func (f *exprCompiledFormula) Evaluate(ctx *FormulaContext) (any, error) {
	if f.evaluator == nil {
		return nil, wrapEngineError("expr", fmt.Errorf("compiled formula missing evaluator"))
	}
	if f.program == nil {
		return f.evaluator.Evaluate(ctx, f.expression)
	}
	env, err := f.evaluator.environment(ctx, f.expression)
	if err != nil {
		return nil, wrapFormulaError("expr", f.expression, "", "", err)
	}
	result, err := exprlang.Run(f.program, env)
	if err != nil {
		return nil, wrapFormulaError("expr", f.expression, "", "", err)
	}
	return result, nil
}

// environment binds builtins, registered functions and every referenced
// setting key. Settings resolve eagerly through the context so the program
// sees plain values.
func (e *exprEvaluator) environment(ctx *FormulaContext, expression string) (map[string]any, error) {
	env := map[string]any{}
	for name, fn := range builtinFunctions(ctx) {
		env[name] = fn
	}
	merged := e.registry
	if extra := ctx.Functions(); extra != nil {
		if merged == nil {
			merged = extra
		} else {
			merged = merged.Clone()
			for _, name := range extra.Names() {
				fn := name
				_ = merged.Register(fn, func(arguments ...any) (any, error) {
					return extra.Call(fn, arguments...)
				})
			}
		}
	}
	if merged != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return merged.Call(name, arguments...)
		}
		for _, name := range merged.Names() {
			fn := name
			env[fn] = func(arguments ...any) (any, error) {
				return merged.Call(fn, arguments...)
			}
		}
	}

	keys, err := usedSettingKeys(expression)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if _, exists := env[key]; exists {
			continue
		}
		value, err := ctx.Setting(key)
		if err != nil {
			return nil, err
		}
		env[key] = value
	}
	return env, nil
}

func (e *exprEvaluator) registryNames() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

func (e *exprEvaluator) registryFunction(name string) func(...any) (any, error) {
	if e == nil || e.registry == nil {
		return nil
	}
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}

type identCollector struct {
	names map[string]bool
}

func (c *identCollector) Visit(node *exprast.Node) {
	if ident, ok := (*node).(*exprast.IdentifierNode); ok {
		c.names[ident.Value] = true
	}
}

// usedSettingKeys extracts the identifiers an expression references.
func usedSettingKeys(expression string) ([]string, error) {
	tree, err := exprparser.Parse(expression)
	if err != nil {
		return nil, err
	}
	collector := &identCollector{names: map[string]bool{}}
	exprast.Walk(&tree.Node, collector)
	keys := make([]string, 0, len(collector.names))
	for name := range collector.names {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}
