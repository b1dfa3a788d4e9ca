//go:build js_eval

package settings

import (
	"fmt"

	"github.com/dop251/goja"
)

// jsEvaluator executes setting formulas as JavaScript expressions using
// goja. Setting keys resolve lazily through a dynamic env object inside a
// with() scope, so any identifier the script touches goes through the
// formula context.
type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewJSEvaluator constructs an Evaluator backed by goja.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	cfg := applyJSEvaluatorOptions(opts)
	return &jsEvaluator{
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

func (e *jsEvaluator) Evaluate(ctx *FormulaContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEngineError("js", fmt.Errorf("expression must not be empty"))
	}
	if e.cache == nil {
		return e.run(ctx, expression, nil)
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, expression, program)
}

func (e *jsEvaluator) Compile(expression string, _ ...CompileOption) (CompiledFormula, error) {
	if expression == "" {
		return nil, wrapEngineError("js", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &jsCompiledFormula{
		evaluator:  e,
		expression: expression,
		program:    program,
	}, nil
}

func (e *jsEvaluator) loadOrCompile(expression string) (*goja.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", wrapExpression(expression), false)
	if err != nil {
		return nil, wrapFormulaError("js", expression, "", "", err)
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

func (e *jsEvaluator) run(ctx *FormulaContext, expression string, program *goja.Program) (any, error) {
	vm := goja.New()
	proxy := newSettingsProxy(vm, ctx, e.registry)
	vm.Set("env", vm.NewDynamicObject(proxy))

	var value goja.Value
	var err error
	if program != nil {
		value, err = vm.RunProgram(program)
	} else {
		value, err = vm.RunString(wrapExpression(expression))
	}
	if proxy.err != nil {
		return nil, wrapFormulaError("js", expression, "", "", proxy.err)
	}
	if err != nil {
		return nil, wrapFormulaError("js", expression, "", "", err)
	}
	return value.Export(), nil
}

func wrapExpression(expression string) string {
	return fmt.Sprintf("(function(){ with(env) { return (%s); } })()", expression)
}

type jsCompiledFormula struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (f *jsCompiledFormula) Evaluate(ctx *FormulaContext) (any, error) {
	if f.evaluator == nil {
		return nil, wrapEngineError("js", fmt.Errorf("compiled formula missing evaluator"))
	}
	return f.evaluator.run(ctx, f.expression, f.program)
}

// settingsProxy backs the env object: builtins and registered functions win
// over settings, resolved values are memoised for the lifetime of one run.
type settingsProxy struct {
	vm     *goja.Runtime
	ctx    *FormulaContext
	extras map[string]goja.Value
	memo   map[string]goja.Value
	err    error
}

func newSettingsProxy(vm *goja.Runtime, ctx *FormulaContext, registry *FunctionRegistry) *settingsProxy {
	proxy := &settingsProxy{
		vm:     vm,
		ctx:    ctx,
		extras: map[string]goja.Value{},
		memo:   map[string]goja.Value{},
	}
	for name, fn := range builtinFunctions(ctx) {
		proxy.extras[name] = vm.ToValue(fn)
	}
	merged := registry
	if merged == nil {
		merged = ctx.Functions()
	}
	if merged != nil {
		proxy.extras["call"] = vm.ToValue(func(name string, arguments ...any) (any, error) {
			return merged.Call(name, arguments...)
		})
		for _, name := range merged.Names() {
			fn := name
			proxy.extras[fn] = vm.ToValue(func(arguments ...any) (any, error) {
				return merged.Call(fn, arguments...)
			})
		}
	}
	return proxy
}

func (p *settingsProxy) Get(key string) goja.Value {
	if value, ok := p.extras[key]; ok {
		return value
	}
	if value, ok := p.memo[key]; ok {
		return value
	}
	value, err := p.ctx.Setting(key)
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		return goja.Undefined()
	}
	if value == nil {
		return goja.Undefined()
	}
	converted := p.vm.ToValue(value)
	p.memo[key] = converted
	return converted
}

func (p *settingsProxy) Set(key string, value goja.Value) bool {
	return false
}

func (p *settingsProxy) Has(key string) bool {
	if _, ok := p.extras[key]; ok {
		return true
	}
	if _, ok := p.memo[key]; ok {
		return true
	}
	value, err := p.ctx.Setting(key)
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		return false
	}
	if value == nil {
		return false
	}
	p.memo[key] = p.vm.ToValue(value)
	return true
}

func (p *settingsProxy) Delete(key string) bool {
	return false
}

func (p *settingsProxy) Keys() []string {
	keys := make([]string, 0, len(p.extras))
	for name := range p.extras {
		keys = append(keys, name)
	}
	return keys
}

func jsEvaluatorAvailable() bool {
	return true
}
