package settings

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/interpreter"
)

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator. The cache
// holds parsed ASTs; programs are planned per evaluation because the builtin
// bindings close over the formula context.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// celEvaluator executes setting formulas using cel-go. Expressions are
// parsed without checking and setting keys resolve lazily through a custom
// activation, so no declaration of the full key catalog is needed.
type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx *FormulaContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEngineError("cel", fmt.Errorf("expression must not be empty"))
	}
	env, err := e.buildEnv(ctx)
	if err != nil {
		return nil, wrapFormulaError("cel", expression, "", "", err)
	}
	ast, err := e.loadOrParse(env, expression)
	if err != nil {
		return nil, wrapFormulaError("cel", expression, "", "", err)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapFormulaError("cel", expression, "", "", err)
	}
	activation := &settingActivation{ctx: ctx}
	out, _, err := program.Eval(activation)
	if err != nil {
		if activation.err != nil {
			err = activation.err
		}
		return nil, wrapFormulaError("cel", expression, "", "", err)
	}
	return out.Value(), nil
}

func (e *celEvaluator) Compile(expression string, _ ...CompileOption) (CompiledFormula, error) {
	if expression == "" {
		return nil, wrapEngineError("cel", fmt.Errorf("expression must not be empty"))
	}
	return &celCompiledFormula{
		evaluator:  e,
		expression: expression,
	}, nil
}

func (e *celEvaluator) loadOrParse(env *celgo.Env, expression string) (*celgo.Ast, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if ast, ok := cached.(*celgo.Ast); ok {
				return ast, nil
			}
		}
	}
	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if e.cache != nil {
		e.cache.Set(expression, ast)
	}
	return ast, nil
}

func (e *celEvaluator) buildEnv(ctx *FormulaContext) (*celgo.Env, error) {
	builtins := builtinFunctions(ctx)
	opts := []celgo.EnvOption{
		celgo.Function("extruderValue",
			celgo.Overload("extruder_value_dyn_string",
				[]*celgo.Type{celgo.DynType, celgo.StringType},
				celgo.DynType,
				celgo.FunctionBinding(adaptBuiltin(builtins["extruderValue"])),
			),
		),
		celgo.Function("extruderValues",
			celgo.Overload("extruder_values_string",
				[]*celgo.Type{celgo.StringType},
				celgo.ListType(celgo.DynType),
				celgo.FunctionBinding(adaptBuiltin(builtins["extruderValues"])),
			),
		),
		celgo.Function("resolveOrValue",
			celgo.Overload("resolve_or_value_string",
				[]*celgo.Type{celgo.StringType},
				celgo.DynType,
				celgo.FunctionBinding(adaptBuiltin(builtins["resolveOrValue"])),
			),
		),
		celgo.Function("defaultExtruderPosition",
			celgo.Overload("default_extruder_position",
				nil,
				celgo.StringType,
				celgo.FunctionBinding(adaptBuiltin(builtins["defaultExtruderPosition"])),
			),
		),
	}
	if callOpt := e.callFunction(ctx); callOpt != nil {
		opts = append(opts, callOpt)
	}
	return celgo.NewEnv(opts...)
}

// callFunction exposes registered helper functions as call("name", args...).
// CEL overloads are fixed arity, so a small ladder covers the useful shapes.
func (e *celEvaluator) callFunction(ctx *FormulaContext) celgo.EnvOption {
	registry := e.registry
	if registry == nil {
		registry = ctx.Functions()
	}
	if registry == nil {
		return nil
	}
	binding := func(values ...ref.Val) ref.Val {
		if len(values) == 0 {
			return types.NewErr("settings: call requires a function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("settings: call name must be a string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
	argShapes := [][]*celgo.Type{
		{celgo.StringType},
		{celgo.StringType, celgo.DynType},
		{celgo.StringType, celgo.DynType, celgo.DynType},
		{celgo.StringType, celgo.DynType, celgo.DynType, celgo.DynType},
	}
	overloads := make([]celgo.FunctionOpt, 0, len(argShapes))
	for i, args := range argShapes {
		overloads = append(overloads, celgo.Overload(
			fmt.Sprintf("call_dyn_%d", i),
			args,
			celgo.DynType,
			celgo.FunctionBinding(binding),
		))
	}
	return celgo.Function("call", overloads...)
}

func adaptBuiltin(fn func(args ...any) (any, error)) func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if fn == nil {
			return types.NewErr("settings: builtin not configured")
		}
		args := make([]any, 0, len(values))
		for _, val := range values {
			args = append(args, val.Value())
		}
		result, err := fn(args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

// settingActivation resolves identifiers to effective setting values on
// demand. Resolution errors are captured so the caller can surface them
// instead of CEL's generic attribute error.
type settingActivation struct {
	ctx *FormulaContext
	err error
}

func (a *settingActivation) ResolveName(name string) (any, bool) {
	value, err := a.ctx.Setting(name)
	if err != nil {
		if a.err == nil {
			a.err = err
		}
		return nil, false
	}
	if value == nil {
		return nil, false
	}
	return value, true
}

func (a *settingActivation) Parent() interpreter.Activation {
	return nil
}

type celCompiledFormula struct {
	evaluator  *celEvaluator
	expression string
}

func (f *celCompiledFormula) Evaluate(ctx *FormulaContext) (any, error) {
	if f.evaluator == nil {
		return nil, wrapEngineError("cel", fmt.Errorf("compiled formula missing evaluator"))
	}
	return f.evaluator.Evaluate(ctx, f.expression)
}
