package settings

import (
	"fmt"
	"sort"
	"strings"
)

// Formula is a computed setting value. Instance files mark formulas with a
// leading "=", definitions carry them in value, resolve and
// limit_to_extruder entries. The expression itself is stored without the
// marker.
type Formula struct {
	expression string
}

// NewFormula wraps a bare expression.
func NewFormula(expression string) *Formula {
	return &Formula{expression: strings.TrimSpace(expression)}
}

// ParseFormula interprets raw instance-file syntax: a leading "=" makes the
// rest a formula, anything else is nil and the caller keeps the literal.
func ParseFormula(raw string) *Formula {
	if !strings.HasPrefix(raw, "=") {
		return nil
	}
	return NewFormula(strings.TrimPrefix(raw, "="))
}

// Expression returns the expression without the "=" marker.
func (f *Formula) Expression() string {
	if f == nil {
		return ""
	}
	return f.expression
}

// String renders the instance-file form.
func (f *Formula) String() string {
	if f == nil {
		return ""
	}
	return "=" + f.expression
}

// UsedKeys lists the setting keys the expression references, parsed with the
// default engine's grammar.
func (f *Formula) UsedKeys() ([]string, error) {
	if f == nil || f.expression == "" {
		return nil, nil
	}
	return usedSettingKeys(f.expression)
}

// FormulaContext is handed to formula engines. It resolves referenced
// settings through the full per-stack algorithm of the stack the query
// entered through, and exposes the extruder builtins.
type FormulaContext struct {
	resolver  propertyResolver
	machine   *MachineStack
	position  string
	functions *FunctionRegistry
	rc        *resolveContext
}

// Setting resolves the effective value of another setting key.
func (ctx *FormulaContext) Setting(name string) (any, error) {
	if ctx == nil || ctx.resolver == nil {
		return nil, fmt.Errorf("settings: formula context has no resolver")
	}
	return ctx.resolver.resolveProperty(name, "value", ctx.ensureContext())
}

// Position returns the position metadata of the extruder the formula runs
// for, or "" on a machine stack.
func (ctx *FormulaContext) Position() string {
	if ctx == nil {
		return ""
	}
	return ctx.position
}

// Functions exposes the registered helper functions, possibly nil.
func (ctx *FormulaContext) Functions() *FunctionRegistry {
	if ctx == nil {
		return nil
	}
	return ctx.functions
}

// ExtruderValue returns key's value on the extruder at position, falling
// back to the machine-wide value when no extruder claims the position.
func (ctx *FormulaContext) ExtruderValue(position, key string) (any, error) {
	machine, err := ctx.requireMachine()
	if err != nil {
		return nil, err
	}
	if extruder, ok := machine.Extruder(positionString(position)); ok {
		return extruder.resolveProperty(key, "value", ctx.ensureContext())
	}
	return machine.resolveProperty(key, "value", ctx.ensureContext())
}

// ExtruderValues returns key's value for every extruder, ordered by
// position.
func (ctx *FormulaContext) ExtruderValues(key string) ([]any, error) {
	machine, err := ctx.requireMachine()
	if err != nil {
		return nil, err
	}
	positions := machine.ExtruderPositions()
	values := make([]any, 0, len(positions))
	for _, position := range positions {
		extruder, _ := machine.Extruder(position)
		value, err := extruder.resolveProperty(key, "value", ctx.ensureContext())
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// ResolveOrValue returns the machine-wide value of key, honouring the
// machine's resolve entries.
func (ctx *FormulaContext) ResolveOrValue(key string) (any, error) {
	machine, err := ctx.requireMachine()
	if err != nil {
		return nil, err
	}
	return machine.resolveProperty(key, "value", ctx.ensureContext())
}

// DefaultExtruderPosition reports the machine's default extruder position,
// "0" unless overridden by metadata.
func (ctx *FormulaContext) DefaultExtruderPosition() string {
	if ctx == nil || ctx.machine == nil {
		return "0"
	}
	return ctx.machine.MetaDataEntry("default_extruder_position", "0")
}

func (ctx *FormulaContext) requireMachine() (*MachineStack, error) {
	if ctx == nil || ctx.machine == nil {
		return nil, fmt.Errorf("settings: formula requires a linked machine stack")
	}
	return ctx.machine, nil
}

func (ctx *FormulaContext) ensureContext() *resolveContext {
	if ctx.rc == nil {
		ctx.rc = newResolveContext()
	}
	return ctx.rc
}

// builtinNames lists the functions every engine env exposes in addition to
// the registered helper functions.
func builtinNames() []string {
	return []string{"extruderValue", "extruderValues", "resolveOrValue", "defaultExtruderPosition"}
}

// builtinFunctions binds the extruder builtins to ctx so engines can drop
// them into their environments.
func builtinFunctions(ctx *FormulaContext) map[string]func(args ...any) (any, error) {
	return map[string]func(args ...any) (any, error){
		"extruderValue": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("settings: extruderValue expects (position, key), got %d args", len(args))
			}
			key, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("settings: extruderValue key must be a string")
			}
			return ctx.ExtruderValue(positionString(args[0]), key)
		},
		"extruderValues": func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("settings: extruderValues expects (key), got %d args", len(args))
			}
			key, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("settings: extruderValues key must be a string")
			}
			return ctx.ExtruderValues(key)
		},
		"resolveOrValue": func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("settings: resolveOrValue expects (key), got %d args", len(args))
			}
			key, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("settings: resolveOrValue key must be a string")
			}
			return ctx.ResolveOrValue(key)
		},
		"defaultExtruderPosition": func(args ...any) (any, error) {
			if len(args) != 0 {
				return nil, fmt.Errorf("settings: defaultExtruderPosition takes no args")
			}
			return ctx.DefaultExtruderPosition(), nil
		},
	}
}

// propertyResolver is the internal resolution surface shared by all stack
// kinds; rc threads the guard state of one public query.
type propertyResolver interface {
	PropertyResolver
	resolveProperty(key, property string, rc *resolveContext) (any, error)
}

// resolveContext carries loop guards and optional trace collection across
// one public resolution call, including hops to parents and siblings.
type resolveContext struct {
	visitedPositions map[string]bool
	formulaKeys      map[string]bool
	resolvingKeys    map[string]bool
	trace            *Trace
}

func newResolveContext() *resolveContext {
	return &resolveContext{
		visitedPositions: map[string]bool{},
		formulaKeys:      map[string]bool{},
		resolvingKeys:    map[string]bool{},
	}
}

func (rc *resolveContext) enterFormula(key string) bool {
	if rc.formulaKeys[key] {
		return false
	}
	rc.formulaKeys[key] = true
	return true
}

func (rc *resolveContext) leaveFormula(key string) {
	delete(rc.formulaKeys, key)
}

// visitPosition marks a redirection hop for key. The set is scoped per key:
// one query may legitimately cross the same positions for different keys,
// but the same key returning to a position is a loop.
func (rc *resolveContext) visitPosition(key, position string) {
	rc.visitedPositions[key+"\x00"+position] = true
}

func (rc *resolveContext) positionVisited(key, position string) bool {
	return rc.visitedPositions[key+"\x00"+position]
}

// sortedPositions orders extruder positions numerically when possible,
// lexically otherwise.
func sortedPositions(positions []string) []string {
	out := make([]string, len(positions))
	copy(out, positions)
	sort.Slice(out, func(i, j int) bool {
		a, errA := parsePosition(out[i])
		b, errB := parsePosition(out[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

func parsePosition(position string) (int, error) {
	var value int
	_, err := fmt.Sscanf(position, "%d", &value)
	return value, err
}
