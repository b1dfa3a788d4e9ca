package settings

import (
	"github.com/goliatone/go-settings-stack/pkg/events"
)

// PropertyResolver resolves a setting key to the effective value of one of
// its properties. Both stack kinds implement it. Absence is reported as a
// nil value with a nil error.
type PropertyResolver interface {
	Property(key, property string) (any, error)
}

// StackFinder locates container stacks by identifier, usually backed by a
// container registry. Matches keep registry insertion order.
type StackFinder interface {
	FindContainerStacks(id string) []Container
}

// ExtruderRegistrar tracks which extruder stacks belong to which machine for
// components that need machine-scoped lookups without holding the stacks
// themselves.
type ExtruderRegistrar interface {
	RegisterExtruder(extruder *ExtruderStack, machineID string)
}

// ContainerLookup resolves container ids while deserializing a stack.
type ContainerLookup interface {
	Container(id string) (Container, bool)
}

// DefinitionLoader resolves definition ids when walking inheritance chains.
type DefinitionLoader interface {
	Definition(id string) (*Definition, bool)
}

// Evaluator executes setting formulas against a formula context.
type Evaluator interface {
	Evaluate(ctx *FormulaContext, expression string) (any, error)
	Compile(expression string, opts ...CompileOption) (CompiledFormula, error)
}

// CompiledFormula represents a reusable formula program.
type CompiledFormula interface {
	Evaluate(ctx *FormulaContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

type Option func(*stackConfig)

type stackConfig struct {
	name         string
	metadata     []metadataPair
	containers   []Container
	evaluator    Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry
	logger       FormulaLogger
	finder       StackFinder
	registrar    ExtruderRegistrar
	lookup       ContainerLookup
	definitions  DefinitionLoader
	eventHooks   events.Hooks
}

type metadataPair struct {
	key   string
	value string
}

func applyOptions(opts []Option) stackConfig {
	cfg := stackConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithName sets the human readable name of a container or stack.
func WithName(name string) Option {
	return func(cfg *stackConfig) {
		cfg.name = name
	}
}

// WithMetadataEntry seeds a metadata entry at construction time. Entries are
// applied in the order the options appear.
func WithMetadataEntry(key, value string) Option {
	return func(cfg *stackConfig) {
		cfg.metadata = append(cfg.metadata, metadataPair{key: key, value: value})
	}
}

// WithContainers seeds the layer list, strongest layer first.
func WithContainers(containers ...Container) Option {
	return func(cfg *stackConfig) {
		cfg.containers = append(cfg.containers, containers...)
	}
}

// WithEvaluator configures the formula engine. When omitted the expr engine
// is constructed lazily on first use.
func WithEvaluator(evaluator Evaluator) Option {
	return func(cfg *stackConfig) {
		cfg.evaluator = evaluator
	}
}

// WithProgramCache configures compiled formula caching.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *stackConfig) {
		cfg.programCache = cache
	}
}

// WithFormulaLogger configures formula evaluation logging.
func WithFormulaLogger(logger FormulaLogger) Option {
	return func(cfg *stackConfig) {
		cfg.logger = logger
	}
}

// WithStackFinder configures the finder used to re-link a deserialized
// extruder stack to its machine.
func WithStackFinder(finder StackFinder) Option {
	return func(cfg *stackConfig) {
		cfg.finder = finder
	}
}

// WithExtruderRegistrar configures the tracker notified when an extruder
// stack links to a machine.
func WithExtruderRegistrar(registrar ExtruderRegistrar) Option {
	return func(cfg *stackConfig) {
		cfg.registrar = registrar
	}
}

// WithContainerLookup configures container id resolution for stack
// deserialization.
func WithContainerLookup(lookup ContainerLookup) Option {
	return func(cfg *stackConfig) {
		cfg.lookup = lookup
	}
}

// WithDefinitionLoader configures definition id resolution for inheritance
// chains.
func WithDefinitionLoader(loader DefinitionLoader) Option {
	return func(cfg *stackConfig) {
		cfg.definitions = loader
	}
}

// WithEventHooks registers lifecycle hooks notified on linking and setting
// changes.
func WithEventHooks(hooks ...events.Hook) Option {
	return func(cfg *stackConfig) {
		cfg.eventHooks = append(cfg.eventHooks, hooks...)
	}
}
