// Shared workspace plumbing for the stackctl subcommands.
package main

import (
	"context"
	"fmt"
	"os"

	settings "github.com/goliatone/go-settings-stack"
	"github.com/goliatone/go-settings-stack/pkg/extruders"
	"github.com/goliatone/go-settings-stack/pkg/registry"
)

// workspace bundles everything a fully loaded command needs.
type workspace struct {
	registry *registry.Registry
	provider *registry.FileProvider
	manager  *extruders.Manager
	results  []registry.LoadResult
}

func openProvider() (*registry.FileProvider, string, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, "", sysErr(err)
	}
	if _, err := os.Stat(dataDir); err != nil {
		return nil, "", sysErr(fmt.Errorf("data directory %q: %w", dataDir, err))
	}
	return registry.NewFileProvider(dataDir, nil), dataDir, nil
}

func openCache(dataDir string) *registry.MetadataCache {
	path := resolveCachePath(dataDir)
	if path == "" {
		return nil
	}
	cache, err := registry.OpenMetadataCache(path)
	if err != nil {
		// A broken cache degrades to full parsing, it never blocks.
		fmt.Fprintln(os.Stderr, "stackctl: metadata cache unavailable:", err)
		return nil
	}
	return cache
}

// loadWorkspace reads every container in the data directory into a fresh
// registry, re-linking extruder stacks to their machines on the way.
func loadWorkspace(ctx context.Context, engine string) (*workspace, error) {
	provider, _, err := openProvider()
	if err != nil {
		return nil, err
	}
	evaluator, err := buildEvaluator(engine)
	if err != nil {
		return nil, err
	}
	manager := extruders.NewManager()
	reg := registry.New()
	if err := reg.AddEmptyContainers(); err != nil {
		return nil, sysErr(err)
	}
	results, err := reg.LoadAll(ctx, provider, nil,
		settings.WithEvaluator(evaluator),
		settings.WithExtruderRegistrar(manager),
	)
	if err != nil {
		return nil, sysErr(err)
	}
	for _, result := range results {
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "stackctl: skipped %s: %v\n", result.Path, result.Err)
		}
	}
	return &workspace{registry: reg, provider: provider, manager: manager, results: results}, nil
}

// buildEvaluator constructs the selected formula engine with a shared
// program cache and an empty custom-function registry.
func buildEvaluator(engine string) (settings.Evaluator, error) {
	cache := settings.NewMemoryProgramCache()
	functions := settings.NewFunctionRegistry()
	if engine == "" {
		engine = configEngine
	}
	switch engine {
	case "", "expr":
		return settings.NewExprEvaluator(
			settings.ExprWithProgramCache(cache),
			settings.ExprWithFunctionRegistry(functions),
		), nil
	case "cel":
		return settings.NewCELEvaluator(
			settings.CELWithProgramCache(cache),
			settings.CELWithFunctionRegistry(functions),
		), nil
	case "js":
		evaluator := settings.NewJSEvaluator(
			settings.JSWithProgramCache(cache),
			settings.JSWithFunctionRegistry(functions),
		)
		if evaluator == nil {
			return nil, fmt.Errorf("js engine requires a build with the js_eval tag")
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (expected expr, cel or js)", engine)
	}
}
