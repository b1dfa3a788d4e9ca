// Resolve command answers effective setting values through a stack.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	settings "github.com/goliatone/go-settings-stack"
)

var (
	resolveProperty string
	resolveTrace    bool
	resolveEngine   string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <stack-id> <setting-key>",
	Short: "Resolve a setting's effective value through a stack",
	Long: `Resolve loads the data directory, finds the stack and resolves the
setting through its layers: per-extruder settability, redirections and
formulas included.

Example:
  stackctl resolve my_printer_3f9a12bc_e0 wall_thickness
  stackctl resolve my_printer_3f9a12bc_e0 wall_thickness --trace
  stackctl resolve my_printer_3f9a12bc layer_height --property label --engine cel`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveProperty, "property", "value", "property to resolve (value, label, ...)")
	resolveCmd.Flags().BoolVar(&resolveTrace, "trace", false, "print the resolution steps")
	resolveCmd.Flags().Var(newEnumStringValue(&resolveEngine, "expr", "cel", "js"), "engine", "formula engine (expr, cel, js)")
}

// propertyResolver is satisfied by every stack kind.
type propertyResolver interface {
	Property(key, property string) (any, error)
	PropertyWithTrace(key, property string) (any, *settings.Trace, error)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd.Context(), resolveEngine)
	if err != nil {
		return err
	}
	container, ok := ws.registry.Container(args[0])
	if !ok {
		return fmt.Errorf("unknown container %q", args[0])
	}
	stack, ok := container.(propertyResolver)
	if !ok {
		return fmt.Errorf("container %q is not a stack", args[0])
	}

	key := args[1]
	if !resolveTrace {
		value, err := stack.Property(key, resolveProperty)
		if err != nil {
			return err
		}
		fmt.Printf("%v\n", value)
		return nil
	}

	value, trace, err := stack.PropertyWithTrace(key, resolveProperty)
	if err != nil {
		return err
	}
	fmt.Printf("%v\n", value)
	for i, step := range trace.Steps {
		fmt.Printf("  %2d %-10s stack=%s container=%s", i, step.Action, step.StackID, step.ContainerID)
		if step.Found {
			fmt.Printf(" value=%v", step.Value)
		} else if step.Value != nil {
			fmt.Printf(" target=%v", step.Value)
		}
		fmt.Println()
	}
	return nil
}
