// Export command dumps a stack's effective settings.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	settings "github.com/goliatone/go-settings-stack"
)

var (
	exportOutput string
	exportEngine string
)

var exportCmd = &cobra.Command{
	Use:   "export <stack-id>",
	Short: "Export a stack's effective settings as YAML",
	Long: `Export resolves every setting the stack's definition declares and writes
the effective values as a YAML document. Settings that fail to resolve are
reported on stderr and left out.

Example:
  stackctl export my_printer_3f9a12bc_e0
  stackctl export my_printer_3f9a12bc -o machine.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	exportCmd.Flags().Var(newEnumStringValue(&exportEngine, "expr", "cel", "js"), "engine", "formula engine (expr, cel, js)")
}

type exportableStack interface {
	propertyResolver
	Definition() (*settings.Definition, bool)
}

func runExport(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd.Context(), exportEngine)
	if err != nil {
		return err
	}
	container, ok := ws.registry.Container(args[0])
	if !ok {
		return fmt.Errorf("unknown container %q", args[0])
	}
	stack, ok := container.(exportableStack)
	if !ok {
		return fmt.Errorf("container %q is not a stack", args[0])
	}
	def, ok := stack.Definition()
	if !ok {
		return fmt.Errorf("stack %q has no definition layer", args[0])
	}

	effective := make(map[string]any)
	for _, key := range exportKeys(container, def) {
		value, err := stack.Property(key, "value")
		if err != nil {
			fmt.Fprintf(os.Stderr, "stackctl: %s: %v\n", key, err)
			continue
		}
		if value == nil {
			continue
		}
		effective[key] = value
	}

	document := map[string]any{
		"stack":    args[0],
		"settings": effective,
	}
	output, err := yaml.Marshal(document)
	if err != nil {
		return sysErr(err)
	}

	if exportOutput == "" {
		fmt.Print(string(output))
		return nil
	}
	if err := os.WriteFile(exportOutput, output, 0o644); err != nil {
		return sysErr(err)
	}
	fmt.Printf("wrote %s\n", exportOutput)
	return nil
}

// exportKeys is the union of the stack's own definition keys and, for an
// extruder stack, the linked machine's definition keys: per-extruder
// resolution answers machine-wide settings too.
func exportKeys(container settings.Container, def *settings.Definition) []string {
	keys := def.SettingKeys()
	extruder, ok := container.(*settings.ExtruderStack)
	if !ok {
		return keys
	}
	machineDef, err := extruder.MachineDefinition()
	if err != nil {
		return keys
	}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true
	}
	for _, key := range machineDef.SettingKeys() {
		if !seen[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
