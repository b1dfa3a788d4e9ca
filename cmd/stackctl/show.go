// Show command prints one container in detail.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	settings "github.com/goliatone/go-settings-stack"
)

var showCmd = &cobra.Command{
	Use:   "show <container-id>",
	Short: "Show one container's metadata and structure",
	Long: `Show loads the data directory and prints the requested container: its
metadata, and depending on the kind, its layers, settings or values.

Example:
  stackctl show my_printer_3f9a12bc
  stackctl show fdmprinter`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd.Context(), "")
	if err != nil {
		return err
	}
	container, ok := ws.registry.Container(args[0])
	if !ok {
		return fmt.Errorf("unknown container %q", args[0])
	}

	fmt.Printf("id:   %s\n", container.ID())
	fmt.Printf("name: %s\n", container.Name())
	printMetadata(container)

	switch typed := container.(type) {
	case *settings.MachineStack:
		printLayers(&typed.Stack)
		if positions := typed.ExtruderPositions(); len(positions) > 0 {
			fmt.Printf("extruders: %s\n", strings.Join(positions, ", "))
		}
	case *settings.ExtruderStack:
		printLayers(&typed.Stack)
		if machine := typed.NextStack(); machine != nil {
			fmt.Printf("machine: %s\n", machine.ID())
		} else {
			fmt.Println("machine: (not linked)")
		}
	case *settings.Stack:
		printLayers(typed)
	case *settings.Definition:
		keys := typed.SettingKeys()
		fmt.Printf("settings: %d\n", len(keys))
	case *settings.Instance:
		printValues(typed)
	}
	return nil
}

func printMetadata(container settings.Container) {
	metadata := container.Metadata()
	if metadata.Len() == 0 {
		return
	}
	fmt.Println("metadata:")
	for _, key := range metadata.Keys() {
		fmt.Printf("  %s: %s\n", key, metadata.Get(key, ""))
	}
}

func printLayers(stack *settings.Stack) {
	containers := stack.Containers()
	if len(containers) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LAYER\tID\tTYPE")
	for i, layer := range containers {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, layer.ID(), layer.MetaDataEntry("type", ""))
	}
	w.Flush()
}

func printValues(instance *settings.Instance) {
	keys := instance.Keys()
	if len(keys) == 0 {
		return
	}
	fmt.Println("values:")
	for _, key := range keys {
		if value, ok := instance.RawProperty(key, "value"); ok {
			fmt.Printf("  %s: %v\n", key, value)
		}
	}
}
