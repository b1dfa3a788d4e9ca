// Build command assembles a machine stack from a definition.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	settings "github.com/goliatone/go-settings-stack"
	"github.com/goliatone/go-settings-stack/pkg/registry"
)

var buildSave bool

var buildCmd = &cobra.Command{
	Use:   "build <definition-id>",
	Short: "Assemble a machine stack from a definition",
	Long: `Build creates a machine stack for the definition, with one linked
extruder stack per machine_extruder_trains entry. With --save the new
stacks and their user layers are written back to the data directory.

Example:
  stackctl build fdmprinter
  stackctl build fdmprinter --save`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildSave, "save", false, "write the new stacks to the data directory")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd.Context(), "")
	if err != nil {
		return err
	}
	builder := registry.NewBuilder(ws.registry, registry.BuilderWithRegistrar(ws.manager))
	machine, err := builder.BuildMachine(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("machine: %s\n", machine.ID())
	for _, position := range machine.ExtruderPositions() {
		extruder, _ := machine.Extruder(position)
		fmt.Printf("extruder %s: %s\n", position, extruder.ID())
	}
	if !buildSave {
		return nil
	}

	mime := registry.DefaultMimeDatabase()
	machineMime, _ := mime.TypeByName(registry.MimeMachineStack)
	extruderMime, _ := mime.TypeByName(registry.MimeExtruderStack)
	instanceMime, _ := mime.TypeByName(registry.MimeInstance)

	ctx := cmd.Context()
	if err := saveStack(ctx, ws, machine, &machine.Stack, machineMime, instanceMime); err != nil {
		return sysErr(err)
	}
	for _, position := range machine.ExtruderPositions() {
		extruder, _ := machine.Extruder(position)
		if err := saveStack(ctx, ws, extruder, &extruder.Stack, extruderMime, instanceMime); err != nil {
			return sysErr(err)
		}
	}
	fmt.Println("saved")
	return nil
}

func saveStack(ctx context.Context, ws *workspace, stack settings.Container, base *settings.Stack, stackMime, instanceMime registry.MimeType) error {
	if user, ok := base.UserChanges(); ok {
		data, err := user.Serialize()
		if err != nil {
			return fmt.Errorf("serialize %s: %w", user.ID(), err)
		}
		if err := ws.provider.SaveAs(ctx, user.ID(), instanceMime, data); err != nil {
			return err
		}
	}
	data, err := stack.Serialize()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", stack.ID(), err)
	}
	return ws.provider.SaveAs(ctx, stack.ID(), stackMime, data)
}
