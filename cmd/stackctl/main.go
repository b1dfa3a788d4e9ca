// Package main provides the stackctl CLI: inspect container payloads on
// disk, assemble machine and extruder stacks, and resolve effective
// setting values through the layered stacks.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stackctl:", err)
		var sys *systemError
		if errors.As(err, &sys) {
			os.Exit(exitSysError)
		}
		os.Exit(exitUserError)
	}
	os.Exit(exitSuccess)
}

// systemError marks failures of the environment (config, IO, cache)
// rather than of the request, so main can pick the exit code.
type systemError struct {
	err error
}

func (e *systemError) Error() string { return e.err.Error() }
func (e *systemError) Unwrap() error { return e.err }

func sysErr(err error) error {
	if err == nil {
		return nil
	}
	return &systemError{err: err}
}

var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "stackctl inspects and resolves layered setting stacks",
	Long: `stackctl reads setting containers (definitions, instances, machine and
extruder stacks) from a data directory, links them, and answers questions
about them: which containers exist, how a stack is layered, and what the
effective value of a setting is once layer order, per-extruder settability
and redirections are applied.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadWorkspaceConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: $(CWD)/.stackctl)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "container data directory (default: $(CWD)/stacks)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "skip the metadata cache")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(buildCmd)
}
