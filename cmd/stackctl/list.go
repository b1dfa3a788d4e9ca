// List command enumerates container payloads without loading them fully.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-settings-stack/pkg/registry"
)

var (
	listType string
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers in the data directory",
	Long: `List enumerates the container payloads in the data directory using their
metadata headers only. Unchanged files are served from the metadata cache
without parsing.

Example:
  stackctl list
  stackctl list --type extruder_train
  stackctl list --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "filter by container type (machine, extruder_train, ...)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	provider, dataDir, err := openProvider()
	if err != nil {
		return err
	}
	cache := openCache(dataDir)
	if cache != nil {
		defer cache.Close()
	}

	metas, err := registry.LoadMetadata(cmd.Context(), provider, nil, cache)
	if err != nil {
		return sysErr(err)
	}

	filtered := metas[:0]
	for _, meta := range metas {
		if listType != "" && meta.Type != listType {
			continue
		}
		filtered = append(filtered, meta)
	}

	if listJSON {
		output, err := json.MarshalIndent(filtered, "", "  ")
		if err != nil {
			return sysErr(err)
		}
		fmt.Println(string(output))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME")
	for _, meta := range filtered {
		fmt.Fprintf(w, "%s\t%s\t%s\n", meta.ID, meta.Type, meta.Name)
	}
	return w.Flush()
}
