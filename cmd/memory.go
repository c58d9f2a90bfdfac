package cmd

import (
	"fmt"
	"sort"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/antonkk/formpilot/internal/observability"
)

// newMemoryCmd creates the `memory` command group for inspecting the learned
// answer store.
func newMemoryCmd() *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the learned answer store",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List learned answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, observability.GetLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			entries := store.GetAll()
			keys := make([]string, 0, len(entries))
			for key := range entries {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			for _, key := range keys {
				entry := entries[key]
				fmt.Fprintf(cmd.OutOrStdout(), "%-60s %-30s %s\n", entry.Key, entry.Answer, entry.Origin)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries\n", len(entries))
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export learned answers as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, observability.GetLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			out, err := json.MarshalIndent(store.GetAll(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	memoryCmd.AddCommand(listCmd)
	memoryCmd.AddCommand(exportCmd)
	return memoryCmd
}
