package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
	merge "github.com/hanpama/gqlcoalesce/internal/merge"
)

func newMergeCmd() *cobra.Command {
	var variables []string
	var operations []string
	cmd := &cobra.Command{
		Use:   "merge <query-file>...",
		Short: "Print the composite requests built from query files",
		Long: `merge reads one GraphQL document per file, groups them by operation kind the
way a coalescing window would, and prints each composite document with its
variables and remap table.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]*graphql.Request, len(args))
			for i, path := range args {
				src, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				var vars map[string]any
				if i < len(variables) && variables[i] != "" {
					if err := json.Unmarshal([]byte(variables[i]), &vars); err != nil {
						return fmt.Errorf("variables for %s: %w", path, err)
					}
				}
				opName := ""
				if i < len(operations) {
					opName = operations[i]
				}
				req, err := graphql.NewRequest(string(src), opName, vars)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if req.Operation() == nil {
					return fmt.Errorf("%s: %w", path, merge.ErrOperationNotFound)
				}
				reqs[i] = req
			}
			return printComposites(cmd.OutOrStdout(), args, reqs)
		},
	}
	cmd.Flags().StringArrayVar(&variables, "variables", nil, "JSON variables for the file at the same position. Repeatable")
	cmd.Flags().StringArrayVar(&operations, "operation", nil, "Operation name for the file at the same position. Repeatable")
	return cmd
}

func printComposites(w io.Writer, names []string, reqs []*graphql.Request) error {
	for _, g := range merge.GroupByOperation(reqs) {
		members := make([]*graphql.Request, len(g.Members))
		for j, idx := range g.Members {
			members[j] = reqs[idx]
		}
		composite, err := merge.Merge(members)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "# %s: %d member(s)\n", g.Operation, len(members))
		fmt.Fprintln(w, language.Print(composite.Request.Document))

		vars, err := json.MarshalIndent(composite.Request.Variables, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "# variables\n%s\n", vars)

		keys := make([]string, 0, len(composite.Remap))
		for k := range composite.Remap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "# remap")
		for _, k := range keys {
			t := composite.Remap[k]
			fmt.Fprintf(w, "%s -> %s.%s\n", k, names[g.Members[t.Member]], t.Key)
		}
		fmt.Fprintln(w)
	}
	return nil
}
