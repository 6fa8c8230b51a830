package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gqlcoalesce",
		Short: "Coalesce concurrent GraphQL requests into composite remote requests",
		Long: `gqlcoalesce sits in front of a remote GraphQL schema. Queries and mutations
arriving within one coalescing window are merged into a single request per
operation kind, and each caller receives exactly its own result.`,
		SilenceUsage: true,
		Example: `  # Serve with a config file
  gqlcoalesce serve --config gqlcoalesce.yaml

  # Serve against a remote endpoint with a 5ms window
  gqlcoalesce serve --remote http://users:4000/graphql --window 5ms

  # Show how two queries would be merged
  gqlcoalesce merge a.graphql b.graphql`,
	}
	root.AddCommand(newServeCmd(), newMergeCmd())
	return root
}
