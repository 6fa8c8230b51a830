// Command gqlcoalesce runs a GraphQL endpoint that coalesces concurrent
// requests into composite requests against one remote schema.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
