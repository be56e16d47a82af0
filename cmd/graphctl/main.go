// Command graphctl is the operator CLI for the social graph.
package main

import (
	"os"

	"github.com/alem-hub/socialgraph/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
