// Command mnemo is a local-first personal knowledge engine.
package main

import (
	"os"

	"github.com/mnemo-labs/mnemo/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
