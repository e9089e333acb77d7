// Command varsd runs the variable engine as a long-lived process with
// configuration-backed variables and a metrics endpoint.
package main

import (
	"os"

	"github.com/go-drift/reactive/cmd/varsd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
