// c3-scripts verifies, builds and serves form-field component projects.
package main

import (
	"os"

	"github.com/snowball-c3/c3-scripts/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
