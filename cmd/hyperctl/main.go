// Command hyperctl validates and inspects Hyper boot configurations and
// disk images from the host, without involving any firmware.
package main

import (
	"fmt"
	"os"

	"github.com/ultraos/hyper/internal/hyperctl/cli"
	"github.com/ultraos/hyper/internal/hyperctl/output"
)

func main() {
	if err := cli.Execute(); err != nil {
		if output.IsJSON() {
			output.PrintError(os.Stderr, "error", err.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(output.ExitError)
	}
}
