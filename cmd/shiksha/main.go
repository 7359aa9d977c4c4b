// Command shiksha records learning progress on the device and keeps it in
// sync with the backend.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/shiksha/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
