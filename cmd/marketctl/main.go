// Command marketctl is the command line client of the marketplace.
package main

import (
	"fmt"
	"os"

	"github.com/aristath/agrimarket/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	if !cli.Reported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
