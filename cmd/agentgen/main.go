package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/agentgen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentgen:", err)
		os.Exit(cli.ExitCode(err))
	}
}
