package main

import (
	"fmt"
	"os"

	"github.com/mkrall/janus/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "janus: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
