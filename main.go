// radon is the command-line interface to the kernel simulation: a
// capability-based microkernel, its scheduler, and the bootstrap/name-
// server/namespace services that sit above it.
package main

import (
	"context"
	"os"

	"github.com/lihanrui2913/radon-os-sub001/internal/cli"
	"github.com/lihanrui2913/radon-os-sub001/internal/cli/cmd"
)

var (
	commands = []cli.Command{
		cmd.Boot(),
	}
)

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
