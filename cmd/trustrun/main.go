// Command trustrun hosts a trustrun bytecode module: it loads the module
// and configuration, runs the cyclic scheduler, and serves the control/
// debug plane, per spec.md §6's exit-code contract.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"
)

// Exit codes, normative per spec.md §6.
const (
	exitOK                  = 0
	exitFaultAtStartup      = 1
	exitInvalidConfig       = 2
	exitUnresolvedWildcards = 3
	exitControlAuthMissing  = 4
)

var (
	gitCommit = ""
	gitDate   = ""
)

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

func main() {
	app := cli.NewApp()
	app.Name = "trustrun"
	app.Usage = "cyclic Structured Text runtime core"
	app.Version = fmt.Sprintf("0.1.0-%s-%s", gitCommit, gitDate)
	app.Flags = []cli.Flag{configFileFlag}
	app.Commands = []cli.Command{
		runCommand,
		dumpConfigCommand,
		statusCommand,
	}
	app.Action = runAction

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitFaultAtStartup)
	}
}
