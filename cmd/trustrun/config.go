package main

import (
	"os"

	"github.com/inconshreveable/log15"
	"gopkg.in/urfave/cli.v1"

	"github.com/trustplatform/trustrun/internal/trustconfig"
	"github.com/trustplatform/trustrun/internal/trustlog"
)

var jsonLogFlag = cli.BoolFlag{
	Name:  "json-log",
	Usage: "emit newline-delimited JSON log records instead of terminal-formatted ones",
}

var verboseFlag = cli.BoolFlag{
	Name:  "verbose",
	Usage: "lower the log level to debug",
}

// loadConfig reads the --config file given on the global flag set, or
// falls back to trustconfig.Default() if none was given.
func loadConfig(ctx *cli.Context) (trustconfig.Config, error) {
	path := ctx.GlobalString(configFileFlag.Name)
	if path == "" {
		return trustconfig.Default(), nil
	}
	return trustconfig.Load(path)
}

func newRootLogger(ctx *cli.Context) trustlog.Logger {
	lvl := log15.LvlInfo
	if ctx.Bool(verboseFlag.Name) {
		lvl = log15.LvlDebug
	}
	if ctx.Bool(jsonLogFlag.Name) {
		return trustlog.NewJSON(lvl, os.Stdout)
	}
	return trustlog.New(lvl, os.Stdout)
}

var dumpConfigCommand = cli.Command{
	Name:   "dumpconfig",
	Usage:  "show the configuration that `run` would use, in TOML",
	Action: dumpConfigAction,
}

func dumpConfigAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	out, err := trustconfig.Dump(cfg)
	if err != nil {
		return err
	}

	dst := os.Stdout
	if ctx.NArg() > 0 {
		f, err := os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}
	_, err = dst.Write(out)
	return err
}

func init() {
	runCommand.Flags = append(runCommand.Flags, jsonLogFlag, verboseFlag)
}
