// Package utils contains internal helper functions for paymaster commands.
package utils

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/tos-network/paymaster/internal/flags"
	"github.com/tos-network/paymaster/sponsorconfig"
	"github.com/tos-network/paymaster/statestore"
)

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.PaymasterCategory,
	}
	DataDirFlag = &cli.StringFlag{
		Name:     "datadir",
		Usage:    "Directory of the local ledger database",
		Value:    sponsorconfig.Defaults.DataDir,
		Category: flags.LedgerCategory,
	}
	ChainIDFlag = &cli.Uint64Flag{
		Name:     "chainid",
		Usage:    "Chain id of the permit signing domain (overrides config)",
		Category: flags.PaymasterCategory,
	}
	VerbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value:    sponsorconfig.Defaults.LogLevel,
		Category: flags.LoggingCategory,
	}
)

// GlobalFlags are accepted by every paymaster command.
var GlobalFlags = []cli.Flag{
	ConfigFileFlag,
	DataDirFlag,
	ChainIDFlag,
	VerbosityFlag,
}

// Fatalf formats a message to standard error and exits the program.
// The message is also printed to standard output if standard error
// is redirected to a different file.
func Fatalf(format string, args ...interface{}) {
	w := io.MultiWriter(os.Stdout, os.Stderr)
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		}
	}
	fmt.Fprintf(w, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

// SetupLogging installs a terminal log handler on stderr at the level
// selected by --verbosity. Colors are used when stderr is a terminal.
func SetupLogging(ctx *cli.Context) {
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	level := log.FromLegacyLevel(ctx.Int(VerbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(output, level, usecolor)))
}

// MakeConfig loads the configuration file named by --config, if any, and
// applies command line overrides.
func MakeConfig(ctx *cli.Context) (sponsorconfig.Config, error) {
	cfg := sponsorconfig.Defaults
	if file := ctx.String(ConfigFileFlag.Name); file != "" {
		loaded, err := sponsorconfig.Load(file)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if ctx.IsSet(DataDirFlag.Name) {
		cfg.DataDir = ctx.String(DataDirFlag.Name)
	}
	if ctx.IsSet(ChainIDFlag.Name) {
		cfg.ChainID = ctx.Uint64(ChainIDFlag.Name)
	}
	if ctx.IsSet(VerbosityFlag.Name) {
		cfg.LogLevel = ctx.Int(VerbosityFlag.Name)
	}
	return cfg, cfg.Validate()
}

// OpenLedger opens the LevelDB ledger in cfg.DataDir.
func OpenLedger(cfg sponsorconfig.Config) (*statestore.Database, error) {
	return statestore.Open(cfg.DataDir)
}
