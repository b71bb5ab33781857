// Command sponsorkey manages sponsor signing keys, issues and inspects
// permits, and drives a local paymaster ledger.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tos-network/paymaster/cmd/utils"
	"github.com/tos-network/paymaster/internal/flags"
)

const (
	defaultKeyfileName = "keyfile.json"
)

// Git SHA1 commit hash of the release (set via linker flags)
var gitCommit = ""
var gitDate = ""

var app *cli.App

func init() {
	app = flags.NewApp(gitCommit, gitDate, "a paymaster sponsor key and permit tool")
	app.Flags = utils.GlobalFlags
	app.Before = func(ctx *cli.Context) error {
		utils.SetupLogging(ctx)
		return nil
	}
	app.Commands = []*cli.Command{
		commandGenerate,
		commandSign,
		commandInspect,
		commandDomain,
		commandHashOp,
		commandDeposit,
		commandBalance,
		commandDelegate,
		commandUndelegate,
		commandDelegates,
		commandNonce,
		commandSimulate,
	}
}

// Commonly used command line flags.
var (
	passphraseFlag = &cli.StringFlag{
		Name:     "passwordfile",
		Usage:    "the file that contains the password for the keyfile",
		Category: flags.PermitCategory,
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "output JSON instead of human-readable format",
	}
)

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustPrintJSON(ctx *cli.Context, jsonObject interface{}) {
	str, err := json.MarshalIndent(jsonObject, "", "  ")
	if err != nil {
		utils.Fatalf("Failed to marshal JSON object: %v", err)
	}
	fmt.Fprintln(ctx.App.Writer, string(str))
}
