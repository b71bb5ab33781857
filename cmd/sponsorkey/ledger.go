package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/tos-network/paymaster/cmd/utils"
	"github.com/tos-network/paymaster/credit"
	"github.com/tos-network/paymaster/delegation"
	"github.com/tos-network/paymaster/engine"
	"github.com/tos-network/paymaster/internal/flags"
	"github.com/tos-network/paymaster/nonce"
	"github.com/tos-network/paymaster/params"
	"github.com/tos-network/paymaster/statestore"
	"github.com/tos-network/paymaster/sysaction"
)

var (
	fromFlag = &cli.StringFlag{
		Name:     "from",
		Usage:    "acting identity of the system action",
		Required: true,
		Category: flags.LedgerCategory,
	}
	toFlag = &cli.StringFlag{
		Name:     "to",
		Usage:    "credit recipient (defaults to --from)",
		Category: flags.LedgerCategory,
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "escrowed value, optionally suffixed with wei, gwei or credit",
		Required: true,
		Category: flags.LedgerCategory,
	}
	delegateFlag = &cli.StringFlag{
		Name:     "delegate",
		Usage:    "identity receiving or losing signing authority",
		Required: true,
		Category: flags.LedgerCategory,
	}
	maxCostFlag = &cli.StringFlag{
		Name:     "max-cost",
		Usage:    "worst-case cost reserved by the pre-check",
		Required: true,
		Category: flags.LedgerCategory,
	}
	actualCostFlag = &cli.StringFlag{
		Name:     "actual-cost",
		Usage:    "settle with this cost after a successful pre-check",
		Category: flags.LedgerCategory,
	}
	feeRateFlag = &cli.StringFlag{
		Name:     "fee-rate",
		Usage:    "fee per gas used at settlement (defaults to maxFeePerGas)",
		Category: flags.LedgerCategory,
	}
)

// ledgerMsg is a system action call issued by the operator on behalf of
// --from.
type ledgerMsg struct {
	from  common.Address
	value *uint256.Int
	data  []byte
}

func (m *ledgerMsg) From() common.Address { return m.from }
func (m *ledgerMsg) Value() *uint256.Int  { return m.value }
func (m *ledgerMsg) Data() []byte         { return m.data }
func (m *ledgerMsg) To() *common.Address {
	to := params.SystemActionAddress
	return &to
}

// withLedger opens the configured ledger, runs fn and commits its writes if
// fn succeeds.
func withLedger(ctx *cli.Context, fn func(db *statestore.Database) error) error {
	cfg, err := utils.MakeConfig(ctx)
	if err != nil {
		return err
	}
	db, err := utils.OpenLedger(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := fn(db); err != nil {
		db.Discard()
		return err
	}
	return db.Commit()
}

func runAction(ctx *cli.Context, kind sysaction.ActionKind, payload interface{}, value *uint256.Int) error {
	from, err := parseAddress("from", ctx.String(fromFlag.Name))
	if err != nil {
		return err
	}
	data, err := sysaction.MakeSysAction(kind, payload)
	if err != nil {
		return err
	}
	return withLedger(ctx, func(db *statestore.Database) error {
		gas, err := sysaction.Execute(&ledgerMsg{from: from, value: value, data: data}, db)
		if err != nil {
			return err
		}
		log.Info("Executed system action", "action", kind, "from", from, "gas", gas)
		return nil
	})
}

var commandDeposit = &cli.Command{
	Name:  "deposit",
	Usage: "mint credit against an escrow deposit",
	Flags: []cli.Flag{fromFlag, toFlag, amountFlag},
	Action: func(ctx *cli.Context) error {
		amount, err := parseAmount(ctx.String(amountFlag.Name))
		if err != nil {
			return err
		}
		if !ctx.IsSet(toFlag.Name) {
			return runAction(ctx, sysaction.ActionCreditDeposit, nil, amount)
		}
		payload := sysaction.DepositToPayload{Recipient: ctx.String(toFlag.Name)}
		return runAction(ctx, sysaction.ActionCreditDepositTo, payload, amount)
	},
}

var commandDelegate = &cli.Command{
	Name:  "delegate",
	Usage: "authorize a delegate to sign permits for --from",
	Flags: []cli.Flag{fromFlag, delegateFlag},
	Action: func(ctx *cli.Context) error {
		payload := sysaction.DelegatePayload{Delegate: ctx.String(delegateFlag.Name)}
		return runAction(ctx, sysaction.ActionSponsorDelegate, payload, nil)
	},
}

var commandUndelegate = &cli.Command{
	Name:  "undelegate",
	Usage: "revoke a delegate of --from",
	Flags: []cli.Flag{fromFlag, delegateFlag},
	Action: func(ctx *cli.Context) error {
		payload := sysaction.DelegatePayload{Delegate: ctx.String(delegateFlag.Name)}
		return runAction(ctx, sysaction.ActionSponsorUndelegate, payload, nil)
	},
}

var commandBalance = &cli.Command{
	Name:      "balance",
	Usage:     "print the credit balance of an identity",
	ArgsUsage: "<address>",
	Action: func(ctx *cli.Context) error {
		addr, err := parseAddress("identity", ctx.Args().First())
		if err != nil {
			return err
		}
		return withLedger(ctx, func(db *statestore.Database) error {
			w := ctx.App.Writer
			fmt.Fprintln(w, "Balance:     ", credit.BalanceOf(db, addr).Dec())
			fmt.Fprintln(w, "Escrowed:    ", credit.EscrowedBy(db, addr).Dec())
			fmt.Fprintln(w, "Total supply:", credit.TotalSupply(db).Dec())
			return db.Error()
		})
	},
}

var commandDelegates = &cli.Command{
	Name:      "delegates",
	Usage:     "list the delegates a sponsor ever authorized",
	ArgsUsage: "<sponsor>",
	Action: func(ctx *cli.Context) error {
		sponsor, err := parseAddress("sponsor", ctx.Args().First())
		if err != nil {
			return err
		}
		return withLedger(ctx, func(db *statestore.Database) error {
			table := tablewriter.NewWriter(ctx.App.Writer)
			table.SetHeader([]string{"Delegate", "Active"})
			for _, d := range delegation.Delegates(db, sponsor) {
				table.Append([]string{d.Hex(), strconv.FormatBool(delegation.IsDelegated(db, sponsor, d))})
			}
			table.Render()
			return db.Error()
		})
	},
}

var commandNonce = &cli.Command{
	Name:      "nonce",
	Usage:     "report whether a signer has consumed a permit nonce",
	ArgsUsage: "<signer> <nonce>",
	Action: func(ctx *cli.Context) error {
		signer, err := parseAddress("signer", ctx.Args().Get(0))
		if err != nil {
			return err
		}
		n, err := parseUint256(ctx.Args().Get(1))
		if err != nil {
			return fmt.Errorf("invalid nonce: %w", err)
		}
		return withLedger(ctx, func(db *statestore.Database) error {
			fmt.Fprintln(ctx.App.Writer, "Consumed:", nonce.IsConsumed(db, signer, n))
			return db.Error()
		})
	},
}

var commandSimulate = &cli.Command{
	Name:  "simulate",
	Usage: "run the pre-check (and optionally settlement) on the local ledger",
	Description: `
Replays the entry point's view of an operation: the pre-check consumes the
permit nonce and reports the payer and validity, and --actual-cost settles the
charge. Writes are committed even when the signature check fails, like on
chain.`,
	Flags: []cli.Flag{opFileFlag, maxCostFlag, actualCostFlag, feeRateFlag, jsonFlag},
	Action: func(ctx *cli.Context) error {
		cfg, err := utils.MakeConfig(ctx)
		if err != nil {
			return err
		}
		op, err := readOperation(ctx.String(opFileFlag.Name))
		if err != nil {
			return err
		}
		maxCost, err := parseAmount(ctx.String(maxCostFlag.Name))
		if err != nil {
			return err
		}
		return withLedger(ctx, func(db *statestore.Database) error {
			e := engine.NewFromState(cfg.EngineConfig(), db, nil)
			res, err := e.PreCheck(context.Background(), cfg.EntryPoint, op, maxCost)
			if err != nil {
				return fmt.Errorf("pre-check rejected (%s): %w", engine.ReasonCode(err), err)
			}
			out := map[string]interface{}{
				"payer":      res.Payer,
				"mode":       res.Mode.String(),
				"required":   res.Required.Dec(),
				"sigFailed":  res.Validation.SigFailed,
				"validAfter": res.Validation.ValidAfter,
				"validUntil": res.Validation.ValidUntil,
				"token":      hexutil.Bytes(res.Token),
			}
			if ctx.IsSet(actualCostFlag.Name) && !res.Validation.SigFailed {
				actual, err := parseAmount(ctx.String(actualCostFlag.Name))
				if err != nil {
					return err
				}
				rate := op.MaxFeePerGas
				if ctx.IsSet(feeRateFlag.Name) {
					if rate, err = parseAmount(ctx.String(feeRateFlag.Name)); err != nil {
						return err
					}
				}
				s, err := e.Settle(cfg.EntryPoint, res.Token, actual, rate)
				if err != nil {
					return fmt.Errorf("settlement rejected (%s): %w", engine.ReasonCode(err), err)
				}
				out["charged"] = s.Charged.Dec()
			}
			if ctx.Bool(jsonFlag.Name) {
				mustPrintJSON(ctx, out)
				return db.Error()
			}
			table := tablewriter.NewWriter(ctx.App.Writer)
			table.SetHeader([]string{"Field", "Value"})
			table.SetAutoWrapText(false)
			for _, k := range []string{"payer", "mode", "required", "sigFailed", "validAfter", "validUntil", "charged"} {
				if v, ok := out[k]; ok {
					table.Append([]string{k, fmt.Sprint(v)})
				}
			}
			table.Render()
			return db.Error()
		})
	},
}
