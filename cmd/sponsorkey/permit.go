package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/tos-network/paymaster/cmd/utils"
	"github.com/tos-network/paymaster/core/types"
	"github.com/tos-network/paymaster/internal/flags"
	"github.com/tos-network/paymaster/params"
	"github.com/tos-network/paymaster/permit"
)

var (
	keyFileFlag = &cli.StringFlag{
		Name:     "key",
		Usage:    "keyfile of the permit signer",
		Value:    defaultKeyfileName,
		Category: flags.PermitCategory,
	}
	opFileFlag = &cli.StringFlag{
		Name:     "op",
		Usage:    "JSON file holding the operation",
		Category: flags.PermitCategory,
	}
	sponsorFlag = &cli.StringFlag{
		Name:     "sponsor",
		Usage:    "sponsor whose credit pays (defaults to the signer)",
		Category: flags.PermitCategory,
	}
	permitNonceFlag = &cli.StringFlag{
		Name:     "nonce",
		Usage:    "permit nonce of the signer (decimal or 0x hex)",
		Category: flags.PermitCategory,
	}
	validAfterFlag = &cli.Uint64Flag{
		Name:     "valid-after",
		Usage:    "unix time the permit becomes valid",
		Category: flags.PermitCategory,
	}
	validUntilFlag = &cli.Uint64Flag{
		Name:     "valid-until",
		Usage:    "unix time the permit expires (0 = never)",
		Category: flags.PermitCategory,
	}
	typedFlag = &cli.BoolFlag{
		Name:  "typed",
		Usage: "print the EIP-712 typed data document instead of signing",
	}
)

type outputSign struct {
	Blob        string `json:"blob"`
	Signer      string `json:"signer"`
	DraftHash   string `json:"draftHash"`
	SigningHash string `json:"signingHash"`
}

var commandSign = &cli.Command{
	Name:  "sign",
	Usage: "sign a sponsor permit for an operation",
	Description: `
Compute the draft hash of the operation in --op, sign a permit over it and
print the authorization blob to place in PaymasterAndData.`,
	Flags: []cli.Flag{
		keyFileFlag,
		passphraseFlag,
		opFileFlag,
		sponsorFlag,
		permitNonceFlag,
		validAfterFlag,
		validUntilFlag,
		typedFlag,
		jsonFlag,
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := utils.MakeConfig(ctx)
		if err != nil {
			return err
		}
		op, err := readOperation(ctx.String(opFileFlag.Name))
		if err != nil {
			return err
		}
		nonce, err := parseUint256(ctx.String(permitNonceFlag.Name))
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", permitNonceFlag.Name, err)
		}
		key, err := loadKey(ctx, ctx.String(keyFileFlag.Name))
		if err != nil {
			return err
		}
		p := &permit.Permit{
			Target:             cfg.Address,
			Sponsor:            key.Address,
			Signer:             key.Address,
			Nonce:              nonce,
			ValidAfter:         ctx.Uint64(validAfterFlag.Name),
			ValidUntil:         ctx.Uint64(validUntilFlag.Name),
			DraftOperationHash: types.DraftHash(op),
		}
		if s := ctx.String(sponsorFlag.Name); s != "" {
			if p.Sponsor, err = parseAddress("sponsor", s); err != nil {
				return err
			}
		}
		if ctx.Bool(typedFlag.Name) {
			mustPrintJSON(ctx, permit.TypedData(cfg.SystemName, cfg.ChainID, cfg.Address, p))
			return nil
		}

		hash := permit.SigningHash(permit.DomainSeparator(cfg.SystemName, cfg.ChainID, cfg.Address), p)
		if p.Signature, err = permit.Sign(hash, key.PrivateKey); err != nil {
			return fmt.Errorf("failed to sign permit: %w", err)
		}
		blob, err := permit.Encode(p)
		if err != nil {
			return err
		}
		out := outputSign{
			Blob:        hexutil.Encode(blob),
			Signer:      key.Address.Hex(),
			DraftHash:   p.DraftOperationHash.Hex(),
			SigningHash: hash.Hex(),
		}
		if ctx.Bool(jsonFlag.Name) {
			mustPrintJSON(ctx, out)
		} else {
			fmt.Fprintln(ctx.App.Writer, out.Blob)
		}
		return nil
	},
}

var commandInspect = &cli.Command{
	Name:      "inspect",
	Usage:     "decode an authorization blob",
	ArgsUsage: "<blob hex>",
	Description: `
Print the fields of a PaymasterAndData blob. With --op the draft hash is
computed from the operation and the signature is checked.`,
	Flags: []cli.Flag{
		opFileFlag,
	},
	Action: func(ctx *cli.Context) error {
		blob, err := hexutil.Decode(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("invalid blob: %w", err)
		}
		if permit.IsSelfPay(blob) {
			fmt.Fprintln(ctx.App.Writer, "Self-pay, routed to", common.BytesToAddress(blob).Hex())
			return nil
		}
		p, err := permit.Parse(blob)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(ctx.App.Writer)
		table.SetHeader([]string{"Field", "Value"})
		table.SetAutoWrapText(false)
		table.Append([]string{"Target", p.Target.Hex()})
		table.Append([]string{"Sponsor", p.Sponsor.Hex()})
		table.Append([]string{"Signer", p.Signer.Hex()})
		table.Append([]string{"Nonce", p.Nonce.Dec()})
		table.Append([]string{"Valid after", formatBound(p.ValidAfter)})
		table.Append([]string{"Valid until", formatBound(p.ValidUntil)})
		table.Append([]string{"Signature", fmt.Sprintf("%d bytes", len(p.Signature))})
		if ctx.IsSet(opFileFlag.Name) {
			cfg, err := utils.MakeConfig(ctx)
			if err != nil {
				return err
			}
			op, err := readOperation(ctx.String(opFileFlag.Name))
			if err != nil {
				return err
			}
			p.DraftOperationHash = types.DraftHash(op)
			v := permit.NewVerifier(cfg.SystemName, cfg.ChainID, cfg.Address, nil, nil)
			table.Append([]string{"Draft hash", p.DraftOperationHash.Hex()})
			table.Append([]string{"Signing hash", v.SigningHash(cfg.ChainID, p).Hex()})
			table.Append([]string{"Check", verdict(v.Verify(context.Background(), cfg.ChainID, p))})
		}
		table.Render()
		return nil
	},
}

func formatBound(ts uint64) string {
	t := params.WindowTime(ts)
	if t.IsZero() {
		return fmt.Sprintf("%d (unbounded)", ts)
	}
	return fmt.Sprintf("%d (%s)", ts, t.Format(time.RFC3339))
}

func verdict(ok bool, err error) string {
	switch {
	case err != nil:
		return color.YellowString("malformed: %v", err)
	case ok:
		return color.GreenString("valid")
	}
	return color.RedString("invalid")
}

var commandDomain = &cli.Command{
	Name:  "domain",
	Usage: "print the permit signing domain",
	Action: func(ctx *cli.Context) error {
		cfg, err := utils.MakeConfig(ctx)
		if err != nil {
			return err
		}
		w := ctx.App.Writer
		fmt.Fprintln(w, "Name:              ", cfg.SystemName)
		fmt.Fprintln(w, "Chain id:          ", cfg.ChainID)
		fmt.Fprintln(w, "Verifying contract:", cfg.Address.Hex())
		fmt.Fprintln(w, "Domain separator:  ", permit.DomainSeparator(cfg.SystemName, cfg.ChainID, cfg.Address).Hex())
		fmt.Fprintln(w, "Domain typehash:   ", permit.DomainTypeHash.Hex())
		fmt.Fprintln(w, "Permit typehash:   ", permit.PermitTypeHash.Hex())
		return nil
	},
}

var commandHashOp = &cli.Command{
	Name:      "hashop",
	Usage:     "print the draft hashes of an operation",
	ArgsUsage: "<op.json>",
	Action: func(ctx *cli.Context) error {
		op, err := readOperation(ctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.App.Writer, "Packed:   ", types.DraftHash(op).Hex())
		fmt.Fprintln(ctx.App.Writer, "Component:", types.DraftComponentHash(op).Hex())
		return nil
	},
}
