package credit

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/paymaster/sysaction"
)

var (
	ErrZeroDeposit    = errors.New("credit: deposit carries no value")
	ErrInvalidPayload = errors.New("credit: invalid deposit payload")
)

func init() {
	sysaction.DefaultRegistry.Register(&handler{})
}

// handler mints credit against the value the caller escrowed with the call.
type handler struct{}

func (h *handler) CanHandle(kind sysaction.ActionKind) bool {
	switch kind {
	case sysaction.ActionCreditDeposit, sysaction.ActionCreditDepositTo:
		return true
	}
	return false
}

func (h *handler) Handle(ctx *sysaction.Context, sa *sysaction.SysAction) error {
	if ctx.Value == nil || ctx.Value.IsZero() {
		return ErrZeroDeposit
	}
	switch sa.Action {
	case sysaction.ActionCreditDeposit:
		return Mint(ctx.StateDB, ctx.From, ctx.Value)

	case sysaction.ActionCreditDepositTo:
		var p sysaction.DepositToPayload
		if err := sysaction.DecodePayload(sa, &p); err != nil {
			return ErrInvalidPayload
		}
		if !common.IsHexAddress(p.Recipient) {
			return ErrInvalidPayload
		}
		return MintTo(ctx.StateDB, ctx.From, common.HexToAddress(p.Recipient), ctx.Value)
	}
	return nil
}
