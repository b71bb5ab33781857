package delegation

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/paymaster/sysaction"
)

var (
	ErrInvalidPayload = errors.New("delegation: invalid delegate payload")
	ErrNonZeroValue   = errors.New("delegation: delegation actions do not accept value")
)

func init() {
	sysaction.DefaultRegistry.Register(&handler{})
}

// handler applies delegation changes on behalf of ctx.From, which is always
// the sponsor whose outbound entries are touched.
type handler struct{}

func (h *handler) CanHandle(kind sysaction.ActionKind) bool {
	switch kind {
	case sysaction.ActionSponsorDelegate, sysaction.ActionSponsorUndelegate:
		return true
	}
	return false
}

func (h *handler) Handle(ctx *sysaction.Context, sa *sysaction.SysAction) error {
	if ctx.Value != nil && !ctx.Value.IsZero() {
		return ErrNonZeroValue
	}
	var p sysaction.DelegatePayload
	if err := sysaction.DecodePayload(sa, &p); err != nil {
		return ErrInvalidPayload
	}
	if !common.IsHexAddress(p.Delegate) {
		return ErrInvalidPayload
	}
	delegate := common.HexToAddress(p.Delegate)

	switch sa.Action {
	case sysaction.ActionSponsorDelegate:
		return Delegate(ctx.StateDB, ctx.From, delegate)
	case sysaction.ActionSponsorUndelegate:
		return Undelegate(ctx.StateDB, ctx.From, delegate)
	}
	return nil
}
