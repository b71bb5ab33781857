package sysaction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/core/vm"
	"github.com/tos-network/paymaster/params"
)

// Context carries information available to a system-action handler.
type Context struct {
	// From is the verified caller. Handlers treat it as the acting identity.
	From common.Address
	// Value is the amount the caller moved into escrow with this call.
	Value   *uint256.Int
	StateDB vm.StateDB
}

// Handler is implemented by the credit and delegation sub-systems.
type Handler interface {
	CanHandle(kind ActionKind) bool
	Handle(ctx *Context, sa *SysAction) error
}

// Registry holds registered handlers.
type Registry struct{ handlers []Handler }

// DefaultRegistry is the process-wide handler registry.
var DefaultRegistry = &Registry{}

// Register adds a handler to the registry.
func (r *Registry) Register(h Handler) { r.handlers = append(r.handlers, h) }

// Msg is the minimal message interface for Execute.
type Msg interface {
	From() common.Address
	To() *common.Address
	Value() *uint256.Int
	Data() []byte
}

// Execute processes a system action from msg and dispatches to a registered
// handler. Returns (gasUsed, error).
func Execute(msg Msg, db vm.StateDB) (uint64, error) {
	if to := msg.To(); to == nil || *to != params.SystemActionAddress {
		return 0, fmt.Errorf("%w: not addressed to %s", ErrInvalidSysAction, params.SystemActionAddress)
	}
	ctx := &Context{
		From:    msg.From(),
		Value:   msg.Value(),
		StateDB: db,
	}
	return params.SysActionGas, ExecuteWithContext(ctx, msg.Data())
}

// ExecuteWithContext dispatches using a pre-built Context.
func ExecuteWithContext(ctx *Context, data []byte) error {
	sa, err := Decode(data)
	if err != nil {
		return err
	}
	for _, h := range DefaultRegistry.handlers {
		if h.CanHandle(sa.Action) {
			return h.Handle(ctx, sa)
		}
	}
	return fmt.Errorf("unknown system action: %q", sa.Action)
}
