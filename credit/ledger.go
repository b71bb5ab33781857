package credit

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/core/vm"
)

// Ledger binds the credit functions to one StateDB so the engine can hold
// it behind an interface.
type Ledger struct {
	db vm.StateDB
}

// NewLedger returns a ledger over db.
func NewLedger(db vm.StateDB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) BalanceOf(addr common.Address) *uint256.Int { return BalanceOf(l.db, addr) }

func (l *Ledger) Mint(addr common.Address, amount *uint256.Int) error {
	return Mint(l.db, addr, amount)
}

func (l *Ledger) MintTo(depositor, recipient common.Address, amount *uint256.Int) error {
	return MintTo(l.db, depositor, recipient, amount)
}

func (l *Ledger) Burn(addr common.Address, amount *uint256.Int) error {
	return Burn(l.db, addr, amount)
}
