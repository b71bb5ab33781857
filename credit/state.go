package credit

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/core/vm"
	"github.com/tos-network/paymaster/params"
)

// accountSlot hashes (addr[20B] || 0x00 || field) for a per-account slot.
func accountSlot(addr common.Address, field string) common.Hash {
	key := make([]byte, 0, common.AddressLength+1+len(field))
	key = append(key, addr.Bytes()...)
	key = append(key, 0x00)
	key = append(key, field...)
	return crypto.Keccak256Hash(key)
}

var (
	totalSupplySlot = crypto.Keccak256Hash([]byte("paymaster\x00credit\x00totalSupply"))
	totalMintedSlot = crypto.Keccak256Hash([]byte("paymaster\x00credit\x00totalMinted"))
	totalBurnedSlot = crypto.Keccak256Hash([]byte("paymaster\x00credit\x00totalBurned"))
)

func readAmount(db vm.StateDB, slot common.Hash) *uint256.Int {
	word := db.GetState(params.CreditLedgerAddress, slot)
	return new(uint256.Int).SetBytes32(word[:])
}

func writeAmount(db vm.StateDB, slot common.Hash, v *uint256.Int) {
	db.SetState(params.CreditLedgerAddress, slot, common.Hash(v.Bytes32()))
}

// BalanceOf returns the credit balance of addr (zero if never funded).
func BalanceOf(db vm.StateDB, addr common.Address) *uint256.Int {
	return readAmount(db, accountSlot(addr, "balance"))
}

// EscrowedBy returns the total value depositor has paid into escrow.
func EscrowedBy(db vm.StateDB, depositor common.Address) *uint256.Int {
	return readAmount(db, accountSlot(depositor, "escrowed"))
}

// TotalSupply returns the credit currently outstanding.
func TotalSupply(db vm.StateDB) *uint256.Int { return readAmount(db, totalSupplySlot) }

// TotalMinted returns the credit ever minted.
func TotalMinted(db vm.StateDB) *uint256.Int { return readAmount(db, totalMintedSlot) }

// TotalBurned returns the credit ever burned by settlement.
func TotalBurned(db vm.StateDB) *uint256.Int { return readAmount(db, totalBurnedSlot) }

// Mint credits addr with amount, backed by addr's own escrow deposit.
func Mint(db vm.StateDB, addr common.Address, amount *uint256.Int) error {
	return MintTo(db, addr, addr, amount)
}

// MintTo credits recipient with amount, backed by an escrow deposit of equal
// value made by depositor. No state is written unless every counter fits.
func MintTo(db vm.StateDB, depositor, recipient common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	// Validation phase: compute every new value before writing any.
	balance, overflow := new(uint256.Int).AddOverflow(BalanceOf(db, recipient), amount)
	if overflow {
		return ErrSupplyOverflow
	}
	supply, overflow := new(uint256.Int).AddOverflow(TotalSupply(db), amount)
	if overflow {
		return ErrSupplyOverflow
	}
	minted, overflow := new(uint256.Int).AddOverflow(TotalMinted(db), amount)
	if overflow {
		return ErrSupplyOverflow
	}
	escrowed, overflow := new(uint256.Int).AddOverflow(EscrowedBy(db, depositor), amount)
	if overflow {
		return ErrSupplyOverflow
	}

	// Mutation phase.
	writeAmount(db, accountSlot(recipient, "balance"), balance)
	writeAmount(db, accountSlot(depositor, "escrowed"), escrowed)
	writeAmount(db, totalSupplySlot, supply)
	writeAmount(db, totalMintedSlot, minted)
	return nil
}

// Burn debits amount from addr. It fails, leaving state untouched, when the
// amount exceeds the balance; balances never wrap.
func Burn(db vm.StateDB, addr common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrZeroAmount
	}
	balance, underflow := new(uint256.Int).SubOverflow(BalanceOf(db, addr), amount)
	if underflow {
		return ErrInsufficientCredit
	}
	supply, underflow := new(uint256.Int).SubOverflow(TotalSupply(db), amount)
	if underflow {
		return ErrSupplyBroken
	}
	burned, overflow := new(uint256.Int).AddOverflow(TotalBurned(db), amount)
	if overflow {
		return ErrSupplyOverflow
	}
	writeAmount(db, accountSlot(addr, "balance"), balance)
	writeAmount(db, totalSupplySlot, supply)
	writeAmount(db, totalBurnedSlot, burned)
	return nil
}

// CheckSupply verifies minted >= burned and supply == minted - burned.
func CheckSupply(db vm.StateDB) error {
	minted, burned := TotalMinted(db), TotalBurned(db)
	if minted.Lt(burned) {
		return ErrSupplyBroken
	}
	if !new(uint256.Int).Sub(minted, burned).Eq(TotalSupply(db)) {
		return ErrSupplyBroken
	}
	return nil
}
