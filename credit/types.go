// Package credit implements the prepaid credit ledger the sponsorship engine
// charges. Balances live in the storage of params.CreditLedgerAddress.
//
// Every mint is backed 1:1 by a deposit into the execution environment's
// escrow; the ledger records the escrowed total next to the supply counters
// so the invariant minted >= burned >= 0 can be checked at any time.
package credit

import "errors"

var (
	ErrInsufficientCredit = errors.New("credit: amount exceeds balance")
	ErrZeroAmount         = errors.New("credit: amount must be greater than zero")
	ErrSupplyOverflow     = errors.New("credit: supply overflows uint256")
	ErrSupplyBroken       = errors.New("credit: supply invariant violated")
)
