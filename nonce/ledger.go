// Package nonce implements permanent replay protection for permit signers.
//
// A nonce is split into a word index (nonce >> 8) and a bit (nonce & 0xff).
// Each (identity, word index) pair owns one 256-bit storage word under
// params.NonceLedgerAddress, so densely issued nonces cost one slot per 256
// values while arbitrary, non-sequential nonces remain valid. Bits are never
// cleared.
package nonce

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/core/vm"
	"github.com/tos-network/paymaster/params"
)

// ErrReplayDetected is returned when a nonce has already been consumed.
var ErrReplayDetected = errors.New("nonce: already consumed")

// bitmapSlot hashes (identity[20B] || 0x00 || "bitmap" || word[32B]).
func bitmapSlot(identity common.Address, word *uint256.Int) common.Hash {
	index := word.Bytes32()
	key := make([]byte, 0, common.AddressLength+1+len("bitmap")+32)
	key = append(key, identity.Bytes()...)
	key = append(key, 0x00)
	key = append(key, "bitmap"...)
	key = append(key, index[:]...)
	return crypto.Keccak256Hash(key)
}

// split returns the word index and the single-bit mask for n.
func split(n *uint256.Int) (word *uint256.Int, mask *uint256.Int) {
	word = new(uint256.Int).Rsh(n, 8)
	bit := n.Uint64() & 0xff
	mask = new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	return word, mask
}

// IsConsumed reports whether n has been consumed for identity.
func IsConsumed(db vm.StateDB, identity common.Address, n *uint256.Int) bool {
	word, mask := split(n)
	raw := db.GetState(params.NonceLedgerAddress, bitmapSlot(identity, word))
	bitmap := new(uint256.Int).SetBytes32(raw[:])
	return !new(uint256.Int).And(bitmap, mask).IsZero()
}

// Consume marks n as used for identity. The bitmap word is read once and
// written once; a set bit fails with ErrReplayDetected before any write.
func Consume(db vm.StateDB, identity common.Address, n *uint256.Int) error {
	word, mask := split(n)
	slot := bitmapSlot(identity, word)
	raw := db.GetState(params.NonceLedgerAddress, slot)
	bitmap := new(uint256.Int).SetBytes32(raw[:])
	if !new(uint256.Int).And(bitmap, mask).IsZero() {
		return ErrReplayDetected
	}
	bitmap.Or(bitmap, mask)
	db.SetState(params.NonceLedgerAddress, slot, common.Hash(bitmap.Bytes32()))
	return nil
}

// Ledger binds Consume and IsConsumed to one StateDB.
type Ledger struct {
	db vm.StateDB
}

// NewLedger returns a nonce ledger over db.
func NewLedger(db vm.StateDB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Consume(identity common.Address, n *uint256.Int) error {
	return Consume(l.db, identity, n)
}

func (l *Ledger) IsConsumed(identity common.Address, n *uint256.Int) bool {
	return IsConsumed(l.db, identity, n)
}
