// Package vm defines the storage port the ledgers are written against.
//
// The interface is the subset of go-ethereum's core/state.StateDB the
// sponsorship engine needs, so a live StateDB, the LevelDB-backed statestore
// and test doubles are interchangeable.
package vm

import "github.com/ethereum/go-ethereum/common"

// StateDB is keyed 32-byte word storage per account plus code presence.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	// SetState stores value and returns the previous word.
	SetState(addr common.Address, key common.Hash, value common.Hash) common.Hash

	// GetCodeSize reports the code length of addr; non-zero marks a
	// contract identity whose signatures are checked by call.
	GetCodeSize(addr common.Address) int
}
