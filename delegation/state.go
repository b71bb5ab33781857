package delegation

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tos-network/paymaster/core/vm"
	"github.com/tos-network/paymaster/params"
)

// pairSlot hashes (sponsor[20B] || delegate[20B] || 0x00 || field).
func pairSlot(sponsor, delegate common.Address, field string) common.Hash {
	key := make([]byte, 0, 2*common.AddressLength+1+len(field))
	key = append(key, sponsor.Bytes()...)
	key = append(key, delegate.Bytes()...)
	key = append(key, 0x00)
	key = append(key, field...)
	return crypto.Keccak256Hash(key)
}

// sponsorSlot hashes (sponsor[20B] || 0x00 || field).
func sponsorSlot(sponsor common.Address, field string) common.Hash {
	key := make([]byte, 0, common.AddressLength+1+len(field))
	key = append(key, sponsor.Bytes()...)
	key = append(key, 0x00)
	key = append(key, field...)
	return crypto.Keccak256Hash(key)
}

// listSlot returns the slot of the i-th delegate ever listed by sponsor.
// The list is append-only; revoked delegates stay listed with active=false.
func listSlot(sponsor common.Address, i uint64) common.Hash {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], i)
	key := make([]byte, 0, common.AddressLength+1+len("delegateList")+8)
	key = append(key, sponsor.Bytes()...)
	key = append(key, 0x00)
	key = append(key, "delegateList"...)
	key = append(key, idx[:]...)
	return crypto.Keccak256Hash(key)
}

func readBool(db vm.StateDB, slot common.Hash) bool {
	return db.GetState(params.DelegationRegistryAddress, slot)[31] != 0
}

func writeBool(db vm.StateDB, slot common.Hash, v bool) {
	var word common.Hash
	if v {
		word[31] = 1
	}
	db.SetState(params.DelegationRegistryAddress, slot, word)
}

func readCount(db vm.StateDB, sponsor common.Address) uint64 {
	raw := db.GetState(params.DelegationRegistryAddress, sponsorSlot(sponsor, "delegateCount"))
	return binary.BigEndian.Uint64(raw[24:])
}

func appendDelegate(db vm.StateDB, sponsor, delegate common.Address) {
	n := readCount(db, sponsor)
	var entry common.Hash
	copy(entry[12:], delegate.Bytes())
	db.SetState(params.DelegationRegistryAddress, listSlot(sponsor, n), entry)

	var count common.Hash
	binary.BigEndian.PutUint64(count[24:], n+1)
	db.SetState(params.DelegationRegistryAddress, sponsorSlot(sponsor, "delegateCount"), count)
}

func readDelegateAt(db vm.StateDB, sponsor common.Address, i uint64) common.Address {
	raw := db.GetState(params.DelegationRegistryAddress, listSlot(sponsor, i))
	return common.BytesToAddress(raw[12:])
}

// IsDelegated reports whether sponsor currently authorizes delegate.
// It is a pure lookup.
func IsDelegated(db vm.StateDB, sponsor, delegate common.Address) bool {
	return readBool(db, pairSlot(sponsor, delegate, "active"))
}

// Delegate authorizes delegate to sign permits charged to sponsor.
func Delegate(db vm.StateDB, sponsor, delegate common.Address) error {
	if delegate == (common.Address{}) || delegate == sponsor {
		return ErrInvalidDelegate
	}
	if IsDelegated(db, sponsor, delegate) {
		return ErrAlreadyDelegated
	}
	// The listed flag survives undelegation, so re-delegating never
	// duplicates a list entry.
	if !readBool(db, pairSlot(sponsor, delegate, "listed")) {
		writeBool(db, pairSlot(sponsor, delegate, "listed"), true)
		appendDelegate(db, sponsor, delegate)
	}
	writeBool(db, pairSlot(sponsor, delegate, "active"), true)
	return nil
}

// Undelegate revokes delegate's authority over sponsor's credit.
func Undelegate(db vm.StateDB, sponsor, delegate common.Address) error {
	if !IsDelegated(db, sponsor, delegate) {
		return ErrNotDelegated
	}
	writeBool(db, pairSlot(sponsor, delegate, "active"), false)
	return nil
}

// Delegates returns the identities sponsor currently authorizes, in the
// order they were first delegated.
func Delegates(db vm.StateDB, sponsor common.Address) []common.Address {
	count := readCount(db, sponsor)
	out := make([]common.Address, 0, count)
	for i := uint64(0); i < count; i++ {
		d := readDelegateAt(db, sponsor, i)
		if IsDelegated(db, sponsor, d) {
			out = append(out, d)
		}
	}
	return out
}

// Registry binds the lookup to one StateDB for the engine.
type Registry struct {
	db vm.StateDB
}

// NewRegistry returns a registry over db.
func NewRegistry(db vm.StateDB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) IsDelegated(sponsor, delegate common.Address) bool {
	return IsDelegated(r.db, sponsor, delegate)
}
