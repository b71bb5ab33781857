// Package statestore persists ledger storage words in LevelDB.
//
// Database implements core/vm.StateDB for the operator tooling and tests:
// writes are buffered in a dirty set until Commit flushes them in one
// leveldb.Batch, so a failed system action can be discarded without touching
// disk. Read errors cannot be returned through the StateDB interface; the
// first one is memoized and reported by Error and Commit.
package statestore

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var (
	statePrefix = []byte("s") // statePrefix + address + slot -> word
	codePrefix  = []byte("c") // codePrefix + address -> code
)

func stateKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, len(statePrefix)+common.AddressLength+common.HashLength)
	key = append(key, statePrefix...)
	key = append(key, addr.Bytes()...)
	return append(key, slot.Bytes()...)
}

func codeKey(addr common.Address) []byte {
	return append(append([]byte{}, codePrefix...), addr.Bytes()...)
}

// Database is a write-buffered view over a LevelDB instance.
type Database struct {
	db    *leveldb.DB
	dirty map[string][]byte // nil value marks a deletion
	err   error
}

// Open opens (or creates) the database at path, recovering the manifest if
// the store was left corrupted.
func Open(path string) (*Database, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: 16,
		BlockCacheCapacity:     8 * opt.MiB,
	})
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		log.Warn("Ledger store corrupted, attempting recovery", "path", path, "err", err)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: open %s: %w", path, err)
	}
	log.Debug("Opened ledger store", "path", path)
	return newDatabase(db), nil
}

// OpenMemory returns a database backed by in-memory storage.
func OpenMemory() (*Database, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return newDatabase(db), nil
}

func newDatabase(db *leveldb.DB) *Database {
	return &Database{db: db, dirty: make(map[string][]byte)}
}

func (d *Database) get(key []byte) []byte {
	if v, ok := d.dirty[string(key)]; ok {
		return v
	}
	v, err := d.db.Get(key, nil)
	if err != nil {
		if !errors.Is(err, leveldb.ErrNotFound) && d.err == nil {
			d.err = err
		}
		return nil
	}
	return v
}

// GetState returns the word stored at slot of addr.
func (d *Database) GetState(addr common.Address, slot common.Hash) common.Hash {
	return common.BytesToHash(d.get(stateKey(addr, slot)))
}

// SetState buffers a word write and returns the previous value. Writing the
// zero word deletes the slot.
func (d *Database) SetState(addr common.Address, slot common.Hash, value common.Hash) common.Hash {
	key := stateKey(addr, slot)
	prev := common.BytesToHash(d.get(key))
	if value == (common.Hash{}) {
		d.dirty[string(key)] = nil
	} else {
		d.dirty[string(key)] = value.Bytes()
	}
	return prev
}

// SetCode registers code for addr, marking it as a contract signer.
func (d *Database) SetCode(addr common.Address, code []byte) {
	if len(code) == 0 {
		d.dirty[string(codeKey(addr))] = nil
		return
	}
	d.dirty[string(codeKey(addr))] = common.CopyBytes(code)
}

// GetCodeSize returns the length of the code registered for addr.
func (d *Database) GetCodeSize(addr common.Address) int {
	return len(d.get(codeKey(addr)))
}

// Error returns the first read error encountered, if any.
func (d *Database) Error() error {
	return d.err
}

// Dirty returns the number of buffered writes.
func (d *Database) Dirty() int {
	return len(d.dirty)
}

// Commit flushes buffered writes atomically.
func (d *Database) Commit() error {
	if d.err != nil {
		return fmt.Errorf("statestore: refusing to commit after read error: %w", d.err)
	}
	if len(d.dirty) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for k, v := range d.dirty {
		if v == nil {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), v)
		}
	}
	if err := d.db.Write(batch, nil); err != nil {
		return fmt.Errorf("statestore: commit: %w", err)
	}
	log.Trace("Committed ledger writes", "entries", len(d.dirty))
	d.dirty = make(map[string][]byte)
	return nil
}

// Discard drops buffered writes.
func (d *Database) Discard() {
	d.dirty = make(map[string][]byte)
}

// Close releases the underlying LevelDB handle. Uncommitted writes are lost.
func (d *Database) Close() error {
	return d.db.Close()
}
