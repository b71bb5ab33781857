package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// DraftField is one stable field of an operation: its name, the ABI type of
// its encoded word, and the accessor producing that word.
type DraftField struct {
	Name string
	Type string
	word func(op *Operation) common.Hash
}

// DraftFields is the ordered field list a sponsor signs over. The
// authorization blob (PaymasterAndData) and Signature are excluded; the
// permit signature lives inside the blob.
// Every entry encodes to exactly one 32-byte word, so the packed encoding is
// the ABI encoding of the tuple.
var DraftFields = []DraftField{
	{"sender", "address", func(op *Operation) common.Hash {
		return common.BytesToHash(op.Sender.Bytes())
	}},
	{"nonce", "uint256", func(op *Operation) common.Hash { return u256Word(op.Nonce.Bytes32()) }},
	{"initCodeHash", "bytes32", func(op *Operation) common.Hash { return crypto.Keccak256Hash(op.InitCode) }},
	{"callDataHash", "bytes32", func(op *Operation) common.Hash { return crypto.Keccak256Hash(op.CallData) }},
	{"callGasLimit", "uint256", func(op *Operation) common.Hash { return u256Word(op.CallGasLimit.Bytes32()) }},
	{"verificationGasLimit", "uint256", func(op *Operation) common.Hash {
		return u256Word(op.VerificationGasLimit.Bytes32())
	}},
	{"preVerificationGas", "uint256", func(op *Operation) common.Hash {
		return u256Word(op.PreVerificationGas.Bytes32())
	}},
	{"maxFeePerGas", "uint256", func(op *Operation) common.Hash { return u256Word(op.MaxFeePerGas.Bytes32()) }},
	{"maxPriorityFeePerGas", "uint256", func(op *Operation) common.Hash {
		return u256Word(op.MaxPriorityFeePerGas.Bytes32())
	}},
}

func u256Word(b [32]byte) common.Hash { return common.Hash(b) }

// normalized returns op with nil numeric fields replaced by zero, so the
// field accessors never dereference nil.
func normalized(op *Operation) *Operation {
	cpy := *op
	cpy.Nonce = orZero(op.Nonce)
	cpy.CallGasLimit = orZero(op.CallGasLimit)
	cpy.VerificationGasLimit = orZero(op.VerificationGasLimit)
	cpy.PreVerificationGas = orZero(op.PreVerificationGas)
	cpy.MaxFeePerGas = orZero(op.MaxFeePerGas)
	cpy.MaxPriorityFeePerGas = orZero(op.MaxPriorityFeePerGas)
	return &cpy
}

// DraftEncoding returns the canonical byte sequence of op's stable fields:
// one 32-byte word per DraftFields entry, in order.
func DraftEncoding(op *Operation) []byte {
	op = normalized(op)
	out := make([]byte, 0, len(DraftFields)*common.HashLength)
	for _, f := range DraftFields {
		w := f.word(op)
		out = append(out, w[:]...)
	}
	return out
}

// DraftHash is the packed draft-operation hash: keccak256(DraftEncoding(op)).
func DraftHash(op *Operation) common.Hash {
	return crypto.Keccak256Hash(DraftEncoding(op))
}

// DraftComponentHash hashes every field independently as
// keccak256(name || 0x00 || word) and then hashes the concatenated digests.
func DraftComponentHash(op *Operation) common.Hash {
	op = normalized(op)
	outer := sha3.NewLegacyKeccak256()
	for _, f := range DraftFields {
		w := f.word(op)
		inner := sha3.NewLegacyKeccak256()
		inner.Write([]byte(f.Name))
		inner.Write([]byte{0x00})
		inner.Write(w[:])
		outer.Write(inner.Sum(nil))
	}
	var h common.Hash
	outer.Sum(h[:0])
	return h
}
