// Package permit implements the sponsor permit: its fixed-offset wire
// encoding inside PaymasterAndData, the EIP-712 signing hash a sponsor (or its
// delegate) signs, and signature verification against key and contract
// signers.
package permit

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/params"
)

var (
	ErrMalformedPermit = errors.New("permit: malformed authorization blob")
	ErrWindowRange     = errors.New("permit: validity bound exceeds uint48")
)

// Permit is a signed authorization for a sponsor to pay for one operation.
// DraftOperationHash is not carried on the wire; the engine computes it from
// the operation and injects it before verification.
type Permit struct {
	Target             common.Address // routing tag, not interpreted here
	Sponsor            common.Address
	Signer             common.Address
	Nonce              *uint256.Int
	ValidAfter         uint64
	ValidUntil         uint64
	DraftOperationHash common.Hash
	Signature          []byte
}

// IsSelfPay reports whether blob carries only the routing tag.
func IsSelfPay(blob []byte) bool {
	return len(blob) == params.PermitTargetLen
}

// Parse decodes a permit blob. The signature is everything past the fixed
// region and may be empty.
func Parse(blob []byte) (*Permit, error) {
	if len(blob) < params.PermitSigOffset {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedPermit, len(blob), params.PermitSigOffset)
	}
	return &Permit{
		Target:     common.BytesToAddress(blob[:params.PermitTargetLen]),
		Sponsor:    common.BytesToAddress(blob[params.PermitSponsorOffset:params.PermitSignerOffset]),
		Signer:     common.BytesToAddress(blob[params.PermitSignerOffset:params.PermitNonceOffset]),
		Nonce:      new(uint256.Int).SetBytes32(blob[params.PermitNonceOffset:params.PermitAfterOffset]),
		ValidAfter: getUint48(blob[params.PermitAfterOffset:params.PermitUntilOffset]),
		ValidUntil: getUint48(blob[params.PermitUntilOffset:params.PermitSigOffset]),
		Signature:  common.CopyBytes(blob[params.PermitSigOffset:]),
	}, nil
}

// Encode is the inverse of Parse.
func Encode(p *Permit) ([]byte, error) {
	if p.ValidAfter > params.MaxUint48 || p.ValidUntil > params.MaxUint48 {
		return nil, fmt.Errorf("%w: after=%d until=%d", ErrWindowRange, p.ValidAfter, p.ValidUntil)
	}
	blob := make([]byte, params.PermitSigOffset, params.PermitSigOffset+len(p.Signature))
	copy(blob[:params.PermitSponsorOffset], p.Target.Bytes())
	copy(blob[params.PermitSponsorOffset:], p.Sponsor.Bytes())
	copy(blob[params.PermitSignerOffset:], p.Signer.Bytes())
	if p.Nonce != nil {
		n := p.Nonce.Bytes32()
		copy(blob[params.PermitNonceOffset:], n[:])
	}
	putUint48(blob[params.PermitAfterOffset:], p.ValidAfter)
	putUint48(blob[params.PermitUntilOffset:], p.ValidUntil)
	return append(blob, p.Signature...), nil
}

func getUint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[2:], b[:6])
	return binary.BigEndian.Uint64(buf[:])
}

func putUint48(b []byte, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	copy(b[:6], buf[2:])
}
