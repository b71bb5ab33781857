package engine

import (
	"errors"

	"github.com/tos-network/paymaster/permit"
)

var (
	// ErrSenderNotAuthority is returned when PreCheck or Settle is invoked by
	// anyone other than the configured entry point. Nothing is read or written.
	ErrSenderNotAuthority = errors.New("engine: caller is not the entry point")

	ErrInsufficientCredit = errors.New("engine: insufficient credit")
	ErrReplayDetected     = errors.New("engine: permit nonce already consumed")
	ErrInvalidDelegation  = errors.New("engine: signer is not a delegate of the sponsor")
	ErrSettlementToken    = errors.New("engine: malformed settlement token")
	ErrCostOverflow       = errors.New("engine: cost overflows uint256")

	ErrMalformedPermit    = permit.ErrMalformedPermit
	ErrMalformedSignature = permit.ErrMalformedSignature
)

// Reason is a stable, machine-readable rejection code.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonAuthority          Reason = "AUTHORITY"
	ReasonInsufficientCredit Reason = "INSUFFICIENT_CREDIT"
	ReasonReplay             Reason = "REPLAY"
	ReasonInvalidDelegation  Reason = "INVALID_DELEGATION"
	ReasonMalformedPermit    Reason = "MALFORMED_PERMIT"
	ReasonMalformedSignature Reason = "MALFORMED_SIGNATURE"
	ReasonSettlementToken    Reason = "SETTLEMENT_TOKEN"
	ReasonInternal           Reason = "INTERNAL"
)

// ReasonCode maps an error returned by PreCheck or Settle to its reason code.
func ReasonCode(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrSenderNotAuthority):
		return ReasonAuthority
	case errors.Is(err, ErrInsufficientCredit), errors.Is(err, ErrCostOverflow):
		return ReasonInsufficientCredit
	case errors.Is(err, ErrReplayDetected):
		return ReasonReplay
	case errors.Is(err, ErrInvalidDelegation):
		return ReasonInvalidDelegation
	case errors.Is(err, ErrMalformedPermit):
		return ReasonMalformedPermit
	case errors.Is(err, ErrMalformedSignature):
		return ReasonMalformedSignature
	case errors.Is(err, ErrSettlementToken):
		return ReasonSettlementToken
	}
	return ReasonInternal
}
