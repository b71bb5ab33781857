package engine

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Mode says who pays for an operation.
type Mode uint8

const (
	ModeSelfPay Mode = iota
	ModeSponsored
)

func (m Mode) String() string {
	switch m {
	case ModeSelfPay:
		return "selfpay"
	case ModeSponsored:
		return "sponsored"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

var tokenPrefix = []byte("SPT1")

const tokenVersion = 1

// settlementToken is handed back to the environment by PreCheck and returned
// verbatim to Settle. It names the identity to debit.
type settlementToken struct {
	Version uint
	Payer   common.Address
	Sender  common.Address
	Mode    Mode
}

func encodeToken(t *settlementToken) ([]byte, error) {
	body, err := rlp.EncodeToBytes(t)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, tokenPrefix...), body...), nil
}

func decodeToken(raw []byte) (*settlementToken, error) {
	if !bytes.HasPrefix(raw, tokenPrefix) {
		return nil, fmt.Errorf("%w: missing prefix", ErrSettlementToken)
	}
	var t settlementToken
	if err := rlp.DecodeBytes(raw[len(tokenPrefix):], &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettlementToken, err)
	}
	if t.Version != tokenVersion {
		return nil, fmt.Errorf("%w: version %d", ErrSettlementToken, t.Version)
	}
	if t.Mode != ModeSelfPay && t.Mode != ModeSponsored {
		return nil, fmt.Errorf("%w: %v", ErrSettlementToken, t.Mode)
	}
	return &t, nil
}
