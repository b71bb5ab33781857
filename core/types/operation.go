// Package types defines the operation record submitted for sponsorship and
// its canonical draft hash.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Operation is a fee-metered unit of work with resource limits and payload
// digests. PaymasterAndData carries the authorization blob: the routing tag
// of the paymaster, optionally followed by a permit.
type Operation struct {
	Sender               common.Address
	Nonce                *uint256.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *uint256.Int
	VerificationGasLimit *uint256.Int
	PreVerificationGas   *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// PaymasterAddress extracts the routing tag from PaymasterAndData.
// Returns the zero address if no paymaster is attached.
func (op *Operation) PaymasterAddress() common.Address {
	if len(op.PaymasterAndData) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
}

// HasPaymaster reports whether the operation routes to a paymaster.
func (op *Operation) HasPaymaster() bool {
	return op.PaymasterAddress() != (common.Address{})
}

// Copy returns a deep copy of op.
func (op *Operation) Copy() *Operation {
	return &Operation{
		Sender:               op.Sender,
		Nonce:                cloneU256(op.Nonce),
		InitCode:             common.CopyBytes(op.InitCode),
		CallData:             common.CopyBytes(op.CallData),
		CallGasLimit:         cloneU256(op.CallGasLimit),
		VerificationGasLimit: cloneU256(op.VerificationGasLimit),
		PreVerificationGas:   cloneU256(op.PreVerificationGas),
		MaxFeePerGas:         cloneU256(op.MaxFeePerGas),
		MaxPriorityFeePerGas: cloneU256(op.MaxPriorityFeePerGas),
		PaymasterAndData:     common.CopyBytes(op.PaymasterAndData),
		Signature:            common.CopyBytes(op.Signature),
	}
}

func cloneU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

// orZero returns v, or a fresh zero for nil fields.
func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

type operationJSON struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func toHexBig(v *uint256.Int) *hexutil.Big {
	return (*hexutil.Big)(orZero(v).ToBig())
}

func fromHexBig(name string, v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig((*big.Int)(v))
	if overflow || (*big.Int)(v).Sign() < 0 {
		return nil, fmt.Errorf("types: %s out of uint256 range", name)
	}
	return out, nil
}

// MarshalJSON encodes op with hex quantities, as bundler APIs do.
func (op *Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(&operationJSON{
		Sender:               op.Sender,
		Nonce:                toHexBig(op.Nonce),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         toHexBig(op.CallGasLimit),
		VerificationGasLimit: toHexBig(op.VerificationGasLimit),
		PreVerificationGas:   toHexBig(op.PreVerificationGas),
		MaxFeePerGas:         toHexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: toHexBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	})
}

// UnmarshalJSON decodes the hex form produced by MarshalJSON.
func (op *Operation) UnmarshalJSON(input []byte) error {
	var dec operationJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	var (
		fields = []struct {
			name string
			src  *hexutil.Big
			dst  **uint256.Int
		}{
			{"nonce", dec.Nonce, &op.Nonce},
			{"callGasLimit", dec.CallGasLimit, &op.CallGasLimit},
			{"verificationGasLimit", dec.VerificationGasLimit, &op.VerificationGasLimit},
			{"preVerificationGas", dec.PreVerificationGas, &op.PreVerificationGas},
			{"maxFeePerGas", dec.MaxFeePerGas, &op.MaxFeePerGas},
			{"maxPriorityFeePerGas", dec.MaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
		}
	)
	for _, f := range fields {
		v, err := fromHexBig(f.name, f.src)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	op.Sender = dec.Sender
	op.InitCode = dec.InitCode
	op.CallData = dec.CallData
	op.PaymasterAndData = dec.PaymasterAndData
	op.Signature = dec.Signature
	return nil
}
