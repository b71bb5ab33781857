package permit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedData renders p as an eth_signTypedData_v4 document, for wallets and
// off-chain issuers that sign through a generic EIP-712 interface. Hashing the
// result yields the same digest as SigningHash.
func TypedData(name string, chainID uint64, contract common.Address, p *Permit) apitypes.TypedData {
	nonce := new(big.Int)
	if p.Nonce != nil {
		nonce = p.Nonce.ToBig()
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SponsorPermit": {
				{Name: "sponsor", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "nonce", Type: "uint256"},
				{Name: "validAfter", Type: "uint48"},
				{Name: "validUntil", Type: "uint48"},
				{Name: "draftOperationHash", Type: "bytes32"},
			},
		},
		PrimaryType: "SponsorPermit",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(chainID)),
			VerifyingContract: contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"sponsor":            p.Sponsor.Hex(),
			"signer":             p.Signer.Hex(),
			"nonce":              (*math.HexOrDecimal256)(nonce),
			"validAfter":         (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.ValidAfter)),
			"validUntil":         (*math.HexOrDecimal256)(new(big.Int).SetUint64(p.ValidUntil)),
			"draftOperationHash": p.DraftOperationHash.Hex(),
		},
	}
}
