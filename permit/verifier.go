package permit

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/tos-network/paymaster/core/vm"
)

var (
	ErrMalformedSignature = errors.New("permit: malformed signature")
	ErrNoContractCaller   = errors.New("permit: contract signer but no contract caller configured")
)

var (
	// PermitTypeHash is the EIP-712 type hash of SponsorPermit.
	PermitTypeHash = crypto.Keccak256Hash([]byte("SponsorPermit(address sponsor,address signer,uint256 nonce,uint48 validAfter,uint48 validUntil,bytes32 draftOperationHash)"))

	// DomainTypeHash is the EIP-712 type hash of the paymaster domain.
	DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"))

	// erc1271Magic is returned by isValidSignature for an accepted signature.
	erc1271Magic = [4]byte{0x16, 0x26, 0xba, 0x7e}
)

const erc1271ABI = `[{"type":"function","name":"isValidSignature","stateMutability":"view",
"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
"outputs":[{"name":"magicValue","type":"bytes4"}]}]`

var erc1271, _ = abi.JSON(strings.NewReader(erc1271ABI))

// forkedDomains bounds the memo of separators for chain ids other than the
// configured one.
const forkedDomains = 16

// ContractCaller executes read-only calls against contract signers.
// go-ethereum's ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DomainSeparator computes the EIP-712 domain separator of a paymaster.
func DomainSeparator(name string, chainID uint64, contract common.Address) common.Hash {
	var chain common.Hash
	new(big.Int).SetUint64(chainID).FillBytes(chain[:])
	return crypto.Keccak256Hash(
		DomainTypeHash[:],
		crypto.Keccak256([]byte(name)),
		chain[:],
		common.LeftPadBytes(contract.Bytes(), 32),
	)
}

// ValuesHash is the EIP-712 struct hash of p.
func ValuesHash(p *Permit) common.Hash {
	var nonce [32]byte
	if p.Nonce != nil {
		nonce = p.Nonce.Bytes32()
	}
	return crypto.Keccak256Hash(
		PermitTypeHash[:],
		common.LeftPadBytes(p.Sponsor.Bytes(), 32),
		common.LeftPadBytes(p.Signer.Bytes(), 32),
		nonce[:],
		common.LeftPadBytes(new(big.Int).SetUint64(p.ValidAfter).Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(p.ValidUntil).Bytes(), 32),
		p.DraftOperationHash[:],
	)
}

// SigningHash returns keccak256(0x19 0x01 || separator || valuesHash).
func SigningHash(separator common.Hash, p *Permit) common.Hash {
	values := ValuesHash(p)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, separator[:], values[:])
}

// Sign signs hash with key and returns r || s || v with v in {27, 28}.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Verifier checks permit signatures for one paymaster deployment.
type Verifier struct {
	name     string
	contract common.Address
	chainID  uint64

	separator common.Hash    // domain separator for chainID
	forks     *lru.ARCCache // chain id -> common.Hash

	state  vm.StateDB
	caller ContractCaller
}

// NewVerifier creates a verifier bound to the given domain. state is used to
// classify signers as contracts; caller may be nil if no contract signers are
// expected.
func NewVerifier(name string, chainID uint64, contract common.Address, state vm.StateDB, caller ContractCaller) *Verifier {
	forks, _ := lru.NewARC(forkedDomains)
	return &Verifier{
		name:      name,
		contract:  contract,
		chainID:   chainID,
		separator: DomainSeparator(name, chainID, contract),
		forks:     forks,
		state:     state,
		caller:    caller,
	}
}

// DomainSeparator returns the separator for chainID. The configured chain's
// value is precomputed; any other chain id is derived afresh and memoized.
func (v *Verifier) DomainSeparator(chainID uint64) common.Hash {
	if chainID == v.chainID {
		return v.separator
	}
	if cached, ok := v.forks.Get(chainID); ok {
		return cached.(common.Hash)
	}
	log.Warn("Permit domain chain id differs from configuration", "configured", v.chainID, "observed", chainID)
	sep := DomainSeparator(v.name, chainID, v.contract)
	v.forks.Add(chainID, sep)
	return sep
}

// SigningHash returns the digest p's signer must have signed on chainID.
func (v *Verifier) SigningHash(chainID uint64, p *Permit) common.Hash {
	return SigningHash(v.DomainSeparator(chainID), p)
}

// Verify checks p.Signature over the signing hash for chainID. A signature
// that does not belong to p.Signer yields false with a nil error; only input
// that cannot be checked at all is an error.
func (v *Verifier) Verify(ctx context.Context, chainID uint64, p *Permit) (bool, error) {
	hash := v.SigningHash(chainID, p)
	if v.state != nil && v.state.GetCodeSize(p.Signer) > 0 {
		return v.verifyContract(ctx, hash, p)
	}
	return verifyKey(hash, p.Signer, p.Signature)
}

func verifyKey(hash common.Hash, signer common.Address, sig []byte) (bool, error) {
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}
	recid := sig[crypto.RecoveryIDOffset]
	if recid >= 27 {
		recid -= 27
	}
	r, s := new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(recid, r, s, true) {
		return false, fmt.Errorf("%w: invalid r, s or v", ErrMalformedSignature)
	}
	norm := make([]byte, crypto.SignatureLength)
	copy(norm, sig)
	norm[crypto.RecoveryIDOffset] = recid

	pub, err := crypto.Ecrecover(hash[:], norm)
	if err != nil {
		log.Debug("Permit signature recovery failed", "signer", signer, "err", err)
		return false, nil
	}
	var recovered common.Address
	copy(recovered[:], crypto.Keccak256(pub[1:])[12:])
	return recovered == signer, nil
}

func (v *Verifier) verifyContract(ctx context.Context, hash common.Hash, p *Permit) (bool, error) {
	if v.caller == nil {
		return false, fmt.Errorf("%w: %s", ErrNoContractCaller, p.Signer)
	}
	input, err := erc1271.Pack("isValidSignature", hash, p.Signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	signer := p.Signer
	output, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &signer, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("permit: isValidSignature call on %s: %w", signer, err)
	}
	res, err := erc1271.Unpack("isValidSignature", output)
	if err != nil || len(res) != 1 {
		log.Debug("Unexpected isValidSignature output", "signer", signer, "output", common.Bytes2Hex(output))
		return false, nil
	}
	magic, ok := res[0].([4]byte)
	return ok && magic == erc1271Magic, nil
}
