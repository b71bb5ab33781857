// Package engine implements the two-phase sponsorship protocol: PreCheck
// decides who pays for an operation and authorizes the charge, Settle debits
// the actual cost from that payer.
package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/core/types"
	"github.com/tos-network/paymaster/core/vm"
	"github.com/tos-network/paymaster/credit"
	"github.com/tos-network/paymaster/delegation"
	"github.com/tos-network/paymaster/nonce"
	"github.com/tos-network/paymaster/params"
	"github.com/tos-network/paymaster/permit"
)

// CreditLedger is the balance store charged by the engine.
type CreditLedger interface {
	BalanceOf(addr common.Address) *uint256.Int
	Burn(addr common.Address, amount *uint256.Int) error
}

// NonceLedger provides permanent replay protection per signer.
type NonceLedger interface {
	Consume(identity common.Address, n *uint256.Int) error
}

// DelegationRegistry answers whether a sponsor authorized a signer.
type DelegationRegistry interface {
	IsDelegated(sponsor, delegate common.Address) bool
}

// Verifier checks a permit signature for the given chain id.
type Verifier interface {
	Verify(ctx context.Context, chainID uint64, p *permit.Permit) (bool, error)
}

// Result is the outcome of a successful PreCheck.
type Result struct {
	Token      []byte // opaque, passed back to Settle
	Validation ValidationResult
	Payer      common.Address
	Mode       Mode
	Required   *uint256.Int // balance the payer had to hold
}

// Settlement describes a completed Settle call.
type Settlement struct {
	Payer   common.Address
	Mode    Mode
	Charged *uint256.Int
}

// Engine orchestrates the ledgers during pre-check and settlement. It is not
// safe for concurrent use; calls are serialized by the environment.
type Engine struct {
	config      Config
	credits     CreditLedger
	nonces      NonceLedger
	delegations DelegationRegistry
	verifier    Verifier

	chainID func() uint64
}

// New creates an engine over the given stores.
func New(config Config, credits CreditLedger, nonces NonceLedger, delegations DelegationRegistry, verifier Verifier) *Engine {
	e := &Engine{
		config:      config,
		credits:     credits,
		nonces:      nonces,
		delegations: delegations,
		verifier:    verifier,
	}
	e.chainID = func() uint64 { return e.config.ChainID }
	return e
}

// NewFromState creates an engine whose ledgers all live in db. caller serves
// ERC-1271 checks for contract signers and may be nil.
func NewFromState(config Config, db vm.StateDB, caller permit.ContractCaller) *Engine {
	return New(config,
		credit.NewLedger(db),
		nonce.NewLedger(db),
		delegation.NewRegistry(db),
		permit.NewVerifier(config.SystemName, config.ChainID, config.Address, db, caller),
	)
}

// ObserveChain makes the engine read the live chain id from fn at every
// verification instead of trusting the configured value.
func (e *Engine) ObserveChain(fn func() uint64) {
	e.chainID = fn
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// required returns cost + overhead*feeRate.
func (e *Engine) required(cost, feeRate *uint256.Int) (*uint256.Int, error) {
	if cost == nil {
		cost = new(uint256.Int)
	}
	if feeRate == nil {
		feeRate = new(uint256.Int)
	}
	overhead, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(e.config.VerificationOverhead), feeRate)
	if overflow {
		return nil, fmt.Errorf("%w: overhead at fee rate %s", ErrCostOverflow, feeRate)
	}
	total, overflow := new(uint256.Int).AddOverflow(cost, overhead)
	if overflow {
		return nil, fmt.Errorf("%w: cost %s plus overhead %s", ErrCostOverflow, cost, overhead)
	}
	return total, nil
}

func (e *Engine) checkBalance(payer common.Address, required *uint256.Int) error {
	if balance := e.credits.BalanceOf(payer); balance.Lt(required) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientCredit, payer, balance, required)
	}
	return nil
}

// PreCheck validates op against a worst-case cost of maxCost and returns the
// payer, a settlement token and the soft validation outcome.
//
// A sponsored permit is processed in order: sponsor balance, delegation,
// nonce consumption, draft hash, signature. Errors before the nonce step leave
// no trace; once the nonce is consumed it stays consumed whatever happens
// next, including a failed signature.
func (e *Engine) PreCheck(ctx context.Context, caller common.Address, op *types.Operation, maxCost *uint256.Int) (*Result, error) {
	res, err := e.preCheck(ctx, caller, op, maxCost)
	if err != nil {
		rejectedMeter.Mark(1)
		log.Debug("Paymaster pre-check rejected", "sender", op.Sender, "reason", ReasonCode(err), "err", err)
		return nil, err
	}
	switch {
	case res.Mode == ModeSelfPay:
		selfPayMeter.Mark(1)
	case res.Validation.SigFailed:
		sigFailedMeter.Mark(1)
	default:
		sponsoredMeter.Mark(1)
	}
	log.Debug("Paymaster pre-check passed", "sender", op.Sender, "payer", res.Payer, "mode", res.Mode,
		"required", res.Required, "sigfailed", res.Validation.SigFailed)
	return res, nil
}

func (e *Engine) preCheck(ctx context.Context, caller common.Address, op *types.Operation, maxCost *uint256.Int) (*Result, error) {
	if caller != e.config.EntryPoint {
		return nil, fmt.Errorf("%w: %s", ErrSenderNotAuthority, caller)
	}
	blob := op.PaymasterAndData
	if len(blob) < params.PermitTargetLen {
		return nil, fmt.Errorf("%w: %d bytes, no routing tag", ErrMalformedPermit, len(blob))
	}
	required, err := e.required(maxCost, op.MaxFeePerGas)
	if err != nil {
		return nil, err
	}
	if permit.IsSelfPay(blob) {
		if err := e.checkBalance(op.Sender, required); err != nil {
			return nil, err
		}
		return e.result(op.Sender, op.Sender, ModeSelfPay, required, ValidationResult{})
	}

	p, err := permit.Parse(blob)
	if err != nil {
		return nil, err
	}
	if err := e.checkBalance(p.Sponsor, required); err != nil {
		return nil, err
	}
	if p.Signer != p.Sponsor && !e.delegations.IsDelegated(p.Sponsor, p.Signer) {
		return nil, fmt.Errorf("%w: sponsor %s, signer %s", ErrInvalidDelegation, p.Sponsor, p.Signer)
	}
	if err := e.nonces.Consume(p.Signer, p.Nonce); err != nil {
		return nil, fmt.Errorf("%w: signer %s nonce %s: %w", ErrReplayDetected, p.Signer, p.Nonce.Dec(), err)
	}
	p.DraftOperationHash = types.DraftHash(op)

	ok, err := e.verifier.Verify(ctx, e.chainID(), p)
	if err != nil {
		return nil, fmt.Errorf("engine: permit from %s: %w", p.Signer, err)
	}
	validation := ValidationResult{
		SigFailed:  !ok,
		ValidAfter: p.ValidAfter,
		ValidUntil: p.ValidUntil,
	}
	return e.result(p.Sponsor, op.Sender, ModeSponsored, required, validation)
}

func (e *Engine) result(payer, sender common.Address, mode Mode, required *uint256.Int, v ValidationResult) (*Result, error) {
	token, err := encodeToken(&settlementToken{Version: tokenVersion, Payer: payer, Sender: sender, Mode: mode})
	if err != nil {
		return nil, err
	}
	return &Result{Token: token, Validation: v, Payer: payer, Mode: mode, Required: required}, nil
}

// Settle debits actualCost + overhead*actualFeeRate from the payer recorded
// in token. The environment guarantees actualCost does not exceed the bound
// passed to PreCheck.
func (e *Engine) Settle(caller common.Address, token []byte, actualCost, actualFeeRate *uint256.Int) (*Settlement, error) {
	s, err := e.settle(caller, token, actualCost, actualFeeRate)
	if err != nil {
		settleRejectedMeter.Mark(1)
		log.Warn("Paymaster settlement failed", "reason", ReasonCode(err), "err", err)
		return nil, err
	}
	settleMeter.Mark(1)
	log.Debug("Paymaster settled", "payer", s.Payer, "mode", s.Mode, "charged", s.Charged)
	return s, nil
}

func (e *Engine) settle(caller common.Address, raw []byte, actualCost, actualFeeRate *uint256.Int) (*Settlement, error) {
	if caller != e.config.EntryPoint {
		return nil, fmt.Errorf("%w: %s", ErrSenderNotAuthority, caller)
	}
	token, err := decodeToken(raw)
	if err != nil {
		return nil, err
	}
	charge, err := e.required(actualCost, actualFeeRate)
	if err != nil {
		return nil, err
	}
	if err := e.credits.Burn(token.Payer, charge); err != nil {
		return nil, fmt.Errorf("%w: debit %s from %s: %w", ErrInsufficientCredit, charge, token.Payer, err)
	}
	return &Settlement{Payer: token.Payer, Mode: token.Mode, Charged: charge}, nil
}
