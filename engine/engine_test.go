package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/core/types"
	"github.com/tos-network/paymaster/credit"
	"github.com/tos-network/paymaster/delegation"
	"github.com/tos-network/paymaster/nonce"
	"github.com/tos-network/paymaster/params"
	"github.com/tos-network/paymaster/permit"
)

var (
	entryPoint = DefaultConfig.EntryPoint
	feeRate    = uint256.NewInt(10)
	overhead   = uint256.NewInt(DefaultConfig.VerificationOverhead)
)

type testEnv struct {
	db     *state.StateDB
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := state.New(gethtypes.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		t.Fatalf("failed to create state db: %v", err)
	}
	return &testEnv{db: db, engine: NewFromState(DefaultConfig, db, nil)}
}

func (env *testEnv) mint(t *testing.T, addr common.Address, amount uint64) {
	t.Helper()
	if err := credit.Mint(env.db, addr, uint256.NewInt(amount)); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (env *testEnv) balance(addr common.Address) uint64 {
	return credit.BalanceOf(env.db, addr).Uint64()
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func newOp(sender common.Address, seq uint64) *types.Operation {
	return &types.Operation{
		Sender:               sender,
		Nonce:                uint256.NewInt(seq),
		CallData:             []byte{0xca, 0x11},
		CallGasLimit:         uint256.NewInt(100_000),
		VerificationGasLimit: uint256.NewInt(50_000),
		PreVerificationGas:   uint256.NewInt(21_000),
		MaxFeePerGas:         feeRate.Clone(),
		MaxPriorityFeePerGas: uint256.NewInt(1),
	}
}

// requiredFor is maxCost + overhead*maxFeePerGas for ops built by newOp.
func requiredFor(maxCost uint64) uint64 {
	return maxCost + overhead.Uint64()*feeRate.Uint64()
}

type permitOpts struct {
	sponsor    common.Address
	nonce      uint64
	validAfter uint64
	validUntil uint64
}

// attachPermit signs op for opts.sponsor with key and stores the blob in
// op.PaymasterAndData.
func attachPermit(t *testing.T, op *types.Operation, key *ecdsa.PrivateKey, opts permitOpts) *permit.Permit {
	t.Helper()
	cfg := DefaultConfig
	p := &permit.Permit{
		Target:             cfg.Address,
		Sponsor:            opts.sponsor,
		Signer:             crypto.PubkeyToAddress(key.PublicKey),
		Nonce:              uint256.NewInt(opts.nonce),
		ValidAfter:         opts.validAfter,
		ValidUntil:         opts.validUntil,
		DraftOperationHash: types.DraftHash(op),
	}
	sig, err := permit.Sign(permit.SigningHash(permit.DomainSeparator(cfg.SystemName, cfg.ChainID, cfg.Address), p), key)
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	p.Signature = sig
	blob, err := permit.Encode(p)
	if err != nil {
		t.Fatalf("encode permit: %v", err)
	}
	op.PaymasterAndData = blob
	return p
}

func selfPay(op *types.Operation) *types.Operation {
	op.PaymasterAndData = DefaultConfig.Address.Bytes()
	return op
}

func TestCallerMustBeEntryPoint(t *testing.T) {
	env := newTestEnv(t)
	key, sponsor := newKey(t)
	env.mint(t, sponsor, 1_000_000)

	op := newOp(common.Address{0x51}, 0)
	attachPermit(t, op, key, permitOpts{sponsor: sponsor, nonce: 1})

	_, err := env.engine.PreCheck(context.Background(), common.Address{0xee}, op, uint256.NewInt(1000))
	if !errors.Is(err, ErrSenderNotAuthority) {
		t.Fatalf("want ErrSenderNotAuthority, got %v", err)
	}
	if ReasonCode(err) != ReasonAuthority {
		t.Fatalf("reason: got %q", ReasonCode(err))
	}
	if nonce.IsConsumed(env.db, sponsor, uint256.NewInt(1)) {
		t.Fatal("authority fault must not consume the nonce")
	}

	res, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if _, err := env.engine.Settle(common.Address{0xee}, res.Token, uint256.NewInt(1), feeRate); !errors.Is(err, ErrSenderNotAuthority) {
		t.Fatalf("settle: want ErrSenderNotAuthority, got %v", err)
	}
	if got := env.balance(sponsor); got != 1_000_000 {
		t.Fatalf("unauthorized settle changed balance to %d", got)
	}
}

func TestSelfPay(t *testing.T) {
	env := newTestEnv(t)
	sender := common.Address{0x52}
	env.mint(t, sender, requiredFor(5000))

	res, err := env.engine.PreCheck(context.Background(), entryPoint, selfPay(newOp(sender, 0)), uint256.NewInt(5000))
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if res.Mode != ModeSelfPay || res.Payer != sender {
		t.Fatalf("unexpected result: mode=%v payer=%s", res.Mode, res.Payer)
	}
	if res.Validation != (ValidationResult{}) {
		t.Fatalf("self-pay carries no window or signature outcome, got %+v", res.Validation)
	}

	s, err := env.engine.Settle(entryPoint, res.Token, uint256.NewInt(3000), feeRate)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.Payer != sender || s.Mode != ModeSelfPay {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if got, want := env.balance(sender), requiredFor(5000)-requiredFor(3000); got != want {
		t.Fatalf("balance after settle: want %d, got %d", want, got)
	}

	// One unit short of the reservation fails.
	if _, err := env.engine.PreCheck(context.Background(), entryPoint, selfPay(newOp(sender, 1)), uint256.NewInt(5000)); !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("want ErrInsufficientCredit, got %v", err)
	}
}

func TestMalformedBlob(t *testing.T) {
	env := newTestEnv(t)
	sender := common.Address{0x53}
	env.mint(t, sender, 1_000_000)

	for _, n := range []int{0, params.PermitTargetLen - 1, params.PermitTargetLen + 1, params.PermitSigOffset - 1} {
		op := newOp(sender, 0)
		op.PaymasterAndData = make([]byte, n)
		_, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1))
		if !errors.Is(err, ErrMalformedPermit) {
			t.Errorf("len %d: want ErrMalformedPermit, got %v", n, err)
		}
		if ReasonCode(err) != ReasonMalformedPermit {
			t.Errorf("len %d: reason %q", n, ReasonCode(err))
		}
	}
}

// Sponsor S mints M, signs for itself with nonce 1 and an open window.
// Settlement debits exactly actualCost + overhead*feeRate, and resubmitting
// the same permit is a replay.
func TestSponsoredSelfSignedLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, sponsor := newKey(t)
	const (
		minted  = 10_000_000
		maxCost = 600_000
		actual  = 420_000
	)
	env.mint(t, sponsor, minted)

	op := newOp(common.Address{0x54}, 0)
	attachPermit(t, op, key, permitOpts{sponsor: sponsor, nonce: 1, validUntil: params.MaxUint48})

	res, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(maxCost))
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if res.Validation.SigFailed {
		t.Fatal("valid self-signed permit reported as failed")
	}
	if res.Mode != ModeSponsored || res.Payer != sponsor {
		t.Fatalf("unexpected payer %s mode %v", res.Payer, res.Mode)
	}
	if res.Validation.ValidAfter != 0 || res.Validation.ValidUntil != params.MaxUint48 {
		t.Fatalf("window not propagated: %+v", res.Validation)
	}
	if res.Required.Uint64() != requiredFor(maxCost) {
		t.Fatalf("required: want %d, got %s", requiredFor(maxCost), res.Required)
	}
	if env.balance(sponsor) != minted {
		t.Fatal("pre-check must not move credit")
	}

	s, err := env.engine.Settle(entryPoint, res.Token, uint256.NewInt(actual), feeRate)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	charge := actual + overhead.Uint64()*feeRate.Uint64()
	if s.Charged.Uint64() != charge {
		t.Fatalf("charged: want %d, got %s", charge, s.Charged)
	}
	if got := env.balance(sponsor); got != minted-charge {
		t.Fatalf("balance: want %d, got %d", minted-charge, got)
	}

	_, err = env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(maxCost))
	if !errors.Is(err, ErrReplayDetected) || !errors.Is(err, nonce.ErrReplayDetected) {
		t.Fatalf("want replay fault, got %v", err)
	}
	if ReasonCode(err) != ReasonReplay {
		t.Fatalf("reason: got %q", ReasonCode(err))
	}
	if got := env.balance(sponsor); got != minted-charge {
		t.Fatalf("replay changed balance to %d", got)
	}
}

func TestSameBatchReplay(t *testing.T) {
	env := newTestEnv(t)
	key, sponsor := newKey(t)
	env.mint(t, sponsor, 10_000_000)

	first, second := newOp(common.Address{0x55}, 0), newOp(common.Address{0x56}, 0)
	attachPermit(t, first, key, permitOpts{sponsor: sponsor, nonce: 42})
	attachPermit(t, second, key, permitOpts{sponsor: sponsor, nonce: 42})

	if _, err := env.engine.PreCheck(context.Background(), entryPoint, first, uint256.NewInt(1000)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := env.engine.PreCheck(context.Background(), entryPoint, second, uint256.NewInt(1000)); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("second permit with same nonce: want ErrReplayDetected, got %v", err)
	}
}

// S delegates to D; D's permit with nonce 7 passes. After S revokes D, a new
// permit with nonce 8 fails on delegation and nonce 8 stays unused.
func TestDelegationRevoked(t *testing.T) {
	env := newTestEnv(t)
	_, sponsor := newKey(t)
	dkey, delegate := newKey(t)
	env.mint(t, sponsor, 10_000_000)

	if err := delegation.Delegate(env.db, sponsor, delegate); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	op := newOp(common.Address{0x57}, 0)
	attachPermit(t, op, dkey, permitOpts{sponsor: sponsor, nonce: 7})
	res, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("delegated precheck: %v", err)
	}
	if res.Validation.SigFailed || res.Payer != sponsor {
		t.Fatalf("unexpected result %+v", res)
	}
	if !nonce.IsConsumed(env.db, delegate, uint256.NewInt(7)) {
		t.Fatal("nonce is scoped to the signer")
	}
	if nonce.IsConsumed(env.db, sponsor, uint256.NewInt(7)) {
		t.Fatal("sponsor nonce space must be untouched")
	}

	if err := delegation.Undelegate(env.db, sponsor, delegate); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	op = newOp(common.Address{0x57}, 1)
	attachPermit(t, op, dkey, permitOpts{sponsor: sponsor, nonce: 8})
	_, err = env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000))
	if !errors.Is(err, ErrInvalidDelegation) {
		t.Fatalf("want ErrInvalidDelegation, got %v", err)
	}
	if ReasonCode(err) != ReasonInvalidDelegation {
		t.Fatalf("reason: got %q", ReasonCode(err))
	}
	if nonce.IsConsumed(env.db, delegate, uint256.NewInt(8)) {
		t.Fatal("nonce 8 must not be consumed by a delegation fault")
	}
}

func TestUndelegatedSignerWithValidSignature(t *testing.T) {
	env := newTestEnv(t)
	_, sponsor := newKey(t)
	skey, _ := newKey(t)
	env.mint(t, sponsor, 10_000_000)

	op := newOp(common.Address{0x58}, 0)
	attachPermit(t, op, skey, permitOpts{sponsor: sponsor, nonce: 1})
	if _, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000)); !errors.Is(err, ErrInvalidDelegation) {
		t.Fatalf("want ErrInvalidDelegation, got %v", err)
	}
}

// Balance exactly one below the requirement: no nonce, no balance change.
func TestInsufficientByOne(t *testing.T) {
	env := newTestEnv(t)
	key, sponsor := newKey(t)
	const maxCost = 77_000
	env.mint(t, sponsor, requiredFor(maxCost)-1)

	op := newOp(common.Address{0x59}, 0)
	attachPermit(t, op, key, permitOpts{sponsor: sponsor, nonce: 3})
	_, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(maxCost))
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("want ErrInsufficientCredit, got %v", err)
	}
	if nonce.IsConsumed(env.db, sponsor, uint256.NewInt(3)) {
		t.Fatal("insufficiency must not consume the nonce")
	}
	if got := env.balance(sponsor); got != requiredFor(maxCost)-1 {
		t.Fatalf("balance changed to %d", got)
	}

	env.mint(t, sponsor, 1)
	if _, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(maxCost)); err != nil {
		t.Fatalf("exact balance should pass: %v", err)
	}
}

func TestBadSignatureIsSoftAndBurnsNonce(t *testing.T) {
	env := newTestEnv(t)
	key, sponsor := newKey(t)
	env.mint(t, sponsor, 10_000_000)

	op := newOp(common.Address{0x5a}, 0)
	attachPermit(t, op, key, permitOpts{sponsor: sponsor, nonce: 5, validAfter: 100, validUntil: 200})
	op.CallData = []byte{0x00} // the signed draft no longer matches

	res, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("signature mismatch must not be a fault: %v", err)
	}
	if !res.Validation.SigFailed {
		t.Fatal("expected SigFailed")
	}
	if res.Validation.ValidAfter != 100 || res.Validation.ValidUntil != 200 {
		t.Fatalf("window: %+v", res.Validation)
	}
	if !nonce.IsConsumed(env.db, sponsor, uint256.NewInt(5)) {
		t.Fatal("nonce must stay consumed after a failed signature")
	}
	if _, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000)); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("want replay after failed signature, got %v", err)
	}
}

func TestMalformedSignatureIsFault(t *testing.T) {
	env := newTestEnv(t)
	key, sponsor := newKey(t)
	env.mint(t, sponsor, 10_000_000)

	op := newOp(common.Address{0x5b}, 0)
	attachPermit(t, op, key, permitOpts{sponsor: sponsor, nonce: 6})
	op.PaymasterAndData = op.PaymasterAndData[:params.PermitSigOffset+10]

	_, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000))
	if !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("want ErrMalformedSignature, got %v", err)
	}
	if ReasonCode(err) != ReasonMalformedSignature {
		t.Fatalf("reason: got %q", ReasonCode(err))
	}
	if !nonce.IsConsumed(env.db, sponsor, uint256.NewInt(6)) {
		t.Fatal("the engine never rolls back a consumed nonce")
	}
}

func TestForkedChainRejectsSignature(t *testing.T) {
	env := newTestEnv(t)
	key, sponsor := newKey(t)
	env.mint(t, sponsor, 10_000_000)
	env.engine.ObserveChain(func() uint64 { return DefaultConfig.ChainID + 1 })

	op := newOp(common.Address{0x5c}, 0)
	attachPermit(t, op, key, permitOpts{sponsor: sponsor, nonce: 1})
	res, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if !res.Validation.SigFailed {
		t.Fatal("permit signed for the original chain must fail on a fork")
	}
}

func TestSettleFaults(t *testing.T) {
	env := newTestEnv(t)
	sender := common.Address{0x5d}
	env.mint(t, sender, requiredFor(1000))

	res, err := env.engine.PreCheck(context.Background(), entryPoint, selfPay(newOp(sender, 0)), uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	for name, token := range map[string][]byte{
		"empty":     nil,
		"no prefix": res.Token[4:],
		"truncated": res.Token[:len(res.Token)-1],
	} {
		if _, err := env.engine.Settle(entryPoint, token, uint256.NewInt(1), feeRate); !errors.Is(err, ErrSettlementToken) {
			t.Errorf("%s: want ErrSettlementToken, got %v", name, err)
		}
	}

	// The environment overran the reservation; the burn fails and nothing moves.
	_, err = env.engine.Settle(entryPoint, res.Token, uint256.NewInt(1001), feeRate)
	if !errors.Is(err, ErrInsufficientCredit) || !errors.Is(err, credit.ErrInsufficientCredit) {
		t.Fatalf("want insufficient credit, got %v", err)
	}
	if got := env.balance(sender); got != requiredFor(1000) {
		t.Fatalf("failed settlement changed balance to %d", got)
	}
}

func TestCostOverflow(t *testing.T) {
	env := newTestEnv(t)
	sender := common.Address{0x5e}
	op := selfPay(newOp(sender, 0))
	op.MaxFeePerGas = new(uint256.Int).SetAllOne()

	_, err := env.engine.PreCheck(context.Background(), entryPoint, op, uint256.NewInt(1))
	if !errors.Is(err, ErrCostOverflow) {
		t.Fatalf("want ErrCostOverflow, got %v", err)
	}
	if ReasonCode(err) != ReasonInsufficientCredit {
		t.Fatalf("reason: got %q", ReasonCode(err))
	}
}

func TestReasonCode(t *testing.T) {
	tests := []struct {
		err  error
		want Reason
	}{
		{nil, ReasonNone},
		{ErrSenderNotAuthority, ReasonAuthority},
		{ErrSettlementToken, ReasonSettlementToken},
		{permit.ErrMalformedPermit, ReasonMalformedPermit},
		{errors.New("disk on fire"), ReasonInternal},
	}
	for _, tt := range tests {
		if got := ReasonCode(tt.err); got != tt.want {
			t.Errorf("ReasonCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
