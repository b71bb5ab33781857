package params

import "github.com/ethereum/go-ethereum/common"

// Well-known system addresses. Ledger state lives in the storage of these
// accounts, one keccak-derived slot per record.
var (
	// SystemActionAddress is the sentinel To-address for system action calls.
	// The call data is a JSON-encoded SysAction executed by sysaction.Execute.
	SystemActionAddress = common.HexToAddress("0x0000000000000000000000000000000050415931") // "PAY1"

	// CreditLedgerAddress stores prepaid credit balances and supply counters.
	CreditLedgerAddress = common.HexToAddress("0x0000000000000000000000000000000050415932") // "PAY2"

	// NonceLedgerAddress stores the per-signer replay-protection bitmaps.
	NonceLedgerAddress = common.HexToAddress("0x0000000000000000000000000000000050415933") // "PAY3"

	// DelegationRegistryAddress stores sponsor -> delegate signing authority.
	DelegationRegistryAddress = common.HexToAddress("0x0000000000000000000000000000000050415934") // "PAY4"

	// DefaultPaymasterAddress is the verifying contract bound into the permit
	// domain separator and the routing tag at the head of every blob.
	DefaultPaymasterAddress = common.HexToAddress("0x0000000000000000000000000000000050415935") // "PAY5"

	// DefaultEntryPointAddress is the trusted execution environment allowed to
	// call PreCheck and Settle.
	DefaultEntryPointAddress = common.HexToAddress("0x0000000000000000000000000000000000AA4337")
)

const (
	// SysActionGas is the fixed gas cost charged for any system action call.
	SysActionGas uint64 = 100_000

	// VerificationOverheadGas is the metered cost of the authorization check
	// itself. The payer is charged overhead*feeRate on top of the operation
	// cost, both when reserving and when settling.
	VerificationOverheadGas uint64 = 40_000

	// DefaultChainID is the chain id used when no configuration is given.
	DefaultChainID uint64 = 1666

	// DefaultSystemName is the EIP-712 domain name of the paymaster.
	DefaultSystemName = "SponsorPaymaster"
)

// Authorization blob layout. The blob is fixed-offset and order dependent;
// only the signature tail is variable length.
const (
	PermitTargetLen     = common.AddressLength
	PermitSponsorOffset = PermitTargetLen
	PermitSignerOffset  = PermitSponsorOffset + common.AddressLength
	PermitNonceOffset   = PermitSignerOffset + common.AddressLength
	PermitAfterOffset   = PermitNonceOffset + 32
	PermitUntilOffset   = PermitAfterOffset + 6
	PermitSigOffset     = PermitUntilOffset + 6 // 104

	// MaxUint48 is the largest value a 6-byte validity timestamp can carry.
	MaxUint48 uint64 = 1<<48 - 1
)
