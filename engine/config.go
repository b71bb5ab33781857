package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/tos-network/paymaster/params"
)

// Config binds an engine to one paymaster deployment.
type Config struct {
	SystemName string         // EIP-712 domain name
	ChainID    uint64         // chain the domain separator is computed for
	Address    common.Address // verifying contract and routing tag
	EntryPoint common.Address // sole caller allowed to PreCheck and Settle

	// VerificationOverhead is charged per unit of fee on top of the
	// operation's own cost, at reservation and at settlement.
	VerificationOverhead uint64
}

// DefaultConfig contains the default settings for the paymaster engine.
var DefaultConfig = Config{
	SystemName:           params.DefaultSystemName,
	ChainID:              params.DefaultChainID,
	Address:              params.DefaultPaymasterAddress,
	EntryPoint:           params.DefaultEntryPointAddress,
	VerificationOverhead: params.VerificationOverheadGas,
}
