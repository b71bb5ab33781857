package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/core/types"
	"github.com/tos-network/paymaster/params"
)

// readOperation loads an operation from a JSON file.
func readOperation(path string) (*types.Operation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operation: %w", err)
	}
	op := new(types.Operation)
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, fmt.Errorf("invalid operation %s: %w", path, err)
	}
	return op, nil
}

// parseUint256 accepts decimal or 0x-prefixed hex.
func parseUint256(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

// parseAmount parses an integer with an optional denomination suffix, such
// as "5000", "25gwei" or "2credit".
func parseAmount(s string) (*uint256.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	digits := strings.TrimRightFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	unit := s[len(digits):]
	multiplier := uint64(params.Wei)
	if unit != "" {
		m, ok := params.Denominations[unit]
		if !ok {
			return nil, fmt.Errorf("unknown denomination %q", unit)
		}
		multiplier = m
	}
	if digits == "" {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	out, overflow := new(uint256.Int).MulOverflow(v, uint256.NewInt(multiplier))
	if overflow {
		return nil, fmt.Errorf("amount %q overflows uint256", s)
	}
	return out, nil
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, s)
	}
	return common.HexToAddress(s), nil
}
