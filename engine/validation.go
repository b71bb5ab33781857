package engine

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ValidationResult is the soft outcome of PreCheck. A failed signature and
// the validity window are reported here rather than as errors; the caller
// decides whether and when the operation may run.
type ValidationResult struct {
	SigFailed  bool
	ValidAfter uint64
	ValidUntil uint64 // 0 means no upper bound
}

// ActiveAt reports whether ts falls inside the validity window.
func (v ValidationResult) ActiveAt(ts uint64) bool {
	if ts < v.ValidAfter {
		return false
	}
	return v.ValidUntil == 0 || ts <= v.ValidUntil
}

// Valid reports whether the signature held and ts is inside the window.
func (v ValidationResult) Valid(ts uint64) bool {
	return !v.SigFailed && v.ActiveAt(ts)
}

// Pack encodes v as a legacy validationData word:
// sigFailed | validUntil<<160 | validAfter<<208.
func (v ValidationResult) Pack() *uint256.Int {
	out := new(uint256.Int)
	if v.SigFailed {
		out.SetOne()
	}
	until := new(uint256.Int).Lsh(uint256.NewInt(v.ValidUntil&0xffffffffffff), 160)
	after := new(uint256.Int).Lsh(uint256.NewInt(v.ValidAfter&0xffffffffffff), 208)
	return out.Or(out, until).Or(out, after)
}

// UnpackValidationData decodes a legacy validationData word. The low 160
// bits must be 0 (valid) or 1 (signature failed); aggregator addresses are
// not supported.
func UnpackValidationData(data *uint256.Int) (ValidationResult, error) {
	mask48 := uint256.NewInt(0xffffffffffff)
	low := new(uint256.Int).And(data, new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1)))
	if !low.IsUint64() || low.Uint64() > 1 {
		return ValidationResult{}, fmt.Errorf("engine: unsupported aggregator %s in validation data", low.Hex())
	}
	return ValidationResult{
		SigFailed:  low.Uint64() == 1,
		ValidUntil: new(uint256.Int).And(new(uint256.Int).Rsh(data, 160), mask48).Uint64(),
		ValidAfter: new(uint256.Int).And(new(uint256.Int).Rsh(data, 208), mask48).Uint64(),
	}, nil
}
