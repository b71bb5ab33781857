// Package delegation tracks which identities a sponsor has authorized to
// sign permits against its credit. Entries live under
// params.DelegationRegistryAddress and are only ever mutated with the
// sponsor as the explicit, already-verified caller.
package delegation

import "errors"

var (
	ErrInvalidDelegate  = errors.New("delegation: delegate must be a non-zero address other than the sponsor")
	ErrAlreadyDelegated = errors.New("delegation: delegate already authorized")
	ErrNotDelegated     = errors.New("delegation: delegate not authorized")
)
