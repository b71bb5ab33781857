// Package sysaction implements the paymaster system action protocol.
//
// System actions are calls sent to params.SystemActionAddress. Their data
// field is a JSON-encoded SysAction message, dispatched by Execute to the
// handler registered for its kind (credit deposits, delegation management).
// The caller identity is verified by the environment and passed in
// explicitly; handlers never derive it themselves.
package sysaction

import "encoding/json"

// ActionKind identifies the type of system action.
type ActionKind string

const (
	// Credit ledger
	ActionCreditDeposit   ActionKind = "CREDIT_DEPOSIT"
	ActionCreditDepositTo ActionKind = "CREDIT_DEPOSIT_TO"

	// Delegation registry
	ActionSponsorDelegate   ActionKind = "SPONSOR_DELEGATE"
	ActionSponsorUndelegate ActionKind = "SPONSOR_UNDELEGATE"
)

// SysAction is the top-level envelope carried in the call data.
type SysAction struct {
	Action  ActionKind      `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DepositToPayload is the payload for CREDIT_DEPOSIT_TO.
type DepositToPayload struct {
	Recipient string `json:"recipient"`
}

// DelegatePayload is the payload for SPONSOR_DELEGATE / SPONSOR_UNDELEGATE.
type DelegatePayload struct {
	Delegate string `json:"delegate"`
}
