package sysaction

import (
	"errors"
	"testing"
)

func TestDecodeRoundTrip(t *testing.T) {
	data, err := MakeSysAction(ActionSponsorDelegate, DelegatePayload{Delegate: "0x00000000000000000000000000000000000000d1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sa, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sa.Action != ActionSponsorDelegate {
		t.Fatalf("action: want %s, got %s", ActionSponsorDelegate, sa.Action)
	}
	var p DelegatePayload
	if err := DecodePayload(sa, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Delegate != "0x00000000000000000000000000000000000000d1" {
		t.Fatalf("delegate: got %q", p.Delegate)
	}
}

func TestDecodeRejects(t *testing.T) {
	for name, input := range map[string]string{
		"empty":          "",
		"not json":       "deposit",
		"missing action": `{"payload":{}}`,
	} {
		if _, err := Decode([]byte(input)); !errors.Is(err, ErrInvalidSysAction) {
			t.Errorf("%s: want ErrInvalidSysAction, got %v", name, err)
		}
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	data, err := MakeSysAction(ActionCreditDeposit, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sa, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var p DepositToPayload
	if err := DecodePayload(sa, &p); err != nil {
		t.Fatalf("empty payload should decode to zero value: %v", err)
	}
	if p.Recipient != "" {
		t.Fatalf("unexpected recipient %q", p.Recipient)
	}
}
