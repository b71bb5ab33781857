package sysaction

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tos-network/paymaster/params"
)

const actionEcho ActionKind = "TEST_ECHO"

// echoHandler records the context of the last call it served.
type echoHandler struct {
	last *Context
}

func (h *echoHandler) CanHandle(kind ActionKind) bool { return kind == actionEcho }

func (h *echoHandler) Handle(ctx *Context, sa *SysAction) error {
	h.last = ctx
	return nil
}

var echo = &echoHandler{}

func init() {
	DefaultRegistry.Register(echo)
}

type testMsg struct {
	from  common.Address
	to    *common.Address
	value *uint256.Int
	data  []byte
}

func (m testMsg) From() common.Address { return m.from }
func (m testMsg) To() *common.Address  { return m.to }
func (m testMsg) Value() *uint256.Int  { return m.value }
func (m testMsg) Data() []byte         { return m.data }

func TestExecuteDispatches(t *testing.T) {
	data, err := MakeSysAction(actionEcho, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	to := params.SystemActionAddress
	from := common.Address{0x42}
	gas, err := Execute(testMsg{from: from, to: &to, value: uint256.NewInt(9), data: data}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gas != params.SysActionGas {
		t.Fatalf("gas: want %d, got %d", params.SysActionGas, gas)
	}
	if echo.last == nil || echo.last.From != from || echo.last.Value.Uint64() != 9 {
		t.Fatalf("handler saw wrong context: %+v", echo.last)
	}
}

func TestExecuteWrongAddress(t *testing.T) {
	data, _ := MakeSysAction(actionEcho, nil)
	other := common.Address{0x01}
	if _, err := Execute(testMsg{to: &other, data: data}, nil); !errors.Is(err, ErrInvalidSysAction) {
		t.Fatalf("want ErrInvalidSysAction, got %v", err)
	}
	if _, err := Execute(testMsg{data: data}, nil); !errors.Is(err, ErrInvalidSysAction) {
		t.Fatalf("contract creation: want ErrInvalidSysAction, got %v", err)
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	data, _ := MakeSysAction("NOPE", nil)
	err := ExecuteWithContext(&Context{}, data)
	if err == nil || !strings.Contains(err.Error(), "unknown system action") {
		t.Fatalf("want unknown action error, got %v", err)
	}
}
