// Package sponsorconfig contains the configuration of a paymaster deployment
// and its TOML file format.
package sponsorconfig

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/naoina/toml"

	"github.com/tos-network/paymaster/engine"
	"github.com/tos-network/paymaster/params"
)

// Defaults contains default settings for a local paymaster.
var Defaults = Config{
	SystemName:           params.DefaultSystemName,
	ChainID:              params.DefaultChainID,
	Address:              params.DefaultPaymasterAddress,
	EntryPoint:           params.DefaultEntryPointAddress,
	VerificationOverhead: params.VerificationOverheadGas,
	DataDir:              "paymaster-data",
	LogLevel:             3,
}

// Config contains configuration options for the paymaster engine and the
// operator tooling.
type Config struct {
	// Signing domain
	SystemName string         // EIP-712 domain name
	ChainID    uint64         // chain the permits are issued for
	Address    common.Address // verifying contract, also the routing tag

	EntryPoint           common.Address // trusted caller of PreCheck and Settle
	VerificationOverhead uint64         // gas charged for the authorization check

	// Local ledger
	DataDir  string `toml:",omitempty"`
	LogLevel int    `toml:",omitempty"` // 0=crit .. 5=trace
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		if unicode.IsUpper(rune(rt.Name()[0])) {
			return fmt.Errorf("field '%s' is not defined in %s", field, id)
		}
		return fmt.Errorf("field '%s' is not defined", field)
	},
}

// Load reads a TOML file over a copy of Defaults. Keys absent from the file
// keep their default values.
func Load(file string) (Config, error) {
	cfg := Defaults
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Save writes cfg as TOML to file, creating parent directories.
func Save(file string, cfg Config) error {
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, out, 0o644)
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SystemName == "":
		return errors.New("sponsorconfig: SystemName must not be empty")
	case c.ChainID == 0:
		return errors.New("sponsorconfig: ChainID must not be zero")
	case c.EntryPoint == (common.Address{}):
		return errors.New("sponsorconfig: EntryPoint must be set")
	}
	return nil
}

// EngineConfig returns the engine settings of c.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		SystemName:           c.SystemName,
		ChainID:              c.ChainID,
		Address:              c.Address,
		EntryPoint:           c.EntryPoint,
		VerificationOverhead: c.VerificationOverhead,
	}
}
