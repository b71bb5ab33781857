package sponsorconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-network/paymaster/engine"
)

func TestDefaultsMatchEngine(t *testing.T) {
	assert.Equal(t, engine.DefaultConfig, Defaults.EngineConfig())
	assert.NoError(t, Defaults.Validate())
}

func TestSaveLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "conf", "paymaster.toml")
	cfg := Defaults
	cfg.ChainID = 31337
	cfg.Address = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	cfg.DataDir = "/var/lib/paymaster"

	require.NoError(t, Save(file, cfg))
	loaded, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartial(t *testing.T) {
	file := filepath.Join(t.TempDir(), "paymaster.toml")
	require.NoError(t, os.WriteFile(file, []byte("ChainID = 7\n"), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.ChainID)
	assert.Equal(t, Defaults.SystemName, cfg.SystemName)
	assert.Equal(t, Defaults.EntryPoint, cfg.EntryPoint)
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown": "Bogus = 1\n",
		"syntax":  "ChainID = \n",
		"zero":    "ChainID = 0\n",
	} {
		file := filepath.Join(dir, name+".toml")
		require.NoError(t, os.WriteFile(file, []byte(body), 0o644))
		_, err := Load(file)
		assert.Error(t, err, name)
	}

	file := filepath.Join(dir, "syntax.toml")
	_, err := Load(file)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), file), "line errors carry the file name: %v", err)
}
