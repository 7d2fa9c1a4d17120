package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTableConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  "1":
    cacheBytes: 1048576
    bloomFilterBits: 10
  "42":
    compress: false
    writeBufferBytes: 4194304
`), 0o644))

	configs, err := LoadTableConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	one := configs[1]
	assert.Equal(t, uint64(1048576), one.CacheBytes)
	assert.Equal(t, uint64(10), one.BloomFilterBits)
	assert.Equal(t, Default, one.BlockBytes)
	assert.Equal(t, CompressionDefault, one.Compression)

	other := configs[42]
	assert.Equal(t, CompressionOff, other.Compression)
	assert.Equal(t, uint64(4194304), other.WriteBufferBytes)
	assert.Equal(t, Default, other.CacheBytes)
}

func TestParseTableConfigsErrors(t *testing.T) {
	_, err := ParseTableConfigs([]byte("tables:\n  \"abc\":\n    cacheBytes: 1\n"))
	assert.Error(t, err)

	_, err = LoadTableConfigs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
