package common

import (
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"debug": logger.DEBUG,
		"INFO":  logger.INFO,
		"warn":  logger.WARNING,
		"error": logger.ERROR,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestWriteFlagsDurability(t *testing.T) {
	assert.Equal(t, FlagFullSync, FlagsFor(FlagFullSync.Durability()))
	assert.Equal(t, FlagPartSync, FlagsFor(FlagPartSync.Durability()))
	assert.Equal(t, WriteFlags(0), FlagsFor(WriteFlags(0).Durability()))
	// FULLSYNC wins over PARTSYNC
	assert.Equal(t, FlagFullSync, FlagsFor((FlagFullSync | FlagPartSync).Durability()))
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusOK.IsError())
	assert.False(t, StatusPartial.IsError())
	assert.True(t, StatusProtocolError.IsError())
	assert.True(t, StatusShuttingDown.IsError())
	assert.Equal(t, "read", OpRead.String())
	assert.True(t, OpDeleteRange.IsWrite())
	assert.False(t, OpRead.IsWrite())
}
