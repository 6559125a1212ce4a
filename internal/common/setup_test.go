package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitializeLoggerReplacesGlobals(t *testing.T) {
	restore := zap.ReplaceGlobals(zap.NewNop())
	defer restore()

	logger, cleanup := InitializeLogger()
	require.NotNil(t, logger)
	require.NotNil(t, cleanup)

	// the global logger is usable before any config is loaded
	assert.Same(t, logger, zap.L())
	assert.NotPanics(t, cleanup)
}

func TestIsIgnorableSyncError(t *testing.T) {
	assert.True(t, isIgnorableSyncError(errors.New("sync /dev/stderr: inappropriate ioctl for device")))
	assert.False(t, isIgnorableSyncError(errors.New("disk full")))
}
