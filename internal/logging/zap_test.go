package logging

import (
	"testing"

	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ artisan.Logger = (*Printf)(nil)
	_ gateway.Logger = (*Printf)(nil)
)

func TestPrintfFormatsAtLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewPrintf(zap.New(core)).Named("artisand")

	log.Debug("hidden %d", 1)
	log.Info("artisan %s approved", "2")
	log.Warn("slow %s", "verify")
	log.Error("failed: %v", assert.AnError)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "artisan 2 approved", entries[0].Message)
	assert.Equal(t, "artisand", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Contains(t, entries[2].Message, assert.AnError.Error())
}

func TestNew(t *testing.T) {
	logger, err := New("debug", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("warn", false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud", false)
	assert.Error(t, err)
}
