package logger_test

import (
	"testing"

	"github.com/bravo1goingdark/jobengine/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImplementsLoggerInterface(t *testing.T) {
	log := logger.New("test")
	assert.NotNil(t, log)

	assert.NotPanics(t, func() {
		log.Infof("info %s", "a")
		log.Warnf("warn %d", 1)
		log.Errorf("error: %v", "boom")
	})
}

func TestSetLevelRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, logger.SetLevel("not-a-level"))
}

func TestSetLevelAppliesToSubsequentLoggers(t *testing.T) {
	require.NoError(t, logger.SetLevel("warn"))
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	log := logger.New("test")
	assert.NotPanics(t, func() { log.Infof("dropped at warn level") })
}
