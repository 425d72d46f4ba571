package handlers_test

import (
	"encoding/json"
	"testing"

	_ "github.com/bravo1goingdark/jobengine/handlers"
	"github.com/bravo1goingdark/jobengine/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopReporter struct{}

func (noopReporter) UpdateProgress(float64, float64, string) {}
func (noopReporter) CheckForCancel() error                   { return nil }

func TestIdentityEchoesValue(t *testing.T) {
	h, ok := registry.Lookup("builtin_identity")
	require.True(t, ok)

	result, err := h(noopReporter{}, json.RawMessage(`{"value": 9}`), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(9), result)
}

func TestDivideByZeroFails(t *testing.T) {
	h, ok := registry.Lookup("builtin_divide")
	require.True(t, ok)

	_, err := h(noopReporter{}, json.RawMessage(`{"dividend": 1, "divisor": 0}`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestDivideComputesQuotient(t *testing.T) {
	h, ok := registry.Lookup("builtin_divide")
	require.True(t, ok)

	result, err := h(noopReporter{}, json.RawMessage(`{"dividend": 10, "divisor": 2}`), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(5), result)
}
