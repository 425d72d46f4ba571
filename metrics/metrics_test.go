package metrics_test

import (
	"testing"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/metrics"
	"github.com/stretchr/testify/assert"
)

func TestObserveTerminalIncrementsMatchingCounter(t *testing.T) {
	r := metrics.NewRegistry()

	r.ObserveTerminal(types.Job{State: types.Completed})
	r.ObserveTerminal(types.Job{State: types.Failed})
	r.ObserveTerminal(types.Job{State: types.Failed})
	r.ObserveTerminal(types.Job{State: types.Canceled})
	r.ObserveTerminal(types.Job{State: types.Running}) // non-terminal, ignored

	assert.Equal(t, int64(1), r.JobsCompleted.Value())
	assert.Equal(t, int64(2), r.JobsFailed.Value())
	assert.Equal(t, int64(1), r.JobsCanceled.Value())
}

func TestSetFreeSlots(t *testing.T) {
	r := metrics.NewRegistry()
	r.SetFreeSlots(3)
	assert.Equal(t, int64(3), r.FreeSlots.Value())
}
