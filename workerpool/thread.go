package workerpool

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/bravo1goingdark/jobengine/internal/registry"
	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/messaging"
)

// runThread executes payload's handler in a goroutine. It never lets a
// handler panic escape: a panic is reported exactly like a returned error,
// carrying a captured stack trace as the traceback.
func (p *Pool) runThread(payload messaging.StartJobPayload, r *running) {
	jobID := payload.JobID

	ctx := &ThreadContext{
		trackProgress: payload.TrackProgress,
		cancellable:   payload.Cancellable,
		cancel:        r.cancel,
		onProgress: func(progress, total float64, stage string) {
			p.bus.Send(p.outgoing, messaging.NewJobUpdated(messaging.JobUpdatedPayload{
				JobID: jobID, Progress: progress, TotalProgress: total, Stage: stage,
			}))
		},
	}

	result, exception, traceback := p.invoke(payload, ctx)

	var terminal messaging.Message
	if exception != "" {
		terminal = messaging.NewJobFailed(jobID, exception, traceback)
	} else {
		terminal = messaging.NewJobCompleted(jobID, result)
	}
	p.finishJob(jobID, terminal)
}

func (p *Pool) invoke(payload messaging.StartJobPayload, ctx registry.ProgressReporter) (result json.RawMessage, exception, traceback string) {
	handler, ok := registry.Lookup(payload.Func)
	if !ok {
		return nil, types.NewWorkerDied(fmt.Sprintf("handler %q is not registered", payload.Func)).Error(), ""
	}

	defer func() {
		if rec := recover(); rec != nil {
			exception = fmt.Sprintf("panic in handler %q: %v", payload.Func, rec)
			traceback = string(debug.Stack())
			result = nil
		}
	}()

	value, err := handler(ctx, payload.Args, payload.Kwargs)
	if err != nil {
		return nil, err.Error(), ""
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Sprintf("handler %q returned a non-serializable result: %v", payload.Func, err), ""
	}
	return encoded, "", ""
}
