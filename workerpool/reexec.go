package workerpool

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"sync/atomic"

	"github.com/bravo1goingdark/jobengine/internal/registry"
	"github.com/bravo1goingdark/jobengine/internal/types"
)

// Init must be the first thing a host binary's main() calls when it wants
// to run workers in WorkerProcess mode. If the current process is a
// re-executed worker child (spawned by runProcess), Init runs the requested
// handler to completion, writes its outcome to stdout, and exits — it never
// returns. Otherwise Init returns false immediately and main() continues as
// normal. This mirrors the re-exec pattern containerized process managers
// use to isolate child logic without a second binary on disk.
func Init() bool {
	if os.Getenv(reexecEnvVar) == "" {
		return false
	}
	runReexecChild()
	panic("workerpool: runReexecChild returned") // unreachable; it always os.Exit()s
}

func runReexecChild() {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "workerpool: worker child could not read input line: %v\n", err)
		os.Exit(1)
	}

	var in reexecInput
	if err := json.Unmarshal([]byte(line), &in); err != nil {
		fmt.Fprintf(os.Stderr, "workerpool: worker child could not decode input: %v\n", err)
		os.Exit(1)
	}

	var cancelled atomic.Bool
	go watchForCancelLine(reader, &cancelled)

	out := &childWriter{w: os.Stdout}
	ctx := &processChildContext{
		trackProgress: in.TrackProgress,
		cancellable:   in.Cancellable,
		cancelled:     &cancelled,
		out:           out,
	}

	handler, ok := registry.Lookup(in.Func)
	if !ok {
		out.writeError(types.NewWorkerDied(fmt.Sprintf("handler %q is not registered", in.Func)).Error(), "")
		os.Exit(0)
	}

	result, exception, traceback := invokeChild(handler, ctx, in)
	if exception != "" {
		out.writeError(exception, traceback)
		os.Exit(0)
	}
	out.writeResult(result)
	os.Exit(0)
}

// watchForCancelLine keeps reading stdin lines for the lifetime of the
// child, setting cancelled once a CANCEL line arrives from the parent.
func watchForCancelLine(reader *bufio.Reader, cancelled *atomic.Bool) {
	for {
		line, err := reader.ReadString('\n')
		if line == lineCancel+"\n" || line == lineCancel {
			cancelled.Store(true)
		}
		if err != nil {
			return
		}
	}
}

func invokeChild(h registry.Handler, ctx registry.ProgressReporter, in reexecInput) (result json.RawMessage, exception, traceback string) {
	defer func() {
		if rec := recover(); rec != nil {
			exception = fmt.Sprintf("panic in handler %q: %v", in.Func, rec)
			traceback = string(debug.Stack())
			result = nil
		}
	}()

	value, err := h(ctx, in.Args, in.Kwargs)
	if err != nil {
		return nil, err.Error(), ""
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Sprintf("handler %q returned a non-serializable result: %v", in.Func, err), ""
	}
	return encoded, "", ""
}

// processChildContext is the registry.ProgressReporter available to a
// handler running in a worker subprocess. It relays progress across the
// process boundary as JSON lines on stdout instead of a direct callback.
type processChildContext struct {
	trackProgress bool
	cancellable   bool
	cancelled     *atomic.Bool
	out           *childWriter
}

func (c *processChildContext) UpdateProgress(progress, total float64, stage string) {
	if !c.trackProgress {
		return
	}
	c.out.writeProgress(progress, total, stage)
}

func (c *processChildContext) CheckForCancel() error {
	if !c.cancellable {
		return nil
	}
	if c.cancelled.Load() {
		return types.ErrUserCancelled
	}
	return nil
}
