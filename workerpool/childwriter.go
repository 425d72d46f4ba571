package workerpool

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// childWriter serializes the worker child's stdout writes: a handler that
// reports progress from multiple goroutines must not interleave partial
// JSON lines.
type childWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *childWriter) writeProgress(progress, total float64, stage string) {
	c.writeLine(linePrefixProgress, reexecProgress{Progress: progress, Total: total, Stage: stage})
}

func (c *childWriter) writeResult(result json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	fmt.Fprintf(c.w, "%s%s\n", linePrefixResult, string(result))
}

func (c *childWriter) writeError(exception, traceback string) {
	c.writeLine(linePrefixError, reexecError{Exception: exception, Traceback: traceback})
}

func (c *childWriter) writeLine(prefix string, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		encoded = []byte(`{}`)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s%s\n", prefix, string(encoded))
}
