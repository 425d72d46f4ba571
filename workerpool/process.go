package workerpool

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/messaging"
)

// runProcess executes payload's handler in a re-executed child process
// (see Init/runReexecChild). Progress arrives as PROGRESS lines on the
// child's stdout and is relayed onto the outgoing mailbox exactly like the
// thread path; a RESULT or ERROR line carries the terminal outcome. A
// child that exits without ever producing one is reported as WorkerDied —
// the substrate crashed, killed, or OOM-killed the user code.
func (p *Pool) runProcess(payload messaging.StartJobPayload, r *running) {
	jobID := payload.JobID

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), reexecEnvVar+"=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.finishJob(jobID, messaging.NewJobFailed(jobID, types.NewWorkerDied("could not open worker stdin: "+err.Error()).Error(), ""))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.finishJob(jobID, messaging.NewJobFailed(jobID, types.NewWorkerDied("could not open worker stdout: "+err.Error()).Error(), ""))
		return
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		p.finishJob(jobID, messaging.NewJobFailed(jobID, types.NewWorkerDied("could not start worker process: "+err.Error()).Error(), ""))
		return
	}

	input := reexecInput{
		Func: payload.Func, Args: payload.Args, Kwargs: payload.Kwargs,
		TrackProgress: payload.TrackProgress, Cancellable: payload.Cancellable,
	}
	encodedInput, _ := json.Marshal(input)
	if _, err := fmt.Fprintf(stdin, "%s\n", encodedInput); err != nil {
		_ = cmd.Process.Kill()
		p.finishJob(jobID, messaging.NewJobFailed(jobID, types.NewWorkerDied("could not write worker input: "+err.Error()).Error(), ""))
		return
	}

	cancelDone := make(chan struct{})
	go func() {
		select {
		case <-r.cancel:
			fmt.Fprintf(stdin, "%s\n", lineCancel)
		case <-cancelDone:
		}
	}()

	var result json.RawMessage
	var exception, traceback string
	gotOutcome := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, linePrefixProgress):
			var pr reexecProgress
			if json.Unmarshal([]byte(strings.TrimPrefix(line, linePrefixProgress)), &pr) == nil {
				p.bus.Send(p.outgoing, messaging.NewJobUpdated(messaging.JobUpdatedPayload{
					JobID: jobID, Progress: pr.Progress, TotalProgress: pr.Total, Stage: pr.Stage,
				}))
				if p.checkpoints != nil {
					_ = p.checkpoints.Save(jobID, pr.Progress, pr.Total, pr.Stage)
				}
			}
		case strings.HasPrefix(line, linePrefixResult):
			result = json.RawMessage(strings.TrimPrefix(line, linePrefixResult))
			gotOutcome = true
		case strings.HasPrefix(line, linePrefixError):
			var e reexecError
			if json.Unmarshal([]byte(strings.TrimPrefix(line, linePrefixError)), &e) == nil {
				exception, traceback = e.Exception, e.Traceback
			} else {
				exception = "worker reported an unparsable error"
			}
			gotOutcome = true
		}
	}
	_ = scanner.Err()
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	close(cancelDone)

	var terminal messaging.Message
	switch {
	case !gotOutcome:
		reason := "worker process exited without reporting an outcome"
		if waitErr != nil {
			reason = fmt.Sprintf("%s: %v", reason, waitErr)
		}
		if stderr.Len() > 0 {
			reason = fmt.Sprintf("%s; stderr: %s", reason, strings.TrimSpace(stderr.String()))
		}
		if p.checkpoints != nil {
			if last, ok := p.checkpoints.Load(jobID); ok {
				reason = fmt.Sprintf("%s; last known progress %.0f/%.0f (%s)", reason, last.Progress, last.Total, last.Stage)
			}
		}
		terminal = messaging.NewJobFailed(jobID, types.NewWorkerDied(reason).Error(), "")
	case exception != "":
		terminal = messaging.NewJobFailed(jobID, exception, traceback)
	default:
		terminal = messaging.NewJobCompleted(jobID, result)
	}
	p.finishJob(jobID, terminal)
}
