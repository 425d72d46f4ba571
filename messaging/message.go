package messaging

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MessageType is the closed set of message types the bus carries. An
// unrecognized type surfaced at a consumer is a ProgrammerError: it must
// fail loudly, never be silently ignored — carried over in semantics from
// barbequeue's MessageType.
type MessageType string

const (
	StartJob  MessageType = "START_JOB"
	CancelJob MessageType = "CANCEL_JOB"

	JobStarted   MessageType = "JOB_STARTED"
	JobUpdated   MessageType = "JOB_UPDATED"
	JobCompleted MessageType = "JOB_COMPLETED"
	JobFailed    MessageType = "JOB_FAILED"

	// SlotAvailable resolves the Design Notes' open question on slot
	// accounting: the pool tells the scheduler explicitly rather than the
	// scheduler inferring free slots by subtraction.
	SlotAvailable MessageType = "SLOT_AVAILABLE"
)

var validTypes = map[MessageType]bool{
	StartJob: true, CancelJob: true,
	JobStarted: true, JobUpdated: true, JobCompleted: true, JobFailed: true,
	SlotAvailable: true,
}

// Message is an immutable {type, payload} record. The field is named
// Message (corrected from the original wire format's three-s "messsage"
// typo — see SPEC_FULL.md's Design Notes for why this is an intentional,
// documented break rather than a preserved quirk).
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"message"`
}

// Serialize encodes the message, refusing to serialize an unknown type.
func (m Message) Serialize() ([]byte, error) {
	if !validTypes[m.Type] {
		return nil, errors.Errorf("messaging: unknown message type %q", m.Type)
	}
	return json.Marshal(m)
}

func mustPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(errors.Wrap(err, "messaging: marshal payload"))
	}
	return b
}

// StartJobPayload is the payload of a START_JOB message.
type StartJobPayload struct {
	JobID         string          `json:"job_id"`
	Func          string          `json:"func"`
	Args          json.RawMessage `json:"args,omitempty"`
	Kwargs        json.RawMessage `json:"kwargs,omitempty"`
	TrackProgress bool            `json:"track_progress"`
	Cancellable   bool            `json:"cancellable"`
}

// NewStartJob builds a START_JOB message.
func NewStartJob(p StartJobPayload) Message {
	return Message{Type: StartJob, Payload: mustPayload(p)}
}

// CancelJobPayload is the payload of a CANCEL_JOB message.
type CancelJobPayload struct {
	JobID string `json:"job_id"`
}

// NewCancelJob builds a CANCEL_JOB message.
func NewCancelJob(jobID string) Message {
	return Message{Type: CancelJob, Payload: mustPayload(CancelJobPayload{JobID: jobID})}
}

// JobStartedPayload is the payload of a JOB_STARTED message.
type JobStartedPayload struct {
	JobID string `json:"job_id"`
}

// NewJobStarted builds a JOB_STARTED message.
func NewJobStarted(jobID string) Message {
	return Message{Type: JobStarted, Payload: mustPayload(JobStartedPayload{JobID: jobID})}
}

// JobUpdatedPayload is the payload of a JOB_UPDATED message.
type JobUpdatedPayload struct {
	JobID         string  `json:"job_id"`
	Progress      float64 `json:"progress"`
	TotalProgress float64 `json:"total_progress"`
	Stage         string  `json:"stage,omitempty"`
}

// NewJobUpdated builds a JOB_UPDATED message.
func NewJobUpdated(p JobUpdatedPayload) Message {
	return Message{Type: JobUpdated, Payload: mustPayload(p)}
}

// JobCompletedPayload is the payload of a JOB_COMPLETED message.
type JobCompletedPayload struct {
	JobID  string          `json:"job_id"`
	Result json.RawMessage `json:"result,omitempty"`
}

// NewJobCompleted builds a JOB_COMPLETED message.
func NewJobCompleted(jobID string, result json.RawMessage) Message {
	return Message{Type: JobCompleted, Payload: mustPayload(JobCompletedPayload{JobID: jobID, Result: result})}
}

// JobFailedPayload is the payload of a JOB_FAILED message.
type JobFailedPayload struct {
	JobID     string `json:"job_id"`
	Exception string `json:"exception"`
	Traceback string `json:"traceback,omitempty"`
}

// NewJobFailed builds a JOB_FAILED message.
func NewJobFailed(jobID, exception, traceback string) Message {
	return Message{Type: JobFailed, Payload: mustPayload(JobFailedPayload{
		JobID: jobID, Exception: exception, Traceback: traceback,
	})}
}

// SlotAvailablePayload is the payload of a SLOT_AVAILABLE message.
type SlotAvailablePayload struct {
	FreeSlots int `json:"free_slots"`
}

// NewSlotAvailable builds a SLOT_AVAILABLE message.
func NewSlotAvailable(freeSlots int) Message {
	return Message{Type: SlotAvailable, Payload: mustPayload(SlotAvailablePayload{FreeSlots: freeSlots})}
}

// Decode unmarshals m's payload into v.
func Decode(m Message, v any) error {
	return errors.Wrap(json.Unmarshal(m.Payload, v), "messaging: decode payload")
}
