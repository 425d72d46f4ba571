package messaging

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

// fields is the flattened view of a Message an expr predicate evaluates
// against. Only the fields needed to pick out one job's message (job_id,
// type) are exposed, mirroring how parser.Expression
// evaluates a compiled program against a flat map of recipient fields.
type fields struct {
	Type  string `expr:"type"`
	JobID string `expr:"job_id"`
}

// CompilePredicate compiles an expr-lang boolean expression once (e.g.
// `type == "JOB_FAILED" && job_id == "abc123"`) into a reusable Predicate.
// Compiling once and running many times is the same shape parser/expr.go
// uses for per-recipient filter evaluation.
func CompilePredicate(expression string) (Predicate, error) {
	program, err := expr.Compile(expression, expr.Env(fields{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrap(err, "messaging: compile predicate")
	}
	return func(m Message) bool {
		return runPredicate(program, m)
	}, nil
}

func runPredicate(program *vm.Program, m Message) bool {
	var jobID string
	_ = Decode(m, &struct {
		JobID *string `json:"job_id"`
	}{JobID: &jobID})

	out, err := expr.Run(program, fields{Type: string(m.Type), JobID: jobID})
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

// MatchJobID returns a Predicate matching messages of the given type whose
// job_id equals jobID — the common case engine.Client.Cancel uses to pull
// a QUEUED job's unread START_JOB back out of the worker pool's mailbox.
func MatchJobID(t MessageType, jobID string) Predicate {
	return func(m Message) bool {
		if m.Type != t {
			return false
		}
		var p struct {
			JobID string `json:"job_id"`
		}
		if err := Decode(m, &p); err != nil {
			return false
		}
		return p.JobID == jobID
	}
}
