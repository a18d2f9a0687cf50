// Package jobs carries out-of-band notification work: a Redis-backed FIFO
// queue of typed jobs and a worker that delivers them by email.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a job type on the wire.
type Kind string

// Job kinds.
const (
	KindMessageEmail Kind = "message"
)

// Job is a unit of queued work. The set of implementations is closed; Decode
// and the worker switch over every one of them.
type Job interface {
	Kind() Kind
}

// MessageEmail tells an offline reader they received a message.
type MessageEmail struct {
	To         string `json:"to"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

// Kind implements Job.
func (MessageEmail) Kind() Kind { return KindMessageEmail }

// Envelope is the stored form of a job.
type Envelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ErrMalformed wraps every Decode failure.
var ErrMalformed = errors.New("jobs: malformed job")

// Encode wraps job in a new Envelope and marshals it.
func Encode(job Job) (Envelope, []byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("jobs: failed to marshal %s payload: %w", job.Kind(), err)
	}
	env := Envelope{
		ID:         uuid.New().String(),
		Kind:       job.Kind(),
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("jobs: failed to marshal envelope: %w", err)
	}
	return env, data, nil
}

// Decode parses a stored envelope and its typed payload. The envelope is
// returned even when the payload is bad so callers can log its ID.
func Decode(data []byte) (Envelope, Job, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Kind {
	case KindMessageEmail:
		var j MessageEmail
		if err := json.Unmarshal(env.Payload, &j); err != nil {
			return env, nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Kind, err)
		}
		return env, j, nil
	default:
		return env, nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, env.Kind)
	}
}
