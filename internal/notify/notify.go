// Package notify fans domain events out to users: live over the real-time
// gateway and, for messages, by queued email as well.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/jobs"
	"github.com/flicker/match-app/internal/models"
	"github.com/flicker/match-app/internal/protocol"
)

// Event is a notification addressed to one user. The set is closed.
type Event interface {
	// Name is the real-time event name.
	Name() string
	payload() interface{}
}

// MatchEvent tells a user they matched with Counterpart. It is live-only.
type MatchEvent struct {
	Counterpart models.Summary
}

func (MatchEvent) Name() string { return protocol.TypeNewMatch }

func (e MatchEvent) payload() interface{} { return e.Counterpart }

// MessageEvent tells a user they received Message. Email is queued on every
// send, whether or not the live frame was delivered.
type MessageEvent struct {
	Message models.Message
	Email   jobs.MessageEmail
}

func (MessageEvent) Name() string { return protocol.TypeNewMessage }

func (e MessageEvent) payload() interface{} {
	return protocol.NewMessageMsg{Message: e.Message}
}

// Publisher delivers live events.
type Publisher interface {
	Publish(uid, event string, payload interface{}) bool
}

// Enqueuer queues out-of-band jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) (string, error)
}

// Dispatcher routes events to the live and queued channels.
type Dispatcher struct {
	publisher Publisher
	queue     Enqueuer
	log       zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(publisher Publisher, queue Enqueuer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{publisher: publisher, queue: queue, log: logger}
}

// Notify delivers ev to target. Delivery failures are logged, never
// returned, so a notification can never fail the operation that caused it.
func (d *Dispatcher) Notify(ctx context.Context, target string, ev Event) {
	delivered := d.publish(target, ev)

	switch e := ev.(type) {
	case MatchEvent:
		if !delivered {
			d.log.Debug().Str("user_id", target).Str("counterpart", e.Counterpart.ID).Msg("match not delivered live")
		}
	case MessageEvent:
		d.enqueue(ctx, target, e.Email)
	}
}

func (d *Dispatcher) publish(target string, ev Event) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("user_id", target).Str("event", ev.Name()).Msg("publish panicked")
			delivered = false
		}
	}()
	return d.publisher.Publish(target, ev.Name(), ev.payload())
}

// enqueueTimeout bounds the queue write once it is detached from the
// caller's context.
const enqueueTimeout = 5 * time.Second

// enqueue ignores ctx's cancellation: once a message exists its email is
// always queued, even if the caller has gone away.
func (d *Dispatcher) enqueue(ctx context.Context, target string, job jobs.Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	id, err := d.queue.Enqueue(ctx, job)
	if err != nil {
		d.log.Error().Err(err).Str("user_id", target).Str("kind", string(job.Kind())).Msg("failed to enqueue notification")
		return
	}
	d.log.Debug().Str("user_id", target).Str("job_id", id).Msg("notification queued")
}
