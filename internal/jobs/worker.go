package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/metrics"
)

// Source yields queued jobs.
type Source interface {
	Dequeue(ctx context.Context, timeout time.Duration) (Envelope, Job, error)
}

// WorkerConfig holds worker tuning parameters.
type WorkerConfig struct {
	Concurrency int           // deliveries in flight at once
	PollTimeout time.Duration // how long one BRPOP blocks
	JobTimeout  time.Duration // bound on a single delivery
}

// DefaultWorkerConfig returns production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency: 4,
		PollTimeout: 5 * time.Second,
		JobTimeout:  30 * time.Second,
	}
}

// Worker consumes the queue and delivers each job once. Failures are logged
// and counted; nothing is retried or parked.
type Worker struct {
	source Source
	mailer Mailer
	config WorkerConfig
	log    zerolog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a worker reading from source and sending with mailer.
func NewWorker(source Source, mailer Mailer, config WorkerConfig, logger zerolog.Logger) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Worker{
		source: source,
		mailer: mailer,
		config: config,
		log:    logger,
		sem:    make(chan struct{}, config.Concurrency),
	}
}

// Run pops jobs until ctx is cancelled, then waits for in-flight deliveries.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("concurrency", w.config.Concurrency).Msg("worker started")
	defer func() {
		w.wg.Wait()
		w.log.Info().Msg("worker stopped")
	}()

	for {
		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		env, job, err := w.source.Dequeue(ctx, w.config.PollTimeout)
		if err != nil {
			<-w.sem
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, ErrEmpty):
			case errors.Is(err, ErrMalformed):
				w.log.Error().Err(err).Str("job_id", env.ID).Msg("dropping malformed job")
				metrics.JobsTotal.WithLabelValues(string(env.Kind), metrics.JobDropped).Inc()
			default:
				w.log.Error().Err(err).Msg("dequeue failed")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return nil
				}
			}
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			_ = w.Process(context.WithoutCancel(ctx), env, job)
		}()
	}
}

// Process delivers one job and records the outcome.
func (w *Worker) Process(ctx context.Context, env Envelope, job Job) error {
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}

	kind := string(job.Kind())
	start := time.Now()
	err := w.handle(ctx, job)
	metrics.JobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.JobsTotal.WithLabelValues(kind, metrics.JobFailed).Inc()
		w.log.Error().Err(err).Str("job_id", env.ID).Str("kind", kind).Msg("job failed")
		return err
	}
	metrics.JobsTotal.WithLabelValues(kind, metrics.JobCompleted).Inc()
	w.log.Info().Str("job_id", env.ID).Str("kind", kind).Msg("job completed")
	return nil
}

func (w *Worker) handle(ctx context.Context, job Job) error {
	switch j := job.(type) {
	case MessageEmail:
		subject, html, err := RenderMessageEmail(j)
		if err != nil {
			return err
		}
		return w.mailer.SendEmail(ctx, j.To, subject, html)
	default:
		return fmt.Errorf("jobs: no handler for %T", job)
	}
}
