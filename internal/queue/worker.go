package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ikoruk/show-seat-booking/internal/config"
)

// PromoteStore is the slice of the lock store the worker needs to turn a
// queued client into an admitted one.
type PromoteStore interface {
	HasQueueMarker(ctx context.Context, clientID string) (bool, error)
	GrantAdmitToken(ctx context.Context, clientID string, ttl time.Duration) error
	ClearQueueMarker(ctx context.Context, clientID string) error
}

// Requeuer re-publishes failed jobs.  Satisfied by *Publisher.
type Requeuer interface {
	EnqueueDeferred(ctx context.Context, job DeferredAdmissionJob) error
}

// Worker drains the deferred-admission queue.  It processes up to
// cfg.WorkerConcurrency jobs at once; for each job it waits a simulated
// variable delay, re-checks that the client's queue marker is still
// present and, if so, grants the short-TTL admitted token the gate
// honors on the client's next request.
type Worker struct {
	url   string
	store PromoteStore
	pub   Requeuer
	cfg   config.AdmissionConfig
}

// NewWorker constructs a deferred-admission worker.  pub is used to
// re-publish failed jobs with an incremented attempt counter.
func NewWorker(url string, store PromoteStore, pub Requeuer, cfg config.AdmissionConfig) *Worker {
	if store == nil || pub == nil {
		panic("nil dependency passed to queue.NewWorker")
	}
	return &Worker{url: url, store: store, pub: pub, cfg: cfg}
}

// Start connects to the broker and consumes jobs until ctx is cancelled.
// It runs a reconnect loop with capped exponential dial backoff and
// never returns while the context is live; processing errors are logged
// and the offending job retried or dropped.
func (w *Worker) Start(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(w.url)
		if err != nil {
			log.Printf("admission-worker: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = w.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Printf("admission-worker: consume loop ended: %v; reconnecting", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return
		}
	}
}

func (w *Worker) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(w.cfg.WorkerConcurrency, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(DeferredQueueName, true, false, false, false, queueArgs(DeferredQueueName)); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(DeferredQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	sem := make(chan struct{}, w.cfg.WorkerConcurrency)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				w.handle(ctx, d)
			}(d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var job DeferredAdmissionJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("admission-worker: unmarshal job: %v", err)
		_ = d.Nack(false, false) // poison message, do not requeue
		return
	}
	if err := w.process(ctx, job); err != nil {
		log.Printf("admission-worker: job %s attempt %d failed: %v", job.ID, job.Attempt, err)
		w.retry(ctx, job, d)
		return
	}
	_ = d.Ack(false)
}

// process performs one admission promotion.  Returning nil for a missing
// marker is deliberate: the client either got in already or walked away,
// and either way there is nothing to promote.
func (w *Worker) process(ctx context.Context, job DeferredAdmissionJob) error {
	if !sleepCtx(ctx, w.processingDelay(job)) {
		return ctx.Err()
	}
	present, err := w.store.HasQueueMarker(ctx, job.ClientID)
	if err != nil {
		return fmt.Errorf("check queue marker: %w", err)
	}
	if !present {
		return nil
	}
	if err := w.store.GrantAdmitToken(ctx, job.ClientID, w.cfg.AdmitTTL); err != nil {
		return fmt.Errorf("grant admit token: %w", err)
	}
	// Marker cleanup is best-effort; it expires on its own TTL anyway.
	if err := w.store.ClearQueueMarker(ctx, job.ClientID); err != nil {
		log.Printf("admission-worker: clear queue marker for %s: %v", job.ClientID, err)
	}
	return nil
}

// processingDelay combines the randomized delay chosen at enqueue time
// with this worker's own variable processing time.
func (w *Worker) processingDelay(job DeferredAdmissionJob) time.Duration {
	delay := time.Duration(job.DelayMS) * time.Millisecond
	spread := w.cfg.WorkerDelayMax - w.cfg.WorkerDelayMin
	if spread > 0 {
		delay += w.cfg.WorkerDelayMin + time.Duration(rand.Int63n(int64(spread)))
	} else {
		delay += w.cfg.WorkerDelayMin
	}
	return delay
}

// retry re-publishes the job with an exponential backoff folded into
// its delay, then acks the original right away so neither a worker slot
// nor an unacked delivery is held while the backoff elapses.  An
// exhausted job is dropped: the controller keeps deferring the client
// while its marker is pending, so the client re-queues naturally.
func (w *Worker) retry(ctx context.Context, job DeferredAdmissionJob, d amqp.Delivery) {
	job.Attempt++
	if job.Attempt >= w.cfg.MaxAttempts {
		log.Printf("admission-worker: job %s exhausted %d attempts, dropping", job.ID, job.Attempt)
		_ = d.Nack(false, false)
		return
	}
	job.DelayMS = (time.Second << uint(job.Attempt-1)).Milliseconds()
	if err := w.pub.EnqueueDeferred(ctx, job); err != nil {
		log.Printf("admission-worker: requeue job %s: %v", job.ID, err)
		_ = d.Nack(false, true) // broker redelivers the original
		return
	}
	_ = d.Ack(false)
}

// sleepCtx sleeps for d unless ctx is cancelled first.  Reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
