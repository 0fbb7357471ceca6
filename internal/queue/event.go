// Package queue defines the message payloads exchanged over the broker
// and the publisher/worker pair that moves them.
package queue

import amqp "github.com/rabbitmq/amqp091-go"

// Queue names.  Both queues are declared durable so deferred clients and
// confirmation events survive a broker restart.
const (
	DeferredQueueName  = "admission.deferred"
	ConfirmedQueueName = "booking.confirmed"
)

// MaxJobPriority bounds the broker-side priority of deferred jobs.
const MaxJobPriority = 9

// queueArgs returns the declare arguments for a queue.  The deferred
// queue is a priority queue; declare arguments must match on every
// declare or the broker rejects the channel.
func queueArgs(queueName string) amqp.Table {
	if queueName == DeferredQueueName {
		return amqp.Table{"x-max-priority": int32(MaxJobPriority)}
	}
	return nil
}

// DeferredAdmissionJob is one client waiting for admission to the
// reservation path.  The worker processes it after DelayMS and, if the
// client's queue marker is still present, promotes the client with an
// admitted token.
type DeferredAdmissionJob struct {
	ID         string `json:"id"`                // unique job id
	ClientID   string `json:"client_id"`         // identity the admission gate keyed on
	ShowID     uint64 `json:"show_id,omitempty"` // show that was over threshold, if any
	DelayMS    int64  `json:"delay_ms"`          // randomized short delay before processing
	Priority   uint8  `json:"priority"`          // broker priority, 0..MaxJobPriority
	Attempt    int    `json:"attempt"`           // retry counter, starts at 0
	EnqueuedAt string `json:"enqueued_at"`       // RFC3339 enqueue time
}

// BookingConfirmedEvent is published when a booking is successfully
// confirmed.  It carries enough for downstream consumers to log or
// notify without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID        uint64   `json:"booking_id"`
	UserID           uint64   `json:"user_id"`
	ShowID           uint64   `json:"show_id"`
	ShowTitle        string   `json:"show_title"`
	SeatLabels       []string `json:"seats"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	ConfirmedAt      string   `json:"confirmed_at"`
}
