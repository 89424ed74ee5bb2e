// Package engine implements the visibility-timeout queue protocol over a
// shared ordered store.
//
// Every operation is a single atomic transaction: selection and rescheduling
// of a message can never be observed half-done, even with arbitrarily many
// concurrent callers. Operations never block; when no message is eligible,
// Get, Peek, and Pop return a nil Message with a nil error.
package engine

import (
	"context"
	"time"
)

// Default queue configuration values.
const (
	DefaultVisibilityTimeout = 60
	DefaultInitialDelay      = 0
	DefaultMaxSize           = 65565
)

// QueueConfig holds the per-queue configuration.
//
// MaxSize is advisory metadata only: the engine performs no size enforcement
// against it.
type QueueConfig struct {
	// VisibilityTimeout is the number of seconds a retrieved message stays
	// hidden from other consumers.
	VisibilityTimeout int64
	// InitialDelay is the number of seconds after a push before the message
	// first becomes eligible for retrieval.
	InitialDelay int64
	// MaxSize is the maximum message size in bytes.
	MaxSize int64
}

// DefaultConfig returns the configuration applied to implicitly created
// queues.
func DefaultConfig() QueueConfig {
	return QueueConfig{
		VisibilityTimeout: DefaultVisibilityTimeout,
		InitialDelay:      DefaultInitialDelay,
		MaxSize:           DefaultMaxSize,
	}
}

// QueueInfo is the merged view of a queue's configuration, counters, and
// derived message counts.
type QueueInfo struct {
	Name   string
	Config QueueConfig

	// TotalSent counts successful pushes; TotalReceived counts gets and pops
	// that returned a message.
	TotalSent     int64
	TotalReceived int64

	CreatedAt  time.Time
	ModifiedAt time.Time

	// Messages is the number of index entries; HiddenMessages is the number
	// whose visible-at is strictly in the future. Messages - HiddenMessages
	// is the number immediately eligible for delivery.
	Messages       int64
	HiddenMessages int64
}

// Message is a message as returned by Peek, Get, or Pop.
type Message struct {
	ID      string
	Payload []byte

	// Sent is when the message was pushed, as stamped by the store's clock.
	Sent time.Time

	// ReceiveCount is the number of times the message has been returned by
	// Get or Pop. Peek reports the stored value without bumping it; a message
	// that has never been retrieved reports 0.
	ReceiveCount int64

	// FirstRetrieved is when the message was first returned by Get or Pop.
	// Zero until then.
	FirstRetrieved time.Time

	// Metadata carries caller-supplied key/value pairs attached at push time.
	Metadata map[string]interface{}
}

// PushOptions carries the optional arguments to Push.
type PushOptions struct {
	// DelaySeconds overrides the queue's configured initial delay.
	DelaySeconds *int64
	// Metadata is attached to the message and returned verbatim on
	// retrieval.
	Metadata map[string]interface{}
}

// GetOptions carries the optional arguments to Get.
type GetOptions struct {
	// VisibilityTimeoutSeconds overrides the queue's configured visibility
	// timeout.
	VisibilityTimeoutSeconds *int64
}

// Engine wraps the atomic queue operations.
//
// Referencing an unknown queue name is never an error: every operation
// idempotently creates the queue with default configuration first.
type Engine interface {
	// CreateQueue registers a queue, reporting whether it was created. A nil
	// cfg means defaults. Creating an existing queue mutates nothing and
	// reports false.
	CreateQueue(ctx context.Context, name string, cfg *QueueConfig) (bool, error)

	// DeleteQueue removes a queue and all its messages.
	DeleteQueue(ctx context.Context, name string) error

	// ListQueues returns the names of all registered queues.
	ListQueues(ctx context.Context) ([]string, error)

	// QueueInfo returns the queue's configuration, counters, and message
	// counts.
	QueueInfo(ctx context.Context, name string) (QueueInfo, error)

	// SetVisibilityTimeout, SetInitialDelay, and SetMaxSize each overwrite
	// one configuration field.
	SetVisibilityTimeout(ctx context.Context, name string, seconds int64) error
	SetInitialDelay(ctx context.Context, name string, seconds int64) error
	SetMaxSize(ctx context.Context, name string, bytes int64) error

	// Push enqueues a payload and returns its message id.
	Push(ctx context.Context, name string, payload []byte, opts *PushOptions) (string, error)

	// PushMany enqueues several payloads, pipelined, sharing one set of
	// options. It returns the message ids in payload order.
	PushMany(ctx context.Context, name string, payloads [][]byte, opts *PushOptions) ([]string, error)

	// Peek returns the next eligible message without any side effects, or
	// nil if none is eligible.
	Peek(ctx context.Context, name string) (*Message, error)

	// Get returns the next eligible message and hides it for the visibility
	// timeout, or nil if none is eligible.
	Get(ctx context.Context, name string, opts *GetOptions) (*Message, error)

	// Pop returns the next eligible message and deletes it in the same
	// transaction, or nil if none is eligible. A popped message can never be
	// redelivered.
	Pop(ctx context.Context, name string) (*Message, error)

	// Delete removes a message. Deleting an absent id is a no-op.
	Delete(ctx context.Context, name, id string) error
}
