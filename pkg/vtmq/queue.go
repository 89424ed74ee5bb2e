// Package vtmq is the client-facing layer over the queue engine: named queue
// handles, pluggable payload serialization, and a manager for sharing
// handles across an application.
package vtmq

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rwool/vtmq/pkg/engine"
)

// ReceivedMessage is a message retrieved from a queue, with its payload
// deserialized.
type ReceivedMessage struct {
	Queue string
	ID    string

	// Data is the deserialized payload; Raw is the payload as stored.
	Data interface{}
	Raw  []byte

	Sent           time.Time
	FirstRetrieved time.Time
	ReceiveCount   int64
	Metadata       map[string]interface{}
}

// Queue is a handle to one named queue.
//
// All methods delegate to the engine's atomic operations; a Queue holds no
// state beyond its name and codec, so handles are safe for concurrent use.
type Queue struct {
	name        string
	eng         engine.Engine
	serialize   Serializer
	deserialize Deserializer
}

// NewQueue returns a handle to the named queue, creating it if needed. A nil
// cfg creates the queue with defaults; nil serializer/deserializer fall back
// to JSON.
func NewQueue(ctx context.Context, eng engine.Engine, name string, cfg *engine.QueueConfig, ser Serializer, deser Deserializer) (*Queue, error) {
	if eng == nil {
		return nil, errors.New("nil engine")
	}
	if err := engine.ValidateQueueName(name); err != nil {
		return nil, err
	}
	if _, err := eng.CreateQueue(ctx, name, cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to ensure queue %q exists", name)
	}
	if ser == nil {
		ser = JSONSerializer
	}
	if deser == nil {
		deser = JSONDeserializer
	}
	return &Queue{name: name, eng: eng, serialize: ser, deserialize: deser}, nil
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// Push serializes a value and enqueues it, returning the message id.
func (q *Queue) Push(ctx context.Context, v interface{}, opts *engine.PushOptions) (string, error) {
	data, err := q.serialize(v)
	if err != nil {
		return "", &UnserializableMessageError{Value: v, Cause: err}
	}
	return q.eng.Push(ctx, q.name, data, opts)
}

// PushMany serializes and enqueues several values, returning their message
// ids in order.
func (q *Queue) PushMany(ctx context.Context, vs []interface{}, opts *engine.PushOptions) ([]string, error) {
	payloads := make([][]byte, 0, len(vs))
	for _, v := range vs {
		data, err := q.serialize(v)
		if err != nil {
			return nil, &UnserializableMessageError{Value: v, Cause: err}
		}
		payloads = append(payloads, data)
	}
	return q.eng.PushMany(ctx, q.name, payloads, opts)
}

func (q *Queue) received(m *engine.Message) (*ReceivedMessage, error) {
	if m == nil {
		return nil, nil
	}
	var data interface{}
	if len(m.Payload) > 0 {
		var err error
		data, err = q.deserialize(m.Payload)
		if err != nil {
			return nil, &UndeserializableMessageError{ID: m.ID, Cause: err}
		}
	}
	return &ReceivedMessage{
		Queue:          q.name,
		ID:             m.ID,
		Data:           data,
		Raw:            m.Payload,
		Sent:           m.Sent,
		FirstRetrieved: m.FirstRetrieved,
		ReceiveCount:   m.ReceiveCount,
		Metadata:       m.Metadata,
	}, nil
}

// Peek returns the next eligible message without hiding it, or nil if none
// is eligible.
func (q *Queue) Peek(ctx context.Context) (*ReceivedMessage, error) {
	m, err := q.eng.Peek(ctx, q.name)
	if err != nil {
		return nil, err
	}
	return q.received(m)
}

// Get retrieves the next eligible message, hiding it for the visibility
// timeout, or nil if none is eligible.
func (q *Queue) Get(ctx context.Context, opts *engine.GetOptions) (*ReceivedMessage, error) {
	m, err := q.eng.Get(ctx, q.name, opts)
	if err != nil {
		return nil, err
	}
	return q.received(m)
}

// Pop retrieves and permanently deletes the next eligible message, or nil if
// none is eligible.
func (q *Queue) Pop(ctx context.Context) (*ReceivedMessage, error) {
	m, err := q.eng.Pop(ctx, q.name)
	if err != nil {
		return nil, err
	}
	return q.received(m)
}

// Delete acknowledges a message, removing it permanently. Deleting an absent
// id is a no-op, so callers can safely retry.
func (q *Queue) Delete(ctx context.Context, id string) error {
	return q.eng.Delete(ctx, q.name, id)
}

// Info returns the queue's configuration, counters, and message counts.
func (q *Queue) Info(ctx context.Context) (engine.QueueInfo, error) {
	return q.eng.QueueInfo(ctx, q.name)
}

// SetVisibilityTimeout overwrites the queue's visibility timeout.
func (q *Queue) SetVisibilityTimeout(ctx context.Context, seconds int64) error {
	return q.eng.SetVisibilityTimeout(ctx, q.name, seconds)
}

// SetInitialDelay overwrites the queue's initial delivery delay.
func (q *Queue) SetInitialDelay(ctx context.Context, seconds int64) error {
	return q.eng.SetInitialDelay(ctx, q.name, seconds)
}

// SetMaxSize overwrites the queue's advisory maximum message size.
func (q *Queue) SetMaxSize(ctx context.Context, bytes int64) error {
	return q.eng.SetMaxSize(ctx, q.name, bytes)
}
