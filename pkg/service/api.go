// Package service implements the application-facing surface of the queue:
// request/response types and the business logic tying them to the engine's
// atomic operations.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/rwool/vtmq/pkg/engine"
)

// QueueService is the user accessible service.
type QueueService interface {
	Push(ctx context.Context, request PushRequest) (PushResponse, error)
	Get(ctx context.Context, request GetRequest) (MessageResponse, error)
	Pop(ctx context.Context, request QueueRequest) (MessageResponse, error)
	Peek(ctx context.Context, request QueueRequest) (MessageResponse, error)
	Delete(ctx context.Context, request DeleteRequest) (DeleteResponse, error)
	QueueInfo(ctx context.Context, request QueueRequest) (QueueInfoResponse, error)
}

// PushRequest enqueues one payload. Payload travels base64-encoded in JSON.
type PushRequest struct {
	Queue        string                 `json:"queue"`
	Payload      []byte                 `json:"payload"`
	DelaySeconds *int64                 `json:"delay_seconds,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// PushResponse reports the id assigned to a pushed message.
type PushResponse struct {
	MessageID string `json:"message_id"`
}

// GetRequest retrieves the next eligible message from a queue.
type GetRequest struct {
	Queue                    string `json:"queue"`
	VisibilityTimeoutSeconds *int64 `json:"visibility_timeout_seconds,omitempty"`
}

// QueueRequest names a queue for pop, peek, and queue-info.
type QueueRequest struct {
	Queue string `json:"queue"`
}

// DeleteRequest acknowledges one message.
type DeleteRequest struct {
	Queue     string `json:"queue"`
	MessageID string `json:"message_id"`
}

// DeleteResponse is the (empty) acknowledgment of a delete.
type DeleteResponse struct{}

// MessageView is the wire form of a retrieved message.
type MessageView struct {
	MessageID        string                 `json:"message_id"`
	Payload          []byte                 `json:"payload"`
	SentMS           int64                  `json:"sent_ms"`
	ReceiveCount     int64                  `json:"receive_count"`
	FirstRetrievedMS int64                  `json:"first_retrieved_ms,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// MessageResponse carries a retrieved message, or Found=false when nothing
// was eligible. Absence of a message is a normal outcome, not an error.
type MessageResponse struct {
	Found   bool         `json:"found"`
	Message *MessageView `json:"message,omitempty"`
}

// QueueInfoResponse is the merged configuration/counter/derived view of a
// queue.
type QueueInfoResponse struct {
	Queue                    string `json:"queue"`
	VisibilityTimeoutSeconds int64  `json:"visibility_timeout_seconds"`
	InitialDelaySeconds      int64  `json:"initial_delay_seconds"`
	MaxSizeBytes             int64  `json:"max_size_bytes"`
	TotalSent                int64  `json:"total_sent"`
	TotalReceived            int64  `json:"total_received"`
	CreatedMS                int64  `json:"created_ms"`
	ModifiedMS               int64  `json:"modified_ms"`
	Messages                 int64  `json:"messages"`
	HiddenMessages           int64  `json:"hidden_messages"`
}

type queueService struct {
	eng engine.Engine
	l   log.Logger
}

// NewQueueService returns a QueueService over the given engine.
func NewQueueService(eng engine.Engine, l log.Logger) QueueService {
	if eng == nil {
		panic("nil engine")
	}
	if l == nil {
		l = log.NewNopLogger()
	}
	return &queueService{eng: eng, l: l}
}

func msEpoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / int64(time.Millisecond)
}

func messageView(m *engine.Message) MessageResponse {
	if m == nil {
		return MessageResponse{}
	}
	return MessageResponse{
		Found: true,
		Message: &MessageView{
			MessageID:        m.ID,
			Payload:          m.Payload,
			SentMS:           msEpoch(m.Sent),
			ReceiveCount:     m.ReceiveCount,
			FirstRetrievedMS: msEpoch(m.FirstRetrieved),
			Metadata:         m.Metadata,
		},
	}
}

// Push enqueues a payload.
func (s *queueService) Push(ctx context.Context, request PushRequest) (PushResponse, error) {
	id, err := s.eng.Push(ctx, request.Queue, request.Payload, &engine.PushOptions{
		DelaySeconds: request.DelaySeconds,
		Metadata:     request.Metadata,
	})
	if err != nil {
		return PushResponse{}, errors.Wrap(err, "unable to push message")
	}
	_ = s.l.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Pushed message %s to queue %s", id, request.Queue))
	return PushResponse{MessageID: id}, nil
}

// Get retrieves and hides the next eligible message.
func (s *queueService) Get(ctx context.Context, request GetRequest) (MessageResponse, error) {
	m, err := s.eng.Get(ctx, request.Queue, &engine.GetOptions{
		VisibilityTimeoutSeconds: request.VisibilityTimeoutSeconds,
	})
	if err != nil {
		return MessageResponse{}, errors.Wrap(err, "unable to get message")
	}
	return messageView(m), nil
}

// Pop retrieves and permanently removes the next eligible message.
func (s *queueService) Pop(ctx context.Context, request QueueRequest) (MessageResponse, error) {
	m, err := s.eng.Pop(ctx, request.Queue)
	if err != nil {
		return MessageResponse{}, errors.Wrap(err, "unable to pop message")
	}
	return messageView(m), nil
}

// Peek returns the next eligible message without side effects.
func (s *queueService) Peek(ctx context.Context, request QueueRequest) (MessageResponse, error) {
	m, err := s.eng.Peek(ctx, request.Queue)
	if err != nil {
		return MessageResponse{}, errors.Wrap(err, "unable to peek message")
	}
	return messageView(m), nil
}

// Delete acknowledges a message. Deleting an absent id succeeds.
func (s *queueService) Delete(ctx context.Context, request DeleteRequest) (DeleteResponse, error) {
	if err := s.eng.Delete(ctx, request.Queue, request.MessageID); err != nil {
		return DeleteResponse{}, errors.Wrap(err, "unable to delete message")
	}
	_ = s.l.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Deleted message %s from queue %s", request.MessageID, request.Queue))
	return DeleteResponse{}, nil
}

// QueueInfo returns the queue's configuration, counters, and message counts.
func (s *queueService) QueueInfo(ctx context.Context, request QueueRequest) (QueueInfoResponse, error) {
	info, err := s.eng.QueueInfo(ctx, request.Queue)
	if err != nil {
		return QueueInfoResponse{}, errors.Wrap(err, "unable to read queue info")
	}
	return QueueInfoResponse{
		Queue:                    info.Name,
		VisibilityTimeoutSeconds: info.Config.VisibilityTimeout,
		InitialDelaySeconds:      info.Config.InitialDelay,
		MaxSizeBytes:             info.Config.MaxSize,
		TotalSent:                info.TotalSent,
		TotalReceived:            info.TotalReceived,
		CreatedMS:                msEpoch(info.CreatedAt),
		ModifiedMS:               msEpoch(info.ModifiedAt),
		Messages:                 info.Messages,
		HiddenMessages:           info.HiddenMessages,
	}, nil
}
