package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/vtmq/pkg/internal/enginemock"
	"github.com/rwool/vtmq/pkg/service"
)

func int64p(n int64) *int64 { return &n }

func TestPushGetDeleteFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.NewQueueService(enginemock.New(), nil)

	pushed, err := svc.Push(ctx, service.PushRequest{
		Queue:    "orders",
		Payload:  []byte(`{"sku":"A-1"}`),
		Metadata: map[string]interface{}{"origin": "api"},
	})
	require.NoError(t, err, "Push should succeed.")
	require.NotEmpty(t, pushed.MessageID, "Push should assign an id.")

	got, err := svc.Get(ctx, service.GetRequest{Queue: "orders"})
	require.NoError(t, err, "Get should succeed.")
	require.True(t, got.Found, "Get should find the message.")
	require.NotNil(t, got.Message, "A found response should carry the message.")
	assert.Equal(t, pushed.MessageID, got.Message.MessageID, "Get should return the pushed id.")
	assert.Equal(t, []byte(`{"sku":"A-1"}`), got.Message.Payload, "Payloads should round trip.")
	assert.Equal(t, int64(1), got.Message.ReceiveCount, "First get should count one receive.")
	assert.True(t, got.Message.SentMS > 0, "Sent should be stamped.")
	assert.True(t, got.Message.FirstRetrievedMS > 0, "First-retrieved should be stamped.")
	assert.Equal(t, "api", got.Message.Metadata["origin"], "Metadata should round trip.")

	_, err = svc.Delete(ctx, service.DeleteRequest{Queue: "orders", MessageID: pushed.MessageID})
	require.NoError(t, err, "Delete should succeed.")
	_, err = svc.Delete(ctx, service.DeleteRequest{Queue: "orders", MessageID: pushed.MessageID})
	require.NoError(t, err, "Repeated delete should succeed.")

	info, err := svc.QueueInfo(ctx, service.QueueRequest{Queue: "orders"})
	require.NoError(t, err, "QueueInfo should succeed.")
	assert.Equal(t, int64(0), info.Messages, "The queue should be empty after delete.")
	assert.Equal(t, int64(1), info.TotalSent, "Push should be counted.")
	assert.Equal(t, int64(1), info.TotalReceived, "Get should be counted.")
}

func TestGetEmptyQueueNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.NewQueueService(enginemock.New(), nil)

	resp, err := svc.Get(ctx, service.GetRequest{Queue: "empty"})
	require.NoError(t, err, "Get on an empty queue should not error.")
	assert.False(t, resp.Found, "No message should be found.")
	assert.Nil(t, resp.Message, "A not-found response should carry no message.")

	resp, err = svc.Pop(ctx, service.QueueRequest{Queue: "empty"})
	require.NoError(t, err, "Pop on an empty queue should not error.")
	assert.False(t, resp.Found, "No message should be found.")

	resp, err = svc.Peek(ctx, service.QueueRequest{Queue: "empty"})
	require.NoError(t, err, "Peek on an empty queue should not error.")
	assert.False(t, resp.Found, "No message should be found.")
}

func TestPeekDoesNotHide(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.NewQueueService(enginemock.New(), nil)

	_, err := svc.Push(ctx, service.PushRequest{Queue: "q", Payload: []byte("x")})
	require.NoError(t, err, "Push should succeed.")

	first, err := svc.Peek(ctx, service.QueueRequest{Queue: "q"})
	require.NoError(t, err, "Peek should succeed.")
	require.True(t, first.Found, "Peek should find the message.")
	assert.Equal(t, int64(0), first.Message.ReceiveCount, "Peek should not count a receive.")
	assert.Equal(t, int64(0), first.Message.FirstRetrievedMS, "Peek should not stamp first-retrieved.")

	second, err := svc.Peek(ctx, service.QueueRequest{Queue: "q"})
	require.NoError(t, err, "A second peek should succeed.")
	assert.True(t, second.Found, "Peek should leave the message visible.")
}

func TestPopRemoves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.NewQueueService(enginemock.New(), nil)

	pushed, err := svc.Push(ctx, service.PushRequest{Queue: "q", Payload: []byte("once")})
	require.NoError(t, err, "Push should succeed.")

	popped, err := svc.Pop(ctx, service.QueueRequest{Queue: "q"})
	require.NoError(t, err, "Pop should succeed.")
	require.True(t, popped.Found, "Pop should find the message.")
	assert.Equal(t, pushed.MessageID, popped.Message.MessageID, "Pop should return the pushed id.")

	again, err := svc.Pop(ctx, service.QueueRequest{Queue: "q"})
	require.NoError(t, err, "A second pop should succeed.")
	assert.False(t, again.Found, "A popped message can never be retrieved again.")
}

func TestPushWithDelayIsHidden(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mock := enginemock.New()
	svc := service.NewQueueService(mock, nil)

	_, err := svc.Push(ctx, service.PushRequest{
		Queue:        "later",
		Payload:      []byte("x"),
		DelaySeconds: int64p(30),
	})
	require.NoError(t, err, "Push with a delay should succeed.")

	resp, err := svc.Get(ctx, service.GetRequest{Queue: "later"})
	require.NoError(t, err, "Get should succeed.")
	assert.False(t, resp.Found, "A delayed message should not be eligible yet.")

	info, err := svc.QueueInfo(ctx, service.QueueRequest{Queue: "later"})
	require.NoError(t, err, "QueueInfo should succeed.")
	assert.Equal(t, int64(1), info.HiddenMessages, "The delayed message should count as hidden.")
}

func TestQueueInfoImplicitCreation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := service.NewQueueService(enginemock.New(), nil)

	info, err := svc.QueueInfo(ctx, service.QueueRequest{Queue: "fresh"})
	require.NoError(t, err, "QueueInfo should never fail for an unknown queue.")
	assert.Equal(t, "fresh", info.Queue, "The response should name the queue.")
	assert.Equal(t, int64(60), info.VisibilityTimeoutSeconds, "Defaults should apply.")
	assert.Equal(t, int64(0), info.InitialDelaySeconds, "Defaults should apply.")
	assert.Equal(t, int64(65565), info.MaxSizeBytes, "Defaults should apply.")
	assert.True(t, info.CreatedMS > 0, "Creation should be stamped.")
	assert.Equal(t, info.CreatedMS, info.ModifiedMS, "Modified should equal created at creation.")
}

func TestNewQueueServiceNilEngine(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { service.NewQueueService(nil, nil) }, "A nil engine should panic.")
}
