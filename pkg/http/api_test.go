package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/vtmq/pkg/endpoint"
	"github.com/rwool/vtmq/pkg/http"
	"github.com/rwool/vtmq/pkg/internal/enginemock"
	"github.com/rwool/vtmq/pkg/service"
)

func fullStack() (handlerFunc func(w *httptest.ResponseRecorder, method, path, body string)) {
	svc := service.NewQueueService(enginemock.New(), nil)
	handler := http.NewQueueHTTPHandler(http.Endpoints{
		Push:      endpoint.MakePushEndpoint(svc),
		Get:       endpoint.MakeGetEndpoint(svc),
		Pop:       endpoint.MakePopEndpoint(svc),
		Peek:      endpoint.MakePeekEndpoint(svc),
		Delete:    endpoint.MakeDeleteEndpoint(svc),
		QueueInfo: endpoint.MakeQueueInfoEndpoint(svc),
	}, nil)
	return func(w *httptest.ResponseRecorder, method, path, body string) {
		req := httptest.NewRequest(method, "http://queue.local"+path, strings.NewReader(body))
		handler.ServeHTTP(w, req)
	}
}

type messageBody struct {
	Found   bool `json:"found"`
	Message *struct {
		MessageID    string `json:"message_id"`
		Payload      []byte `json:"payload"`
		ReceiveCount int64  `json:"receive_count"`
	} `json:"message"`
}

func TestHTTPFlow(t *testing.T) {
	t.Parallel()
	do := fullStack()

	rec := httptest.NewRecorder()
	do(rec, "POST", "/v1/push", `{"queue": "orders", "payload": "aGVsbG8="}`)
	require.Equal(t, 200, rec.Code, "Push should have 200 status code.")
	var pushed struct {
		MessageID string `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pushed), "Push response should be JSON.")
	require.NotEmpty(t, pushed.MessageID, "Push should return a message id.")

	rec = httptest.NewRecorder()
	do(rec, "POST", "/v1/get", `{"queue": "orders"}`)
	require.Equal(t, 200, rec.Code, "Get should have 200 status code.")
	var got messageBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got), "Get response should be JSON.")
	require.True(t, got.Found, "Get should find the message.")
	require.NotNil(t, got.Message, "A found response should carry the message.")
	assert.Equal(t, pushed.MessageID, got.Message.MessageID, "Get should return the pushed id.")
	assert.Equal(t, []byte("hello"), got.Message.Payload, "Payloads should travel base64-encoded.")
	assert.Equal(t, int64(1), got.Message.ReceiveCount, "Get should count one receive.")

	rec = httptest.NewRecorder()
	do(rec, "POST", "/v1/delete", fmt.Sprintf(`{"queue": "orders", "message_id": %q}`, pushed.MessageID))
	require.Equal(t, 200, rec.Code, "Delete should have 200 status code.")

	rec = httptest.NewRecorder()
	do(rec, "POST", "/v1/get", `{"queue": "orders"}`)
	require.Equal(t, 200, rec.Code, "Get should have 200 status code.")
	var empty messageBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty), "Get response should be JSON.")
	assert.False(t, empty.Found, "The deleted message should be gone.")
}

func TestHTTPPeekAndPop(t *testing.T) {
	t.Parallel()
	do := fullStack()

	rec := httptest.NewRecorder()
	do(rec, "POST", "/v1/push", `{"queue": "q", "payload": "eA=="}`)
	require.Equal(t, 200, rec.Code, "Push should have 200 status code.")

	rec = httptest.NewRecorder()
	do(rec, "POST", "/v1/peek", `{"queue": "q"}`)
	require.Equal(t, 200, rec.Code, "Peek should have 200 status code.")
	var peeked messageBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &peeked), "Peek response should be JSON.")
	require.True(t, peeked.Found, "Peek should find the message.")
	assert.Equal(t, int64(0), peeked.Message.ReceiveCount, "Peek should not count a receive.")

	rec = httptest.NewRecorder()
	do(rec, "POST", "/v1/pop", `{"queue": "q"}`)
	require.Equal(t, 200, rec.Code, "Pop should have 200 status code.")
	var popped messageBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &popped), "Pop response should be JSON.")
	assert.True(t, popped.Found, "Pop should find the message.")

	rec = httptest.NewRecorder()
	do(rec, "POST", "/v1/peek", `{"queue": "q"}`)
	var gone messageBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gone), "Peek response should be JSON.")
	assert.False(t, gone.Found, "Pop should remove the message.")
}

func TestHTTPQueueInfo(t *testing.T) {
	t.Parallel()
	do := fullStack()

	rec := httptest.NewRecorder()
	do(rec, "POST", "/v1/queue-info", `{"queue": "fresh"}`)
	require.Equal(t, 200, rec.Code, "Queue info should have 200 status code.")
	var info service.QueueInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info), "Queue info response should be JSON.")
	assert.Equal(t, "fresh", info.Queue, "The response should name the queue.")
	assert.Equal(t, int64(60), info.VisibilityTimeoutSeconds, "Defaults should apply.")
	assert.Equal(t, int64(65565), info.MaxSizeBytes, "Defaults should apply.")
}

func TestHTTPInvalidRequests(t *testing.T) {
	t.Parallel()
	do := fullStack()

	t.Run("Wrong Method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		do(rec, "GET", "/v1/get", "")
		assert.Equal(t, 405, rec.Code, "Non-POST requests should have 405 status code.")
	})

	t.Run("Missing Queue", func(t *testing.T) {
		rec := httptest.NewRecorder()
		do(rec, "POST", "/v1/get", `{}`)
		assert.Equal(t, 500, rec.Code, "A request without a queue should have 500 status code.")
	})

	t.Run("Unknown Field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		do(rec, "POST", "/v1/get", `{"queue": "q", "bogus": 1}`)
		assert.Equal(t, 500, rec.Code, "Unknown fields should be rejected.")
	})

	t.Run("Delete Without Id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		do(rec, "POST", "/v1/delete", `{"queue": "q"}`)
		assert.Equal(t, 500, rec.Code, "A delete without a message id should have 500 status code.")
	})
}

type failingResponse struct{ e error }

func (r failingResponse) Failed() error { return r.e }

func TestHTTPBusinessError(t *testing.T) {
	t.Parallel()

	f := func(_ context.Context, request interface{}) (response interface{}, err error) {
		return failingResponse{e: errors.New("queue unavailable")}, nil
	}
	handler := http.NewQueueHTTPHandler(http.Endpoints{
		Push: f, Get: f, Pop: f, Peek: f, Delete: f, QueueInfo: f,
	}, nil)

	req := httptest.NewRequest("POST", "http://queue.local/v1/get", strings.NewReader(`{"queue": "q"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, 500, rec.Code, "Business failures should have 500 status code.")
	assert.Contains(t, rec.Body.String(), "queue unavailable", "Error value should be in response.")
}
