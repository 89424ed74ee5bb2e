// Package endpoint exposes the queue service operations as Go kit endpoints.
package endpoint

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"

	"github.com/rwool/vtmq/pkg/service"
)

// PushResponse wraps a service.PushResponse with a business-logic error.
type PushResponse struct {
	service.PushResponse
	e error
}

// Failed indicates if there was a business logic failure.
func (r PushResponse) Failed() error { return r.e }

// MessageResponse wraps a service.MessageResponse with a business-logic
// error.
type MessageResponse struct {
	service.MessageResponse
	e error
}

// Failed indicates if there was a business logic failure.
func (r MessageResponse) Failed() error { return r.e }

// DeleteResponse wraps a service.DeleteResponse with a business-logic error.
type DeleteResponse struct {
	service.DeleteResponse
	e error
}

// Failed indicates if there was a business logic failure.
func (r DeleteResponse) Failed() error { return r.e }

// QueueInfoResponse wraps a service.QueueInfoResponse with a business-logic
// error.
type QueueInfoResponse struct {
	service.QueueInfoResponse
	e error
}

// Failed indicates if there was a business logic failure.
func (r QueueInfoResponse) Failed() error { return r.e }

const operationTimeout = 10 * time.Second

// MakePushEndpoint creates an endpoint for pushing messages.
func MakePushEndpoint(s service.QueueService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		req := request.(service.PushRequest)
		resp, err := s.Push(ctx, req)
		return PushResponse{PushResponse: resp, e: err}, nil
	}
}

// MakeGetEndpoint creates an endpoint for retrieving messages.
func MakeGetEndpoint(s service.QueueService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		req := request.(service.GetRequest)
		resp, err := s.Get(ctx, req)
		return MessageResponse{MessageResponse: resp, e: err}, nil
	}
}

// MakePopEndpoint creates an endpoint for retrieving and deleting messages.
func MakePopEndpoint(s service.QueueService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		req := request.(service.QueueRequest)
		resp, err := s.Pop(ctx, req)
		return MessageResponse{MessageResponse: resp, e: err}, nil
	}
}

// MakePeekEndpoint creates an endpoint for inspecting the next eligible
// message.
func MakePeekEndpoint(s service.QueueService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		req := request.(service.QueueRequest)
		resp, err := s.Peek(ctx, req)
		return MessageResponse{MessageResponse: resp, e: err}, nil
	}
}

// MakeDeleteEndpoint creates an endpoint for acknowledging messages.
func MakeDeleteEndpoint(s service.QueueService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		req := request.(service.DeleteRequest)
		resp, err := s.Delete(ctx, req)
		return DeleteResponse{DeleteResponse: resp, e: err}, nil
	}
}

// MakeQueueInfoEndpoint creates an endpoint for reading queue information.
func MakeQueueInfoEndpoint(s service.QueueService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		req := request.(service.QueueRequest)
		resp, err := s.QueueInfo(ctx, req)
		return QueueInfoResponse{QueueInfoResponse: resp, e: err}, nil
	}
}
