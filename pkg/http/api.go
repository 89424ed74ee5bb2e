// Package http makes the queue service endpoints available over HTTP.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	gohttp "net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/transport/http"
	"github.com/pkg/errors"

	"github.com/rwool/vtmq/pkg/service"
)

// Endpoints collects the endpoints served over HTTP.
type Endpoints struct {
	Push      endpoint.Endpoint
	Get       endpoint.Endpoint
	Pop       endpoint.Endpoint
	Peek      endpoint.Endpoint
	Delete    endpoint.Endpoint
	QueueInfo endpoint.Endpoint
}

// NewQueueHTTPHandler returns a handler that makes the queue service
// endpoints available via HTTP. All routes accept POST with a JSON body.
func NewQueueHTTPHandler(endpoints Endpoints, options map[string][]http.ServerOption) gohttp.Handler {
	if options == nil {
		options = make(map[string][]http.ServerOption)
	}
	m := gohttp.NewServeMux()
	handle(m, "/v1/push", endpoints.Push, decodePushRequest, options["Push"])
	handle(m, "/v1/get", endpoints.Get, decodeGetRequest, options["Get"])
	handle(m, "/v1/pop", endpoints.Pop, decodeQueueRequest, options["Pop"])
	handle(m, "/v1/peek", endpoints.Peek, decodeQueueRequest, options["Peek"])
	handle(m, "/v1/delete", endpoints.Delete, decodeDeleteRequest, options["Delete"])
	handle(m, "/v1/queue-info", endpoints.QueueInfo, decodeQueueRequest, options["QueueInfo"])
	return m
}

type errorResponse struct {
	Error string
}

func encodeResponse(_ context.Context, w gohttp.ResponseWriter, r interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if v, ok := r.(endpoint.Failer); ok && v.Failed() != nil {
		w.WriteHeader(gohttp.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: v.Failed().Error()})
		return nil
	}
	err := json.NewEncoder(w).Encode(r)
	return errors.WithStack(err)
}

func jsonBody(req *gohttp.Request, into interface{}) (e error) {
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	defer func() {
		err := req.Body.Close()
		if e != nil && err != nil {
			e = errors.Wrapf(e, "multiple errors: %s", err)
			return
		}
		if err != nil {
			e = err
		}
	}()
	err := decoder.Decode(into)
	if err == io.EOF {
		err = nil
	}
	return errors.WithStack(err)
}

func decodePushRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	var pr service.PushRequest
	if err := jsonBody(req, &pr); err != nil {
		return nil, err
	}
	if pr.Queue == "" {
		return nil, errors.New("invalid queue name")
	}
	return pr, nil
}

func decodeGetRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	var gr service.GetRequest
	if err := jsonBody(req, &gr); err != nil {
		return nil, err
	}
	if gr.Queue == "" {
		return nil, errors.New("invalid queue name")
	}
	return gr, nil
}

func decodeQueueRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	var qr service.QueueRequest
	if err := jsonBody(req, &qr); err != nil {
		return nil, err
	}
	if qr.Queue == "" {
		return nil, errors.New("invalid queue name")
	}
	return qr, nil
}

func decodeDeleteRequest(_ context.Context, req *gohttp.Request) (interface{}, error) {
	var dr service.DeleteRequest
	if err := jsonBody(req, &dr); err != nil {
		return nil, err
	}
	if dr.Queue == "" {
		return nil, errors.New("invalid queue name")
	}
	if dr.MessageID == "" {
		return nil, errors.New("invalid message id")
	}
	return dr, nil
}

func handle(m *gohttp.ServeMux, path string, ep endpoint.Endpoint, decode http.DecodeRequestFunc, options []http.ServerOption) {
	handler := http.NewServer(ep, decode, encodeResponse, options...)
	hf := func(w gohttp.ResponseWriter, r *gohttp.Request) {
		if r.Method != gohttp.MethodPost {
			w.WriteHeader(gohttp.StatusMethodNotAllowed)
			_, _ = fmt.Fprintf(w, "Invalid request method %s", r.Method)
			return
		}
		handler.ServeHTTP(w, r)
	}
	m.Handle(path, gohttp.HandlerFunc(hf))
}
