// Command vtmqd serves the visibility-timeout message queue over HTTP.
package main

import (
	"context"
	"net"
	gohttp "net/http"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/rwool/vtmq/pkg/endpoint"
	"github.com/rwool/vtmq/pkg/engine"
	"github.com/rwool/vtmq/pkg/http"
	"github.com/rwool/vtmq/pkg/service"
	"github.com/rwool/vtmq/pkg/vtmq"
)

func listenAddress() string {
	if addr, ok := os.LookupEnv("VTMQ_LISTEN_ADDRESS"); ok {
		return addr
	}
	return "0.0.0.0:8080"
}

func main() {
	l := log.NewJSONLogger(os.Stderr)

	address, ok := os.LookupEnv("REDIS_ADDRESS")
	if !ok {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", "missing Redis address")
		os.Exit(1)
	}
	rc, err := vtmq.Dial(address, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
		os.Exit(1)
	}
	eng := engine.NewRedisAdapter(rc, engine.DefaultConfig())

	// Business logic.
	queueService := service.NewQueueService(eng, l)

	// Endpoints.
	endpoints := http.Endpoints{
		Push:      endpoint.MakePushEndpoint(queueService),
		Get:       endpoint.MakeGetEndpoint(queueService),
		Pop:       endpoint.MakePopEndpoint(queueService),
		Peek:      endpoint.MakePeekEndpoint(queueService),
		Delete:    endpoint.MakeDeleteEndpoint(queueService),
		QueueInfo: endpoint.MakeQueueInfoEndpoint(queueService),
	}

	// Transport.
	httpHandler := http.NewQueueHTTPHandler(endpoints, nil)

	server, err := serveHTTP(listenAddress(), httpHandler)
	if err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server(ctx, l)
}

func serveHTTP(address string, h gohttp.Handler) (func(context.Context, log.Logger), error) {
	// Separate listening and serving to capture listen errors.
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create TCP listener")
	}

	return func(ctx context.Context, logger log.Logger) {
		go func() {
			<-ctx.Done()
			if err := l.Close(); err != nil {
				_ = logger.Log("LEVEL", "WARN", "MESSAGE", err.Error())
			}
		}()
		err := gohttp.Serve(l, h)
		_ = logger.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
	}, nil
}
