// Package consume provides a polling consumer loop over the queue engine.
//
// This is analogous to the http package for the API service: it is a
// transport that feeds messages into a Go kit endpoint. The engine itself is
// non-blocking, so polling lives here, outside the core. A message is
// acknowledged (deleted) only after its endpoint invocation succeeds; on
// failure it is left alone and the visibility timeout redelivers it, which
// is what gives consumers at-least-once processing.
package consume

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"

	"github.com/rwool/vtmq/pkg/engine"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 250 * time.Millisecond

// Config contains the configuration for consuming a queue.
type Config struct {
	Endpoint endpoint.Endpoint
	Engine   engine.Engine
	Log      log.Logger
	Queue    string

	// PollInterval is how often the queue is checked once it has been found
	// empty. Eligible messages are drained without waiting.
	PollInterval time.Duration

	// VisibilityTimeoutSeconds optionally overrides the queue's configured
	// visibility timeout for retrievals made by this consumer.
	VisibilityTimeoutSeconds *int64
}

// MakeConsumerHandler returns a function that consumes the configured queue
// until the context is done.
func MakeConsumerHandler(conf Config) func(context.Context) {
	interval := conf.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return func(ctx context.Context) {
		_ = conf.Log.Log("LEVEL", "INFO", "MESSAGE", fmt.Sprintf("Beginning consumption of queue %s", conf.Queue))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			drain(ctx, conf)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}
}

// drain retrieves eligible messages until the queue reports none, handing
// each to the endpoint asynchronously so one slow message does not block the
// rest.
func drain(ctx context.Context, conf Config) {
	for {
		m, err := conf.Engine.Get(ctx, conf.Queue, &engine.GetOptions{
			VisibilityTimeoutSeconds: conf.VisibilityTimeoutSeconds,
		})
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err != nil {
			_ = conf.Log.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
			return
		}
		if m == nil {
			return
		}
		go processMessage(ctx, conf, m)
	}
}

func processMessage(ctx context.Context, conf Config, m *engine.Message) {
	_ = conf.Log.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Received message %s from queue %s", m.ID, conf.Queue))

	resp, err := conf.Endpoint(ctx, m)
	if err != nil {
		_ = conf.Log.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
		return
	}
	if v, ok := resp.(endpoint.Failer); ok && v.Failed() != nil {
		// Not acknowledged: the message becomes visible again when its
		// window expires.
		_ = conf.Log.Log("LEVEL", "ERROR", "MESSAGE", v.Failed().Error())
		return
	}

	if err := conf.Engine.Delete(ctx, conf.Queue, m.ID); err != nil {
		// The delete will be retried implicitly: the message is redelivered
		// and processed again. Duplicate processing is the accepted cost of
		// at-least-once delivery.
		_ = conf.Log.Log("LEVEL", "ERROR", "MESSAGE", err.Error())
		return
	}
	_ = conf.Log.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("Acknowledged message %s from queue %s", m.ID, conf.Queue))
}
