// Package gateway serializes inbound transport events per chat before they
// reach the bot handlers.
package gateway

import (
	"context"
	"fmt"

	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/metrics"
	"github.com/user/playrelay/internal/types"
)

// Gateway is the single intake point for inbound events, whether they come
// from long polling or the webhook endpoint.
type Gateway struct {
	Queue *Queue
}

// New creates a Gateway with the given concurrency limit for simultaneous
// event processing across chats.
func New(processor Processor, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	q := NewQueue(concurrency, xlog.WithComponent("gateway"))
	q.SetProcessor(processor)
	return &Gateway{Queue: q}
}

// Start starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop stops the queue and waits for in-flight events.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// HandleInbound enqueues event on its chat's lane.
func (g *Gateway) HandleInbound(_ context.Context, event *types.InboundEvent) error {
	if event == nil || event.SessionKey == "" {
		return fmt.Errorf("event without chat key")
	}
	metrics.InboundEventsTotal.WithLabelValues(string(event.Kind)).Inc()
	return g.Queue.Enqueue(event)
}
