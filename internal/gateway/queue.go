package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/user/playrelay/internal/types"
)

// Processor handles one inbound event to completion.
type Processor func(ctx context.Context, event *types.InboundEvent) error

// Queue manages per-chat lanes with a global concurrency semaphore.
// Each chat gets its own FIFO channel (lane) so that events within a chat
// are processed sequentially, while the semaphore limits the total number
// of concurrent processors across all chats. Lanes that stay empty for
// idleTimeout are torn down and recreated on the next event.
type Queue struct {
	lanes       map[types.SessionKey]chan *types.InboundEvent
	semaphore   *semaphore.Weighted
	processor   Processor
	active      atomic.Int64
	dropped     atomic.Int64
	idleTimeout time.Duration
	log         zerolog.Logger
	// dropLog keeps a flooding chat from flooding the log as well.
	dropLog rate.Sometimes

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

const laneBuffer = 100

// NewQueue creates a Queue that allows up to maxConcurrent events to be
// processed simultaneously across all chat lanes.
func NewQueue(maxConcurrent int64, log zerolog.Logger) *Queue {
	return &Queue{
		lanes:       make(map[types.SessionKey]chan *types.InboundEvent),
		semaphore:   semaphore.NewWeighted(maxConcurrent),
		idleTimeout: 10 * time.Minute,
		log:         log,
		dropLog:     rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context and waits for in-flight processors to
// finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Enqueue adds an event to its chat's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(event *types.InboundEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.ctx.Err() != nil {
		return fmt.Errorf("queue not running")
	}

	lane, exists := q.lanes[event.SessionKey]
	if !exists {
		lane = make(chan *types.InboundEvent, laneBuffer)
		q.lanes[event.SessionKey] = lane
		q.wg.Add(1)
		go q.processLane(event.SessionKey, lane)
	}

	select {
	case lane <- event:
		return nil
	default:
		n := q.dropped.Add(1)
		q.dropLog.Do(func() {
			q.log.Warn().Str("chat", string(event.SessionKey)).Int64("dropped_total", n).Msg("lane full, dropping events")
		})
		return fmt.Errorf("queue full for chat %s", event.SessionKey)
	}
}

// processLane drains a single chat lane, acquiring a semaphore slot before
// running the processor synchronously. This keeps strict FIFO ordering
// within a chat while the semaphore limits cross-chat parallelism.
func (q *Queue) processLane(key types.SessionKey, lane chan *types.InboundEvent) {
	defer q.wg.Done()

	idle := time.NewTimer(q.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case event := <-lane:
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.process(event)
			q.semaphore.Release(1)
			idle.Reset(q.idleTimeout)
		case <-idle.C:
			q.mu.Lock()
			if len(lane) > 0 {
				q.mu.Unlock()
				idle.Reset(q.idleTimeout)
				continue
			}
			delete(q.lanes, key)
			q.mu.Unlock()
			return
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) process(event *types.InboundEvent) {
	if q.processor == nil {
		return
	}
	q.active.Add(1)
	defer q.active.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("chat", string(event.SessionKey)).Msg("event processor panicked")
		}
	}()

	if err := q.processor(q.ctx, event); err != nil {
		q.log.Error().
			Err(err).
			Str("chat", string(event.SessionKey)).
			Str("kind", string(event.Kind)).
			Msg("event failed")
	}
}

// WaitIdle blocks until no events are actively being processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Dropped returns how many events were refused because their lane was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Lanes returns the number of live chat lanes.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// SetProcessor sets the function invoked for each dequeued event.
func (q *Queue) SetProcessor(fn Processor) {
	q.processor = fn
}
