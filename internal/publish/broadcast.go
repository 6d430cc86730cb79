package publish

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/playrelay/internal/metrics"
	"github.com/user/playrelay/internal/types"
)

// DoneFunc receives the outcome of an asynchronous PublishAll.
type DoneFunc func(id types.BroadcastID, r Report, err error)

// Broadcaster runs PublishAll jobs in the background so the inbound event
// that triggered them can return immediately. A weighted semaphore bounds
// how many jobs run at once; excess jobs wait their turn.
type Broadcaster struct {
	engine *Engine
	sem    *semaphore.Weighted

	ctx context.Context
	wg  sync.WaitGroup
}

// NewBroadcaster creates a Broadcaster whose jobs live as long as ctx.
func NewBroadcaster(ctx context.Context, engine *Engine, maxConcurrent int64) *Broadcaster {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Broadcaster{
		engine: engine,
		sem:    semaphore.NewWeighted(maxConcurrent),
		ctx:    ctx,
	}
}

// Go starts a PublishAll job and returns its id. progress and done may be nil.
func (b *Broadcaster) Go(item Item, progress ProgressFunc, done DoneFunc) types.BroadcastID {
	id := types.NewBroadcastID()
	log := b.engine.log.With().Str("broadcast_id", string(id)).Logger()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		if err := b.sem.Acquire(b.ctx, 1); err != nil {
			log.Warn().Err(err).Msg("broadcast cancelled before start")
			if done != nil {
				done(id, Report{}, err)
			}
			return
		}
		defer b.sem.Release(1)

		metrics.BroadcastsInFlight.Inc()
		defer metrics.BroadcastsInFlight.Dec()

		log.Info().Int("destinations", b.engine.registry.Len()).Msg("broadcast started")
		report, err := b.engine.PublishAll(b.ctx, item, progress)
		if done != nil {
			done(id, report, err)
		}
	}()
	return id
}

// Wait blocks until every started job has finished.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
