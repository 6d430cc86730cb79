package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/user/playrelay/internal/destination"
	"github.com/user/playrelay/internal/types"
)

func TestBroadcasterRunsInBackground(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pub := &fakePublisher{failures: map[types.DestinationID]error{"-2": errors.New("boom")}}
	engine := New(pub, destination.Parse("-1:A,-2:B"), NewCapability(), WithDelay(0))
	b := NewBroadcaster(context.Background(), engine, 1)

	var mu sync.Mutex
	var gotID types.BroadcastID
	var got Report
	finished := make(chan struct{})

	id := b.Go(testItem, nil, func(id types.BroadcastID, r Report, err error) {
		assert.NoError(t, err)
		mu.Lock()
		gotID, got = id, r
		mu.Unlock()
		close(finished)
	})

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not finish")
	}
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, id, gotID)
	assert.Equal(t, Report{Total: 2, Succeeded: 1, Failed: []string{"B"}}, got)
}

func TestBroadcasterReportsNoDestinations(t *testing.T) {
	engine := New(&fakePublisher{}, destination.Parse(""), NewCapability())
	b := NewBroadcaster(context.Background(), engine, 2)

	errs := make(chan error, 1)
	b.Go(testItem, nil, func(_ types.BroadcastID, _ Report, err error) { errs <- err })
	b.Wait()

	assert.ErrorIs(t, <-errs, ErrNoDestinations)
}

func TestBroadcasterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := &fakePublisher{}
	engine := New(pub, destination.Parse("-1:A"), NewCapability())
	b := NewBroadcaster(ctx, engine, 1)

	errs := make(chan error, 1)
	b.Go(testItem, nil, func(_ types.BroadcastID, _ Report, err error) { errs <- err })
	b.Wait()

	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.Empty(t, pub.Calls())
}
