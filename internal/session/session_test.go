package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/user/playrelay/internal/link"
	"github.com/user/playrelay/internal/types"
)

const validLocator = "https://iframe.mediadelivery.net/play/12345/abcde-f/playlist.m3u8"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return NewStore(link.New("https://player.example"), WithClock(clock.Now)), clock
}

func TestImageThenLocator(t *testing.T) {
	store, _ := newTestStore(t)
	key := types.NewSessionKey("telegram", "1")

	sess := store.OnImageReceived(key, "photo-1", false)
	assert.Equal(t, PhaseAwaitingLocator, sess.Phase)
	assert.Empty(t, sess.PlaybackURL)

	sess, err := store.OnLocatorReceived(key, validLocator)
	require.NoError(t, err)
	assert.Equal(t, PhaseReady, sess.Phase)
	assert.Equal(t, "https://player.example/?lib=12345&id=abcde-f", sess.PlaybackURL)
	assert.Equal(t, validLocator, sess.RawLocator)
	assert.True(t, sess.Ready())

	got, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, sess, got)
}

func TestLocatorWithoutImage(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.OnLocatorReceived("telegram:nobody", validLocator)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Zero(t, store.Len())
}

func TestInvalidLocatorLeavesSessionUnchanged(t *testing.T) {
	store, _ := newTestStore(t)
	key := types.SessionKey("telegram:2")
	store.OnImageReceived(key, "photo-2", false)
	before, _ := store.Get(key)

	for _, bad := range []string{"not a link", "https://youtube.com/play/1/2", "https://iframe.mediadelivery.net/watch/1/2"} {
		_, err := store.OnLocatorReceived(key, bad)
		require.Error(t, err, bad)

		after, ok := store.Get(key)
		require.True(t, ok)
		assert.Equal(t, before, after)
		assert.Equal(t, PhaseAwaitingLocator, after.Phase)
		assert.Empty(t, after.PlaybackURL)
	}

	_, err := store.OnLocatorReceived(key, validLocator)
	require.NoError(t, err)
}

func TestReadyTransitionHappensOnce(t *testing.T) {
	store, _ := newTestStore(t)
	key := types.SessionKey("telegram:3")
	store.OnImageReceived(key, "photo", false)
	_, err := store.OnLocatorReceived(key, validLocator)
	require.NoError(t, err)

	_, err = store.OnLocatorReceived(key, "https://iframe.mediadelivery.net/play/9/9")
	assert.ErrorIs(t, err, ErrAlreadyReady)

	sess, _ := store.Get(key)
	assert.Equal(t, "https://player.example/?lib=12345&id=abcde-f", sess.PlaybackURL)
}

func TestSecondImageReplacesSession(t *testing.T) {
	store, _ := newTestStore(t)
	key := types.SessionKey("telegram:4")

	store.OnImageReceived(key, "first", false)
	_, err := store.OnLocatorReceived(key, validLocator)
	require.NoError(t, err)

	store.OnImageReceived(key, "second", true)

	sess, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, "second", sess.ImageRef)
	assert.Equal(t, PhaseAwaitingLocator, sess.Phase)
	assert.Empty(t, sess.PlaybackURL)
	assert.Empty(t, sess.RawLocator)
	assert.True(t, sess.IsAdmin)
}

func TestGetReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t)
	key := types.SessionKey("telegram:5")
	store.OnImageReceived(key, "photo", false)

	sess, _ := store.Get(key)
	sess.ImageRef = "mutated"

	again, _ := store.Get(key)
	assert.Equal(t, "photo", again.ImageRef)
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t)
	store.OnImageReceived("a", "photo", false)
	store.Clear("a")
	store.Clear("never-existed")

	_, ok := store.Get("a")
	assert.False(t, ok)
}

func TestClearIfOnlyRemovesSameSession(t *testing.T) {
	store, _ := newTestStore(t)
	first := store.OnImageReceived("a", "photo-1", true)
	_, err := store.OnLocatorReceived("a", validLocator)
	require.NoError(t, err)

	second := store.OnImageReceived("a", "photo-2", true)
	require.NotEqual(t, first.Seq, second.Seq)

	assert.False(t, store.ClearIf("a", first.Seq))
	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "photo-2", got.ImageRef)

	assert.True(t, store.ClearIf("a", second.Seq))
	assert.Equal(t, 0, store.Len())
	assert.False(t, store.ClearIf("a", second.Seq))
}

func TestSweepExpired(t *testing.T) {
	store, clock := newTestStore(t)

	store.OnImageReceived("old-waiting", "p1", false)
	store.OnImageReceived("old-ready", "p2", false)
	_, err := store.OnLocatorReceived("old-ready", validLocator)
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	store.OnImageReceived("fresh", "p3", false)

	removed := store.SweepExpired(time.Hour)
	assert.Equal(t, 2, removed)

	_, ok := store.Get("old-waiting")
	assert.False(t, ok)
	_, ok = store.Get("old-ready")
	assert.False(t, ok)
	_, ok = store.Get("fresh")
	assert.True(t, ok)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := NewStore(link.New("https://player.example"))
	store.OnImageReceived("stale", "p", false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.RunSweeper(ctx, 10*time.Millisecond, time.Nanosecond)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestConcurrentKeysAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := types.NewSessionKey("telegram", string(rune('a'+i%26)), time.Duration(i).String())
			store.OnImageReceived(key, "photo", false)
			_, _ = store.OnLocatorReceived(key, validLocator)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
}
