// Package session tracks the per-submitter image-then-link capture sequence.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/types"
)

// Phase is the capture step a session has reached. The implicit first step,
// waiting for an image, is represented by the absence of a session.
type Phase string

const (
	PhaseAwaitingLocator Phase = "awaiting_locator"
	PhaseReady           Phase = "ready"
)

var (
	// ErrNoActiveSession is returned when a link arrives before any image.
	ErrNoActiveSession = errors.New("no active session")
	// ErrAlreadyReady is returned when a second link arrives for a session
	// that already holds a playback URL.
	ErrAlreadyReady = errors.New("session already has a link")
)

// Normalizer turns a raw locator into a playback URL.
type Normalizer interface {
	Normalize(locator string) (string, error)
}

// Session is one submitter's in-progress post.
type Session struct {
	// Seq increases with every image received by the store, so a later
	// session for the same key never shares it with an earlier one.
	Seq         uint64
	Key         types.SessionKey
	ImageRef    string
	RawLocator  string
	PlaybackURL string
	Phase       Phase
	CreatedAt   time.Time
	IsAdmin     bool
}

// Ready reports whether the session holds both an image and a playback URL.
func (s *Session) Ready() bool {
	return s != nil && s.Phase == PhaseReady && s.ImageRef != "" && s.PlaybackURL != ""
}

// Store is an in-memory map of sessions keyed by chat. Nothing survives a
// restart.
type Store struct {
	normalizer Normalizer
	now        func() time.Time
	log        zerolog.Logger

	mu       sync.RWMutex
	seq      uint64
	sessions map[types.SessionKey]*Session
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store that normalizes links with n.
func NewStore(n Normalizer, opts ...Option) *Store {
	s := &Store{
		normalizer: n,
		now:        time.Now,
		log:        xlog.WithComponent("session"),
		sessions:   make(map[types.SessionKey]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnImageReceived starts a fresh session for key, discarding any previous one.
func (s *Store) OnImageReceived(key types.SessionKey, imageRef string, isAdmin bool) *Session {
	sess := &Session{
		Key:       key,
		ImageRef:  imageRef,
		Phase:     PhaseAwaitingLocator,
		CreatedAt: s.now(),
		IsAdmin:   isAdmin,
	}

	s.mu.Lock()
	s.seq++
	sess.Seq = s.seq
	s.sessions[key] = sess
	s.mu.Unlock()

	cp := *sess
	return &cp
}

// OnLocatorReceived attaches a link to the session for key. A normalization
// failure leaves the session untouched so the submitter can retry.
func (s *Store) OnLocatorReceived(key types.SessionKey, raw string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, ErrNoActiveSession
	}
	if sess.Phase == PhaseReady {
		return nil, ErrAlreadyReady
	}

	playback, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	next := *sess
	next.RawLocator = raw
	next.PlaybackURL = playback
	next.Phase = PhaseReady
	s.sessions[key] = &next

	cp := next
	return &cp, nil
}

// Get returns a copy of the session for key.
func (s *Store) Get(key types.SessionKey) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// Clear drops the session for key.
func (s *Store) Clear(key types.SessionKey) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

// ClearIf drops the session for key only while it is still the one numbered
// seq. It reports whether a session was removed.
func (s *Store) ClearIf(key types.SessionKey, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok || sess.Seq != seq {
		return false
	}
	delete(s.sessions, key)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepExpired removes every session created more than maxAge ago and
// returns how many were removed.
func (s *Store) SweepExpired(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepExpired(maxAge); n > 0 {
				s.log.Info().Int("removed", n).Int("remaining", s.Len()).Msg("expired sessions swept")
			}
		}
	}
}
