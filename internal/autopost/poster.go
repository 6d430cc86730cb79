package autopost

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/metrics"
	"github.com/user/playrelay/internal/publish"
	"github.com/user/playrelay/internal/types"
)

// OnePublisher is the single-destination publish used by the poster.
type OnePublisher interface {
	PublishOne(ctx context.Context, dest types.DestinationID, item publish.Item) publish.Attempt
}

// Normalizer derives the playback URL from a locator.
type Normalizer interface {
	Normalize(locator string) (string, error)
}

// Result describes one autopost run.
type Result struct {
	Destination types.DestinationID
	Item        Item
	Attempt     publish.Attempt
	Archived    []string
}

// Poster runs the select, publish and archive sequence for a destination.
type Poster struct {
	root       string
	publisher  OnePublisher
	normalizer Normalizer
	pick       Picker
	now        func() time.Time
	log        zerolog.Logger

	mu    sync.Mutex
	locks map[types.DestinationID]*sync.Mutex
}

// PosterOption configures a Poster.
type PosterOption func(*Poster)

// WithPicker replaces the random index source.
func WithPicker(p Picker) PosterOption {
	return func(ps *Poster) { ps.pick = p }
}

// WithClock replaces the time source used for archive names.
func WithClock(now func() time.Time) PosterOption {
	return func(ps *Poster) { ps.now = now }
}

// NewPoster creates a Poster reading from root/<destination>.
func NewPoster(root string, pub OnePublisher, n Normalizer, opts ...PosterOption) *Poster {
	p := &Poster{
		root:       root,
		publisher:  pub,
		normalizer: n,
		pick:       rand.Intn,
		now:        time.Now,
		log:        xlog.WithComponent("autopost"),
		locks:      make(map[types.DestinationID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ContentDir is the queue directory for dest under root.
func ContentDir(root string, dest types.DestinationID) string {
	return filepath.Join(root, string(dest))
}

// Dir returns the content directory for dest.
func (p *Poster) Dir(dest types.DestinationID) string {
	return ContentDir(p.root, dest)
}

func (p *Poster) lock(dest types.DestinationID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[dest]
	if !ok {
		l = &sync.Mutex{}
		p.locks[dest] = l
	}
	return l
}

// Run publishes one item for dest. The selected files are archived whether
// or not the publish succeeds, so a broken locator is never retried. A
// directory without a usable pair yields ErrNoContent. Publish failures are
// reported in Result.Attempt, not as the returned error.
func (p *Poster) Run(ctx context.Context, dest types.DestinationID) (Result, error) {
	l := p.lock(dest)
	l.Lock()
	defer l.Unlock()

	res := Result{Destination: dest}
	log := p.log.With().Str("destination", string(dest)).Logger()
	dir := p.Dir(dest)

	inv, err := Scan(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info().Str("dir", dir).Msg("no content directory")
			metrics.AutopostRunsTotal.WithLabelValues(string(dest), "empty").Inc()
			return res, ErrNoContent
		}
		metrics.AutopostRunsTotal.WithLabelValues(string(dest), "error").Inc()
		return res, err
	}

	textPath, imagePath, ok := Select(inv, p.pick)
	if !ok {
		log.Info().Int("texts", len(inv.Texts)).Int("images", len(inv.Images)).Msg("nothing to post")
		metrics.AutopostRunsTotal.WithLabelValues(string(dest), "empty").Inc()
		return res, ErrNoContent
	}
	res.Item = Item{TextPath: textPath, ImagePath: imagePath}

	res.Attempt = publish.Attempt{Destination: dest}
	locator, err := ReadLocator(textPath)
	if err == nil {
		res.Item.Locator = locator
		var playback string
		playback, err = p.normalizer.Normalize(locator)
		if err == nil {
			res.Attempt = p.publisher.PublishOne(ctx, dest, publish.Item{
				Photo:       publish.Photo{Path: imagePath},
				PlaybackURL: playback,
			})
		}
	}
	if err != nil {
		res.Attempt.Err = err
		log.Warn().Err(err).Str("text", filepath.Base(textPath)).Msg("unusable locator")
	}

	res.Archived, err = Archive(dir, p.now(), textPath, imagePath)
	if err != nil {
		log.Error().Err(err).Msg("archive failed")
	}

	result := "published"
	if !res.Attempt.OK() {
		result = "failed"
	}
	metrics.AutopostRunsTotal.WithLabelValues(string(dest), result).Inc()
	log.Info().
		Str("text", filepath.Base(textPath)).
		Str("image", filepath.Base(imagePath)).
		Str("result", result).
		Msg("autopost run finished")
	return res, err
}
