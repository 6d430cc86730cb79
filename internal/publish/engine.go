// Package publish sends a finished post (image plus play control) to one or
// all configured destinations.
package publish

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/playrelay/internal/destination"
	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/metrics"
	"github.com/user/playrelay/internal/session"
	"github.com/user/playrelay/internal/types"
)

// ControlStyle selects how the play button opens the playback URL.
type ControlStyle int

const (
	// StyleWebApp launches the URL as an embedded mini application.
	StyleWebApp ControlStyle = iota
	// StyleLink opens the URL as a plain navigation link.
	StyleLink
)

func (s ControlStyle) String() string {
	if s == StyleWebApp {
		return "web_app"
	}
	return "link"
}

// Control is the single action button attached to a post.
type Control struct {
	Style ControlStyle
	Text  string
	URL   string
}

// Photo references an image either by platform file id or local path.
type Photo struct {
	FileID string
	Path   string
}

// Empty reports whether neither reference is set.
func (p Photo) Empty() bool { return p.FileID == "" && p.Path == "" }

// Item is a publishable post.
type Item struct {
	Photo       Photo
	PlaybackURL string
}

func (i Item) ready() bool { return !i.Photo.Empty() && i.PlaybackURL != "" }

// ItemFromSession converts a Ready session into an Item.
func ItemFromSession(s *session.Session) (Item, error) {
	if !s.Ready() {
		return Item{}, ErrSessionNotReady
	}
	return Item{Photo: Photo{FileID: s.ImageRef}, PlaybackURL: s.PlaybackURL}, nil
}

// Publisher is the outbound transport call used by the engine. Failures
// should be returned as *Error so they can be classified.
type Publisher interface {
	SendPhoto(ctx context.Context, dest types.DestinationID, photo Photo, caption string, control Control) error
}

// ProgressFunc receives the running report. It is called once before the
// first destination, after every destination, and once more with final set.
type ProgressFunc func(r Report, final bool)

const (
	DefaultDelay      = 500 * time.Millisecond
	DefaultButtonText = "▶️ Play Video"
	// Telegram rejects an empty caption on some clients; a single space keeps
	// the post visually bare.
	DefaultCaption = " "
)

// Engine publishes items to destinations.
type Engine struct {
	pub        Publisher
	registry   *destination.Registry
	capability *Capability
	delay      time.Duration
	caption    string
	buttonText string
	log        zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDelay sets the pause between the end of one outbound call and the
// start of the next within a publish.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithCaption sets the caption attached to every post.
func WithCaption(caption string) Option {
	return func(e *Engine) { e.caption = caption }
}

// WithButtonText sets the play button label.
func WithButtonText(text string) Option {
	return func(e *Engine) { e.buttonText = text }
}

// New creates an Engine. capability is shared process-wide so that a
// downgrade observed by one publish applies to all later ones.
func New(pub Publisher, registry *destination.Registry, capability *Capability, opts ...Option) *Engine {
	e := &Engine{
		pub:        pub,
		registry:   registry,
		capability: capability,
		delay:      DefaultDelay,
		caption:    DefaultCaption,
		buttonText: DefaultButtonText,
		log:        xlog.WithComponent("publish"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the destination registry the engine publishes to.
func (e *Engine) Registry() *destination.Registry {
	return e.registry
}

// PublishOne issues one publish to dest. A rejected web-app control
// downgrades the shared capability and the post is resent with a link
// control.
func (e *Engine) PublishOne(ctx context.Context, dest types.DestinationID, item Item) Attempt {
	a := Attempt{Destination: dest, Name: e.registry.Lookup(dest)}
	if !item.ready() {
		a.Err = ErrSessionNotReady
		a.Kind = KindUnknown
		return a
	}

	a.Style = StyleLink
	if e.capability.WebAppSupported() {
		a.Style = StyleWebApp
	}

	err := e.send(ctx, dest, item, a.Style)
	if err != nil && a.Style == StyleWebApp && KindOf(err) == KindCapabilityRejected {
		if e.capability.Downgrade() {
			metrics.CapabilityDowngradesTotal.Inc()
			e.log.Warn().Str("destination", string(dest)).Err(err).Msg("web app controls rejected, switching to link controls")
		}
		a.Style = StyleLink
		if err = e.pause(ctx); err == nil {
			err = e.send(ctx, dest, item, a.Style)
		}
	}

	if err != nil {
		a.Err = err
		a.Kind = KindOf(err)
		metrics.ObservePublish(false, string(a.Kind))
		e.log.Error().
			Str("destination", string(dest)).
			Str("name", a.Name).
			Str("kind", string(a.Kind)).
			Err(err).
			Msg("publish failed")
		return a
	}

	metrics.ObservePublish(true, "")
	e.log.Info().
		Str("destination", string(dest)).
		Str("name", a.Name).
		Stringer("control", a.Style).
		Msg("published")
	return a
}

// pause waits out the configured delay, returning early with ctx's error.
func (e *Engine) pause(ctx context.Context) error {
	if e.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) send(ctx context.Context, dest types.DestinationID, item Item, style ControlStyle) error {
	return e.pub.SendPhoto(ctx, dest, item.Photo, e.caption, Control{
		Style: style,
		Text:  e.buttonText,
		URL:   item.PlaybackURL,
	})
}

// PublishAll publishes item to every destination in registry order. A failed
// destination is recorded and skipped; it never aborts the batch.
func (e *Engine) PublishAll(ctx context.Context, item Item, progress ProgressFunc) (Report, error) {
	dests := e.registry.All()
	if len(dests) == 0 {
		return Report{}, ErrNoDestinations
	}
	if !item.ready() {
		return Report{}, ErrSessionNotReady
	}
	if progress == nil {
		progress = func(Report, bool) {}
	}

	report := Report{Total: len(dests)}
	progress(report, false)

	for i, d := range dests {
		err := ctx.Err()
		if i > 0 {
			err = e.pause(ctx)
		}
		if err != nil {
			// Shutdown: the remaining destinations count as failed.
			for _, rest := range dests[i:] {
				report.Failed = append(report.Failed, rest.Name)
			}
			e.log.Warn().Err(err).Int("skipped", len(dests)-i).Msg("publish all interrupted")
			break
		}
		report.add(e.PublishOne(ctx, d.ID, item))
		if i < len(dests)-1 {
			progress(report, false)
		}
	}

	e.log.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Strs("failed", report.Failed).
		Msg("publish all finished")
	progress(report, true)
	return report, nil
}
