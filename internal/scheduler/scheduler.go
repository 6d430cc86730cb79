// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/user/playrelay/internal/destination"
	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/types"
)

// Handler is the callback invoked when a destination's schedule fires.
type Handler func(ctx context.Context, dest types.DestinationID)

// Entry is an active schedule.
type Entry struct {
	Destination types.DestinationID
	Expr        string
	ID          cron.EntryID
}

// Scheduler fires a handler per destination on independent cron schedules.
type Scheduler struct {
	schedules []destination.Schedule
	known     func(types.DestinationID) bool
	handler   Handler
	cron      *cron.Cron
	entries   []Entry
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether expr parses with the scheduler's grammar.
func Validate(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// Next returns the first activation of expr strictly after from.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// New creates a Scheduler. known filters out schedules for destinations that
// are not configured; nil accepts all.
func New(schedules []destination.Schedule, known func(types.DestinationID) bool, handler Handler) *Scheduler {
	if known == nil {
		known = func(types.DestinationID) bool { return true }
	}
	return &Scheduler{
		schedules: schedules,
		known:     known,
		handler:   handler,
		cron:      cron.New(cron.WithParser(cronParser)),
		log:       xlog.WithComponent("scheduler"),
	}
}

// Start registers every valid schedule and starts the cron ticker. Invalid
// expressions and unknown destinations are logged and skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, sch := range s.schedules {
		if !s.known(sch.Destination) {
			s.log.Warn().Str("destination", string(sch.Destination)).Msg("schedule for unknown destination")
			continue
		}

		// Capture loop variables for the closure.
		dest := sch.Destination
		expr := sch.Expr

		id, err := s.cron.AddFunc(expr, func() {
			s.log.Info().Str("destination", string(dest)).Msg("cron firing autopost")
			s.handler(s.ctx, dest)
		})
		if err != nil {
			s.log.Error().Str("destination", string(dest)).Str("schedule", expr).Err(err).Msg("invalid cron schedule")
			continue
		}
		s.entries = append(s.entries, Entry{Destination: dest, Expr: expr, ID: id})
		s.log.Info().Str("destination", string(dest)).Str("schedule", expr).Msg("scheduled autopost")
	}

	s.cron.Start()
	return nil
}

// Entries returns the registered schedules.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Stop stops the cron ticker, cancels the handlers' context and waits for
// running handlers to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
}
