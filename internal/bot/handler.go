// Package bot implements the conversational command surface: the
// image-then-link capture for every submitter and the publish commands
// reserved for the admin. It is transport neutral; a Messenger carries
// replies back to the chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/user/playrelay/internal/autopost"
	"github.com/user/playrelay/internal/destination"
	"github.com/user/playrelay/internal/link"
	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/publish"
	"github.com/user/playrelay/internal/session"
	"github.com/user/playrelay/internal/types"
)

// Callback data prefixes.
const (
	ActionPostTo   = "post_to"
	ActionPostAll  = "post_all"
	ActionAutopost = "autopost"
)

// Button is an inline button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// Messenger sends replies into a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Publisher is the slice of the publish engine used by the handlers.
type Publisher interface {
	PublishOne(ctx context.Context, dest types.DestinationID, item publish.Item) publish.Attempt
	Registry() *destination.Registry
}

// Broadcaster starts background fan-out publishes.
type Broadcaster interface {
	Go(item publish.Item, progress publish.ProgressFunc, done publish.DoneFunc) types.BroadcastID
}

// AutoPoster runs one autopost cycle for a destination.
type AutoPoster interface {
	Run(ctx context.Context, dest types.DestinationID) (autopost.Result, error)
}

// Options tune handler behavior.
type Options struct {
	// AdminID is the user id allowed to publish. Empty disables admin
	// features entirely.
	AdminID string
	// ClearAfterPublish drops the session once its post has been delivered.
	ClearAfterPublish bool
}

// Handler dispatches inbound events.
type Handler struct {
	messenger   Messenger
	sessions    *session.Store
	publisher   Publisher
	broadcaster Broadcaster
	poster      AutoPoster
	opts        Options
	log         zerolog.Logger
}

// New creates a Handler. poster may be nil when autoposting is not
// configured.
func New(m Messenger, sessions *session.Store, pub Publisher, b Broadcaster, poster AutoPoster, opts Options) *Handler {
	return &Handler{
		messenger:   m,
		sessions:    sessions,
		publisher:   pub,
		broadcaster: b,
		poster:      poster,
		opts:        opts,
		log:         xlog.WithComponent("bot"),
	}
}

// ChatDestination addresses a private chat as a publish destination.
func ChatDestination(chatID int64) types.DestinationID {
	return types.DestinationID(strconv.FormatInt(chatID, 10))
}

func (h *Handler) isAdmin(e *types.InboundEvent) bool {
	return h.opts.AdminID != "" && e.UserID == h.opts.AdminID
}

// Process handles one inbound event. It matches gateway.Processor.
func (h *Handler) Process(ctx context.Context, e *types.InboundEvent) error {
	switch e.Kind {
	case types.EventImage:
		return h.onImage(ctx, e)
	case types.EventText:
		return h.onText(ctx, e)
	case types.EventCommand:
		return h.onCommand(ctx, e)
	case types.EventCallback:
		return h.onCallback(ctx, e)
	default:
		h.log.Debug().Str("kind", string(e.Kind)).Msg("ignoring event")
		return nil
	}
}

func (h *Handler) reply(ctx context.Context, e *types.InboundEvent, text string) error {
	_, err := h.messenger.SendText(ctx, e.ChatID, text, nil)
	return err
}

func (h *Handler) onImage(ctx context.Context, e *types.InboundEvent) error {
	admin := h.isAdmin(e)
	h.sessions.OnImageReceived(e.SessionKey, e.ImageRef, admin)
	return h.reply(ctx, e, imageReceivedText(admin))
}

func (h *Handler) onText(ctx context.Context, e *types.InboundEvent) error {
	sess, err := h.sessions.OnLocatorReceived(e.SessionKey, e.Text)
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		return h.reply(ctx, e, msgSendImageFirst)
	case errors.Is(err, session.ErrAlreadyReady):
		return h.reply(ctx, e, msgAlreadyReady)
	case err != nil:
		return h.reply(ctx, e, link.UserMessage(err))
	}

	item, err := publish.ItemFromSession(sess)
	if err != nil {
		return h.reply(ctx, e, msgPreviewFailed)
	}
	attempt := h.publisher.PublishOne(ctx, ChatDestination(e.ChatID), item)
	if !attempt.OK() {
		h.log.Warn().Err(attempt.Err).Int64("chat_id", e.ChatID).Msg("preview failed")
		return h.reply(ctx, e, msgPreviewFailed)
	}

	if e.MessageID != 0 {
		if err := h.messenger.DeleteMessage(ctx, e.ChatID, e.MessageID); err != nil {
			h.log.Debug().Err(err).Int("message_id", e.MessageID).Msg("could not delete link message")
		}
	}

	if h.isAdmin(e) {
		return h.reply(ctx, e, msgPostCreatedAdmin)
	}
	if h.opts.ClearAfterPublish {
		h.sessions.Clear(e.SessionKey)
	}
	return nil
}

func (h *Handler) onCommand(ctx context.Context, e *types.InboundEvent) error {
	switch e.Command {
	case "start", "help":
		return h.reply(ctx, e, usageText(h.isAdmin(e)))
	case "cancel":
		h.sessions.Clear(e.SessionKey)
		return h.reply(ctx, e, msgSessionCleared)
	case "status":
		sess, ok := h.sessions.Get(e.SessionKey)
		return h.reply(ctx, e, statusText(sess, ok))
	case "post", "postall", "autopost":
	default:
		return h.reply(ctx, e, msgUnknownCommand)
	}

	if !h.isAdmin(e) {
		return h.reply(ctx, e, msgAdminOnly)
	}
	switch e.Command {
	case "post":
		return h.cmdPost(ctx, e)
	case "postall":
		item, err := h.readyItem(e.SessionKey)
		if err != nil {
			return h.reply(ctx, e, msgCreatePostFirst)
		}
		return h.startBroadcast(ctx, e, item, 0)
	default:
		return h.cmdAutopost(ctx, e)
	}
}

func (h *Handler) readyItem(key types.SessionKey) (publish.Item, error) {
	sess, ok := h.sessions.Get(key)
	if !ok {
		return publish.Item{}, publish.ErrSessionNotReady
	}
	return publish.ItemFromSession(sess)
}

func (h *Handler) registry() *destination.Registry {
	return h.publisher.Registry()
}

func (h *Handler) cmdPost(ctx context.Context, e *types.InboundEvent) error {
	if _, err := h.readyItem(e.SessionKey); err != nil {
		return h.reply(ctx, e, msgCreatePostFirst)
	}
	dests := h.registry().All()
	if len(dests) == 0 {
		return h.reply(ctx, e, publish.UserMessage(publish.ErrNoDestinations))
	}
	kb := make(Keyboard, 0, len(dests)+1)
	for _, d := range dests {
		kb = append(kb, []Button{{Text: "Post to " + d.Name, Data: ActionPostTo + ":" + string(d.ID)}})
	}
	if len(dests) > 1 {
		kb = append(kb, []Button{{Text: "📢 Post to all", Data: ActionPostAll + ":*"}})
	}
	_, err := h.messenger.SendText(ctx, e.ChatID, msgSelectChannel, kb)
	return err
}

func (h *Handler) cmdAutopost(ctx context.Context, e *types.InboundEvent) error {
	if h.poster == nil {
		return h.reply(ctx, e, msgAutopostDisabled)
	}
	if len(e.Args) > 0 {
		id := types.DestinationID(e.Args[0])
		d, ok := h.registry().Get(id)
		if !ok {
			return h.reply(ctx, e, fmt.Sprintf("Unknown destination %q.", id))
		}
		res, err := h.poster.Run(ctx, d.ID)
		return h.reply(ctx, e, autopostResultText(d.Name, res, err))
	}
	dests := h.registry().All()
	if len(dests) == 0 {
		return h.reply(ctx, e, publish.UserMessage(publish.ErrNoDestinations))
	}
	kb := make(Keyboard, 0, len(dests))
	for _, d := range dests {
		kb = append(kb, []Button{{Text: "Autopost to " + d.Name, Data: ActionAutopost + ":" + string(d.ID)}})
	}
	_, err := h.messenger.SendText(ctx, e.ChatID, msgSelectAutopost, kb)
	return err
}

func (h *Handler) answer(ctx context.Context, e *types.InboundEvent, text string) error {
	return h.messenger.AnswerCallback(ctx, e.CallbackID, text)
}

func (h *Handler) onCallback(ctx context.Context, e *types.InboundEvent) error {
	if !h.isAdmin(e) {
		return h.answer(ctx, e, msgAdminOnlyAction)
	}
	action, target, _ := strings.Cut(e.Data, ":")
	switch action {
	case ActionPostTo:
		return h.postTo(ctx, e, types.DestinationID(target))
	case ActionPostAll:
		item, err := h.readyItem(e.SessionKey)
		if err != nil {
			return h.answer(ctx, e, msgNoPostData)
		}
		if err := h.answer(ctx, e, msgBroadcastStarted); err != nil {
			h.log.Debug().Err(err).Msg("answer callback failed")
		}
		return h.startBroadcast(ctx, e, item, e.MessageID)
	case ActionAutopost:
		if h.poster == nil {
			return h.answer(ctx, e, msgAutopostDisabled)
		}
		d, ok := h.registry().Get(types.DestinationID(target))
		if !ok {
			return h.answer(ctx, e, "Unknown destination.")
		}
		res, err := h.poster.Run(ctx, d.ID)
		text := autopostResultText(d.Name, res, err)
		if err := h.answer(ctx, e, text); err != nil {
			h.log.Debug().Err(err).Msg("answer callback failed")
		}
		return h.messenger.EditText(ctx, e.ChatID, e.MessageID, text)
	default:
		return h.answer(ctx, e, msgUnknownAction)
	}
}

func (h *Handler) postTo(ctx context.Context, e *types.InboundEvent, id types.DestinationID) error {
	item, err := h.readyItem(e.SessionKey)
	if err != nil {
		return h.answer(ctx, e, msgNoPostData)
	}
	d, ok := h.registry().Get(id)
	if !ok {
		return h.answer(ctx, e, "Unknown destination.")
	}
	attempt := h.publisher.PublishOne(ctx, d.ID, item)
	if !attempt.OK() {
		return h.answer(ctx, e, publish.UserMessage(attempt.Err))
	}
	if err := h.answer(ctx, e, "✅ Posted to "+d.Name+"!"); err != nil {
		h.log.Debug().Err(err).Msg("answer callback failed")
	}
	if h.opts.ClearAfterPublish {
		h.sessions.Clear(e.SessionKey)
	}
	return h.messenger.EditText(ctx, e.ChatID, e.MessageID, "✅ Posted to "+d.Name+" successfully!")
}

// startBroadcast hands the fan-out to the broadcaster and returns at once so
// the chat lane stays responsive. Progress is written into progressMsg, or a
// fresh message when it is zero.
func (h *Handler) startBroadcast(ctx context.Context, e *types.InboundEvent, item publish.Item, progressMsg int) error {
	total := h.registry().Len()
	if total == 0 {
		return h.reply(ctx, e, publish.UserMessage(publish.ErrNoDestinations))
	}
	initial := publish.Report{Total: total}.Progress()
	if progressMsg == 0 {
		id, err := h.messenger.SendText(ctx, e.ChatID, initial, nil)
		if err != nil {
			return err
		}
		progressMsg = id
	} else if err := h.messenger.EditText(ctx, e.ChatID, progressMsg, initial); err != nil {
		h.log.Debug().Err(err).Msg("progress edit failed")
	}

	chatID := e.ChatID
	key := e.SessionKey
	var seq uint64
	if sess, ok := h.sessions.Get(key); ok {
		seq = sess.Seq
	}
	progress := func(r publish.Report, final bool) {
		text := r.Progress()
		if final {
			text = r.Summary()
		}
		if err := h.messenger.EditText(context.Background(), chatID, progressMsg, text); err != nil {
			h.log.Debug().Err(err).Msg("progress edit failed")
		}
	}
	done := func(id types.BroadcastID, r publish.Report, err error) {
		if err != nil {
			h.log.Warn().Err(err).Str("broadcast_id", string(id)).Msg("broadcast aborted")
			if _, serr := h.messenger.SendText(context.Background(), chatID, publish.UserMessage(err), nil); serr != nil {
				h.log.Debug().Err(serr).Msg("send failed")
			}
			return
		}
		if h.opts.ClearAfterPublish && len(r.Failed) == 0 && !h.sessions.ClearIf(key, seq) {
			h.log.Debug().Str("broadcast_id", string(id)).Msg("session replaced during broadcast, kept")
		}
	}
	id := h.broadcaster.Go(item, progress, done)
	h.log.Info().Str("broadcast_id", string(id)).Int("destinations", total).Msg("broadcast started")
	return nil
}
