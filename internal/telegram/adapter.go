// Package telegram connects the bot to the Telegram Bot API. It converts
// updates into inbound events and implements both the chat Messenger and
// the channel Publisher on top of one API client.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/user/playrelay/internal/bot"
	"github.com/user/playrelay/internal/gateway"
	xlog "github.com/user/playrelay/internal/log"
	"github.com/user/playrelay/internal/publish"
	"github.com/user/playrelay/internal/types"
)

const (
	maxTelegramMessage = 4096
	source             = "telegram"
)

// Sink receives converted inbound events.
type Sink interface {
	HandleInbound(ctx context.Context, event *types.InboundEvent) error
}

// botAPI is the subset of *tgbotapi.BotAPI the adapter calls.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Options configure the adapter.
type Options struct {
	// Endpoint overrides tgbotapi.APIEndpoint, mostly for tests.
	Endpoint string
	Client   *http.Client
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	// Retry governs webhook registration and removal at startup.
	Retry *gateway.RetryPolicy
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	api      botAPI
	username string
	sink     Sink
	opts     Options
	log      zerolog.Logger
}

// New creates a Telegram adapter. The token is verified with getMe.
func New(token string, sink Sink, opts Options) (*Adapter, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30
	}
	if opts.Retry == nil {
		opts.Retry = gateway.DefaultRetryPolicy()
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, opts.Endpoint, opts.Client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		api:      api,
		username: api.Self.UserName,
		sink:     sink,
		opts:     opts,
		log:      xlog.WithComponent("telegram"),
	}, nil
}

// Username is the bot's Telegram handle.
func (a *Adapter) Username() string { return a.username }

// Poll removes any registered webhook and then long-polls for updates until
// ctx is cancelled.
func (a *Adapter) Poll(ctx context.Context) error {
	err := a.opts.Retry.Execute(ctx, func() error {
		_, err := a.api.Request(tgbotapi.DeleteWebhookConfig{})
		return err
	})
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.opts.PollTimeout
	updates := a.api.GetUpdatesChan(u)
	a.log.Info().Str("bot", a.username).Msg("polling for updates")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := a.HandleUpdate(ctx, update); err != nil {
				a.log.Error().Err(err).Int("update_id", update.UpdateID).Msg("handle update")
			}
		case <-ctx.Done():
			a.api.StopReceivingUpdates()
			return nil
		}
	}
}

// RegisterWebhook points Telegram at url. A non-empty secret is echoed by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (a *Adapter) RegisterWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	err := a.opts.Retry.Execute(ctx, func() error {
		_, err := a.api.MakeRequest("setWebhook", params)
		if err != nil {
			a.log.Warn().Err(err).Msg("webhook registration attempt failed")
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	a.log.Info().Str("url", url).Msg("webhook registered")
	return nil
}

// HandleUpdate converts update and hands it to the sink. Updates carrying
// nothing the bot reacts to are dropped.
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	event := toEvent(update)
	if event == nil {
		return nil
	}
	return a.sink.HandleInbound(ctx, event)
}

func toEvent(u tgbotapi.Update) *types.InboundEvent {
	if cq := u.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil {
			return nil
		}
		e := newEvent(types.EventCallback, cq.Message.Chat.ID, cq.From)
		e.MessageID = cq.Message.MessageID
		e.CallbackID = cq.ID
		e.Data = cq.Data
		return e
	}

	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	var e *types.InboundEvent
	switch {
	case len(msg.Photo) > 0:
		e = newEvent(types.EventImage, msg.Chat.ID, msg.From)
		// Sizes are ordered smallest first.
		e.ImageRef = msg.Photo[len(msg.Photo)-1].FileID
		e.Text = msg.Caption
	case msg.IsCommand():
		e = newEvent(types.EventCommand, msg.Chat.ID, msg.From)
		e.Command = msg.Command()
		e.Args = strings.Fields(msg.CommandArguments())
		e.Text = msg.Text
	case msg.Text != "":
		e = newEvent(types.EventText, msg.Chat.ID, msg.From)
		e.Text = msg.Text
	default:
		return nil
	}
	e.MessageID = msg.MessageID
	return e
}

func newEvent(kind types.EventKind, chatID int64, from *tgbotapi.User) *types.InboundEvent {
	e := &types.InboundEvent{
		Kind:       kind,
		SessionKey: buildSessionKey(chatID),
		ChatID:     chatID,
	}
	if from != nil {
		e.UserID = strconv.FormatInt(from.ID, 10)
	}
	return e
}

func buildSessionKey(chatID int64) types.SessionKey {
	return types.NewSessionKey(source, strconv.FormatInt(chatID, 10))
}

// SendText sends text to chatID, split into message-sized parts. Markdown is
// tried first and dropped if Telegram rejects the entities. The keyboard is
// attached to the last part; the returned id is that part's message id.
func (a *Adapter) SendText(_ context.Context, chatID int64, text string, kb bot.Keyboard) (int, error) {
	parts := splitMessage(text)
	var id int
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if i == len(parts)-1 && len(kb) > 0 {
			msg.ReplyMarkup = keyboardMarkup(kb)
		}
		sent, err := a.api.Send(msg)
		if err != nil {
			msg.ParseMode = ""
			sent, err = a.api.Send(msg)
			if err != nil {
				return 0, fmt.Errorf("send message: %w", err)
			}
		}
		id = sent.MessageID
	}
	return id, nil
}

// EditText replaces the text of a sent message, dropping its keyboard.
func (a *Adapter) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	if _, err := a.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press with a short notice.
func (a *Adapter) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := a.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// DeleteMessage removes a message from a chat.
func (a *Adapter) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if _, err := a.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SendPhoto posts photo to dest with a single button opening control.URL.
// dest is either a numeric chat id or an @channel username.
func (a *Adapter) SendPhoto(_ context.Context, dest types.DestinationID, photo publish.Photo, caption string, control publish.Control) error {
	var file tgbotapi.RequestFileData
	switch {
	case photo.FileID != "":
		file = tgbotapi.FileID(photo.FileID)
	case photo.Path != "":
		file = tgbotapi.FilePath(photo.Path)
	default:
		return publish.ErrSessionNotReady
	}

	var cfg tgbotapi.PhotoConfig
	id := string(dest)
	if strings.HasPrefix(id, "@") {
		cfg = tgbotapi.NewPhotoToChannel(id, file)
	} else {
		chatID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return publish.Classify(publish.KindDestinationUnreachable, fmt.Errorf("invalid destination %q", id))
		}
		cfg = tgbotapi.NewPhoto(chatID, file)
	}
	cfg.Caption = caption
	cfg.ReplyMarkup = controlMarkup(control)

	if _, err := a.api.Send(cfg); err != nil {
		return classify(err)
	}
	return nil
}

// inlineMarkup mirrors InlineKeyboardMarkup with web_app support, which the
// client library does not model.
type inlineMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text   string      `json:"text"`
	URL    string      `json:"url,omitempty"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
}

type webAppInfo struct {
	URL string `json:"url"`
}

func controlMarkup(c publish.Control) inlineMarkup {
	b := inlineButton{Text: c.Text}
	if c.Style == publish.StyleWebApp {
		b.WebApp = &webAppInfo{URL: c.URL}
	} else {
		b.URL = c.URL
	}
	return inlineMarkup{InlineKeyboard: [][]inlineButton{{b}}}
}

func keyboardMarkup(kb bot.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// classify maps a Bot API failure onto a publish kind.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return publish.Classify(publish.KindUnknown, err)
	}
	desc := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(desc, "button_type_invalid"), strings.Contains(desc, "web_app"), strings.Contains(desc, "web app"):
		return publish.Classify(publish.KindCapabilityRejected, err)
	case strings.Contains(desc, "chat not found"):
		return publish.Classify(publish.KindDestinationUnreachable, err)
	case apiErr.Code == http.StatusForbidden,
		strings.Contains(desc, "not enough rights"),
		strings.Contains(desc, "not a member"),
		strings.Contains(desc, "administrator"):
		return publish.Classify(publish.KindInsufficientPrivilege, err)
	default:
		return publish.Classify(publish.KindUnknown, err)
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
