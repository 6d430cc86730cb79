package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/playrelay/internal/bot"
	"github.com/user/playrelay/internal/gateway"
	"github.com/user/playrelay/internal/publish"
	"github.com/user/playrelay/internal/types"
)

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestBuildSessionKey(t *testing.T) {
	key := buildSessionKey(67890)
	if string(key) != "telegram:67890" {
		t.Errorf("expected 'telegram:67890', got %q", key)
	}
}

type apiCall struct {
	Method string
	Form   url.Values
}

// fakeTelegram serves the handful of Bot API methods the adapter uses.
type fakeTelegram struct {
	mu     sync.Mutex
	calls  []apiCall
	nextID int
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Form: r.PostForm})
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fail := func(code int, desc string) {
		fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":%q}`, code, desc)
	}
	message := func() {
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":1,"type":"private"}}}`, id)
	}

	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Relay","username":"relay_bot"}}`)
	case "sendPhoto":
		chat := r.PostForm.Get("chat_id")
		switch {
		case chat == "@gone":
			fail(400, "Bad Request: chat not found")
		case chat == "@locked":
			fail(403, "Forbidden: bot is not a member of the channel chat")
		case chat == "@strict" && strings.Contains(r.PostForm.Get("reply_markup"), "web_app"):
			fail(400, "Bad Request: BUTTON_TYPE_INVALID")
		default:
			message()
		}
	case "sendMessage":
		if r.PostForm.Get("parse_mode") == "Markdown" && strings.Contains(r.PostForm.Get("text"), "*broken") {
			fail(400, "Bad Request: can't parse entities")
			return
		}
		message()
	case "editMessageText":
		message()
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeTelegram) Calls(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []*types.InboundEvent
}

func (s *recordingSink) HandleInbound(_ context.Context, e *types.InboundEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeTelegram, *recordingSink) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	sink := &recordingSink{}
	a, err := New("TOKEN", sink, Options{
		Endpoint: srv.URL + "/bot%s/%s",
		Client:   srv.Client(),
		Retry:    &gateway.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
	})
	require.NoError(t, err)
	return a, fake, sink
}

func TestNewReadsBotIdentity(t *testing.T) {
	a, fake, _ := newTestAdapter(t)
	assert.Equal(t, "relay_bot", a.Username())
	assert.Len(t, fake.Calls("getMe"), 1)
}

func TestSendPhotoWebApp(t *testing.T) {
	a, fake, _ := newTestAdapter(t)

	err := a.SendPhoto(context.Background(), "@chan", publish.Photo{FileID: "F1"}, " ",
		publish.Control{Style: publish.StyleWebApp, Text: "▶️ Play Video", URL: "https://player.example/?lib=1&id=2"})
	require.NoError(t, err)

	calls := fake.Calls("sendPhoto")
	require.Len(t, calls, 1)
	form := calls[0].Form
	assert.Equal(t, "@chan", form.Get("chat_id"))
	assert.Equal(t, "F1", form.Get("photo"))

	var markup inlineMarkup
	require.NoError(t, json.Unmarshal([]byte(form.Get("reply_markup")), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	button := markup.InlineKeyboard[0][0]
	require.NotNil(t, button.WebApp)
	assert.Equal(t, "https://player.example/?lib=1&id=2", button.WebApp.URL)
	assert.Empty(t, button.URL)
}

func TestSendPhotoLinkToNumericChat(t *testing.T) {
	a, fake, _ := newTestAdapter(t)

	err := a.SendPhoto(context.Background(), "-100123", publish.Photo{FileID: "F1"}, " ",
		publish.Control{Style: publish.StyleLink, Text: "Play", URL: "https://p.example"})
	require.NoError(t, err)

	form := fake.Calls("sendPhoto")[0].Form
	assert.Equal(t, "-100123", form.Get("chat_id"))
	assert.JSONEq(t, `{"inline_keyboard":[[{"text":"Play","url":"https://p.example"}]]}`, form.Get("reply_markup"))
}

func TestSendPhotoClassifiesFailures(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()
	webApp := publish.Control{Style: publish.StyleWebApp, Text: "Play", URL: "https://p.example"}
	photo := publish.Photo{FileID: "F1"}

	tests := []struct {
		dest types.DestinationID
		want publish.Kind
	}{
		{"@gone", publish.KindDestinationUnreachable},
		{"@locked", publish.KindInsufficientPrivilege},
		{"@strict", publish.KindCapabilityRejected},
		{"not-a-chat", publish.KindDestinationUnreachable},
	}
	for _, tt := range tests {
		t.Run(string(tt.dest), func(t *testing.T) {
			err := a.SendPhoto(ctx, tt.dest, photo, " ", webApp)
			require.Error(t, err)
			assert.Equal(t, tt.want, publish.KindOf(err))
		})
	}
}

func TestSendPhotoWithoutImage(t *testing.T) {
	a, fake, _ := newTestAdapter(t)
	err := a.SendPhoto(context.Background(), "@chan", publish.Photo{}, " ", publish.Control{})
	assert.ErrorIs(t, err, publish.ErrSessionNotReady)
	assert.Empty(t, fake.Calls("sendPhoto"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, publish.KindUnknown, publish.KindOf(classify(errors.New("dial tcp: timeout"))))
	assert.Equal(t, publish.KindInsufficientPrivilege,
		publish.KindOf(classify(&tgbotapi.Error{Code: 400, Message: "Bad Request: need administrator rights in the channel chat"})))
	assert.Equal(t, publish.KindInsufficientPrivilege,
		publish.KindOf(classify(&tgbotapi.Error{Code: 400, Message: "Bad Request: not enough rights to send photos"})))
	assert.Equal(t, publish.KindUnknown,
		publish.KindOf(classify(&tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 5"})))
}

func TestSendTextWithKeyboard(t *testing.T) {
	a, fake, _ := newTestAdapter(t)

	id, err := a.SendText(context.Background(), 42, "Select channel to post:", bot.Keyboard{
		{{Text: "Post to Alpha", Data: "post_to:@a"}},
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	form := fake.Calls("sendMessage")[0].Form
	assert.Equal(t, "42", form.Get("chat_id"))
	assert.Equal(t, "Markdown", form.Get("parse_mode"))
	assert.JSONEq(t, `{"inline_keyboard":[[{"text":"Post to Alpha","callback_data":"post_to:@a"}]]}`, form.Get("reply_markup"))
}

func TestSendTextFallsBackToPlain(t *testing.T) {
	a, fake, _ := newTestAdapter(t)

	_, err := a.SendText(context.Background(), 42, "*broken markdown", nil)
	require.NoError(t, err)

	calls := fake.Calls("sendMessage")
	require.Len(t, calls, 2)
	assert.Empty(t, calls[1].Form.Get("parse_mode"))
}

func TestMessageOperations(t *testing.T) {
	a, fake, _ := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.EditText(ctx, 42, 7, "done"))
	require.NoError(t, a.AnswerCallback(ctx, "cb-1", "ok"))
	require.NoError(t, a.DeleteMessage(ctx, 42, 8))

	assert.Equal(t, "7", fake.Calls("editMessageText")[0].Form.Get("message_id"))
	assert.Equal(t, "cb-1", fake.Calls("answerCallbackQuery")[0].Form.Get("callback_query_id"))
	assert.Equal(t, "8", fake.Calls("deleteMessage")[0].Form.Get("message_id"))
}

func TestRegisterWebhookSendsSecret(t *testing.T) {
	a, fake, _ := newTestAdapter(t)

	require.NoError(t, a.RegisterWebhook(context.Background(), "https://relay.example/webhook", "s3cret"))

	form := fake.Calls("setWebhook")[0].Form
	assert.Equal(t, "https://relay.example/webhook", form.Get("url"))
	assert.Equal(t, "s3cret", form.Get("secret_token"))
}

func TestHandleUpdateConvertsEvents(t *testing.T) {
	a, _, sink := newTestAdapter(t)
	ctx := context.Background()
	chat := &tgbotapi.Chat{ID: 100}
	user := &tgbotapi.User{ID: 5}

	updates := []tgbotapi.Update{
		{Message: &tgbotapi.Message{MessageID: 1, Chat: chat, From: user, Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}}},
		{Message: &tgbotapi.Message{MessageID: 2, Chat: chat, From: user, Text: "https://iframe.mediadelivery.net/play/1/2"}},
		{Message: &tgbotapi.Message{MessageID: 3, Chat: chat, From: user, Text: "/autopost @a",
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 9}}}},
		{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb", From: user, Data: "post_to:@a", Message: &tgbotapi.Message{MessageID: 4, Chat: chat}}},
		{Message: &tgbotapi.Message{MessageID: 5, Chat: chat, From: user}},
		{},
	}
	for _, u := range updates {
		require.NoError(t, a.HandleUpdate(ctx, u))
	}

	require.Len(t, sink.events, 4)
	key := types.SessionKey("telegram:100")

	img := sink.events[0]
	assert.Equal(t, types.EventImage, img.Kind)
	assert.Equal(t, "large", img.ImageRef)
	assert.Equal(t, key, img.SessionKey)
	assert.Equal(t, "5", img.UserID)

	assert.Equal(t, types.EventText, sink.events[1].Kind)
	assert.Equal(t, 2, sink.events[1].MessageID)

	cmd := sink.events[2]
	assert.Equal(t, types.EventCommand, cmd.Kind)
	assert.Equal(t, "autopost", cmd.Command)
	assert.Equal(t, []string{"@a"}, cmd.Args)

	cb := sink.events[3]
	assert.Equal(t, types.EventCallback, cb.Kind)
	assert.Equal(t, "cb", cb.CallbackID)
	assert.Equal(t, "post_to:@a", cb.Data)
	assert.Equal(t, 4, cb.MessageID)
	assert.Equal(t, int64(100), cb.ChatID)
}
