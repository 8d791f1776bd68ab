package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	telegramMaxMessageLen = 4096
	telegramRetryDelay    = 5 * time.Second
)

// TelegramChannel implements the Channel interface for Telegram Bot API.
type TelegramChannel struct {
	token    string
	baseURL  string
	client   *http.Client
	offset   int
	commands []BotCommand
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTelegramChannel creates a Telegram channel adapter.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (LEARN_TELEGRAM_BOT_TOKEN)")
	}
	return &TelegramChannel{
		token:   token,
		baseURL: "https://api.telegram.org/bot" + token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

// SetCommands sets the command menu published when the channel starts.
func (t *TelegramChannel) SetCommands(cmds []BotCommand) {
	t.commands = cmds
}

func (t *TelegramChannel) SendTyping(ctx context.Context, userID string) error {
	params := url.Values{
		"chat_id": {userID},
		"action":  {"typing"},
	}
	if _, err := t.post(ctx, "/sendChatAction", params); err != nil {
		return fmt.Errorf("sending typing indicator: %w", err)
	}
	return nil
}

func (t *TelegramChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	parts := SplitMessage(msg.Text, telegramMaxMessageLen)

	for _, part := range parts {
		params := url.Values{
			"chat_id": {userID},
			"text":    {part},
		}
		if msg.ParseMode != "" {
			params.Set("parse_mode", msg.ParseMode)
		}

		status, err := t.post(ctx, "/sendMessage", params)
		if err != nil {
			return fmt.Errorf("sending Telegram message: %w", err)
		}

		if status != http.StatusOK {
			// If Markdown parsing fails, retry without parse mode
			if msg.ParseMode != "" && status == http.StatusBadRequest {
				slog.Warn("Telegram markdown parse failed, retrying plain")
				params.Del("parse_mode")
				retryStatus, retryErr := t.post(ctx, "/sendMessage", params)
				if retryErr != nil {
					return fmt.Errorf("sending Telegram message (retry): %w", retryErr)
				}
				if retryStatus != http.StatusOK {
					return fmt.Errorf("telegram API error %d on retry", retryStatus)
				}
				continue
			}
			return fmt.Errorf("telegram API error %d", status)
		}
	}

	return nil
}

func (t *TelegramChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	if len(t.commands) > 0 {
		if err := t.syncCommands(); err != nil {
			slog.Warn("failed to publish Telegram commands", "error", err)
		}
	}
	go t.pollLoop(ctx, handler)
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopOnce.Do(func() { close(t.stop) })
	return nil
}

// syncCommands publishes the command menu with setMyCommands.
func (t *TelegramChannel) syncCommands() error {
	payload, err := json.Marshal(t.commands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := t.post(ctx, "/setMyCommands", url.Values{"commands": {string(payload)}})
	if err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("setMyCommands: telegram API error %d", status)
	}
	slog.Info("Telegram commands published", "count", len(t.commands))
	return nil
}

func (t *TelegramChannel) post(ctx context.Context, method string, params url.Values) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+method, strings.NewReader(params.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func (t *TelegramChannel) pollLoop(ctx context.Context, handler func(InboundMessage)) {
	queue := newChatQueue(handler)
	slog.Info("Telegram long-polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
			updates, err := t.getUpdates(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Telegram getUpdates error", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-t.stop:
					return
				case <-time.After(telegramRetryDelay):
				}
				continue
			}

			for _, u := range updates {
				t.offset = u.UpdateID + 1
				msg, ok := mapTelegramInbound(u)
				if !ok {
					continue
				}
				queue.push(msg)
			}
		}
	}
}

func (t *TelegramChannel) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	params := url.Values{
		"offset":          {strconv.Itoa(t.offset)},
		"timeout":         {"30"},
		"allowed_updates": {`["message"]`},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if !result.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}

	return result.Result, nil
}

// Telegram API types (minimal)
type tgUpdate struct {
	UpdateID int        `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	Text    string `json:"text"`
	Caption string `json:"caption"`
	Chat    tgChat `json:"chat"`
	From    tgUser `json:"from"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

// chatQueue hands messages to a handler one at a time per chat, in
// arrival order. Different chats are handled concurrently.
type chatQueue struct {
	handler func(InboundMessage)
	mu      sync.Mutex
	pending map[string][]InboundMessage // key present while a worker runs
}

func newChatQueue(handler func(InboundMessage)) *chatQueue {
	return &chatQueue{handler: handler, pending: make(map[string][]InboundMessage)}
}

func (q *chatQueue) push(msg InboundMessage) {
	q.mu.Lock()
	backlog, running := q.pending[msg.UserID]
	q.pending[msg.UserID] = append(backlog, msg)
	q.mu.Unlock()

	if !running {
		go q.drain(msg.UserID)
	}
}

func (q *chatQueue) drain(chatID string) {
	for {
		q.mu.Lock()
		backlog := q.pending[chatID]
		if len(backlog) == 0 {
			delete(q.pending, chatID)
			q.mu.Unlock()
			return
		}
		msg := backlog[0]
		q.pending[chatID] = backlog[1:]
		q.mu.Unlock()

		q.handler(msg)
	}
}

// SplitMessage splits text into chunks of at most maxLen bytes, preferring
// paragraph, then line, then word boundaries. Chunks never end inside a
// UTF-8 sequence.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}

	var parts []string
	for len(text) > maxLen {
		window := text[:maxLen]
		cutAt := -1
		for _, sep := range []string{"\n\n", "\n", " "} {
			if idx := strings.LastIndex(window, sep); idx > 0 {
				cutAt = idx + len(sep)
				break
			}
		}
		if cutAt < 0 {
			cutAt = maxLen
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				_, size := utf8.DecodeRuneInString(text)
				cutAt = size
			}
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return append(parts, text)
}

// mapTelegramInbound keeps text messages. A caption counts as text.
func mapTelegramInbound(u tgUpdate) (InboundMessage, bool) {
	if u.Message == nil {
		return InboundMessage{}, false
	}

	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		text = strings.TrimSpace(u.Message.Caption)
	}
	if text == "" {
		return InboundMessage{}, false
	}

	return InboundMessage{
		Channel:    "telegram",
		UserID:     strconv.FormatInt(u.Message.Chat.ID, 10),
		ExternalID: strconv.FormatInt(u.Message.From.ID, 10),
		Text:       text,
		Username:   u.Message.From.Username,
		FirstName:  u.Message.From.FirstName,
		LastName:   u.Message.From.LastName,
		Language:   u.Message.From.LanguageCode,
	}, true
}
