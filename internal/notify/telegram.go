package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts to the Bot API. Token evaluations go to the feed chat;
// position actions go to the action chat, or the feed chat when no action
// chat is configured.
type TelegramSender struct {
	baseURL    string
	token      string
	feedChat   string
	actionChat string
	client     *http.Client
}

// NewTelegramSender creates a TelegramSender.
func NewTelegramSender(token, feedChat, actionChat string) *TelegramSender {
	return &TelegramSender{
		baseURL:    telegramAPI,
		token:      token,
		feedChat:   feedChat,
		actionChat: actionChat,
		client:     defaultHTTPClient(),
	}
}

// withBaseURL points the sender at a stand-in API host.
func (t *TelegramSender) withBaseURL(u string) *TelegramSender {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// Send renders msg as HTML so user-controlled token names cannot break the
// markup.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"chat_id":                  t.chatFor(msg.Event),
		"text":                     fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(msg.Title), html.EscapeString(msg.Body)),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	if err := postJSON(ctx, t.client, url, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) chatFor(event string) string {
	if event != EventTokenEvaluated && t.actionChat != "" {
		return t.actionChat
	}
	return t.feedChat
}

func (t *TelegramSender) Name() string {
	return "telegram"
}
