package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// MaxMessageLength is the longest text sendMessage accepts, in characters.
const MaxMessageLength = 4096

const maxCaptionLength = 1024

// Client calls the Bot API on behalf of one bot.
type Client struct {
	token   string
	baseURL string
	api     *bot.Bot // nil when no token is configured
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New creates a client. baseURL may point at a self-hosted Bot API server
// or a test server; empty means the public endpoint. An empty token gives
// a client whose calls all fail with ErrNoToken.
func New(token, baseURL string, opts ...Option) (*Client, error) {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{token: token, baseURL: strings.TrimRight(baseURL, "/")}
	if token == "" {
		return c, nil
	}

	api, err := bot.New(token,
		bot.WithServerURL(c.baseURL),
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(o.timeout, &http.Client{Timeout: o.timeout}),
	)
	if err != nil {
		return nil, wrapError("init", token, err)
	}
	c.api = api
	return c, nil
}

// Configured reports whether the client has a token.
func (c *Client) Configured() bool {
	return c.api != nil
}

// BaseURL returns the Bot API server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendMessage sends a text message. Text over MaxMessageLength is cut.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	if !c.Configured() {
		return ErrNoToken
	}
	params := &bot.SendMessageParams{
		ChatID: msg.ChatID,
		Text:   truncate(msg.Text, MaxMessageLength),
	}
	if msg.ReplyMarkup != nil {
		params.ReplyMarkup = msg.ReplyMarkup
	}
	_, err := c.api.SendMessage(ctx, params)
	return wrapError("sendMessage", c.token, err)
}

// SendText is shorthand for a plain SendMessage.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.SendMessage(ctx, OutgoingMessage{ChatID: chatID, Text: text})
}

// SendDocument uploads r as a file named filename.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, r io.Reader, caption string) error {
	if !c.Configured() {
		return ErrNoToken
	}
	_, err := c.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filename, Data: r},
		Caption:  truncate(caption, maxCaptionLength),
	})
	return wrapError("sendDocument", c.token, err)
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing a progress indicator.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	if !c.Configured() {
		return ErrNoToken
	}
	_, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return wrapError("answerCallbackQuery", c.token, err)
}

// SetWebhook points the bot at webhookURL. When secret is non-empty the
// platform sends it back in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	if !c.Configured() {
		return ErrNoToken
	}
	_, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            webhookURL,
		AllowedUpdates: []string{"message", "callback_query"},
		SecretToken:    secret,
	})
	return wrapError("setWebhook", c.token, err)
}

// GetMe returns the bot's own account. The startup health check uses it to
// verify the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	if !c.Configured() {
		return nil, ErrNoToken
	}
	me, err := c.api.GetMe(ctx)
	if err != nil {
		return nil, wrapError("getMe", c.token, err)
	}
	return me, nil
}

// HealthCheck verifies the token with getMe.
func (c *Client) HealthCheck(ctx context.Context) error {
	me, err := c.GetMe(ctx)
	if err != nil {
		return err
	}
	if !me.IsBot {
		return fmt.Errorf("telegram: account %d is not a bot", me.ID)
	}
	return nil
}

// truncate cuts s to at most max characters, marking the cut with "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
