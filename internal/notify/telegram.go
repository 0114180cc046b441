package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTelegramBaseURL is the public Bot API endpoint.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// TelegramOptions configures a Telegram notifier.
type TelegramOptions struct {
	BotToken     string
	AllowedUsers []string
	BaseURL      string
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Telegram sends notifications to the first allowed Telegram user.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewTelegram creates a Telegram notifier. It returns nil when no bot token
// or no recipient is configured.
func NewTelegram(opts TelegramOptions) *Telegram {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.BotToken) == "" {
		return nil
	}

	var chatID string
	for _, u := range opts.AllowedUsers {
		if u = strings.TrimSpace(u); u != "" {
			chatID = u
			break
		}
	}
	if chatID == "" {
		opts.Logger.Warn("Telegram notifier has no allowed users, notifications disabled")
		return nil
	}

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTelegramBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Telegram{
		token:   opts.BotToken,
		chatID:  chatID,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.HTTPClient,
		logger:  opts.Logger,
	}
}

// NotifyNewSkill announces a newly integrated skill.
func (t *Telegram) NotifyNewSkill(ctx context.Context, name string) error {
	return t.Send(ctx, fmt.Sprintf("🎓 *SkillForge learned a new skill:* `%s`", codeSpan(name)))
}

// codeSpan makes s safe inside a Markdown code span. Legacy Markdown has no
// escape for a backtick there, so backticks become quotes.
func codeSpan(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

// Send posts a Markdown message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		return fmt.Errorf("telegram request failed: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	t.logger.Info("Notification sent to Telegram", zap.String("chat_id", t.chatID))
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}
