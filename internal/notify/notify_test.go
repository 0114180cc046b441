package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (r *recorder) NotifyNewSkill(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	if r.fail[name] {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"beta": true}}
	d := NewDispatcher(rec, zap.NewNop())

	d.Enqueue("alpha")
	d.Enqueue("beta")
	d.Enqueue("gamma")
	d.Close()

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, rec.got())
	assert.Equal(t, Stats{Sent: 2, Failed: 1}, d.Stats())
}

func TestDispatcherEnqueueDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	slow := NotifierFunc(func(ctx context.Context, name string) error {
		<-release
		return nil
	})
	d := NewDispatcher(slow, zap.NewNop(), WithQueueSize(1))

	start := time.Now()
	for i := 0; i < 10; i++ {
		d.Enqueue("skill")
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	d.Close()

	stats := d.Stats()
	assert.Equal(t, int64(10), stats.Sent+stats.Dropped)
	assert.Positive(t, stats.Dropped)
}

func TestDispatcherAfterClose(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil)
	d.Close()
	d.Close()

	d.Enqueue("late")
	assert.Empty(t, rec.got())
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestNilDispatcher(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop())
	require.Nil(t, d)

	assert.NotPanics(t, func() {
		d.Enqueue("x")
		d.Close()
		_ = d.Stats()
	})
}

func TestDispatcherSendTimeout(t *testing.T) {
	var sawDeadline bool
	n := NotifierFunc(func(ctx context.Context, name string) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	})
	d := NewDispatcher(n, zap.NewNop(), WithSendTimeout(time.Second))
	d.Enqueue("x")
	d.Close()

	assert.True(t, sawDeadline)
}

func TestTelegramSendsToFirstUser(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramOptions{
		BotToken:     "123:abc",
		AllowedUsers: []string{" ", "42", "43"},
		BaseURL:      srv.URL,
	})
	require.NotNil(t, tg)

	require.NoError(t, tg.NotifyNewSkill(context.Background(), "weather-skill"))
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "Markdown", got.ParseMode)
	assert.Contains(t, got.Text, "`weather-skill`")
}

func TestTelegramEscapesBackticksInName(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramOptions{BotToken: "123:abc", AllowedUsers: []string{"42"}, BaseURL: srv.URL})
	require.NotNil(t, tg)

	require.NoError(t, tg.NotifyNewSkill(context.Background(), "rm`-rf`skill"))
	assert.Contains(t, got.Text, "`rm'-rf'skill`")
	assert.Equal(t, 2, strings.Count(got.Text, "`"))
}

func TestTelegramReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramOptions{BotToken: "t", AllowedUsers: []string{"1"}, BaseURL: srv.URL})
	err := tg.NotifyNewSkill(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tg := NewTelegram(TelegramOptions{BotToken: "supersecret", AllowedUsers: []string{"1"}, BaseURL: url})
	err := tg.NotifyNewSkill(context.Background(), "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "supersecret")
}

func TestNewTelegramDisabled(t *testing.T) {
	assert.Nil(t, NewTelegram(TelegramOptions{}))
	assert.Nil(t, NewTelegram(TelegramOptions{BotToken: "t"}))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("down")
	err := &Error{Skill: "x", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), `"x"`)
}
