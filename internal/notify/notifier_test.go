package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	name string
	sent []Alert
	err  error
}

func (c *captureSender) Send(_ context.Context, alert Alert) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, alert)
	return nil
}

func (c *captureSender) Name() string { return c.name }

func notifyLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilter(t *testing.T) {
	sender := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{sender}, []string{"opportunity_accepted"}, notifyLogger())

	require.NoError(t, n.Notify(context.Background(), Alert{Event: "opportunity_rejected", Title: "x"}))
	assert.Empty(t, sender.sent, "filtered event must not reach senders")

	require.NoError(t, n.Notify(context.Background(), Alert{Event: "opportunity_accepted", Title: "y"}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "y", sender.sent[0].Title)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{sender}, nil, notifyLogger())

	require.NoError(t, n.Notify(context.Background(), Alert{Event: "anything"}))
	assert.Len(t, sender.sent, 1)
}

func TestNotifyFailingChannelDoesNotBlockOthers(t *testing.T) {
	broken := &captureSender{name: "broken", err: errors.New("webhook gone")}
	healthy := &captureSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, notifyLogger())

	err := n.Notify(context.Background(), Alert{Event: "error", Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, healthy.sent, 1, "healthy channel still delivers")
}

func TestTelegramSendPayload(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("bot-token", "chat-1")
	s.apiBase = srv.URL

	alert := Alert{Event: "opportunity_accepted", Title: "Funding arb: BTC-USDT", Body: "details"}
	require.NoError(t, s.Send(context.Background(), alert))

	assert.Equal(t, "/botbot-token/sendMessage", path)
	assert.Equal(t, "chat-1", got.ChatID)
	assert.Contains(t, got.Text, "*Funding arb: BTC-USDT*")
	assert.Contains(t, got.Text, "#opportunity_accepted")
}

func TestTelegramSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat")
	s.apiBase = srv.URL

	err := s.Send(context.Background(), Alert{Event: "error", Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDiscordSendEmbeds(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)

	t.Run("known event colors the embed", func(t *testing.T) {
		alert := Alert{Event: "opportunity_accepted", Title: "Basis trade: ETH-USDT", Body: "details"}
		require.NoError(t, s.Send(context.Background(), alert))

		require.Len(t, got.Embeds, 1)
		assert.Equal(t, "Basis trade: ETH-USDT", got.Embeds[0].Title)
		assert.Equal(t, discordColors["opportunity_accepted"], got.Embeds[0].Color)
		require.NotNil(t, got.Embeds[0].Footer)
		assert.Equal(t, "opportunity_accepted", got.Embeds[0].Footer.Text)
	})

	t.Run("unknown event falls back to neutral", func(t *testing.T) {
		require.NoError(t, s.Send(context.Background(), Alert{Event: "custom", Title: "t"}))
		require.Len(t, got.Embeds, 1)
		assert.Equal(t, discordNeutralColor, got.Embeds[0].Color)
	})
}
