package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whale-tracker/internal/circuitbreaker"
	"github.com/whale-tracker/internal/config"
	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/models"
	"github.com/whale-tracker/internal/types"
)

type mockNotifier struct {
	name   string
	err    error
	alerts []*models.Alert
	closed bool
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Send(ctx context.Context, alert *models.Alert) error {
	m.alerts = append(m.alerts, alert)
	return m.err
}

func (m *mockNotifier) Close() error {
	m.closed = true
	return nil
}

func testAlert() *models.Alert {
	date, _ := types.ParseDate("2024-05-30")
	value := -301234.5
	roi := 12.5
	return &models.Alert{
		Level:        types.AlertUrgent,
		Wallet:       "bc1qwhale",
		Date:         date,
		Type:         types.TypeSell,
		AmountBTC:    -5,
		PortfolioPct: 50,
		ValueUSD:     &value,
		ROI:          &roi,
		TraderType:   types.TraderOccasional,
		CreatedAt:    time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewMulti_FiltersNil(t *testing.T) {
	m := NewMulti(nil, &mockNotifier{name: "a"}, nil, &mockNotifier{name: "b"})
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 0, NewMulti(nil).Count())
}

func TestMulti_SendContinuesAfterFailure(t *testing.T) {
	failing := &mockNotifier{name: "telegram", err: errors.New("boom")}
	ok := &mockNotifier{name: "discord"}
	m := NewMulti(nil, failing, ok)

	err := m.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotification))
	assert.Len(t, failing.alerts, 1)
	assert.Len(t, ok.alerts, 1)

	require.NoError(t, m.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestMulti_EmptySendSucceeds(t *testing.T) {
	assert.NoError(t, NewMulti(nil).Send(context.Background(), testAlert()))
}

func TestGuarded_OpensAfterTrips(t *testing.T) {
	inner := &mockNotifier{name: "telegram", err: errors.New("down")}
	g := NewGuarded(inner, 2, nil)
	ctx := context.Background()

	assert.Error(t, g.Send(ctx, testAlert()))
	assert.Error(t, g.Send(ctx, testAlert()))
	assert.Equal(t, circuitbreaker.StateOpen, g.State())

	err := g.Send(ctx, testAlert())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Len(t, inner.alerts, 2)
	assert.Equal(t, "telegram", g.Name())
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(testAlert())
	assert.Equal(t, "🚨 URGENT WHALE ALERT\n"+
		"Wallet: bc1qwhale\n"+
		"Sold 5.00000000 BTC (50.00% of portfolio)\n"+
		"Value: $301,234.50\n"+
		"ROI: 12.50% (Occasional Trader)\n"+
		"Date: 2024-05-30", msg)

	bare := testAlert()
	bare.ValueUSD = nil
	bare.ROI = nil
	assert.NotContains(t, FormatMessage(bare), "Value")
	assert.NotContains(t, FormatMessage(bare), "ROI")
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "0.00", formatUSD(0))
	assert.Equal(t, "999.99", formatUSD(999.99))
	assert.Equal(t, "1,000.00", formatUSD(1000))
	assert.Equal(t, "12,345,678.90", formatUSD(12345678.9))
}

func TestBuildEmbed(t *testing.T) {
	embed := buildEmbed(testAlert())
	assert.Equal(t, colorUrgent, embed.Color)
	assert.Equal(t, "2024-05-31T08:00:00Z", embed.Timestamp)
	require.Len(t, embed.Fields, 5)
	assert.Equal(t, "Sold", embed.Fields[1].Name)
	assert.Equal(t, "12.50% (Occasional Trader)", embed.Fields[4].Value)

	info := testAlert()
	info.Level = types.AlertInfo
	info.ROI = nil
	info.ValueUSD = nil
	embed = buildEmbed(info)
	assert.Equal(t, colorInfo, embed.Color)
	assert.Len(t, embed.Fields, 3)
}

func TestNewChannels_Unconfigured(t *testing.T) {
	tg, err := NewTelegram(config.TelegramConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, tg)

	dc, err := NewDiscord(config.DiscordConfig{BotToken: "token"}, nil)
	require.NoError(t, err)
	assert.Nil(t, dc)

	m, err := New(config.AlertsConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Count())
}

func TestNew_DiscordConfigured(t *testing.T) {
	m, err := New(config.AlertsConfig{Discord: config.DiscordConfig{BotToken: "token", ChannelID: "123"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())
}

// fakeTelegram serves the two bot API methods used by the notifier
type fakeTelegram struct {
	mu    sync.Mutex
	texts []string
	chats []string
}

func (f *fakeTelegram) handler(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bot"+token+"/getMe", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"whale","username":"whale_bot"}}`))
	})
	mux.HandleFunc("/bot"+token+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		text, _ := body["text"].(string)
		chat, _ := body["chat_id"].(string)
		f.texts = append(f.texts, text)
		f.chats = append(f.chats, chat)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100123,"type":"group"},"text":"ok"}}`))
	})
	return mux
}

func TestTelegram_Send(t *testing.T) {
	fake := &fakeTelegram{}
	server := httptest.NewServer(fake.handler("secret"))
	defer server.Close()

	tg, err := newTelegram(config.TelegramConfig{BotToken: "secret", ChatID: -100123}, server.URL, nil)
	require.NoError(t, err)
	require.NotNil(t, tg)

	require.NoError(t, tg.Send(context.Background(), testAlert()))
	require.Len(t, fake.texts, 1)
	assert.Equal(t, FormatMessage(testAlert()), fake.texts[0])
	assert.Equal(t, "-100123", fake.chats[0])
}

func TestTelegram_SendHonoursCancelledContext(t *testing.T) {
	fake := &fakeTelegram{}
	server := httptest.NewServer(fake.handler("secret"))
	defer server.Close()

	tg, err := newTelegram(config.TelegramConfig{BotToken: "secret", ChatID: 1}, server.URL, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tg.Send(ctx, testAlert()), context.Canceled)
	assert.Empty(t, fake.texts)
}
