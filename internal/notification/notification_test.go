package notification

import (
	"errors"
	"sync"
	"testing"
)

type mockNotifier struct {
	mu      sync.Mutex
	sent    []*Notification
	enabled bool
	err     error
}

func (m *mockNotifier) Send(n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) Name() string    { return "mock" }
func (m *mockNotifier) IsEnabled() bool { return m.enabled }

func TestManagerDisabledSendsNothing(t *testing.T) {
	mock := &mockNotifier{enabled: true}
	manager := NewManager(false)
	manager.AddNotifier(mock)

	if err := manager.SendAdvisory("BUY", 7, "test"); err != nil {
		t.Errorf("disabled manager should be a no-op, got %v", err)
	}
	if len(mock.sent) != 0 {
		t.Errorf("disabled manager must not deliver, got %d", len(mock.sent))
	}
}

func TestManagerSkipsDisabledProviders(t *testing.T) {
	active := &mockNotifier{enabled: true}
	inactive := &mockNotifier{enabled: false}
	manager := NewManager(true)
	manager.AddNotifier(active)
	manager.AddNotifier(inactive)

	if err := manager.SendInfo("title", "body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active.sent) != 1 {
		t.Errorf("enabled provider should receive the notification, got %d", len(active.sent))
	}
	if len(inactive.sent) != 0 {
		t.Errorf("disabled provider must be skipped, got %d", len(inactive.sent))
	}
}

func TestManagerReportsProviderFailure(t *testing.T) {
	failing := &mockNotifier{enabled: true, err: errors.New("webhook gone")}
	healthy := &mockNotifier{enabled: true}
	manager := NewManager(true)
	manager.AddNotifier(failing)
	manager.AddNotifier(healthy)

	err := manager.SendError("source down", "details")

	if err == nil {
		t.Error("a failed provider should surface an error")
	}
	if len(healthy.sent) != 1 {
		t.Errorf("one provider failing must not block the others, got %d", len(healthy.sent))
	}
}

func TestSendAdvisoryShapesNotification(t *testing.T) {
	mock := &mockNotifier{enabled: true}
	manager := NewManager(true)
	manager.AddNotifier(mock)

	if err := manager.SendAdvisory("STRONG_BUY", 8, "four factors lean long"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n := mock.sent[0]
	if n.Type != NotifyAdvisory {
		t.Errorf("expected advisory type, got %s", n.Type)
	}
	if n.Signal != "STRONG_BUY" || n.Confidence != 8 {
		t.Errorf("signal fields not carried: %s/%d", n.Signal, n.Confidence)
	}
	if n.Title == "" || n.Timestamp.IsZero() {
		t.Error("title and timestamp should be set")
	}
}

func TestSignalEmoji(t *testing.T) {
	cases := map[string]string{
		"STRONG_BUY":  "🟢🟢",
		"BUY":         "🟢",
		"HOLD":        "⚪",
		"SELL":        "🔴",
		"STRONG_SELL": "🔴🔴",
		"anything":    "⚪",
	}

	for signal, want := range cases {
		if got := signalEmoji(signal); got != want {
			t.Errorf("signalEmoji(%q) = %q, expected %q", signal, got, want)
		}
	}
}

func TestTelegramNotifierEnablement(t *testing.T) {
	cases := []struct {
		config TelegramConfig
		want   bool
	}{
		{TelegramConfig{BotToken: "t", ChatID: 1, Enabled: true}, true},
		{TelegramConfig{BotToken: "", ChatID: 1, Enabled: true}, false},
		{TelegramConfig{BotToken: "t", ChatID: 0, Enabled: true}, false},
		{TelegramConfig{BotToken: "t", ChatID: 1, Enabled: false}, false},
	}

	for i, tc := range cases {
		n := NewTelegramNotifier(tc.config)
		if n.IsEnabled() != tc.want {
			t.Errorf("case %d: enabled = %v, expected %v", i, n.IsEnabled(), tc.want)
		}
	}
}

func TestDiscordNotifierEnablement(t *testing.T) {
	n := NewDiscordNotifier(DiscordConfig{WebhookURL: "https://example.invalid/hook", Enabled: true})
	if !n.IsEnabled() {
		t.Error("discord notifier with a webhook should be enabled")
	}

	n = NewDiscordNotifier(DiscordConfig{WebhookURL: "", Enabled: true})
	if n.IsEnabled() {
		t.Error("discord notifier needs a webhook URL")
	}
	n = NewDiscordNotifier(DiscordConfig{WebhookURL: "https://example.invalid/hook", Enabled: false})
	if n.IsEnabled() {
		t.Error("discord notifier should honor the enabled flag")
	}
}
