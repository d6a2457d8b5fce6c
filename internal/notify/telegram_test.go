package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewNotifierDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if n.Enabled() {
		t.Fatal("expected disabled notifier with empty credentials")
	}
}

func TestNewNotifierEnabled(t *testing.T) {
	n := NewNotifier("bot123", "chat456")
	if !n.Enabled() {
		t.Fatal("expected enabled notifier with credentials")
	}
}

func TestSendDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.Send(context.Background(), "test"); err != nil {
		t.Fatalf("disabled send should succeed silently: %v", err)
	}
}

func testServerNotifier(t *testing.T, handler http.HandlerFunc) (*Notifier, *string, *string) {
	t.Helper()
	var receivedChatID, receivedText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedChatID = r.URL.Query().Get("chat_id")
		receivedText = r.URL.Query().Get("text")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	n := &Notifier{
		botToken:   "test-token",
		chatID:     "test-chat",
		httpClient: server.Client(),
		enabled:    true,
		baseURL:    server.URL,
	}
	return n, &receivedChatID, &receivedText
}

func TestSendSuccess(t *testing.T) {
	n, chatID, text := testServerNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	if err := n.Send(context.Background(), "hello world"); err != nil {
		t.Fatalf("send should succeed: %v", err)
	}
	if *chatID != "test-chat" {
		t.Errorf("chat_id = %s, want test-chat", *chatID)
	}
	if *text != "hello world" {
		t.Errorf("text = %s, want hello world", *text)
	}
}

func TestSendServerError(t *testing.T) {
	n, _, _ := testServerNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"description": "bad request"})
	})

	if err := n.Send(context.Background(), "test"); err == nil {
		t.Fatal("expected error for server error response")
	}
}

func TestNotifyQuoteDisabled(t *testing.T) {
	n := NewNotifier("", "")
	err := n.NotifyQuote(context.Background(), "btc-updown-1700",
		decimal.NewFromFloat(0.44), decimal.NewFromFloat(0.52), decimal.NewFromFloat(5), decimal.NewFromFloat(4))
	if err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}

func TestNotifyQuoteSuccess(t *testing.T) {
	n, _, text := testServerNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	err := n.NotifyQuote(context.Background(), "btc-updown-1700",
		decimal.NewFromFloat(0.44), decimal.NewFromFloat(0.52), decimal.NewFromFloat(5), decimal.NewFromFloat(4))
	if err != nil {
		t.Fatalf("notify quote: %v", err)
	}
	if *text == "" {
		t.Error("expected non-empty text")
	}
}

func TestNotifySetCompleteDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.NotifySetComplete(context.Background(), "set-1", "btc-updown-1700", decimal.NewFromFloat(0.96)); err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}

func TestNotifyRedeemedDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.NotifyRedeemed(context.Background(), "set-1", "btc-updown-1700", decimal.NewFromFloat(0.20)); err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}

func TestNotifyAbandonedDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.NotifyAbandoned(context.Background(), "set-1", "btc-updown-1700", decimal.NewFromFloat(-2.20)); err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}

func TestNotifyRedemptionFailedDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.NotifyRedemptionFailed(context.Background(), "set-1", "btc-updown-1700", "transaction reverted", 3); err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}

func TestNotifyBlacklistSuspectedDisabled(t *testing.T) {
	n := NewNotifier("", "")
	if err := n.NotifyBlacklistSuspected(context.Background(), 3); err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}

func TestNotifyStatusDisabled(t *testing.T) {
	n := NewNotifier("", "")
	err := n.NotifyStatus(context.Background(), 2, decimal.NewFromFloat(5.5), decimal.NewFromFloat(20), false)
	if err != nil {
		t.Fatalf("disabled notify should succeed: %v", err)
	}
}
