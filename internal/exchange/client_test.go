package exchange

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

func newPaperClient() *Client {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return &Client{
		rl:     NewRateLimiter(),
		live:   false,
		logger: logger,
	}
}

func TestPlaceMakerBidPaperMode(t *testing.T) {
	t.Parallel()
	c := newPaperClient()

	leg := c.PlaceMakerBid(context.Background(), types.TokenID("tok1"), types.Up, decimal.NewFromFloat(0.44), decimal.NewFromFloat(5))

	if leg.State != types.OrderLive {
		t.Fatalf("state = %s, want LIVE", leg.State)
	}
	if !strings.HasPrefix(leg.OrderID, "paper-") {
		t.Fatalf("order id = %q, want paper- prefix", leg.OrderID)
	}
}

func TestCancelOrderPaperModeAlwaysSucceeds(t *testing.T) {
	t.Parallel()
	c := newPaperClient()

	ok, err := c.CancelOrder(context.Background(), "paper-1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if !ok {
		t.Fatal("expected cancel to succeed in paper mode")
	}
}

func TestGetOrderStatusPaperModeStaysLiveBeforeTwoSeconds(t *testing.T) {
	t.Parallel()
	c := newPaperClient()

	leg := types.LegOrder{State: types.OrderLive, CreatedAt: time.Now()}
	state, err := c.GetOrderStatus(context.Background(), leg)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if state != types.OrderLive {
		t.Fatalf("state = %s, want LIVE for a fresh order", state)
	}
}

func TestGetOrderStatusPaperModeReturnsTerminalStateUnchanged(t *testing.T) {
	t.Parallel()
	c := newPaperClient()

	leg := types.LegOrder{State: types.OrderCancelled, CreatedAt: time.Now().Add(-10 * time.Second)}
	state, err := c.GetOrderStatus(context.Background(), leg)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if state != types.OrderCancelled {
		t.Fatalf("state = %s, want CANCELLED to remain unchanged", state)
	}
}

func TestGetOrderStatusPaperModeCanFillAfterTwoSeconds(t *testing.T) {
	t.Parallel()
	c := newPaperClient()

	leg := types.LegOrder{State: types.OrderLive, CreatedAt: time.Now().Add(-10 * time.Second)}

	// The 15% fill probability is stochastic; sample enough times that at
	// least one run would be expected to observe a FILLED transition
	// without the test becoming flaky in the other direction.
	sawLive, sawFilled := false, false
	for i := 0; i < 200; i++ {
		state, err := c.GetOrderStatus(context.Background(), leg)
		if err != nil {
			t.Fatalf("GetOrderStatus: %v", err)
		}
		switch state {
		case types.OrderLive:
			sawLive = true
		case types.OrderFilled:
			sawFilled = true
		default:
			t.Fatalf("unexpected state %s", state)
		}
	}
	if !sawLive || !sawFilled {
		t.Fatalf("expected to observe both LIVE and FILLED over 200 samples, saw live=%v filled=%v", sawLive, sawFilled)
	}
}

func TestDeriveAPIKeyPaperMode(t *testing.T) {
	t.Parallel()
	c := newPaperClient()

	creds, err := c.DeriveAPIKey(context.Background())
	if err != nil {
		t.Fatalf("DeriveAPIKey: %v", err)
	}
	if creds.ApiKey == "" {
		t.Fatal("expected non-empty paper API key")
	}
}

func TestMapOrderStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want types.OrderState
	}{
		{"LIVE", types.OrderLive},
		{"open", types.OrderLive},
		{"Active", types.OrderLive},
		{"MATCHED", types.OrderFilled},
		{"filled", types.OrderFilled},
		{"CLOSED", types.OrderFilled},
		{"CANCELLED", types.OrderCancelled},
		{"canceled", types.OrderCancelled},
		{"EXPIRED", types.OrderExpired},
	}

	for _, tt := range tests {
		got, known := mapOrderStatus(tt.raw, types.OrderPending)
		if got != tt.want {
			t.Errorf("mapOrderStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
		if !known {
			t.Errorf("mapOrderStatus(%q) known = false, want true", tt.raw)
		}
	}
}

func TestMapOrderStatusUnknownKeepsPrevious(t *testing.T) {
	t.Parallel()

	got, known := mapOrderStatus("SOMETHING_NEW", types.OrderLive)
	if got != types.OrderLive {
		t.Errorf("mapOrderStatus(unknown) = %s, want previous state LIVE preserved", got)
	}
	if known {
		t.Error("mapOrderStatus(unknown) known = true, want false")
	}
}
