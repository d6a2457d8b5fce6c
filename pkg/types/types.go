// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — market windows, order
// book snapshots, leg orders, and complete-set records. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Identifiers
// ————————————————————————————————————————————————————————————————————————

// ConditionID is the CTF condition identifier for a binary market. It is
// distinct from EventID: a Gamma "event" groups one or more markets, and a
// market's condition ID is what payoutDenominator/redeemPositions key on.
// Keeping these as separate named types prevents the two from being
// accidentally swapped at a call site.
type ConditionID string

// EventID is the Gamma API event identifier (the market grouping, not the
// on-chain condition).
type EventID string

// TokenID is a CLOB asset ID for one outcome token (UP or DOWN).
type TokenID string

// TokenSide identifies which outcome token a leg order trades.
type TokenSide string

const (
	Up   TokenSide = "UP"
	Down TokenSide = "DOWN"
)

// ————————————————————————————————————————————————————————————————————————
// Market windows
// ————————————————————————————————————————————————————————————————————————

// MarketWindow is a single discovered up-or-down market: a fixed time
// window on one asset with complementary UP/DOWN outcome tokens.
type MarketWindow struct {
	EventID     EventID
	ConditionID ConditionID
	Slug        string
	Question    string
	Asset       string // "btc", "eth", "bitcoin", "ethereum"

	UpTokenID   TokenID
	DownTokenID TokenID

	EndTime time.Time

	Active          bool
	Closed          bool
	AcceptingOrders bool
}

// IsPastEndTime reports whether the window's end_time has elapsed. A zero
// EndTime (unknown, end_time_epoch 0) is never considered past — callers
// fall back to a fixed deadline measured from completed_at instead.
func (w MarketWindow) IsPastEndTime() bool {
	return !w.EndTime.IsZero() && time.Now().After(w.EndTime)
}

// SecondsSinceEnd returns how long past end_time the window is. Zero if
// EndTime is unknown or still in the future.
func (w MarketWindow) SecondsSinceEnd() float64 {
	if w.EndTime.IsZero() {
		return 0
	}
	d := time.Since(w.EndTime)
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book. Price and
// Size are strings on the wire (the CLOB API preserves decimal precision
// that way); decimal.Decimal is the parsed in-memory representation.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookResponse is the raw REST response from GET /book for a single token.
// Per Polymarket's convention, Bids are sorted ascending by price (best bid
// is the LAST element) and Asks are sorted descending (best ask is the
// LAST element) — the opposite of what a naive reading of "sorted" might
// assume, and the detail that most needs correcting when porting from
// another venue's convention.
type BookResponse struct {
	Market   string `json:"market"`
	AssetID  string `json:"asset_id"`
	Bids     []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
	TickSize  string `json:"tick_size"`
}

// TopOfBook is the derived best-bid/best-ask view of one token's book,
// along with the combined size resting at those levels.
type TopOfBook struct {
	TokenID   TokenID
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	FetchedAt time.Time
}

// Spread returns BestAsk - BestBid.
func (t TopOfBook) Spread() decimal.Decimal {
	return t.BestAsk.Sub(t.BestBid)
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// OrderState is the lifecycle state of a single leg order. Transitions are
// monotone: PENDING -> LIVE -> {FILLED, CANCELLED, REJECTED, EXPIRED}.
// FILLED, CANCELLED, REJECTED and EXPIRED are terminal.
type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderLive      OrderState = "LIVE"
	OrderFilled    OrderState = "FILLED"
	OrderCancelled OrderState = "CANCELLED"
	OrderRejected  OrderState = "REJECTED"
	OrderExpired   OrderState = "EXPIRED"
)

// IsTerminal reports whether the state will never change again.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	default:
		return false
	}
}

// LegOrder is one side (UP or DOWN) of a complete-set arbitrage attempt.
type LegOrder struct {
	OrderID   string
	TokenID   TokenID
	Side      TokenSide
	Price     decimal.Decimal
	Size      decimal.Decimal
	State     OrderState
	CreatedAt time.Time
	FilledAt  time.Time // zero unless State == OrderFilled
}

// AgeSeconds returns how long this order has been outstanding.
func (l LegOrder) AgeSeconds() float64 {
	return time.Since(l.CreatedAt).Seconds()
}

// ————————————————————————————————————————————————————————————————————————
// Complete sets
// ————————————————————————————————————————————————————————————————————————

// SetState is the lifecycle state of one complete-set arbitrage attempt.
// QUOTING -> ONE_LEG_FILLED -> COMPLETE -> AWAITING_RESOLUTION -> REDEEMED
// is the happy path. ABANDONED and REDEMPTION_FAILED are the terminal
// failure states; a one-leg hold whose market resolves against the filled
// leg is ABANDONED (the order never completed, so there is nothing left to
// redeem), while a COMPLETE or AWAITING_RESOLUTION set whose redemption
// transaction genuinely fails is REDEMPTION_FAILED.
type SetState string

const (
	SetQuoting            SetState = "QUOTING"
	SetOneLegFilled       SetState = "ONE_LEG_FILLED"
	SetComplete           SetState = "COMPLETE"
	SetAwaitingResolution SetState = "AWAITING_RESOLUTION"
	SetRedeemed           SetState = "REDEEMED"
	SetAbandoned          SetState = "ABANDONED"
	SetRedemptionFailed   SetState = "REDEMPTION_FAILED"
)

// IsTerminal reports whether the set will never transition again.
func (s SetState) IsTerminal() bool {
	switch s {
	case SetRedeemed, SetAbandoned, SetRedemptionFailed:
		return true
	default:
		return false
	}
}

// CompleteSet is the persisted record of one complete-set arbitrage
// attempt: the two legs, their combined cost and edge, and the lifecycle
// state through fill, resolution, and redemption.
type CompleteSet struct {
	SetID       string
	Window      MarketWindow
	State       SetState

	UpLeg   *LegOrder
	DownLeg *LegOrder

	CombinedCost decimal.Decimal // up.price*up.size + down.price*down.size at quote time
	EdgePerShare decimal.Decimal // 1.0 - (up.price + down.price)

	CreatedAt   time.Time
	CompletedAt time.Time // zero until both legs are FILLED

	PnL decimal.Decimal

	RedemptionAttempts int
	LastRedemptionErr  string
}

// CompleteSetRecord is the JSON persistence shape of a CompleteSet: flat
// window fields, string-encoded decimals, RFC3339 timestamps.
type CompleteSetRecord struct {
	SetID              string    `json:"set_id"`
	WindowID           string    `json:"window_id"`
	Question           string    `json:"question"`
	ConditionID        string    `json:"condition_id"`
	EventID            string    `json:"event_id"`
	EndTime            string    `json:"end_time"`
	EndTimeEpoch       int64     `json:"end_time_epoch"`
	UpTokenID          string    `json:"up_token_id"`
	DownTokenID        string    `json:"down_token_id"`
	Slug               string    `json:"slug"`
	State              string    `json:"state"`
	UpLeg              *LegRecord `json:"up_leg"`
	DownLeg            *LegRecord `json:"down_leg"`
	CombinedCost       string    `json:"combined_cost"`
	EdgePerShare       string    `json:"edge_per_share"`
	CreatedAt          string    `json:"created_at"`
	CompletedAt        string    `json:"completed_at,omitempty"`
	PnL                string    `json:"pnl"`
	RedemptionAttempts int       `json:"redemption_attempts"`
	LastRedemptionErr  string    `json:"last_redemption_error,omitempty"`
}

// LegRecord is the persisted JSON shape of a LegOrder.
type LegRecord struct {
	OrderID   string `json:"order_id"`
	TokenID   string `json:"token_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	FilledAt  string `json:"filled_at,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Strategy decisions
// ————————————————————————————————————————————————————————————————————————

// QuoteDecision is the strategy's output for one market window: the bid
// price/size to post on each leg, or Skip=true with a Reason if the book
// didn't pass the quality gates.
type QuoteDecision struct {
	Window MarketWindow

	Skip   bool
	Reason string

	UpPrice   decimal.Decimal
	UpSize    decimal.Decimal
	DownPrice decimal.Decimal
	DownSize  decimal.Decimal

	EdgePerShare decimal.Decimal
}
