// Package exchange implements the Polymarket CLOB REST client: a single
// order broker exposing place/cancel/status operations, plus the L1/L2
// authentication and EIP-712 order signing those operations need.
//
//   - PlaceMakerBid: POST /order  — submit one signed GTC maker BUY
//   - CancelOrder:   DELETE /order — cancel by id, idempotent
//   - GetOrderStatus: GET /order/{id} — poll venue lifecycle status
//   - DeriveAPIKey:  GET /auth/derive-api-key — bootstrap L2 creds from L1 wallet
//
// Every mutating request is rate-limited via per-category token buckets and
// authenticated with L2 HMAC headers. In paper mode (Live=false) no HTTP
// calls are made at all: orders are synthesised locally and status polling
// simulates fills.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

// Client is the Polymarket CLOB REST API client. It wraps a resty HTTP
// client with rate limiting, retry, and auth.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	live   bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg *config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Endpoints.ClobBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		live:   cfg.Live,
		logger: logger.With("component", "exchange"),
	}
}

// orderRequest is the CLOB order-submission payload: the signed order plus
// the owner's API key and an order type (always GTC here — this bot never
// submits FOK/FAK orders).
type orderRequest struct {
	Order     apiOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"`
}

type apiOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type orderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Error   string `json:"errorMsg"`
}

// PlaceMakerBid submits a GTC maker BUY at price*size. It returns a leg in
// state LIVE on success or REJECTED on failure — rejection is never
// retried at this layer, the caller discards the set.
func (c *Client) PlaceMakerBid(ctx context.Context, tokenID types.TokenID, side types.TokenSide, price, size decimal.Decimal) types.LegOrder {
	now := time.Now()
	leg := types.LegOrder{
		TokenID:   tokenID,
		Side:      side,
		Price:     price,
		Size:      size,
		CreatedAt: now,
	}

	if !c.live {
		leg.OrderID = fmt.Sprintf("paper-%d-%d", now.UnixNano(), rand.Intn(1_000_000))
		leg.State = types.OrderLive
		return leg
	}

	if err := c.rl.Order.Wait(ctx); err != nil {
		c.logger.Warn("rate limit wait cancelled", "error", err)
		leg.State = types.OrderRejected
		return leg
	}

	order, sig, err := c.auth.signMakerBid(tokenID, price, size)
	if err != nil {
		c.logger.Error("sign order failed", "token", tokenID, "error", err)
		leg.State = types.OrderRejected
		return leg
	}

	payload := orderRequest{
		Order: apiOrder{
			Salt:          order.Salt.String(),
			Maker:         order.Maker.Hex(),
			Signer:        order.Signer.Hex(),
			Taker:         order.Taker.Hex(),
			TokenID:       order.TokenID.String(),
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Expiration:    order.Expiration.String(),
			Nonce:         order.Nonce.String(),
			FeeRateBps:    order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(order.SignatureType),
			Signature:     sig,
		},
		Owner:     c.auth.creds.ApiKey,
		OrderType: "GTC",
	}

	headers, err := c.auth.L2Headers("POST", "/order", "")
	if err != nil {
		c.logger.Error("l2 headers failed", "error", err)
		leg.State = types.OrderRejected
		return leg
	}

	var result orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	if err != nil || resp.StatusCode() != http.StatusOK || !result.Success {
		c.logger.Warn("order rejected", "token", tokenID, "error", err, "status", resp.StatusCode(), "msg", result.Error)
		leg.State = types.OrderRejected
		return leg
	}

	leg.OrderID = result.OrderID
	leg.State = types.OrderLive
	return leg
}

// CancelOrder cancels an order by id. Idempotent: cancelling an
// already-terminal order returns true.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if !c.live {
		return true, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return false, err
	}

	body := fmt.Sprintf(`{"orderID":"%s"}`, orderID)
	headers, err := c.auth.L2Headers("DELETE", "/order", body)
	if err != nil {
		return false, fmt.Errorf("l2 headers: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Delete("/order")
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	// A 404 here means the order is already terminal — cancellation is
	// idempotent, so that counts as success, not failure.
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNotFound {
		return false, fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return true, nil
}

// GetOrderStatus polls the venue for a leg's current lifecycle state. In
// paper mode it simulates a 15% fill probability once the order is older
// than 2 seconds, per spec.
func (c *Client) GetOrderStatus(ctx context.Context, leg types.LegOrder) (types.OrderState, error) {
	if leg.State.IsTerminal() {
		return leg.State, nil
	}

	if !c.live {
		if leg.AgeSeconds() < 2 {
			return types.OrderLive, nil
		}
		if rand.Float64() < 0.15 {
			return types.OrderFilled, nil
		}
		return types.OrderLive, nil
	}

	if err := c.rl.Book.Wait(ctx); err != nil {
		return leg.State, err
	}

	headers, err := c.auth.L2Headers("GET", "/order/"+leg.OrderID, "")
	if err != nil {
		return leg.State, fmt.Errorf("l2 headers: %w", err)
	}

	var result struct {
		Status string `json:"status"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/order/" + leg.OrderID)
	if err != nil {
		return leg.State, fmt.Errorf("get order status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return leg.State, fmt.Errorf("get order status: status %d: %s", resp.StatusCode(), resp.String())
	}

	state, known := mapOrderStatus(result.Status, leg.State)
	if !known {
		c.logger.Warn("unknown order status, keeping previous state",
			"order", leg.OrderID, "status", result.Status, "previous", leg.State)
	}
	return state, nil
}

// mapOrderStatus applies the authoritative venue-status-string mapping. An
// unrecognised status keeps the previous state rather than regressing it,
// reported via known=false so the caller can log it.
func mapOrderStatus(raw string, previous types.OrderState) (state types.OrderState, known bool) {
	switch strings.ToUpper(raw) {
	case "LIVE", "OPEN", "ACTIVE":
		return types.OrderLive, true
	case "MATCHED", "FILLED", "CLOSED":
		return types.OrderFilled, true
	case "CANCELLED", "CANCELED":
		return types.OrderCancelled, true
	case "EXPIRED":
		return types.OrderExpired, true
	default:
		return previous, false
	}
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	if !c.live {
		return &Credentials{ApiKey: "paper", Secret: "paper", Passphrase: "paper"}, nil
	}

	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
