// Package market fetches order book depth and discovers active windows.
//
// BookFetcher polls the CLOB REST book endpoint directly — there is no
// local WebSocket-fed mirror, since the strategy only ever needs a fresh
// top-of-book snapshot right before quoting. Finder discovers candidate
// market windows by time-stepping the clock across known cadences, since
// the venue's discovery endpoint does not reliably list short-duration
// markets.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// BookFetcher fetches and caches top-of-book snapshots for CLOB tokens.
type BookFetcher struct {
	http   *resty.Client
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[types.TokenID]types.TopOfBook
}

// NewBookFetcher creates a fetcher pointed at the CLOB base URL.
func NewBookFetcher(clobBaseURL string, logger *slog.Logger) *BookFetcher {
	client := resty.New().
		SetBaseURL(clobBaseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond)

	return &BookFetcher{
		http:   client,
		logger: logger.With("component", "book"),
		cache:  make(map[types.TokenID]types.TopOfBook),
	}
}

// GetTopOfBook fetches depth for one token. Returns (snapshot, false) when
// the book is empty or the market has closed (a 404 is the venue's expected
// "not found" response, not an error) — callers must not treat that as a
// transient failure. On a transport error it falls back to the last-known
// snapshot, if any, since that represents a genuine prior reading rather
// than an absence.
func (f *BookFetcher) GetTopOfBook(ctx context.Context, tokenID types.TokenID) (types.TopOfBook, bool) {
	var resp types.BookResponse
	res, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", string(tokenID)).
		SetResult(&resp).
		Get("/book")

	if err != nil {
		return f.fallback(tokenID, fmt.Sprintf("transport error: %v", err))
	}
	if res.StatusCode() == http.StatusNotFound {
		f.mu.Lock()
		delete(f.cache, tokenID)
		f.mu.Unlock()
		return types.TopOfBook{}, false
	}
	if res.StatusCode() != http.StatusOK {
		return f.fallback(tokenID, fmt.Sprintf("status %d", res.StatusCode()))
	}

	tob, ok := topOfBookFromResponse(tokenID, resp)
	if !ok {
		return f.fallback(tokenID, "empty book")
	}

	f.mu.Lock()
	f.cache[tokenID] = tob
	f.mu.Unlock()

	return tob, true
}

func (f *BookFetcher) fallback(tokenID types.TokenID, reason string) (types.TopOfBook, bool) {
	f.mu.RLock()
	tob, ok := f.cache[tokenID]
	f.mu.RUnlock()

	if ok {
		f.logger.Warn("book fetch failed, using last-known snapshot", "token", tokenID, "reason", reason)
		return tob, true
	}
	f.logger.Warn("book fetch failed, no fallback available", "token", tokenID, "reason", reason)
	return types.TopOfBook{}, false
}

// topOfBookFromResponse extracts best bid/ask from a raw book response.
//
// Polymarket's CLOB returns bids ascending by price and asks descending by
// price — best bid is therefore the LAST element of Bids, and best ask is
// the LAST element of Asks. Reading index 0 for either side silently
// produces an off-market quote instead of a visible error, so this is the
// one piece of venue trivia worth a comment.
func topOfBookFromResponse(tokenID types.TokenID, resp types.BookResponse) (types.TopOfBook, bool) {
	if len(resp.Bids) == 0 || len(resp.Asks) == 0 {
		return types.TopOfBook{}, false
	}

	bestBidLvl := resp.Bids[len(resp.Bids)-1]
	bestAskLvl := resp.Asks[len(resp.Asks)-1]

	bid, err1 := decimal.NewFromString(bestBidLvl.Price)
	ask, err2 := decimal.NewFromString(bestAskLvl.Price)
	bidSize, err3 := decimal.NewFromString(bestBidLvl.Size)
	askSize, err4 := decimal.NewFromString(bestAskLvl.Size)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return types.TopOfBook{}, false
	}

	if bid.LessThanOrEqual(decimal.Zero) || ask.LessThanOrEqual(decimal.Zero) || ask.LessThan(bid) {
		return types.TopOfBook{}, false
	}

	return types.TopOfBook{
		TokenID:   tokenID,
		BestBid:   bid,
		BestAsk:   ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		FetchedAt: time.Now(),
	}, true
}
