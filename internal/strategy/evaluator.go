// Package strategy evaluates market windows for complete-set arbitrage.
//
// The core insight: buy one share each of UP and DOWN for combined cost
// under $1.00, hold to resolution, redeem at $1.00. Evaluator validates
// that the order book has real two-sided depth before pricing, prices
// each leg one tick above the current best bid (capped so it never
// crosses the ask), and scales size linearly with edge.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

var (
	hundred  = decimal.NewFromInt(100)
	one      = decimal.NewFromInt(1)
	zeroDec  = decimal.Zero
	twoDec   = decimal.NewFromInt(2)
)

// Evaluator transforms a window + two top-of-book snapshots + a risk
// multiplier into a QuoteDecision.
type Evaluator struct {
	cfg config.StrategyConfig
}

// NewEvaluator creates a strategy evaluator.
func NewEvaluator(cfg config.StrategyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// EvaluateWindow decides whether to quote this window and at what prices.
func (e *Evaluator) EvaluateWindow(window types.MarketWindow, upTOB, downTOB types.TopOfBook, riskMultiplier decimal.Decimal) types.QuoteDecision {
	if reason, ok := e.checkBookQuality(upTOB, downTOB); !ok {
		return types.QuoteDecision{Window: window, Skip: true, Reason: reason}
	}

	upBid := e.calculateBidPrice(upTOB)
	downBid := e.calculateBidPrice(downTOB)

	combined := upBid.Add(downBid)
	edgeCents := one.Sub(combined).Mul(hundred)

	minEdgeCents := decimal.NewFromFloat(e.cfg.MinEdgeCents)
	if edgeCents.LessThanOrEqual(minEdgeCents) {
		return types.QuoteDecision{
			Window: window,
			Skip:   true,
			Reason: fmt.Sprintf("edge too thin: %s¢ < %s¢", edgeCents.StringFixed(1), minEdgeCents.String()),
		}
	}

	if upBid.LessThanOrEqual(zeroDec) || downBid.LessThanOrEqual(zeroDec) {
		return types.QuoteDecision{Window: window, Skip: true, Reason: "invalid bid price (zero or negative)"}
	}
	if upBid.GreaterThanOrEqual(one) || downBid.GreaterThanOrEqual(one) {
		return types.QuoteDecision{
			Window: window,
			Skip:   true,
			Reason: fmt.Sprintf("bid exceeds $1: up=%s, down=%s", upBid, downBid),
		}
	}

	baseSize := e.calculateSize(edgeCents)
	adjustedSize := baseSize.Mul(riskMultiplier).Round(1)
	if adjustedSize.LessThan(one) {
		adjustedSize = one
	}

	maxExposure := decimal.NewFromFloat(e.cfg.MaxTotalExposure)
	maxPositionPct := decimal.NewFromFloat(e.cfg.MaxPositionPct)
	maxPositionValue := maxExposure.Mul(maxPositionPct)
	avgPrice := upBid.Add(downBid).Div(twoDec)
	if avgPrice.GreaterThan(zeroDec) {
		maxSizeFromBankroll := maxPositionValue.Div(avgPrice)
		if adjustedSize.GreaterThan(maxSizeFromBankroll) {
			adjustedSize = maxSizeFromBankroll
		}
	}

	return types.QuoteDecision{
		Window:       window,
		Skip:         false,
		UpPrice:      upBid,
		UpSize:       adjustedSize,
		DownPrice:    downBid,
		DownSize:     adjustedSize,
		EdgePerShare: edgeCents.Div(hundred),
	}
}

// checkBookQuality applies the gates in order; the first failure wins.
func (e *Evaluator) checkBookQuality(up, down types.TopOfBook) (string, bool) {
	combinedBids := up.BestBid.Add(down.BestBid)
	minCombined := decimal.NewFromFloat(e.cfg.MinCombinedBids)
	if combinedBids.LessThan(minCombined) {
		return fmt.Sprintf("thin books: sum bids=%s < %s (up=%s, down=%s)",
			combinedBids, minCombined, up.BestBid, down.BestBid), false
	}

	maxSpread := decimal.NewFromFloat(e.cfg.MaxSpread)
	if up.Spread().GreaterThan(maxSpread) {
		return fmt.Sprintf("up spread too wide: %s > %s", up.Spread(), maxSpread), false
	}
	if down.Spread().GreaterThan(maxSpread) {
		return fmt.Sprintf("down spread too wide: %s > %s", down.Spread(), maxSpread), false
	}

	minSize := decimal.NewFromFloat(e.cfg.MinBidSize)
	if up.BidSize.LessThan(minSize) {
		return fmt.Sprintf("up bid depth too thin: %s < %s", up.BidSize, minSize), false
	}
	if down.BidSize.LessThan(minSize) {
		return fmt.Sprintf("down bid depth too thin: %s < %s", down.BidSize, minSize), false
	}

	return "", true
}

// calculateBidPrice prices our bid one tick above best bid, capped at
// best_ask minus one tick, then floor-rounded to the tick grid.
func (e *Evaluator) calculateBidPrice(tob types.TopOfBook) decimal.Decimal {
	if tob.BestBid.LessThanOrEqual(zeroDec) {
		return zeroDec
	}

	tick := decimal.NewFromFloat(e.cfg.TickSize)
	improve := decimal.NewFromFloat(e.cfg.BidImproveCents).Div(hundred)
	ourBid := tob.BestBid.Add(improve)

	maxBid := tob.BestAsk.Sub(tick)
	if ourBid.GreaterThan(maxBid) {
		ourBid = maxBid
	}

	return roundToTick(ourBid, tick)
}

// calculateSize scales position size linearly from default_size to
// max_size as edge rises from min_edge_cents to 3x min_edge_cents.
func (e *Evaluator) calculateSize(edgeCents decimal.Decimal) decimal.Decimal {
	minEdge := decimal.NewFromFloat(e.cfg.MinEdgeCents)
	defaultSize := decimal.NewFromFloat(e.cfg.DefaultSize)
	if edgeCents.LessThanOrEqual(minEdge) {
		return defaultSize
	}

	maxSize := decimal.NewFromFloat(e.cfg.MaxSize)
	scale := edgeCents.Div(minEdge.Mul(decimal.NewFromInt(3)))
	if scale.GreaterThan(one) {
		scale = one
	}

	size := defaultSize.Add(scale.Mul(maxSize.Sub(defaultSize)))
	return size.Round(1)
}

// roundToTick floor-rounds a price down to the nearest tick.
func roundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.LessThanOrEqual(zeroDec) {
		return price
	}
	steps := price.Div(tick).Floor()
	return steps.Mul(tick)
}
