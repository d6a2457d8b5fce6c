// Package engine is the central orchestrator of the complete-set
// arbitrage bot.
//
// Five independent periodic loops share one position tracker and one risk
// governor:
//
//  1. Scan (2s): discover windows, evaluate books, place paired maker bids.
//  2. Fill (1s): poll live legs and forward status changes to the tracker.
//  3. One-leg (1s): manage partially-filled sets — chase the unfilled leg
//     while a profitable price exists, otherwise cancel it and hold the
//     filled leg through resolution.
//  4. Redemption (1s, per-condition rate-limited to 30s): move ended sets
//     to AWAITING_RESOLUTION, then redeem on-chain once the oracle reports.
//  5. Status (30s): log a risk+PnL snapshot.
//
// All CompleteSet mutation funnels through tracker methods; the loops read
// the value snapshots ActiveSets/Get return and hand keys back for
// transitions, so no loop ever observes a half-updated set. The scan loop
// is the one exception on the write side: it constructs a set and hands
// ownership to AddSet in the same step.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/notify"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/internal/tracker"
	"polymarket-mm/pkg/types"
)

const (
	scanPeriod    = 2 * time.Second
	fillPeriod    = 1 * time.Second
	oneLegPeriod  = 1 * time.Second
	statusPeriod  = 30 * time.Second
	legChaseAfter = 10 * time.Second

	// resolutionCheckMinInterval bounds how often the redemption loop asks
	// the chain about any single condition. Oracle resolution lags by
	// minutes, so polling faster than this just hammers the RPC.
	resolutionCheckMinInterval = 30 * time.Second
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// WindowFinder enumerates currently-active candidate markets.
type WindowFinder interface {
	FindActiveWindows(ctx context.Context) []types.MarketWindow
}

// BookSource fetches top-of-book snapshots per outcome token.
type BookSource interface {
	GetTopOfBook(ctx context.Context, tokenID types.TokenID) (types.TopOfBook, bool)
}

// OrderClient places, cancels, and polls venue orders.
type OrderClient interface {
	PlaceMakerBid(ctx context.Context, tokenID types.TokenID, side types.TokenSide, price, size decimal.Decimal) types.LegOrder
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOrderStatus(ctx context.Context, leg types.LegOrder) (types.OrderState, error)
}

// ChainClient gates and executes on-chain redemption.
type ChainClient interface {
	IsMarketResolved(ctx context.Context, conditionID types.ConditionID) (bool, error)
	RedeemCompleteSet(ctx context.Context, conditionID types.ConditionID) (success bool, message string, err error)
}

// Engine runs the five loops against the shared tracker and risk governor.
type Engine struct {
	cfg      *config.Config
	finder   WindowFinder
	books    BookSource
	eval     *strategy.Evaluator
	orders   OrderClient
	chain    ChainClient
	tracker  *tracker.Tracker
	riskMgr  *risk.Manager
	notifier *notify.Notifier
	logger   *slog.Logger

	// lastResolutionAt rate-limits chain resolution checks per condition.
	// In-memory only; entries are dropped on terminal transitions.
	resolutionMu     sync.Mutex
	lastResolutionAt map[types.ConditionID]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the engine. All collaborators are constructed by the caller so
// paper/live wiring is decided in one place (cmd/bot).
func New(
	cfg *config.Config,
	finder WindowFinder,
	books BookSource,
	eval *strategy.Evaluator,
	orders OrderClient,
	chainClient ChainClient,
	tr *tracker.Tracker,
	riskMgr *risk.Manager,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:              cfg,
		finder:           finder,
		books:            books,
		eval:             eval,
		orders:           orders,
		chain:            chainClient,
		tracker:          tr,
		riskMgr:          riskMgr,
		notifier:         notifier,
		logger:           logger.With("component", "engine"),
		lastResolutionAt: make(map[types.ConditionID]time.Time),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start launches the five loops. Each runs in its own goroutine until Stop.
func (e *Engine) Start() {
	restored := len(e.tracker.ActiveSets())
	if restored > 0 {
		e.logger.Info("resuming persisted sets", "count", restored)
	}

	e.runLoop("scan", scanPeriod, e.scanOnce)
	e.runLoop("fill", fillPeriod, e.fillOnce)
	e.runLoop("one_leg", oneLegPeriod, e.oneLegOnce)
	e.runLoop("redemption", e.cfg.Redemption.CheckInterval, e.redemptionOnce)
	e.runLoop("status", statusPeriod, e.statusOnce)
}

func (e *Engine) runLoop(name string, period time.Duration, body func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				body(e.ctx)
			}
		}
	}()
}

// Stop shuts down cooperatively: the loops finish their current iteration,
// every still-live leg is cancelled on the venue, and the tracker persists
// a final snapshot. In-flight chain submissions are never cancelled — the
// redemption loop's own receipt wait bounds them.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()
	e.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, set := range e.tracker.ActiveSets() {
		for _, leg := range []*types.LegOrder{set.UpLeg, set.DownLeg} {
			if leg == nil || leg.State != types.OrderLive {
				continue
			}
			if _, err := e.orders.CancelOrder(ctx, leg.OrderID); err != nil {
				e.logger.Error("cancel on shutdown failed", "order", leg.OrderID, "error", err)
				continue
			}
			if err := e.tracker.UpdateLegState(set.SetID, leg.TokenID, types.OrderCancelled); err != nil {
				e.logger.Warn("leg state update on shutdown failed", "set", set.SetID, "error", err)
			}
		}
	}

	if err := e.tracker.Persist(); err != nil {
		e.logger.Error("final persist failed", "error", err)
	}
	e.logger.Info("shutdown complete")
}

// ————————————————————————————————————————————————————————————————————————
// Loop 1: scan
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) scanOnce(ctx context.Context) {
	windows := e.finder.FindActiveWindows(ctx)

	for _, window := range windows {
		if e.tracker.HasQuoted(window) {
			continue
		}
		active := e.tracker.ActiveSets()
		if !e.riskMgr.CanOpenNewSet(active) {
			e.logger.Debug("risk governor blocks new sets")
			return
		}
		e.tryQuote(ctx, window, e.riskMgr.RiskMultiplier(active))
	}
}

func (e *Engine) tryQuote(ctx context.Context, window types.MarketWindow, riskMultiplier decimal.Decimal) {
	upTOB, ok := e.books.GetTopOfBook(ctx, window.UpTokenID)
	if !ok {
		return
	}
	downTOB, ok := e.books.GetTopOfBook(ctx, window.DownTokenID)
	if !ok {
		return
	}

	decision := e.eval.EvaluateWindow(window, upTOB, downTOB, riskMultiplier)
	if decision.Skip {
		e.logger.Debug("window skipped", "slug", window.Slug, "reason", decision.Reason)
		return
	}

	upLeg := e.orders.PlaceMakerBid(ctx, window.UpTokenID, types.Up, decision.UpPrice, decision.UpSize)
	if upLeg.State == types.OrderRejected {
		e.logger.Warn("up leg rejected, discarding pair", "slug", window.Slug)
		return
	}
	downLeg := e.orders.PlaceMakerBid(ctx, window.DownTokenID, types.Down, decision.DownPrice, decision.DownSize)
	if downLeg.State == types.OrderRejected {
		e.logger.Warn("down leg rejected, cancelling up leg", "slug", window.Slug)
		if _, err := e.orders.CancelOrder(ctx, upLeg.OrderID); err != nil {
			e.logger.Error("cancel orphaned up leg failed", "order", upLeg.OrderID, "error", err)
		}
		return
	}

	combined := decision.UpPrice.Mul(decision.UpSize).Add(decision.DownPrice.Mul(decision.DownSize))
	setID := fmt.Sprintf("%s-%d", window.Slug, time.Now().UnixNano())
	e.tracker.AddSet(&types.CompleteSet{
		SetID:        setID,
		Window:       window,
		State:        types.SetQuoting,
		UpLeg:        &upLeg,
		DownLeg:      &downLeg,
		CombinedCost: combined,
		EdgePerShare: decision.EdgePerShare,
		CreatedAt:    time.Now(),
	})

	e.logger.Info("quoted complete set",
		"set", setID,
		"slug", window.Slug,
		"up", decision.UpPrice,
		"down", decision.DownPrice,
		"size", decision.UpSize,
		"edge_per_share", decision.EdgePerShare,
	)
	if err := e.notifier.NotifyQuote(ctx, window.Slug, decision.UpPrice, decision.DownPrice, decision.UpSize, decision.EdgePerShare.Mul(hundred)); err != nil {
		e.logger.Debug("notify failed", "error", err)
	}
}

// ————————————————————————————————————————————————————————————————————————
// Loop 2: fill tracking
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) fillOnce(ctx context.Context) {
	for _, set := range e.tracker.ActiveSets() {
		if set.State != types.SetQuoting && set.State != types.SetOneLegFilled {
			continue
		}
		prevState := set.State

		for _, leg := range []*types.LegOrder{set.UpLeg, set.DownLeg} {
			if leg == nil || leg.State.IsTerminal() {
				continue
			}
			status, err := e.orders.GetOrderStatus(ctx, *leg)
			if err != nil {
				e.logger.Warn("order status poll failed", "order", leg.OrderID, "error", err)
				continue
			}
			if status == leg.State {
				continue
			}
			if err := e.tracker.UpdateLegState(set.SetID, leg.TokenID, status); err != nil {
				e.logger.Warn("leg state update failed", "set", set.SetID, "error", err)
			}
		}

		// Redemption waits for resolution; completing a set only earns a
		// notification here.
		if cur, ok := e.tracker.Get(set.SetID); ok && cur.State == types.SetComplete && prevState != types.SetComplete {
			e.logger.Info("set complete", "set", cur.SetID, "slug", cur.Window.Slug, "cost", cur.CombinedCost)
			if err := e.notifier.NotifySetComplete(ctx, cur.SetID, cur.Window.Slug, cur.CombinedCost); err != nil {
				e.logger.Debug("notify failed", "error", err)
			}
		}
	}
}

// ————————————————————————————————————————————————————————————————————————
// Loop 3: one-leg recovery
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) oneLegOnce(ctx context.Context) {
	for _, set := range e.tracker.ActiveSets() {
		if set.State != types.SetOneLegFilled {
			continue
		}
		filled, unfilled := splitLegs(set)
		if filled == nil {
			continue
		}

		// Past the one-leg timeout the pair is a lost cause: stop quoting
		// the unfilled side and hold the filled leg through resolution —
		// it may be the winning side and redeem at $1.
		if time.Since(filled.FilledAt) > e.cfg.Risk.OneLegTimeout {
			if unfilled != nil && unfilled.State == types.OrderLive {
				e.cancelLeg(ctx, set.SetID, unfilled)
			}
			if err := e.tracker.MarkAwaitingResolution(set.SetID); err != nil {
				e.logger.Warn("mark awaiting resolution failed", "set", set.SetID, "error", err)
				continue
			}
			e.logger.Info("one-leg timeout, holding filled leg through resolution",
				"set", set.SetID, "side", filled.Side, "price", filled.Price)
			continue
		}

		if unfilled != nil && unfilled.State == types.OrderLive && time.Since(unfilled.CreatedAt) > legChaseAfter {
			e.chaseUnfilledLeg(ctx, set, filled, unfilled)
		}
	}
}

// chaseUnfilledLeg reposts the unfilled side at a more aggressive price,
// bounded so the combined cost stays profitable: min(best_bid + 2 ticks,
// best_ask - tick), hard-capped at 1 - filled.price - min_edge. If no
// profitable price remains, chasing stops and the set holds through
// resolution.
func (e *Engine) chaseUnfilledLeg(ctx context.Context, set *types.CompleteSet, filled, unfilled *types.LegOrder) {
	tob, ok := e.books.GetTopOfBook(ctx, unfilled.TokenID)
	if !ok {
		return
	}

	tick := decimal.NewFromFloat(e.cfg.Strategy.TickSize)
	minEdge := decimal.NewFromFloat(e.cfg.Strategy.MinEdgeCents).Div(hundred)

	newPrice := tob.BestBid.Add(tick.Mul(decimal.NewFromInt(2)))
	if askCap := tob.BestAsk.Sub(tick); newPrice.GreaterThan(askCap) {
		newPrice = askCap
	}
	if hardCap := one.Sub(filled.Price).Sub(minEdge); newPrice.GreaterThan(hardCap) {
		newPrice = hardCap
	}
	newPrice = newPrice.Div(tick).Floor().Mul(tick)

	if newPrice.LessThan(tick) {
		e.logger.Info("no profitable chase price, holding filled leg through resolution",
			"set", set.SetID, "filled_price", filled.Price)
		e.cancelLeg(ctx, set.SetID, unfilled)
		if err := e.tracker.MarkAwaitingResolution(set.SetID); err != nil {
			e.logger.Warn("mark awaiting resolution failed", "set", set.SetID, "error", err)
		}
		return
	}
	if newPrice.Equal(unfilled.Price) {
		return
	}

	if _, err := e.orders.CancelOrder(ctx, unfilled.OrderID); err != nil {
		e.logger.Warn("cancel for repost failed", "order", unfilled.OrderID, "error", err)
		return
	}

	newLeg := e.orders.PlaceMakerBid(ctx, unfilled.TokenID, unfilled.Side, newPrice, unfilled.Size)
	if newLeg.State == types.OrderRejected {
		e.logger.Warn("repost rejected, holding filled leg through resolution", "set", set.SetID)
		if err := e.tracker.UpdateLegState(set.SetID, unfilled.TokenID, types.OrderCancelled); err != nil {
			e.logger.Warn("leg state update failed", "set", set.SetID, "error", err)
		}
		if err := e.tracker.MarkAwaitingResolution(set.SetID); err != nil {
			e.logger.Warn("mark awaiting resolution failed", "set", set.SetID, "error", err)
		}
		return
	}

	if err := e.tracker.ReplaceLeg(set.SetID, unfilled.TokenID, newLeg); err != nil {
		e.logger.Warn("replace leg failed", "set", set.SetID, "error", err)
		return
	}
	e.logger.Info("reposted unfilled leg", "set", set.SetID, "side", unfilled.Side,
		"old_price", unfilled.Price, "new_price", newPrice)
}

// ————————————————————————————————————————————————————————————————————————
// Loop 4: redemption
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) redemptionOnce(ctx context.Context) {
	now := time.Now()
	for _, set := range e.tracker.ActiveSets() {
		switch set.State {
		case types.SetComplete, types.SetOneLegFilled:
			if !e.readyForResolution(set, now) {
				continue
			}
			if unfilled := liveUnfilledLeg(set); unfilled != nil {
				e.cancelLeg(ctx, set.SetID, unfilled)
			}
			if err := e.tracker.MarkAwaitingResolution(set.SetID); err != nil {
				e.logger.Warn("mark awaiting resolution failed", "set", set.SetID, "error", err)
				continue
			}
			e.logger.Info("window ended, awaiting oracle resolution", "set", set.SetID, "slug", set.Window.Slug)
		case types.SetAwaitingResolution:
			e.attemptRedemption(ctx, set)
		}
	}
}

// readyForResolution reports whether the window has ended (plus grace).
// When end_time is unknown the redemption deadline measured from
// completed_at is the fallback.
func (e *Engine) readyForResolution(set *types.CompleteSet, now time.Time) bool {
	if !set.Window.EndTime.IsZero() {
		return now.After(set.Window.EndTime.Add(e.cfg.Redemption.Grace))
	}
	if set.CompletedAt.IsZero() {
		return false
	}
	return now.Sub(set.CompletedAt) > e.cfg.Redemption.Deadline
}

func (e *Engine) attemptRedemption(ctx context.Context, set *types.CompleteSet) {
	condID := set.Window.ConditionID
	if condID == "" {
		e.logger.Warn("set has no condition id, cannot redeem", "set", set.SetID, "slug", set.Window.Slug)
		return
	}
	if !e.shouldCheckResolution(condID) {
		return
	}

	resolved, err := e.chain.IsMarketResolved(ctx, condID)
	if err != nil {
		e.logger.Warn("resolution check failed", "set", set.SetID, "error", err)
		return
	}
	if !resolved {
		e.logger.Debug("oracle has not reported yet", "set", set.SetID, "condition", condID)
		return
	}

	success, msg, err := e.chain.RedeemCompleteSet(ctx, condID)
	switch {
	case success:
		pnl := redemptionPnL(set)
		if terr := e.tracker.MarkRedeemed(set.SetID, pnl); terr != nil {
			e.logger.Warn("mark redeemed failed", "set", set.SetID, "error", terr)
			return
		}
		e.riskMgr.RecordPnL(pnl)
		e.riskMgr.RecordRedemptionSuccess()
		e.dropResolutionEntry(condID)
		e.logger.Info("redeemed", "set", set.SetID, "slug", set.Window.Slug, "pnl", pnl)
		if nerr := e.notifier.NotifyRedeemed(ctx, set.SetID, set.Window.Slug, pnl); nerr != nil {
			e.logger.Debug("notify failed", "error", nerr)
		}

	case msg == "payouts not set":
		// Oracle reported between our check and the redeem call being
		// rejected, or the recheck inside the chain client disagreed.
		// Harmless; retry on the next rate-limited pass.

	case isNoTokensOutcome(msg):
		e.handleNoTokensOutcome(ctx, set)
		e.dropResolutionEntry(condID)

	default:
		reason := msg
		if reason == "" && err != nil {
			reason = err.Error()
		}
		if terr := e.tracker.MarkRedemptionFailed(set.SetID, reason); terr != nil {
			e.logger.Warn("mark redemption failed errored", "set", set.SetID, "error", terr)
		}
		e.riskMgr.RecordRedemptionFailure()
		e.logger.Error("redemption failed", "set", set.SetID, "reason", reason)
		if nerr := e.notifier.NotifyRedemptionFailed(ctx, set.SetID, set.Window.Slug, reason, set.RedemptionAttempts); nerr != nil {
			e.logger.Debug("notify failed", "error", nerr)
		}

		if e.riskMgr.SuspectedBlacklist() {
			if terr := e.tracker.MarkPermanentlyFailed(set.SetID); terr != nil {
				e.logger.Warn("mark permanently failed errored", "set", set.SetID, "error", terr)
				return
			}
			e.riskMgr.RecordPnL(set.CombinedCost.Neg())
			e.dropResolutionEntry(condID)
			e.logger.Error("suspected blacklist, set permanently failed", "set", set.SetID)
			if nerr := e.notifier.NotifyBlacklistSuspected(ctx, e.cfg.Risk.MaxRedemptionFailures); nerr != nil {
				e.logger.Debug("notify failed", "error", nerr)
			}
		}
	}
}

// handleNoTokensOutcome deals with a clean transaction that moved no
// collateral: for a one-leg hold the filled side lost (abandon with its
// cost as the loss); for a complete set the wallet's tokens were already
// redeemed, so marking it redeemed is the idempotent answer.
func (e *Engine) handleNoTokensOutcome(ctx context.Context, set *types.CompleteSet) {
	if filled := soleFilledLeg(set); filled != nil {
		loss := filled.Price.Mul(filled.Size).Neg()
		if err := e.tracker.MarkAbandoned(set.SetID, loss); err != nil {
			e.logger.Warn("mark abandoned failed", "set", set.SetID, "error", err)
			return
		}
		e.riskMgr.RecordPnL(loss)
		e.logger.Info("one-leg hold lost, abandoned", "set", set.SetID, "loss", loss)
		if nerr := e.notifier.NotifyAbandoned(ctx, set.SetID, set.Window.Slug, loss); nerr != nil {
			e.logger.Debug("notify failed", "error", nerr)
		}
		return
	}

	pnl := redemptionPnL(set)
	if err := e.tracker.MarkRedeemed(set.SetID, pnl); err != nil {
		e.logger.Warn("mark redeemed failed", "set", set.SetID, "error", err)
		return
	}
	e.riskMgr.RecordPnL(pnl)
	e.logger.Info("already redeemed, marking complete set redeemed", "set", set.SetID, "pnl", pnl)
	if nerr := e.notifier.NotifyRedeemed(ctx, set.SetID, set.Window.Slug, pnl); nerr != nil {
		e.logger.Debug("notify failed", "error", nerr)
	}
}

// shouldCheckResolution enforces the per-condition 30s rate limit and
// stamps the check time when it passes.
func (e *Engine) shouldCheckResolution(condID types.ConditionID) bool {
	e.resolutionMu.Lock()
	defer e.resolutionMu.Unlock()

	if last, ok := e.lastResolutionAt[condID]; ok && time.Since(last) < resolutionCheckMinInterval {
		return false
	}
	e.lastResolutionAt[condID] = time.Now()
	return true
}

func (e *Engine) dropResolutionEntry(condID types.ConditionID) {
	e.resolutionMu.Lock()
	defer e.resolutionMu.Unlock()
	delete(e.lastResolutionAt, condID)
}

// ————————————————————————————————————————————————————————————————————————
// Loop 5: status
// ————————————————————————————————————————————————————————————————————————

func (e *Engine) statusOnce(ctx context.Context) {
	active := e.tracker.ActiveSets()
	snap := e.riskMgr.TakeSnapshot(active)
	summary := e.tracker.Summary()

	e.logger.Info("status",
		"active_sets", summary.ActiveCount,
		"open_sets", snap.OpenSets,
		"daily_pnl", snap.DailyPnL,
		"total_pnl", summary.TotalPnL,
		"exposure", snap.TotalExposure,
		"risk_multiplier", snap.RiskMultiplier,
		"consecutive_losses", snap.ConsecutiveLosses,
		"kill_switch", snap.KillSwitchActive,
		"redeemed", summary.RedeemedCount,
		"abandoned", summary.AbandonedCount,
		"failed", summary.FailedCount,
	)
	if err := e.notifier.NotifyStatus(ctx, summary.ActiveCount, snap.DailyPnL, summary.TotalPnL, snap.KillSwitchActive); err != nil {
		e.logger.Debug("notify failed", "error", err)
	}
}

// ————————————————————————————————————————————————————————————————————————
// Helpers
// ————————————————————————————————————————————————————————————————————————

// cancelLeg cancels a live leg on the venue and records the cancellation.
// The tracker ignores the CANCELLED update if the leg actually filled
// first — the venue's idempotent cancel cannot regress a fill.
func (e *Engine) cancelLeg(ctx context.Context, setID string, leg *types.LegOrder) {
	if _, err := e.orders.CancelOrder(ctx, leg.OrderID); err != nil {
		e.logger.Warn("cancel failed", "order", leg.OrderID, "error", err)
		return
	}
	if err := e.tracker.UpdateLegState(setID, leg.TokenID, types.OrderCancelled); err != nil {
		e.logger.Warn("leg state update failed", "set", setID, "error", err)
	}
}

// redemptionPnL computes realised PnL at redemption: edge × size for a
// complete set, (1 - filled.price) × filled.size for a one-leg hold whose
// filled side won.
func redemptionPnL(set *types.CompleteSet) decimal.Decimal {
	if filled := soleFilledLeg(set); filled != nil {
		return one.Sub(filled.Price).Mul(filled.Size)
	}
	size := decimal.Zero
	if set.UpLeg != nil {
		size = set.UpLeg.Size
	}
	return set.EdgePerShare.Mul(size)
}

// splitLegs returns (filled, other) for a one-leg set.
func splitLegs(set *types.CompleteSet) (filled, unfilled *types.LegOrder) {
	up, down := set.UpLeg, set.DownLeg
	if up != nil && up.State == types.OrderFilled {
		return up, down
	}
	if down != nil && down.State == types.OrderFilled {
		return down, up
	}
	return nil, nil
}

// soleFilledLeg returns the filled leg when exactly one leg filled, nil
// when both (or neither) did.
func soleFilledLeg(set *types.CompleteSet) *types.LegOrder {
	upFilled := set.UpLeg != nil && set.UpLeg.State == types.OrderFilled
	downFilled := set.DownLeg != nil && set.DownLeg.State == types.OrderFilled
	switch {
	case upFilled && !downFilled:
		return set.UpLeg
	case downFilled && !upFilled:
		return set.DownLeg
	default:
		return nil
	}
}

func liveUnfilledLeg(set *types.CompleteSet) *types.LegOrder {
	for _, leg := range []*types.LegOrder{set.UpLeg, set.DownLeg} {
		if leg != nil && leg.State == types.OrderLive {
			return leg
		}
	}
	return nil
}

// isNoTokensOutcome classifies the redeem results that mean "the
// transaction was fine but nothing was paid out": the wallet held no
// winning positions, or they were redeemed already.
func isNoTokensOutcome(msg string) bool {
	switch msg {
	case "no positions found", "no tokens redeemed", "already redeemed":
		return true
	default:
		return false
	}
}
