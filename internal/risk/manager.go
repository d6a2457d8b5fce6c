// Package risk is the governor every set-opening and sizing decision
// passes through: it tracks daily PnL, open-set count, total exposure,
// win/loss streaks, and a kill switch, and it detects suspected wallet
// blacklisting from consecutive redemption failures.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

// Snapshot is a point-in-time view of risk state for the status loop to
// log and notify on.
type Snapshot struct {
	OpenSets                      int
	DailyPnL                      decimal.Decimal
	TotalExposure                 decimal.Decimal
	KillSwitchActive              bool
	CanTrade                      bool
	RiskMultiplier                decimal.Decimal
	ConsecutiveLosses             int
	ConsecutiveRedemptionFailures int
}

// Manager enforces position limits, streak-based sizing, and blacklist
// detection across every active CompleteSet.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu                            sync.RWMutex
	dailyPnL                      decimal.Decimal
	dayStart                      time.Time
	killSwitch                    bool
	consecutiveLosses             int
	consecutiveRedemptionFailures int
	totalWins                     int
	totalLosses                   int
}

// NewManager creates a risk governor.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.With("component", "risk"),
		dailyPnL: decimal.Zero,
		dayStart: time.Now(),
	}
}

// CanOpenNewSet reports whether risk limits allow opening another
// complete set. Checks in order: kill switch, daily loss, open-set
// count, total exposure.
func (m *Manager) CanOpenNewSet(active []*types.CompleteSet) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeResetDailyLocked()

	if m.killSwitch {
		return false
	}
	if m.dailyPnL.LessThanOrEqual(decimal.NewFromFloat(-m.cfg.MaxDailyLoss)) {
		return false
	}
	if countOpen(active) >= m.cfg.MaxOpenSets {
		return false
	}
	if totalExposure(active).GreaterThanOrEqual(decimal.NewFromFloat(m.cfg.MaxTotalExposure)) {
		return false
	}
	return true
}

// RiskMultiplier returns a multiplier in [min_risk_multiplier, 1.0] that
// scales position size down after losses or as exposure approaches the
// configured limit. The two adjustments combine multiplicatively, then
// the combined value is floored at min_risk_multiplier.
func (m *Manager) RiskMultiplier(active []*types.CompleteSet) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	streakMult := m.streakMultiplierLocked()
	exposureMult := m.exposureMultiplierLocked(active)
	combined := streakMult.Mul(exposureMult)

	floor := decimal.NewFromFloat(m.cfg.MinRiskMultiplier)
	if combined.LessThan(floor) {
		return floor
	}
	return combined
}

func (m *Manager) streakMultiplierLocked() decimal.Decimal {
	threshold := m.cfg.LossStreakThreshold
	if m.consecutiveLosses <= threshold {
		return decimal.NewFromInt(1)
	}
	overshoot := m.consecutiveLosses - threshold
	scale := decimal.NewFromFloat(m.cfg.LossStreakScale).Pow(decimal.NewFromInt(int64(overshoot)))
	floor := decimal.NewFromFloat(m.cfg.MinRiskMultiplier)
	if scale.LessThan(floor) {
		return floor
	}
	return scale
}

func (m *Manager) exposureMultiplierLocked(active []*types.CompleteSet) decimal.Decimal {
	limit := m.cfg.MaxTotalExposure
	if limit <= 0 {
		return decimal.NewFromInt(1)
	}
	exposure := totalExposure(active)
	ratio := exposure.Div(decimal.NewFromFloat(limit))

	half := decimal.NewFromFloat(0.5)
	if ratio.LessThan(half) {
		return decimal.NewFromInt(1)
	}
	// Linear from 1.0 at 50% exposure to 0.25 at 100% exposure.
	scaled := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(1.5).Mul(ratio.Sub(half)))
	floor := decimal.NewFromFloat(m.cfg.MinRiskMultiplier)
	if scaled.LessThan(floor) {
		return floor
	}
	return scaled
}

// RecordPnL records realised PnL from a terminal set and updates the loss
// streak: a non-negative amount resets the streak, a negative amount
// extends it and trips the kill switch if the daily loss limit is
// breached.
func (m *Manager) RecordPnL(amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dailyPnL = m.dailyPnL.Add(amount)

	if amount.Sign() >= 0 {
		m.consecutiveLosses = 0
		m.totalWins++
	} else {
		m.consecutiveLosses++
		m.totalLosses++
		m.logger.Info("consecutive losses", "count", m.consecutiveLosses, "threshold", m.cfg.LossStreakThreshold)
	}

	if m.dailyPnL.LessThanOrEqual(decimal.NewFromFloat(-m.cfg.MaxDailyLoss)) {
		m.logger.Warn("daily loss limit breached, activating kill switch", "daily_pnl", m.dailyPnL)
		m.killSwitch = true
	}
}

// RecordRedemptionFailure tracks a failed redemption attempt. Once the
// count reaches MaxRedemptionFailures, the kill switch trips on
// suspicion the wallet has been blacklisted by the venue.
func (m *Manager) RecordRedemptionFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveRedemptionFailures++
	m.logger.Warn("redemption failure", "count", m.consecutiveRedemptionFailures, "max", m.cfg.MaxRedemptionFailures)

	if m.consecutiveRedemptionFailures >= m.cfg.MaxRedemptionFailures {
		m.logger.Error("suspected blacklist, kill switch activated", "consecutive_failures", m.consecutiveRedemptionFailures)
		m.killSwitch = true
	}
}

// RecordRedemptionSuccess clears the redemption-failure streak.
func (m *Manager) RecordRedemptionSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveRedemptionFailures = 0
}

// SuspectedBlacklist reports whether consecutive redemption failures have
// reached the configured threshold.
func (m *Manager) SuspectedBlacklist() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveRedemptionFailures >= m.cfg.MaxRedemptionFailures
}

// ActivateKillSwitch is an emergency stop: no new sets until cleared.
func (m *Manager) ActivateKillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitch = true
	m.logger.Error("kill switch activated")
}

// DeactivateKillSwitch clears the kill switch and the redemption-failure
// streak that may have caused it.
func (m *Manager) DeactivateKillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitch = false
	m.consecutiveRedemptionFailures = 0
}

// KillSwitchActive reports the current kill switch state.
func (m *Manager) KillSwitchActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.killSwitch
}

// TakeSnapshot returns a point-in-time view of risk state.
func (m *Manager) TakeSnapshot(active []*types.CompleteSet) Snapshot {
	return Snapshot{
		OpenSets:                      countOpen(active),
		DailyPnL:                      m.currentDailyPnL(),
		TotalExposure:                 totalExposure(active),
		KillSwitchActive:              m.KillSwitchActive(),
		CanTrade:                      m.CanOpenNewSet(active),
		RiskMultiplier:                m.RiskMultiplier(active),
		ConsecutiveLosses:             m.currentConsecutiveLosses(),
		ConsecutiveRedemptionFailures: m.currentConsecutiveRedemptionFailures(),
	}
}

func (m *Manager) currentDailyPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

func (m *Manager) currentConsecutiveLosses() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveLosses
}

func (m *Manager) currentConsecutiveRedemptionFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveRedemptionFailures
}

// maybeResetDailyLocked resets daily PnL after 86400s of wall-clock time
// since the last reset. Not a calendar-day boundary: the window drifts
// across restarts, which is intentional. Caller must hold m.mu for
// writing.
func (m *Manager) maybeResetDailyLocked() {
	if time.Since(m.dayStart) >= 24*time.Hour {
		m.logger.Info("daily reset", "previous_daily_pnl", m.dailyPnL)
		m.dailyPnL = decimal.Zero
		m.dayStart = time.Now()
		m.consecutiveLosses = 0
	}
}

func countOpen(active []*types.CompleteSet) int {
	count := 0
	for _, s := range active {
		if s.State == types.SetQuoting || s.State == types.SetOneLegFilled {
			count++
		}
	}
	return count
}

// totalExposure sums combined_cost across every non-terminal set: the
// still-quoting/one-leg sets counted for CanOpenNewSet, plus the
// complete/awaiting-resolution sets still holding capital on-chain.
func totalExposure(active []*types.CompleteSet) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range active {
		switch s.State {
		case types.SetQuoting, types.SetOneLegFilled, types.SetComplete, types.SetAwaitingResolution:
			sum = sum.Add(s.CombinedCost)
		}
	}
	return sum
}
