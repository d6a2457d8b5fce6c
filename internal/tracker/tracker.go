// Package tracker is the sole authority over the lifecycle of CompleteSet
// values: it owns every state transition, aggregates realised PnL, and
// persists the active+completed population to a single crash-safe JSON
// file.
//
// No loop outside this package ever mutates a CompleteSet's state field
// directly; they construct a set (the scan loop, which hands ownership off
// to AddSet in the same step) or pass set_id/token_id keys back in for a
// transition. Every exported method is mutex-serialized so no caller ever
// observes a half-updated set.
//
// Persistence is a single JSON blob holding every CompleteSet, rewritten
// whole on each terminal transition (write to .tmp, then os.Rename, so a
// crash mid-write never truncates the log).
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

// PnLSummary aggregates realised results across every set the tracker has
// ever seen a terminal transition for.
type PnLSummary struct {
	TotalPnL       decimal.Decimal
	RedeemedCount  int
	AbandonedCount int
	FailedCount    int
	ActiveCount    int
	TotalExposure  decimal.Decimal
}

// Tracker owns every CompleteSet and mediates all state transitions.
type Tracker struct {
	mu sync.Mutex

	path string

	active    map[string]*types.CompleteSet // by set_id
	completed map[string]*types.CompleteSet // by set_id

	quotedWindows map[string]bool // window_id dedupe, in-memory only
}

// Open creates a tracker backed by path, restoring any previously
// persisted sets. A missing or malformed file is tolerated: the tracker
// simply starts empty.
func Open(path string) (*Tracker, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create tracker dir: %w", err)
		}
	}

	t := &Tracker{
		path:          path,
		active:        make(map[string]*types.CompleteSet),
		completed:     make(map[string]*types.CompleteSet),
		quotedWindows: make(map[string]bool),
	}
	t.restore()
	return t, nil
}

// restore reloads persisted sets, splitting non-terminal sets into active
// (so the redemption loop resumes after a restart) and terminal sets into
// completed history. Failures are swallowed: a corrupt or absent file
// leaves the tracker empty rather than preventing startup.
func (t *Tracker) restore() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return
	}

	var records []types.CompleteSetRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return
	}

	for _, rec := range records {
		set := recordToSet(rec)
		if set.State.IsTerminal() {
			t.completed[set.SetID] = set
		} else {
			t.active[set.SetID] = set
		}
	}
}

// AddSet registers a newly-quoted set and marks its window as quoted so
// the scan loop never emits a second set for the same window_id. The
// tracker takes ownership: the caller must not retain or mutate set after
// handing it off.
func (t *Tracker) AddSet(set *types.CompleteSet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[set.SetID] = set
	t.quotedWindows[string(set.Window.EventID)+"|"+set.Window.Slug] = true
}

// HasQuoted reports whether a window has already produced a set, keyed on
// event id + slug (the scan loop's dedupe key).
func (t *Tracker) HasQuoted(window types.MarketWindow) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quotedWindows[string(window.EventID)+"|"+window.Slug]
}

// ActiveSets returns a snapshot of every non-terminal set. Each element is
// a deep copy taken under the lock: callers run in their own goroutines,
// so handing out the live pointers would race against the mutations other
// tracker methods make. Reads of a snapshot are always consistent;
// mutations still go through tracker methods keyed by set_id/token_id.
func (t *Tracker) ActiveSets() []*types.CompleteSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*types.CompleteSet, 0, len(t.active))
	for _, s := range t.active {
		out = append(out, cloneSet(s))
	}
	return out
}

// Get returns a deep-copied snapshot of the set with the given id,
// searching active then completed.
func (t *Tracker) Get(setID string) (*types.CompleteSet, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.active[setID]; ok {
		return cloneSet(s), true
	}
	if s, ok := t.completed[setID]; ok {
		return cloneSet(s), true
	}
	return nil, false
}

// UpdateLegState mutates the named leg's state and recomputes the set's
// aggregate state: both legs filled promotes to COMPLETE (stamping
// completed_at); exactly one filled promotes to ONE_LEG_FILLED.
func (t *Tracker) UpdateLegState(setID string, tokenID types.TokenID, newState types.OrderState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.active[setID]
	if !ok {
		return fmt.Errorf("update leg state: set %s not active", setID)
	}

	leg := legForToken(set, tokenID)
	if leg == nil {
		return fmt.Errorf("update leg state: set %s has no leg for token %s", setID, tokenID)
	}
	// Leg states are monotone: once terminal they never change again. A
	// late CANCELLED for an order the venue already filled must not undo
	// the fill.
	if leg.State.IsTerminal() && newState != leg.State {
		return nil
	}
	leg.State = newState
	if newState == types.OrderFilled && leg.FilledAt.IsZero() {
		leg.FilledAt = time.Now()
	}

	upFilled := set.UpLeg != nil && set.UpLeg.State == types.OrderFilled
	downFilled := set.DownLeg != nil && set.DownLeg.State == types.OrderFilled

	switch {
	case upFilled && downFilled:
		if set.State != types.SetComplete {
			set.State = types.SetComplete
			set.CompletedAt = time.Now()
		}
	case upFilled || downFilled:
		if set.State == types.SetQuoting {
			set.State = types.SetOneLegFilled
		}
	}
	return nil
}

// MarkAwaitingResolution transitions a COMPLETE or ONE_LEG_FILLED set into
// AWAITING_RESOLUTION once it is past its end_time (+ grace).
func (t *Tracker) MarkAwaitingResolution(setID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.active[setID]
	if !ok {
		return fmt.Errorf("mark awaiting resolution: set %s not active", setID)
	}
	if set.State != types.SetComplete && set.State != types.SetOneLegFilled {
		return fmt.Errorf("mark awaiting resolution: set %s in state %s", setID, set.State)
	}
	set.State = types.SetAwaitingResolution
	return nil
}

// MarkRedeemed is a terminal transition. pnl is the caller-computed
// realised result: edge-per-share times size for a complete set, or
// (1 - filled.price) * filled.size for a one-leg hold.
func (t *Tracker) MarkRedeemed(setID string, pnl decimal.Decimal) error {
	return t.finalize(setID, types.SetRedeemed, pnl)
}

// MarkAbandoned is a terminal transition for a one-leg hold whose market
// resolved against the filled side. realized is the caller-supplied loss,
// -(filled.price * filled.size).
func (t *Tracker) MarkAbandoned(setID string, realized decimal.Decimal) error {
	return t.finalize(setID, types.SetAbandoned, realized)
}

// MarkRedemptionFailed records a failed redemption attempt without
// changing the set's state — the redemption loop will retry it on its
// next rate-limited pass.
func (t *Tracker) MarkRedemptionFailed(setID string, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.active[setID]
	if !ok {
		return fmt.Errorf("mark redemption failed: set %s not active", setID)
	}
	set.RedemptionAttempts++
	set.LastRedemptionErr = errMsg
	return t.persistLocked()
}

// MarkPermanentlyFailed is a terminal transition for a set the risk
// governor has flagged as suspected-blacklisted: the set lands in
// REDEMPTION_FAILED for good, with PnL = -combined_cost.
func (t *Tracker) MarkPermanentlyFailed(setID string) error {
	t.mu.Lock()
	set, ok := t.active[setID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("mark permanently failed: set %s not active", setID)
	}
	pnl := set.CombinedCost.Neg()
	t.mu.Unlock()
	return t.finalize(setID, types.SetRedemptionFailed, pnl)
}

// ReplaceLeg swaps in a freshly-posted leg order for the named token. The
// one-leg recovery loop uses this after cancelling and reposting the
// unfilled side at a chased price; routing the swap through the tracker
// keeps all CompleteSet mutation behind one mutex.
func (t *Tracker) ReplaceLeg(setID string, tokenID types.TokenID, newLeg types.LegOrder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.active[setID]
	if !ok {
		return fmt.Errorf("replace leg: set %s not active", setID)
	}
	switch {
	case set.UpLeg != nil && set.UpLeg.TokenID == tokenID:
		set.UpLeg = &newLeg
	case set.DownLeg != nil && set.DownLeg.TokenID == tokenID:
		set.DownLeg = &newLeg
	default:
		return fmt.Errorf("replace leg: set %s has no leg for token %s", setID, tokenID)
	}
	return nil
}

// finalize performs a terminal transition shared by MarkRedeemed,
// MarkAbandoned and MarkPermanentlyFailed: stamp state + pnl +
// completed_at, move from active to completed, and persist.
func (t *Tracker) finalize(setID string, state types.SetState, pnl decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.active[setID]
	if !ok {
		return fmt.Errorf("finalize: set %s not active", setID)
	}

	set.State = state
	set.PnL = pnl
	if set.CompletedAt.IsZero() {
		set.CompletedAt = time.Now()
	}

	delete(t.active, setID)
	t.completed[setID] = set

	return t.persistLocked()
}

// Summary aggregates realised PnL and per-state counts across the whole
// tracker, active and completed.
func (t *Tracker) Summary() PnLSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := PnLSummary{
		TotalPnL:      decimal.Zero,
		TotalExposure: decimal.Zero,
	}
	for _, s := range t.active {
		summary.ActiveCount++
		if s.State == types.SetQuoting || s.State == types.SetOneLegFilled {
			summary.TotalExposure = summary.TotalExposure.Add(s.CombinedCost)
		}
	}
	for _, s := range t.completed {
		summary.TotalPnL = summary.TotalPnL.Add(s.PnL)
		switch s.State {
		case types.SetRedeemed:
			summary.RedeemedCount++
		case types.SetAbandoned:
			summary.AbandonedCount++
		case types.SetRedemptionFailed:
			summary.FailedCount++
		}
	}
	return summary
}

// persistLocked rewrites the full JSON blob. Caller must hold t.mu.
func (t *Tracker) persistLocked() error {
	records := make([]types.CompleteSetRecord, 0, len(t.active)+len(t.completed))
	for _, s := range t.active {
		records = append(records, setToRecord(s))
	}
	for _, s := range t.completed {
		records = append(records, setToRecord(s))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracker state: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tracker state: %w", err)
	}
	return os.Rename(tmp, t.path)
}

// Persist rewrites the full JSON blob, exposed for shutdown.
func (t *Tracker) Persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persistLocked()
}

// cloneSet deep-copies a set and its legs. decimal.Decimal and
// MarketWindow are value types, so a shallow struct copy plus fresh leg
// pointers is a full snapshot.
func cloneSet(s *types.CompleteSet) *types.CompleteSet {
	cp := *s
	if s.UpLeg != nil {
		leg := *s.UpLeg
		cp.UpLeg = &leg
	}
	if s.DownLeg != nil {
		leg := *s.DownLeg
		cp.DownLeg = &leg
	}
	return &cp
}

func legForToken(set *types.CompleteSet, tokenID types.TokenID) *types.LegOrder {
	if set.UpLeg != nil && set.UpLeg.TokenID == tokenID {
		return set.UpLeg
	}
	if set.DownLeg != nil && set.DownLeg.TokenID == tokenID {
		return set.DownLeg
	}
	return nil
}

func setToRecord(s *types.CompleteSet) types.CompleteSetRecord {
	rec := types.CompleteSetRecord{
		SetID:              s.SetID,
		WindowID:           string(s.Window.EventID) + "|" + s.Window.Slug,
		Question:           s.Window.Question,
		ConditionID:        string(s.Window.ConditionID),
		EventID:            string(s.Window.EventID),
		EndTime:            s.Window.EndTime.Format(time.RFC3339),
		EndTimeEpoch:       s.Window.EndTime.Unix(),
		UpTokenID:          string(s.Window.UpTokenID),
		DownTokenID:        string(s.Window.DownTokenID),
		Slug:               s.Window.Slug,
		State:              string(s.State),
		UpLeg:              legToRecord(s.UpLeg),
		DownLeg:            legToRecord(s.DownLeg),
		CombinedCost:       s.CombinedCost.String(),
		EdgePerShare:       s.EdgePerShare.String(),
		CreatedAt:          s.CreatedAt.Format(time.RFC3339),
		PnL:                s.PnL.String(),
		RedemptionAttempts: s.RedemptionAttempts,
		LastRedemptionErr:  s.LastRedemptionErr,
	}
	if !s.CompletedAt.IsZero() {
		rec.CompletedAt = s.CompletedAt.Format(time.RFC3339)
	}
	return rec
}

func legToRecord(l *types.LegOrder) *types.LegRecord {
	if l == nil {
		return nil
	}
	rec := &types.LegRecord{
		OrderID:   l.OrderID,
		TokenID:   string(l.TokenID),
		Side:      string(l.Side),
		Price:     l.Price.String(),
		Size:      l.Size.String(),
		State:     string(l.State),
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
	if !l.FilledAt.IsZero() {
		rec.FilledAt = l.FilledAt.Format(time.RFC3339)
	}
	return rec
}

func recordToSet(rec types.CompleteSetRecord) *types.CompleteSet {
	endTime := time.Unix(rec.EndTimeEpoch, 0)
	createdAt, _ := time.Parse(time.RFC3339, rec.CreatedAt)

	set := &types.CompleteSet{
		SetID: rec.SetID,
		Window: types.MarketWindow{
			EventID:     types.EventID(rec.EventID),
			ConditionID: types.ConditionID(rec.ConditionID),
			Slug:        rec.Slug,
			Question:    rec.Question,
			UpTokenID:   types.TokenID(rec.UpTokenID),
			DownTokenID: types.TokenID(rec.DownTokenID),
			EndTime:     endTime,
		},
		State:              types.SetState(rec.State),
		UpLeg:              recordToLeg(rec.UpLeg),
		DownLeg:            recordToLeg(rec.DownLeg),
		CombinedCost:       decimalOrZero(rec.CombinedCost),
		EdgePerShare:       decimalOrZero(rec.EdgePerShare),
		CreatedAt:          createdAt,
		PnL:                decimalOrZero(rec.PnL),
		RedemptionAttempts: rec.RedemptionAttempts,
		LastRedemptionErr:  rec.LastRedemptionErr,
	}
	if rec.CompletedAt != "" {
		if ts, err := time.Parse(time.RFC3339, rec.CompletedAt); err == nil {
			set.CompletedAt = ts
		}
	}
	return set
}

func recordToLeg(rec *types.LegRecord) *types.LegOrder {
	if rec == nil {
		return nil
	}
	createdAt, _ := time.Parse(time.RFC3339, rec.CreatedAt)
	leg := &types.LegOrder{
		OrderID:   rec.OrderID,
		TokenID:   types.TokenID(rec.TokenID),
		Side:      types.TokenSide(rec.Side),
		Price:     decimalOrZero(rec.Price),
		Size:      decimalOrZero(rec.Size),
		State:     types.OrderState(rec.State),
		CreatedAt: createdAt,
	}
	if rec.FilledAt != "" {
		if ts, err := time.Parse(time.RFC3339, rec.FilledAt); err == nil {
			leg.FilledAt = ts
		}
	}
	return leg
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
