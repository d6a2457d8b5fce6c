package tracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

func newTestSet(id string) *types.CompleteSet {
	return &types.CompleteSet{
		SetID: id,
		Window: types.MarketWindow{
			EventID:     "evt-1",
			ConditionID: "0xcond",
			Slug:        "btc-updown-1700",
			UpTokenID:   "up-tok",
			DownTokenID: "down-tok",
			EndTime:     time.Now().Add(time.Hour),
		},
		State: types.SetQuoting,
		UpLeg: &types.LegOrder{
			OrderID: "up-order", TokenID: "up-tok", Side: types.Up,
			Price: decimal.NewFromFloat(0.44), Size: decimal.NewFromFloat(5),
			State: types.OrderLive, CreatedAt: time.Now(),
		},
		DownLeg: &types.LegOrder{
			OrderID: "down-order", TokenID: "down-tok", Side: types.Down,
			Price: decimal.NewFromFloat(0.52), Size: decimal.NewFromFloat(5),
			State: types.OrderLive, CreatedAt: time.Now(),
		},
		CombinedCost: decimal.NewFromFloat(4.80), // (0.44 + 0.52) * 5
		EdgePerShare: decimal.NewFromFloat(0.04),
		CreatedAt:    time.Now(),
	}
}

func TestAddSetAndHasQuotedDedupe(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	set := newTestSet("set-1")
	if tr.HasQuoted(set.Window) {
		t.Fatal("window should not be quoted before AddSet")
	}
	tr.AddSet(set)
	if !tr.HasQuoted(set.Window) {
		t.Fatal("window should be quoted after AddSet")
	}
	if len(tr.ActiveSets()) != 1 {
		t.Fatalf("active sets = %d, want 1", len(tr.ActiveSets()))
	}
}

func TestUpdateLegStatePromotesToOneLegThenComplete(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	tr.AddSet(set)

	if err := tr.UpdateLegState("set-1", "up-tok", types.OrderFilled); err != nil {
		t.Fatalf("UpdateLegState: %v", err)
	}
	got, _ := tr.Get("set-1")
	if got.State != types.SetOneLegFilled {
		t.Fatalf("state = %s, want ONE_LEG_FILLED", got.State)
	}

	if err := tr.UpdateLegState("set-1", "down-tok", types.OrderFilled); err != nil {
		t.Fatalf("UpdateLegState: %v", err)
	}
	got, _ = tr.Get("set-1")
	if got.State != types.SetComplete {
		t.Fatalf("state = %s, want COMPLETE", got.State)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("completed_at should be stamped on COMPLETE")
	}
}

func TestMarkRedeemedIsTerminalAndPersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sets.json")
	tr, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	tr.AddSet(set)
	_ = tr.UpdateLegState("set-1", "up-tok", types.OrderFilled)
	_ = tr.UpdateLegState("set-1", "down-tok", types.OrderFilled)

	pnl := decimal.NewFromFloat(0.20)
	if err := tr.MarkRedeemed("set-1", pnl); err != nil {
		t.Fatalf("MarkRedeemed: %v", err)
	}

	if len(tr.ActiveSets()) != 0 {
		t.Fatal("set should no longer be active after MarkRedeemed")
	}
	got, ok := tr.Get("set-1")
	if !ok {
		t.Fatal("set should still be retrievable from completed history")
	}
	if got.State != types.SetRedeemed {
		t.Fatalf("state = %s, want REDEEMED", got.State)
	}
	if !got.PnL.Equal(pnl) {
		t.Fatalf("pnl = %s, want %s", got.PnL, pnl)
	}

	// Reopen from disk and confirm the terminal set restores into history.
	tr2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(tr2.ActiveSets()) != 0 {
		t.Fatal("restored tracker should have no active sets")
	}
	restored, ok := tr2.Get("set-1")
	if !ok {
		t.Fatal("restored tracker should find set-1 in completed history")
	}
	if restored.State != types.SetRedeemed {
		t.Fatalf("restored state = %s, want REDEEMED", restored.State)
	}
}

func TestRestoreSplitsNonTerminalIntoActive(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sets.json")
	tr, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	tr.AddSet(set)
	_ = tr.UpdateLegState("set-1", "up-tok", types.OrderFilled)
	_ = tr.UpdateLegState("set-1", "down-tok", types.OrderFilled)
	if err := tr.MarkAwaitingResolution("set-1"); err != nil {
		t.Fatalf("MarkAwaitingResolution: %v", err)
	}
	if err := tr.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	tr2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	active := tr2.ActiveSets()
	if len(active) != 1 {
		t.Fatalf("active sets after restart = %d, want 1 (AWAITING_RESOLUTION must resume)", len(active))
	}
	if active[0].State != types.SetAwaitingResolution {
		t.Fatalf("restored state = %s, want AWAITING_RESOLUTION", active[0].State)
	}
}

func TestMarkAbandonedRecordsLoss(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	tr.AddSet(set)
	_ = tr.UpdateLegState("set-1", "up-tok", types.OrderFilled)

	loss := decimal.NewFromFloat(0.44).Mul(decimal.NewFromFloat(5)).Neg()
	if err := tr.MarkAbandoned("set-1", loss); err != nil {
		t.Fatalf("MarkAbandoned: %v", err)
	}
	got, _ := tr.Get("set-1")
	if got.State != types.SetAbandoned {
		t.Fatalf("state = %s, want ABANDONED", got.State)
	}
	if !got.PnL.Equal(loss) {
		t.Fatalf("pnl = %s, want %s", got.PnL, loss)
	}
}

func TestMarkPermanentlyFailedUsesNegativeCombinedCost(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	tr.AddSet(set)

	if err := tr.MarkPermanentlyFailed("set-1"); err != nil {
		t.Fatalf("MarkPermanentlyFailed: %v", err)
	}
	got, _ := tr.Get("set-1")
	if got.State != types.SetRedemptionFailed {
		t.Fatalf("state = %s, want REDEMPTION_FAILED", got.State)
	}
	want := set.CombinedCost.Neg()
	if !got.PnL.Equal(want) {
		t.Fatalf("pnl = %s, want %s", got.PnL, want)
	}
}

func TestActiveSetsAndGetReturnSnapshots(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tr.AddSet(newTestSet("set-1"))

	snap := tr.ActiveSets()[0]
	snap.State = types.SetAbandoned
	snap.UpLeg.State = types.OrderCancelled

	got, _ := tr.Get("set-1")
	if got.State != types.SetQuoting {
		t.Fatalf("state = %s, want QUOTING untouched by snapshot writes", got.State)
	}
	if got.UpLeg.State != types.OrderLive {
		t.Fatalf("up leg = %s, want LIVE untouched by snapshot writes", got.UpLeg.State)
	}

	// And writes through the tracker are not visible in stale snapshots.
	_ = tr.UpdateLegState("set-1", "up-tok", types.OrderFilled)
	if snap.UpLeg.State == types.OrderFilled {
		t.Fatal("snapshot must not alias the tracker's live leg")
	}
}

func TestUpdateLegStateNeverRegressesFromTerminal(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	tr.AddSet(set)
	_ = tr.UpdateLegState("set-1", "up-tok", types.OrderFilled)

	// A late cancel against an already-filled order must be a no-op.
	if err := tr.UpdateLegState("set-1", "up-tok", types.OrderCancelled); err != nil {
		t.Fatalf("UpdateLegState: %v", err)
	}
	got, _ := tr.Get("set-1")
	if got.UpLeg.State != types.OrderFilled {
		t.Fatalf("up leg state = %s, want FILLED preserved", got.UpLeg.State)
	}
	if got.State != types.SetOneLegFilled {
		t.Fatalf("set state = %s, want ONE_LEG_FILLED preserved", got.State)
	}
}

func TestReplaceLegSwapsUnfilledSide(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	tr.AddSet(set)
	_ = tr.UpdateLegState("set-1", "up-tok", types.OrderFilled)

	reposted := types.LegOrder{
		OrderID: "down-order-2", TokenID: "down-tok", Side: types.Down,
		Price: decimal.NewFromFloat(0.53), Size: decimal.NewFromFloat(5),
		State: types.OrderLive, CreatedAt: time.Now(),
	}
	if err := tr.ReplaceLeg("set-1", "down-tok", reposted); err != nil {
		t.Fatalf("ReplaceLeg: %v", err)
	}
	got, _ := tr.Get("set-1")
	if got.DownLeg.OrderID != "down-order-2" {
		t.Fatalf("down leg order id = %s, want down-order-2", got.DownLeg.OrderID)
	}
	if !got.DownLeg.Price.Equal(decimal.NewFromFloat(0.53)) {
		t.Fatalf("down leg price = %s, want 0.53", got.DownLeg.Price)
	}
	if err := tr.ReplaceLeg("set-1", "other-tok", reposted); err == nil {
		t.Fatal("ReplaceLeg with unknown token should error")
	}
}

func TestMarkRedemptionFailedIncrementsWithoutChangingState(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	set := newTestSet("set-1")
	set.State = types.SetAwaitingResolution
	tr.AddSet(set)

	if err := tr.MarkRedemptionFailed("set-1", "transaction reverted"); err != nil {
		t.Fatalf("MarkRedemptionFailed: %v", err)
	}
	got, _ := tr.Get("set-1")
	if got.State != types.SetAwaitingResolution {
		t.Fatalf("state = %s, want unchanged AWAITING_RESOLUTION", got.State)
	}
	if got.RedemptionAttempts != 1 {
		t.Fatalf("redemption attempts = %d, want 1", got.RedemptionAttempts)
	}
	if got.LastRedemptionErr != "transaction reverted" {
		t.Fatalf("last error = %q", got.LastRedemptionErr)
	}
}

func TestSummaryAggregatesExposureAndPnL(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "sets.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	active := newTestSet("active-1")
	tr.AddSet(active)

	redeemed := newTestSet("redeemed-1")
	redeemed.Window.Slug = "redeemed-slug"
	tr.AddSet(redeemed)
	_ = tr.UpdateLegState("redeemed-1", "up-tok", types.OrderFilled)
	_ = tr.UpdateLegState("redeemed-1", "down-tok", types.OrderFilled)
	_ = tr.MarkRedeemed("redeemed-1", decimal.NewFromFloat(0.20))

	summary := tr.Summary()
	if summary.ActiveCount != 1 {
		t.Errorf("active count = %d, want 1", summary.ActiveCount)
	}
	if summary.RedeemedCount != 1 {
		t.Errorf("redeemed count = %d, want 1", summary.RedeemedCount)
	}
	if !summary.TotalPnL.Equal(decimal.NewFromFloat(0.20)) {
		t.Errorf("total pnl = %s, want 0.20", summary.TotalPnL)
	}
	if !summary.TotalExposure.Equal(active.CombinedCost) {
		t.Errorf("total exposure = %s, want %s", summary.TotalExposure, active.CombinedCost)
	}
}

func TestOpenToleratesMissingFile(t *testing.T) {
	t.Parallel()
	tr, err := Open(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(tr.ActiveSets()) != 0 {
		t.Fatal("fresh tracker should start empty")
	}
}
