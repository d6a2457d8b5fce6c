package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-mm/pkg/types"
)

// hourlyAssetNames maps a short asset ticker to the long name the hourly
// up-or-down series uses in its slugs (15-minute slugs use the ticker).
// Assets without a mapping keep their configured name for both cadences.
var hourlyAssetNames = map[string]string{
	"btc": "bitcoin",
	"eth": "ethereum",
}

// gammaEvent is the shape of one element of the Gamma /events response.
type gammaEvent struct {
	ID      string        `json:"id"`
	Slug    string        `json:"slug"`
	Closed  bool          `json:"closed"`
	EndDate string        `json:"endDate"`
	Markets []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	ConditionID     string `json:"conditionId"`
	Question        string `json:"question"`
	AcceptingOrders bool   `json:"acceptingOrders"`
	ClobTokenIds    string `json:"clobTokenIds"`
}

// Finder discovers active up-or-down market windows by generating and
// probing candidate slugs against the Gamma events endpoint. The venue's
// own discovery endpoint does not reliably list these short-duration
// series, so candidate slugs are generated by time-stepping the clock and
// queried individually instead.
type Finder struct {
	http   *resty.Client
	assets []string
	logger *slog.Logger
}

// NewFinder creates a market window finder pointed at the Gamma base URL.
// Each configured asset produces both 15-minute and hourly slug
// candidates.
func NewFinder(gammaBaseURL string, assets []string, logger *slog.Logger) *Finder {
	client := resty.New().
		SetBaseURL(gammaBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(1)

	return &Finder{
		http:   client,
		assets: assets,
		logger: logger.With("component", "finder"),
	}
}

// FindActiveWindows returns every currently active candidate window.
// Errors per-slug are swallowed; the aggregate list is always returned.
func (f *Finder) FindActiveWindows(ctx context.Context) []types.MarketWindow {
	slugs := f.candidateSlugs(time.Now().UTC())
	f.logger.Debug("checking candidate slugs", "count", len(slugs))

	var windows []types.MarketWindow
	for _, slug := range slugs {
		window, ok := f.fetchBySlug(ctx, slug)
		if ok {
			windows = append(windows, window)
		}
	}

	f.logger.Info("window discovery complete", "found", len(windows), "checked", len(slugs))
	return windows
}

func (f *Finder) candidateSlugs(now time.Time) []string {
	var slugs []string
	for _, asset := range f.assets {
		slugs = append(slugs, candidate15mSlugs(asset, now)...)
		slugs = append(slugs, candidate1hSlugs(hourlyAssetName(asset), now)...)
	}
	return slugs
}

func hourlyAssetName(asset string) string {
	if long, ok := hourlyAssetNames[asset]; ok {
		return long
	}
	return asset
}

// candidate15mSlugs generates slugs for 15-minute windows spanning 30
// minutes ago through 15 minutes ahead, aligned to 900-second boundaries.
func candidate15mSlugs(asset string, now time.Time) []string {
	nowSec := now.Unix()
	fromSec := nowSec - 1800
	toSec := nowSec + 900

	startFrom := (fromSec / 900) * 900
	startTo := (toSec / 900) * 900

	var slugs []string
	for start := startFrom; start <= startTo; start += 900 {
		slugs = append(slugs, fmt.Sprintf("%s-updown-15m-%d", asset, start))
	}
	return slugs
}

// candidate1hSlugs generates slugs for the current hour window ± 2/1 hour.
func candidate1hSlugs(asset string, now time.Time) []string {
	hourStart := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())

	offsets := []time.Duration{-2 * time.Hour, -1 * time.Hour, 0, time.Hour}
	slugs := make([]string, 0, len(offsets))
	for _, off := range offsets {
		slugs = append(slugs, build1hSlug(asset, hourStart.Add(off)))
	}
	return slugs
}

func build1hSlug(asset string, dt time.Time) string {
	month := monthLower(dt.Month())
	day := dt.Day()
	hour24 := dt.Hour()
	hour12 := hour24 % 12
	if hour12 == 0 {
		hour12 = 12
	}
	ampm := "am"
	if hour24 >= 12 {
		ampm = "pm"
	}
	return fmt.Sprintf("%s-up-or-down-%s-%d-%d%s-et", asset, month, day, hour12, ampm)
}

func monthLower(m time.Month) string {
	switch m {
	case time.January:
		return "january"
	case time.February:
		return "february"
	case time.March:
		return "march"
	case time.April:
		return "april"
	case time.May:
		return "may"
	case time.June:
		return "june"
	case time.July:
		return "july"
	case time.August:
		return "august"
	case time.September:
		return "september"
	case time.October:
		return "october"
	case time.November:
		return "november"
	default:
		return "december"
	}
}

func (f *Finder) fetchBySlug(ctx context.Context, slug string) (types.MarketWindow, bool) {
	var events []gammaEvent
	res, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("slug", slug).
		SetResult(&events).
		Get("/events")
	if err != nil || res.StatusCode() != 200 {
		if err != nil {
			f.logger.Debug("slug fetch failed", "slug", slug, "error", err)
		}
		return types.MarketWindow{}, false
	}
	if len(events) == 0 {
		return types.MarketWindow{}, false
	}

	event := events[0]
	if event.Closed {
		return types.MarketWindow{}, false
	}
	if len(event.Markets) == 0 {
		return types.MarketWindow{}, false
	}

	mkt := event.Markets[0]
	if !mkt.AcceptingOrders {
		return types.MarketWindow{}, false
	}

	tokenIDs := parseClobTokenIds(mkt.ClobTokenIds)
	if len(tokenIDs) < 2 {
		f.logger.Debug("market has fewer than 2 tokens", "slug", slug)
		return types.MarketWindow{}, false
	}

	endTime, _ := time.Parse(time.RFC3339, event.EndDate) // zero time tolerated on failure

	// mkt.ConditionID is left empty rather than falling back to event.ID:
	// ConditionID and EventID are distinct on-chain/off-chain identifiers,
	// and substituting one for the other produces a set that looks
	// redeemable but calls payoutDenominator/redeemPositions with the
	// wrong key.
	return types.MarketWindow{
		EventID:         types.EventID(event.ID),
		ConditionID:     types.ConditionID(mkt.ConditionID),
		Slug:            slug,
		Question:        mkt.Question,
		UpTokenID:       types.TokenID(tokenIDs[0]),
		DownTokenID:     types.TokenID(tokenIDs[1]),
		EndTime:         endTime,
		Active:          true,
		Closed:          false,
		AcceptingOrders: true,
	}, true
}

func parseClobTokenIds(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}
