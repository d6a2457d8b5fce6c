// Package config loads all configuration for the complete-set arbitrage bot
// from environment variables (optionally via a .env file). The variable
// names do not share one namespace (POLYMARKET_*, BOT_*, TELEGRAM_*), so
// each key is bound individually rather than relying on viper's
// SetEnvPrefix convention.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credentials holds the Ethereum signing key and derived/pre-provisioned
// Polymarket API credentials. PrivateKey signs L1 (EIP-712) auth and order
// payloads; FunderAddress is the on-chain address that funds orders (it
// differs from the signer address under proxy/Safe signature types).
type Credentials struct {
	PrivateKey      string
	FunderAddress   string
	SignatureType   int
	APIKey          string
	APISecret       string
	APIPassphrase   string
}

// Endpoints holds the venue and chain base URLs.
type Endpoints struct {
	ClobBaseURL  string
	GammaBaseURL string
	PolygonRPC   string // optional, appended last to chain's fallback RPC list
}

// StrategyConfig tunes the complete-set evaluator: pricing, sizing, and the
// book-quality gates it checks before pricing. MaxTotalExposure/
// MaxPositionPct bound the bankroll fraction a single quote may commit;
// MaxTotalExposure is the same limit the risk governor gates new sets
// against.
type StrategyConfig struct {
	MinEdgeCents    float64
	BidImproveCents float64
	DefaultSize     float64
	MaxSize         float64

	MinCombinedBids float64
	MaxSpread       float64
	MinBidSize      float64

	TickSize          float64
	MaxTotalExposure  float64
	MaxPositionPct    float64
}

// RiskConfig tunes the risk governor's gating and sizing-multiplier
// formulas.
type RiskConfig struct {
	MaxOpenSets           int
	MaxDailyLoss          float64
	MaxTotalExposure      float64
	OneLegTimeout         time.Duration
	LossStreakThreshold   int
	LossStreakScale       float64
	MinRiskMultiplier     float64
	MaxRedemptionFailures int
}

// RedemptionConfig tunes the redemption loop's timing: how soon past a
// window's end_time a set becomes eligible for resolution checks, and the
// fallback deadline used when end_time_epoch is unknown (0).
type RedemptionConfig struct {
	CheckInterval time.Duration
	Grace         time.Duration
	Deadline      time.Duration
}

// MarketConfig controls which assets the finder generates candidate
// windows for.
type MarketConfig struct {
	ScanAssets []string
}

// NotificationConfig holds optional Telegram credentials. Either field
// empty disables the notifier entirely.
type NotificationConfig struct {
	TelegramBotToken string
	TelegramChatID   string
}

// LoggingConfig controls slog's level and handler format.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Config is the fully assembled, top-level configuration.
type Config struct {
	Credentials  Credentials
	Endpoints    Endpoints
	Strategy     StrategyConfig
	Risk         RiskConfig
	Redemption   RedemptionConfig
	Market       MarketConfig
	Logging      LoggingConfig
	Notification NotificationConfig

	TradeLogPath string
	Live         bool // false = paper mode
}

// Load reads configuration from the environment. Every variable has a
// default, so a fresh checkout runs in paper mode with no environment set
// at all.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	defaults := map[string]interface{}{
		"POLYMARKET_PRIVATE_KEY":      "",
		"POLYMARKET_FUNDER_ADDRESS":   "",
		"POLYMARKET_SIGNATURE_TYPE":   0,
		"POLYMARKET_API_KEY":          "",
		"POLYMARKET_API_SECRET":       "",
		"POLYMARKET_API_PASSPHRASE":   "",
		"POLYMARKET_CLOB_URL":         "https://clob.polymarket.com",
		"POLYMARKET_GAMMA_URL":        "https://gamma-api.polymarket.com",
		"POLYGON_RPC_URL":             "",
		"BOT_MIN_EDGE_CENTS":          2.0,
		"BOT_BID_IMPROVE_CENTS":       1.0,
		"BOT_DEFAULT_SIZE":            5.0,
		"BOT_MAX_SIZE":                20.0,
		"BOT_MIN_COMBINED_BIDS":       0.80,
		"BOT_MAX_SPREAD":              0.10,
		"BOT_MIN_BID_SIZE":            10.0,
		"BOT_MAX_OPEN_SETS":           10,
		"BOT_MAX_DAILY_LOSS":          50.0,
		"BOT_MAX_TOTAL_EXPOSURE":      200.0,
		"BOT_ONE_LEG_TIMEOUT":         180.0,
		"BOT_LOSS_STREAK_THRESHOLD":   3,
		"BOT_LOSS_STREAK_SCALE":       0.5,
		"BOT_MIN_RISK_MULTIPLIER":     0.25,
		"BOT_MAX_REDEMPTION_FAILURES": 3,
		"BOT_REDEMPTION_CHECK_INTERVAL": 1.0,
		"BOT_REDEMPTION_GRACE":          0.0,
		"BOT_REDEMPTION_DEADLINE":       1200.0,
		"BOT_SCAN_ASSETS":             "btc,eth",
		"BOT_TRADE_LOG":               "bot/logs/trades.json",
		"BOT_LIVE":                    false,
		"TELEGRAM_BOT_TOKEN":          "",
		"TELEGRAM_CHAT_ID":            "",
		"BOT_LOG_LEVEL":               "info",
		"BOT_LOG_FORMAT":              "text",
	}
	for key, def := range defaults {
		v.SetDefault(key, def)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := &Config{
		Credentials: Credentials{
			PrivateKey:    v.GetString("POLYMARKET_PRIVATE_KEY"),
			FunderAddress: v.GetString("POLYMARKET_FUNDER_ADDRESS"),
			SignatureType: v.GetInt("POLYMARKET_SIGNATURE_TYPE"),
			APIKey:        v.GetString("POLYMARKET_API_KEY"),
			APISecret:     v.GetString("POLYMARKET_API_SECRET"),
			APIPassphrase: v.GetString("POLYMARKET_API_PASSPHRASE"),
		},
		Endpoints: Endpoints{
			ClobBaseURL:  v.GetString("POLYMARKET_CLOB_URL"),
			GammaBaseURL: v.GetString("POLYMARKET_GAMMA_URL"),
			PolygonRPC:   v.GetString("POLYGON_RPC_URL"),
		},
		Strategy: StrategyConfig{
			MinEdgeCents:     v.GetFloat64("BOT_MIN_EDGE_CENTS"),
			BidImproveCents:  v.GetFloat64("BOT_BID_IMPROVE_CENTS"),
			DefaultSize:      v.GetFloat64("BOT_DEFAULT_SIZE"),
			MaxSize:          v.GetFloat64("BOT_MAX_SIZE"),
			MinCombinedBids:  v.GetFloat64("BOT_MIN_COMBINED_BIDS"),
			MaxSpread:        v.GetFloat64("BOT_MAX_SPREAD"),
			MinBidSize:       v.GetFloat64("BOT_MIN_BID_SIZE"),
			TickSize:         0.01,
			MaxTotalExposure: v.GetFloat64("BOT_MAX_TOTAL_EXPOSURE"),
			MaxPositionPct:   0.10,
		},
		Risk: RiskConfig{
			MaxOpenSets:           v.GetInt("BOT_MAX_OPEN_SETS"),
			MaxDailyLoss:          v.GetFloat64("BOT_MAX_DAILY_LOSS"),
			MaxTotalExposure:      v.GetFloat64("BOT_MAX_TOTAL_EXPOSURE"),
			OneLegTimeout:         durationFromSeconds(v.GetFloat64("BOT_ONE_LEG_TIMEOUT")),
			LossStreakThreshold:   v.GetInt("BOT_LOSS_STREAK_THRESHOLD"),
			LossStreakScale:       v.GetFloat64("BOT_LOSS_STREAK_SCALE"),
			MinRiskMultiplier:     v.GetFloat64("BOT_MIN_RISK_MULTIPLIER"),
			MaxRedemptionFailures: v.GetInt("BOT_MAX_REDEMPTION_FAILURES"),
		},
		Redemption: RedemptionConfig{
			CheckInterval: durationFromSeconds(v.GetFloat64("BOT_REDEMPTION_CHECK_INTERVAL")),
			Grace:         durationFromSeconds(v.GetFloat64("BOT_REDEMPTION_GRACE")),
			Deadline:      durationFromSeconds(v.GetFloat64("BOT_REDEMPTION_DEADLINE")),
		},
		Market: MarketConfig{
			ScanAssets: splitCSV(v.GetString("BOT_SCAN_ASSETS")),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("BOT_LOG_LEVEL"),
			Format: v.GetString("BOT_LOG_FORMAT"),
		},
		Notification: NotificationConfig{
			TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
			TelegramChatID:   v.GetString("TELEGRAM_CHAT_ID"),
		},
		TradeLogPath: v.GetString("BOT_TRADE_LOG"),
		Live:         v.GetBool("BOT_LIVE"),
	}

	return cfg, nil
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the fields that must be present for the bot to run
// safely. Live mode without a private key is a fatal misconfiguration —
// the bot would be unable to sign orders or redemption transactions.
func (c *Config) Validate() error {
	if c.Live && c.Credentials.PrivateKey == "" {
		return fmt.Errorf("POLYMARKET_PRIVATE_KEY is required when BOT_LIVE=true")
	}
	switch c.Credentials.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("POLYMARKET_SIGNATURE_TYPE must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Credentials.SignatureType != 0 && c.Credentials.FunderAddress == "" {
		return fmt.Errorf("POLYMARKET_FUNDER_ADDRESS is required when POLYMARKET_SIGNATURE_TYPE is 1 or 2")
	}
	if len(c.Market.ScanAssets) == 0 {
		return fmt.Errorf("BOT_SCAN_ASSETS must list at least one asset")
	}
	return nil
}
