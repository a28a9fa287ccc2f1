package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTSecret string
	TokenTTL  time.Duration

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceBasic    string
	StripePricePremium  string
	WebhookTolerance    time.Duration
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	// PlanPriceAmounts は決済金額（最小通貨単位）からプラン名への対応表。
	// price ID がイベントから取れない場合の照合に使う。
	PlanPriceAmounts map[int64]string

	// Request
	RequestTimeout time.Duration

	// Rate Limit
	RateLimitGeneral   int
	RateLimitDeviceReg int

	// Worker
	WebhookRetentionDays int
	CleanupInterval      time.Duration

	// Server
	ServerPort string
	LogLevel   string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv はカレントディレクトリの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}

	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	if cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	amounts, err := parsePriceAmounts(getEnvString("PLAN_PRICE_AMOUNTS", "999:basic"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLAN_PRICE_AMOUNTS: %w", err)
	}
	cfg.PlanPriceAmounts = amounts

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 7*24*time.Hour)
	cfg.StripePriceBasic = getEnvString("STRIPE_PRICE_BASIC", "")
	cfg.StripePricePremium = getEnvString("STRIPE_PRICE_PREMIUM", "")
	cfg.WebhookTolerance = getEnvDuration("WEBHOOK_TOLERANCE", 5*time.Minute)
	cfg.CheckoutSuccessURL = getEnvString("CHECKOUT_SUCCESS_URL", "http://localhost:3000/subscription/success?session_id={CHECKOUT_SESSION_ID}")
	cfg.CheckoutCancelURL = getEnvString("CHECKOUT_CANCEL_URL", "http://localhost:3000/subscription/cancel")
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitDeviceReg = getEnvInt("RATE_LIMIT_DEVICE_REG", 10)
	cfg.WebhookRetentionDays = getEnvInt("WEBHOOK_RETENTION_DAYS", 30)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// PlanPriceIDs はStripeのprice IDからプラン名への対応表を返す。
// 未設定のprice IDは含めない。
func (c *Config) PlanPriceIDs() map[string]string {
	m := make(map[string]string, 2)
	if c.StripePriceBasic != "" {
		m[c.StripePriceBasic] = "basic"
	}
	if c.StripePricePremium != "" {
		m[c.StripePricePremium] = "premium"
	}
	return m
}

// parsePriceAmounts は "999:basic,1999:premium" 形式の文字列を解析する。
func parsePriceAmounts(v string) (map[int64]string, error) {
	m := make(map[int64]string)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		amount, plan, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("expected amount:plan, got %q", pair)
		}
		a, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
		if err != nil || a <= 0 {
			return nil, fmt.Errorf("invalid amount %q", amount)
		}
		plan = strings.TrimSpace(plan)
		if plan != "basic" && plan != "premium" {
			return nil, fmt.Errorf("unknown plan %q", plan)
		}
		m[a] = plan
	}
	return m, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
