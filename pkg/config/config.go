package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bot.
type Config struct {
	// Telegram
	TelegramToken string

	// Endpoints
	SolanaRPCURL   string
	JupiterURL     string
	DexscreenerURL string
	RugcheckURL    string

	// Database
	DBPath string

	// Token catalog override (optional YAML file)
	TokensFile string

	// Background task periods
	AlertInterval    time.Duration
	CopyInterval     time.Duration
	SnapshotInterval time.Duration

	// Trade pipeline bounds
	BroadcastRetries int
	ConfirmTimeout   time.Duration
	ConfirmPoll      time.Duration

	// Solana RPC throttle (requests per second)
	RPCRateLimit float64

	// Admin API
	APIPort   string
	JWTSecret string
	EnableAPI bool
}

// ErrMissingToken is returned when the required bot credential is absent.
var ErrMissingToken = errors.New("config: TELEGRAM_BOT_TOKEN is required")

// Load reads environment variables (optionally via .env) into Config.
// A missing TELEGRAM_BOT_TOKEN is the only hard failure; everything else
// falls back to a default.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, ErrMissingToken
	}

	return &Config{
		TelegramToken:    token,
		SolanaRPCURL:     getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		JupiterURL:       getEnv("JUPITER_URL", "https://quote-api.jup.ag/v6"),
		DexscreenerURL:   getEnv("DEXSCREENER_URL", "https://api.dexscreener.com"),
		RugcheckURL:      getEnv("RUGCHECK_URL", "https://api.rugcheck.xyz/v1"),
		DBPath:           getEnv("DB_PATH", "./data/solbot.db"),
		TokensFile:       getEnv("TOKENS_FILE", ""),
		AlertInterval:    getEnvDuration("ALERT_INTERVAL", 60*time.Second),
		CopyInterval:     getEnvDuration("COPY_INTERVAL", 30*time.Second),
		SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", 30*time.Second),
		BroadcastRetries: getEnvInt("BROADCAST_RETRIES", 3),
		ConfirmTimeout:   getEnvDuration("CONFIRM_TIMEOUT", 45*time.Second),
		ConfirmPoll:      getEnvDuration("CONFIRM_POLL", 2*time.Second),
		RPCRateLimit:     getEnvFloat("RPC_RATE_LIMIT", 8),
		APIPort:          getEnv("API_PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		EnableAPI:        getEnv("ENABLE_API", "true") == "true",
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
