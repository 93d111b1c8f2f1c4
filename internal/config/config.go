package config

import (
	"os"
	"strconv"
	"strings"
)

// JettonConfig declares a secondary currency served by the bot.
type JettonConfig struct {
	Symbol   string
	Decimals int
	Master   string
}

// AssetConfig declares an asset jetton, optionally with a message for
// first-time holders.
type AssetConfig struct {
	Symbol   string
	Decimals int
	Master   string
	Welcome  string
}

type Config struct {
	// Telegram
	BotToken    string
	BotUsername string

	// TonAPI
	TonAPIKey     string
	TonAPIBaseURL string
	Testnet       bool

	// Webhook
	WebhookEndpoint string
	WebhookPort     int

	// Database
	DBPath string

	// Poll interval (seconds) for the deposit watcher fallback
	DepositPollSeconds int

	// Registered transferables
	Currencies []JettonConfig
	Assets     []AssetConfig
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", "ton_tipbot"),

		// TonAPI
		TonAPIKey:     getEnv("TONAPI_API_KEY", ""),
		TonAPIBaseURL: strings.TrimSuffix(getEnv("TONAPI_BASE_URL", "https://tonapi.io/v2"), "/"),
		Testnet:       getEnvBool("TON_TESTNET", false),

		// Webhook
		WebhookEndpoint: getEnv("WEBHOOK_ENDPOINT", ""),
		WebhookPort:     getEnvInt("WEBHOOK_PORT", 8080),

		// Database
		DBPath: getEnv("DB_PATH", "./tipbot.db"),

		DepositPollSeconds: getEnvInt("DEPOSIT_POLL_SECONDS", 30),
	}

	// Currency entries: SYMBOL|decimals|master, separated by ;
	for _, entry := range splitEntries(getEnv("JETTON_CURRENCIES", "")) {
		fields := strings.Split(entry, "|")
		if len(fields) != 3 {
			continue
		}
		decimals, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		cfg.Currencies = append(cfg.Currencies, JettonConfig{
			Symbol:   strings.TrimSpace(fields[0]),
			Decimals: decimals,
			Master:   strings.TrimSpace(fields[2]),
		})
	}

	// Asset entries: SYMBOL|decimals|master|welcome message, separated by ;
	for _, entry := range splitEntries(getEnv("JETTON_ASSETS", "")) {
		fields := strings.SplitN(entry, "|", 4)
		if len(fields) < 3 {
			continue
		}
		decimals, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		a := AssetConfig{
			Symbol:   strings.TrimSpace(fields[0]),
			Decimals: decimals,
			Master:   strings.TrimSpace(fields[2]),
		}
		if len(fields) == 4 {
			a.Welcome = strings.TrimSpace(fields[3])
		}
		cfg.Assets = append(cfg.Assets, a)
	}

	return cfg
}

func splitEntries(val string) []string {
	var entries []string
	for _, e := range strings.Split(val, ";") {
		e = strings.TrimSpace(e)
		if e != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
