package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Telegram
	BotToken       string
	BotUsername    string
	TelegramAPIURL string
	PollTimeout    time.Duration

	// Access control
	AdminID          int64
	GroupRoomID      int64
	AutoEvictEnabled bool

	// Sub-channels (forum topics)
	SubChannelGeneral      int
	SubChannelApplication  int
	SubChannelTutorial     int
	SubChannelReport       int
	SubChannelAnnouncement int

	// Gateway rate limit
	GatewayRateLimit float64
	GatewayBurst     int

	// Database
	DatabaseURL string

	// Notices
	NoticesFile string

	// Server
	ServerPort    string
	AdminAPIToken string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定または不正な場合は、該当するキーをまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing, invalid []string

	requireString := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	requireInt64 := func(key string) int64 {
		v := requireString(key)
		if v == "" {
			return 0
		}
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			invalid = append(invalid, key)
			return 0
		}
		return i
	}
	requireInt := func(key string) int {
		i := requireInt64(key)
		if int64(int(i)) != i {
			invalid = append(invalid, key)
			return 0
		}
		return int(i)
	}

	cfg.BotToken = requireString("BOT_TOKEN")
	cfg.AdminID = requireInt64("ADMIN_ID")
	cfg.GroupRoomID = requireInt64("GROUP_ROOM_ID")
	cfg.DatabaseURL = requireString("DATABASE_URL")
	cfg.SubChannelGeneral = requireInt("SUBCHANNEL_GENERAL_ID")
	cfg.SubChannelApplication = requireInt("SUBCHANNEL_APPLICATION_ID")
	cfg.SubChannelTutorial = requireInt("SUBCHANNEL_TUTORIAL_ID")
	cfg.SubChannelReport = requireInt("SUBCHANNEL_REPORT_ID")
	cfg.SubChannelAnnouncement = requireInt("SUBCHANNEL_ANNOUNCEMENT_ID")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("environment variables must be integers: %v", invalid)
	}

	// Optional fields with defaults
	cfg.AutoEvictEnabled = getEnvBool("AUTO_EVICT_ENABLED", true)
	cfg.BotUsername = strings.TrimPrefix(getEnvString("BOT_USERNAME", ""), "@")
	cfg.TelegramAPIURL = getEnvString("TELEGRAM_API_URL", "https://api.telegram.org")
	cfg.PollTimeout = getEnvDuration("POLL_TIMEOUT", 30*time.Second)
	cfg.GatewayRateLimit = getEnvFloat("GATEWAY_RATE_LIMIT", 25)
	cfg.GatewayBurst = getEnvInt("GATEWAY_BURST", 5)
	cfg.NoticesFile = getEnvString("NOTICES_FILE", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AdminAPIToken = getEnvString("ADMIN_API_TOKEN", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
