// Package configs provides application configuration loaded from environment
// variables. All configuration is externalized for 12-factor app compliance.
package configs

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default upstream endpoints of the EPIAS intraday market (GIP).
const (
	DefaultTicketURL     = "https://cas.epias.com.tr/cas/v1/tickets?format=text"
	DefaultSessionURL    = "https://gunici.epias.com.tr/gunici-service/rest/v1/user/info"
	DefaultStreamHost    = "gunici.epias.com.tr"
	DefaultServicePrefix = "/gunici-service"
)

// Streaming channel names published by the venue.
const (
	TradeHistoryChannel  = "TradeHistoryChannel"
	ContractBoardChannel = "ContractBoardMessage"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// Auth contains the credential exchange settings.
	Auth AuthConfig

	// Storage contains database and append-log locations.
	Storage StorageConfig

	// Notify contains the optional Kafka notification sink settings.
	// The sink is disabled when Broker is empty.
	Notify NotifyConfig

	// Channels is the list of streaming channels to subscribe to.
	// Each channel gets its own supervisor and connection.
	Channels []string

	// Cooldown is the wait between reconnect cycles.
	Cooldown time.Duration
}

// AuthConfig holds the upstream credential exchange settings.
type AuthConfig struct {
	// Username and Password are the long-lived venue credentials.
	Username string
	Password string

	// TicketURL is the CAS ticket-issuing endpoint.
	TicketURL string

	// SessionURL is the user/session-info endpoint queried with the ticket.
	SessionURL string

	// StreamHost is the host the wss:// endpoint is assembled against.
	StreamHost string

	// ServicePrefix is the path prefix the returned endpoint must carry.
	ServicePrefix string
}

// StorageConfig holds persistence locations.
type StorageConfig struct {
	// DBPath is the SQLite database file location.
	DBPath string

	// TradeLogPath is the append-only trade CSV location.
	TradeLogPath string

	// BoardLogPath is the append-only board snapshot CSV location.
	BoardLogPath string
}

// NotifyConfig holds Kafka settings for the trade notification sink.
type NotifyConfig struct {
	Broker string
	Topic  string
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	dataDir := getEnv("DATA_DIR", "data")

	return &AppConfig{
		Auth: AuthConfig{
			Username:      getEnv("EPIAS_USER", ""),
			Password:      getEnv("EPIAS_PASS", ""),
			TicketURL:     getEnv("EPIAS_TICKET_URL", DefaultTicketURL),
			SessionURL:    getEnv("EPIAS_SESSION_URL", DefaultSessionURL),
			StreamHost:    getEnv("EPIAS_STREAM_HOST", DefaultStreamHost),
			ServicePrefix: getEnv("EPIAS_SERVICE_PREFIX", DefaultServicePrefix),
		},
		Storage: StorageConfig{
			DBPath:       getEnv("DB_PATH", dataDir+"/gip_live.db"),
			TradeLogPath: getEnv("TRADEHISTORY_CSV", "tradehistory_channel.csv"),
			BoardLogPath: getEnv("BOARDINFO_CSV", "boardinfo_history.csv"),
		},
		Notify: NotifyConfig{
			Broker: getEnv("KAFKA_BROKER", ""),
			Topic:  getEnv("KAFKA_TRADE_TOPIC", "gip_trades"),
		},
		Channels: getEnvList("CHANNELS", []string{TradeHistoryChannel, ContractBoardChannel}),
		Cooldown: time.Duration(getEnvInt("RECONNECT_COOLDOWN_SECONDS", 60)) * time.Second,
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList returns a comma-separated environment variable as a slice.
func getEnvList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
