package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker         string
	MQTTClientID       string
	MQTTClientIDPrefix string
	MQTTUsername       string
	MQTTPassword       string
	MQTTQoS            int
	MQTTReconnect      time.Duration
	MQTTKeepAlive      time.Duration
	MQTTPublishWait    time.Duration

	// Topic scheme
	TopicCombined    string
	TopicTemperature string
	TopicPH          string
	TopicTDS         string
	TopicTurbidity   string
	TopicCommand     string

	// Telemetry buffers
	MaxHistoryLength int
	MessageLogLimit  int
	InboxSize        int

	// HTTP API
	HTTPAddr string

	// Fish services
	RecommendAPIURL  string
	FishAPIURL       string
	RecommendTimeout time.Duration
	FishCatalogPath  string
	WaterType        string
	// DefaultTemperature stands in for the tank temperature before the
	// first reading arrives
	DefaultTemperature float64

	// Feeding
	FeedCheckInterval time.Duration

	// ClickHouse Configuration
	ClickHouseEnabled bool
	ClickHouseAddr    string
	ClickHouseDB      string
	ClickHouseUser    string
	ClickHousePass    string

	// Redis Configuration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Embedded broker listen address, empty disables it
	EmbeddedBrokerAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, after loading .env if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// MQTT Configuration
		MQTTBroker:         getEnv("MQTT_BROKER", "wss://broker.hivemq.com:8884/mqtt"),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", ""),
		MQTTClientIDPrefix: getEnv("MQTT_CLIENT_ID_PREFIX", "smartaqua"),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		MQTTQoS:            getEnvInt("MQTT_QOS", 0),
		MQTTReconnect:      getEnvDuration("MQTT_RECONNECT_PERIOD", time.Second),
		MQTTKeepAlive:      getEnvDuration("MQTT_KEEPALIVE", 60*time.Second),
		MQTTPublishWait:    getEnvDuration("MQTT_PUBLISH_WAIT", 5*time.Second),

		// Topic scheme
		TopicCombined:    getEnv("MQTT_TOPIC_COMBINED", "esp32/sensor/data"),
		TopicTemperature: getEnv("MQTT_TOPIC_TEMPERATURE", "smart-aqua/temp"),
		TopicPH:          getEnv("MQTT_TOPIC_PH", "smart-aqua/ph"),
		TopicTDS:         getEnv("MQTT_TOPIC_TDS", "smart-aqua/tds"),
		TopicTurbidity:   getEnv("MQTT_TOPIC_TURBIDITY", "smart-aqua/turbidity"),
		TopicCommand:     getEnv("MQTT_TOPIC_COMMAND", "smart-aqua/commands/feed"),

		// Telemetry buffers
		MaxHistoryLength: getEnvInt("MAX_HISTORY_LENGTH", 1000),
		MessageLogLimit:  getEnvInt("MESSAGE_LOG_LIMIT", 500),
		InboxSize:        getEnvInt("INBOX_SIZE", 100),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		// Fish services
		RecommendAPIURL:    getEnv("RECOMMEND_API_URL", "https://smartaquarium-jmlc.onrender.com/fish-rcm"),
		FishAPIURL:         getEnv("FISH_API_URL", "https://smartaquarium-jmlc.onrender.com/fish"),
		RecommendTimeout:   getEnvDuration("RECOMMEND_TIMEOUT", 30*time.Second),
		FishCatalogPath:    getEnv("FISH_CATALOG_PATH", ""),
		WaterType:          getEnv("WATER_TYPE", "lake"),
		DefaultTemperature: getEnvFloat("DEFAULT_TEMPERATURE", 25),

		FeedCheckInterval: getEnvDuration("FEED_CHECK_INTERVAL", time.Minute),

		// ClickHouse Configuration
		ClickHouseEnabled: getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseAddr:    getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:      getEnv("CLICKHOUSE_DB", "aquarium"),
		ClickHouseUser:    getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:    getEnv("CLICKHOUSE_PASS", ""),

		// Redis Configuration
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisTTL:      getEnvDuration("REDIS_SNAPSHOT_TTL", 24*time.Hour),

		EmbeddedBrokerAddr: getEnv("EMBEDDED_BROKER_ADDR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := ValidateBrokerURL(c.MQTTBroker); err != nil {
		return err
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTTQoS)
	}
	if c.MaxHistoryLength <= 0 {
		return fmt.Errorf("MAX_HISTORY_LENGTH must be positive, got %d", c.MaxHistoryLength)
	}
	if c.MessageLogLimit <= 0 {
		return fmt.Errorf("MESSAGE_LOG_LIMIT must be positive, got %d", c.MessageLogLimit)
	}
	if c.InboxSize <= 0 {
		return fmt.Errorf("INBOX_SIZE must be positive, got %d", c.InboxSize)
	}
	if c.WaterType != "lake" && c.WaterType != "ocean" {
		return fmt.Errorf("WATER_TYPE must be lake or ocean, got %q", c.WaterType)
	}
	return nil
}

// ValidateBrokerURL accepts the schemes paho can dial.
func ValidateBrokerURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("broker URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker URL %q has no host", raw)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// The typed getters fall back to the default on malformed input. zap is not
// set up yet when Load runs, so the warning goes through the standard logger.

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}
