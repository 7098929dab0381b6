package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds client settings read from the environment.
type Config struct {
	APIBaseURL   string
	WSBaseURL    string
	SessionDSN   string
	AMQPURL      string
	AMQPExchange string
	Environment  string
	OTLPEndpoint string
	MetricsAddr  string
	DeviceID     string
	DialRetries  int
	HTTPTimeout  time.Duration
}

// Load reads an optional .env file, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: ignoring .env: %v", err)
	}

	apiURL := strings.TrimRight(getEnv("CHAT_API_URL", "http://localhost:8083"), "/")
	return Config{
		APIBaseURL:   apiURL,
		WSBaseURL:    strings.TrimRight(getEnv("CHAT_WS_URL", WebSocketURL(apiURL)), "/"),
		SessionDSN:   getEnv("CHAT_SESSION_DSN", "chat-client.db"),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat-client.events"),
		Environment:  getEnv("APP_ENV", "development"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsAddr:  getEnv("METRICS_ADDR", ""),
		DeviceID:     getEnv("CHAT_DEVICE_ID", ""),
		DialRetries:  getEnvInt("CHAT_DIAL_RETRIES", 3),
		HTTPTimeout:  getEnvDuration("CHAT_HTTP_TIMEOUT", 15*time.Second),
	}
}

// WebSocketURL maps an http(s) base URL to its ws(s) counterpart.
func WebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, val, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %s", key, val, fallback)
		return fallback
	}
	return d
}
