package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Appliance endpoints
	ServerURL  string // websocket endpoint emitting live telemetry
	APIBaseURL string // HTTP base for history, switch and config endpoints

	// Telegram notifications (optional, disabled when token is empty)
	TelegramBotToken string
	TelegramChatID   string

	// Buffer size of the inbound envelope queue
	InboundQueueSize int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		ServerURL:        getEnv("VIVARIUM_WS_URL", "ws://localhost:8090/live"),
		APIBaseURL:       getEnv("VIVARIUM_API_URL", "http://localhost:8090"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		InboundQueueSize: getEnvInt("VIVARIUM_QUEUE_SIZE", 64),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
