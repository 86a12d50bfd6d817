package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port     int
	DBPath   string
	LogLevel string
	Env      string

	RoomCodeLength int

	ClientMessagesPerSecond float64
	ClientMessageBurst      int
	APIRequestsPerSecond    float64
	APIRequestBurst         int

	JournalFlushInterval time.Duration
	JournalBatchSize     int

	MDNSEnabled  bool
	MDNSInstance string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment variables
// take precedence over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Error loading .env file, using environment variables directly")
	}

	cfg := Config{
		DBPath:       getEnv("EASEL_DB_PATH", "./data/easel.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Env:          getEnv("APP_ENV", "development"),
		MDNSInstance: os.Getenv("MDNS_INSTANCE"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d: out of range", cfg.Port)
	}
	if cfg.RoomCodeLength, err = getInt("ROOM_CODE_LENGTH", 6); err != nil {
		return Config{}, err
	}
	if cfg.ClientMessagesPerSecond, err = getFloat("CLIENT_MESSAGES_PER_SECOND", 100); err != nil {
		return Config{}, err
	}
	if cfg.ClientMessageBurst, err = getInt("CLIENT_MESSAGE_BURST", 200); err != nil {
		return Config{}, err
	}
	if cfg.APIRequestsPerSecond, err = getFloat("API_REQUESTS_PER_SECOND", 20); err != nil {
		return Config{}, err
	}
	if cfg.APIRequestBurst, err = getInt("API_REQUEST_BURST", 40); err != nil {
		return Config{}, err
	}
	if cfg.JournalFlushInterval, err = getDuration("JOURNAL_FLUSH_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.JournalBatchSize, err = getInt("JOURNAL_BATCH_SIZE", 64); err != nil {
		return Config{}, err
	}
	if cfg.MDNSEnabled, err = getBool("MDNS_ENABLED", false); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// NewLogger builds the root logger. Production logs are JSON; anything else
// gets human-readable text.
func NewLogger(cfg Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
