package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	HTTPAddr     string
	OTLPEndpoint string

	// Hold manager. Short holds cover seat picking; long holds cover an
	// in-flight booking attempt. Sweep interval is independent of both.
	ShortHoldTTL  time.Duration
	LongHoldTTL   time.Duration
	SweepInterval time.Duration

	// Booking.
	PaymentTolerance float64
	IdempotencyTTL   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		MongoURI:         os.Getenv("MONGO_URI"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RabbitURL:        os.Getenv("RABBIT_URL"),
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShortHoldTTL:     durationOr("HOLD_TTL_SHORT", 2*time.Minute),
		LongHoldTTL:      durationOr("HOLD_TTL_LONG", 25*time.Minute),
		SweepInterval:    durationOr("HOLD_SWEEP_INTERVAL", 30*time.Second),
		PaymentTolerance: floatOr("PAYMENT_TOLERANCE", 0.01),
		IdempotencyTTL:   durationOr("IDEMPOTENCY_TTL", time.Hour),
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func floatOr(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}
