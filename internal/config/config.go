package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName  string
	HTTPAddr     string
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	AuditQueue   string
	OTLPEndpoint string

	// PlatformAddress receives platform fees on every sale.
	PlatformAddress    string
	AdminAddress       string
	OrganizerAddresses []string

	StateLockTTL   time.Duration
	IdempotencyTTL time.Duration
	OutboxInterval time.Duration
	// EmbeddedRelay runs the outbox relay inside the API process instead of cmd/outbox-publisher.
	EmbeddedRelay bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		ServiceName:        envOr("SERVICE_NAME", "ticket-protocol"),
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            envOr("MONGO_DB", "tickets"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		AuditQueue:         envOr("AUDIT_QUEUE", "ticket.audit.q"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PlatformAddress:    os.Getenv("PLATFORM_ADDRESS"),
		AdminAddress:       os.Getenv("ADMIN_ADDRESS"),
		OrganizerAddresses: splitList(os.Getenv("ORGANIZER_ADDRESSES")),
		StateLockTTL:       durationOr("STATE_LOCK_TTL", 30*time.Second),
		IdempotencyTTL:     durationOr("IDEMPOTENCY_TTL", 24*time.Hour),
		OutboxInterval:     durationOr("OUTBOX_INTERVAL", 2*time.Second),
		EmbeddedRelay:      boolOr("OUTBOX_EMBEDDED", false),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return fallback
	}
	return d
}

func boolOr(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
