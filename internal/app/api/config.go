package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/payetonkawa/order-api/internal/platform/rabbitmq"
)

// Config carries environment-driven settings for the API process.
type Config struct {
	Port             string
	PostgresDSN      string
	RabbitURL        string
	RabbitExchange   string
	RabbitExchTyp    string
	RabbitQueue      string
	RabbitPrefetch   int
	ConsumerPatterns []string
}

// LoadConfig reads environment variables, applies defaults, and validates basic constraints.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:           envDefault("PORT", "8080"),
		PostgresDSN:    strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		RabbitURL:      strings.TrimSpace(os.Getenv("RABBITMQ_URL")),
		RabbitExchange: envDefault("RABBITMQ_EXCHANGE", "order_events"),
		RabbitExchTyp:  envDefault("RABBITMQ_EXCHANGE_TYPE", rabbitmq.ExchangeTypeTopic),
		RabbitQueue:    envDefault("RABBITMQ_QUEUE", "order-events"),
		RabbitPrefetch: 10,
		ConsumerPatterns: []string{
			"customer.#",
			"order.#",
		},
	}
	if cfg.RabbitExchTyp != rabbitmq.ExchangeTypeTopic && cfg.RabbitExchTyp != rabbitmq.ExchangeTypeFanout {
		return Config{}, fmt.Errorf("RABBITMQ_EXCHANGE_TYPE must be %q or %q", rabbitmq.ExchangeTypeTopic, rabbitmq.ExchangeTypeFanout)
	}
	if raw := strings.TrimSpace(os.Getenv("RABBITMQ_PREFETCH")); raw != "" {
		prefetch, err := strconv.Atoi(raw)
		if err != nil || prefetch <= 0 {
			return Config{}, fmt.Errorf("RABBITMQ_PREFETCH must be a positive integer")
		}
		cfg.RabbitPrefetch = prefetch
	}
	if raw := strings.TrimSpace(os.Getenv("RABBITMQ_BINDINGS")); raw != "" {
		patterns := make([]string, 0, 2)
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) == 0 {
			return Config{}, fmt.Errorf("RABBITMQ_BINDINGS must contain at least one pattern")
		}
		cfg.ConsumerPatterns = patterns
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
