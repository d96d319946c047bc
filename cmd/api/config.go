package main

import (
	"os"
	"strings"
	"time"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/clients"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/kafka"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/mongodb"
)

const (
	storeMongoDB = "mongodb"
	storeSQLite  = "sqlite"
)

// Config holds application configuration
type Config struct {
	ServerAddr  string
	Environment string
	StoreDriver string
	SQLitePath  string
	MongoDB     *mongodb.Config

	// Kafka is nil when no brokers are configured; changes then stay in process
	Kafka *kafka.Config

	Clients *clients.Config

	// RosterPath replaces the collaborator services with a static roster
	RosterPath string
}

func loadConfig() *Config {
	cfg := &Config{
		ServerAddr:  getEnv("SERVER_ADDR", ":8012"),
		Environment: getEnv("ENVIRONMENT", "development"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", storeMongoDB)),
		SQLitePath:  getEnv("SQLITE_PATH", "production.db"),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "production_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Clients: &clients.Config{
			OrderServiceURL:   getEnv("ORDER_SERVICE_URL", "http://localhost:8001"),
			QualityServiceURL: getEnv("QUALITY_SERVICE_URL", "http://localhost:8013"),
			LaborServiceURL:   getEnv("LABOR_SERVICE_URL", "http://localhost:8009"),
			Timeout:           10 * time.Second,
		},
		RosterPath: os.Getenv("WORKER_ROSTER_PATH"),
	}

	if brokers := splitList(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = brokers
		kafkaConfig.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", kafkaConfig.ConsumerGroup)
		cfg.Kafka = kafkaConfig
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
