// Package config loads process configuration with github.com/ilyakaznacheev/cleanenv,
// the way the teacher's cmd/service/main.go calls config.MustLoad(). Two top-level
// structs, CoordinatorConfig and ShardConfig, share the same Platform/Service/Logger/
// Metrics block; each adds the fields specific to its own process.
package config

import (
	"fmt"
	"log"

	"github.com/ilyakaznacheev/cleanenv"
)

type ctxKey string

const (
	KeyLogger  ctxKey = "logger"
	KeyMetrics ctxKey = "metrics"
)

// Platform is common to every process.
type Platform struct {
	Env string `env:"ENV" env-default:"local"`
}

type Service struct {
	Name string `env:"SERVICE_NAME" env-required:"true"`
	Port string `env:"SERVICE_PORT" env-required:"true"`
}

type Logger struct {
	Host string `env:"LOGGER_HOST" env-required:"true"`
	Port string `env:"LOGGER_PORT" env-required:"true"`
}

type Metrics struct {
	Host string `env:"METRICS_HOST" env-required:"true"`
	Port string `env:"METRICS_PORT" env-required:"true"`
}

type Postgres struct {
	DSN string `env:"POSTGRES_DSN" env-required:"true"`
}

type Redis struct {
	URL string `env:"REDIS_URL" env-required:"true"`
}

type Kafka struct {
	Host      string `env:"KAFKA_HOST" env-required:"true"`
	Port      string `env:"KAFKA_PORT" env-required:"true"`
	LoadTopic string `env:"KAFKA_LOAD_TOPIC" env-default:"sinkr.shard-load"`
}

// CoordinatorConfig is loaded by cmd/coordinator. MaxConnectionsPerObject is the
// MAX_CONNECTIONS_PER_OBJECT constant of §6 — the ceiling on how many sockets the
// coordinator will route to a single shard before it looks for another one.
type CoordinatorConfig struct {
	Platform
	Service
	Logger
	Metrics
	Postgres
	Redis
	Kafka

	CoordinationSecret      string `env:"COORDINATION_SECRET" env-required:"true"`
	TicketSigningKey        string `env:"TICKET_SIGNING_KEY" env-required:"true"`
	InternalPort            string `env:"INTERNAL_PORT" env-required:"true"`
	MaxConnectionsPerObject int    `env:"MAX_CONNECTIONS_PER_OBJECT" env-default:"500"`
}

// ShardConfig is loaded by cmd/shard.
type ShardConfig struct {
	Platform
	Service
	Logger
	Metrics
	Postgres
	Kafka

	CoordinationSecret string `env:"COORDINATION_SECRET" env-required:"true"`
	CoordinatorURL     string `env:"COORDINATOR_URL" env-required:"true"`
	AdvertiseAddr      string `env:"ADVERTISE_ADDR" env-required:"true"`
	ShardID            string `env:"SHARD_ID" env-required:"true"`
}

// MustLoadCoordinator exits the process via log.Fatal on a missing required field,
// matching the teacher's log.Fatal in internal/repository/postgres/repo.go.
func MustLoadCoordinator() *CoordinatorConfig {
	var cfg CoordinatorConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatal(fmt.Errorf("config: load coordinator config: %w", err))
	}
	return &cfg
}

func MustLoadShard() *ShardConfig {
	var cfg ShardConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatal(fmt.Errorf("config: load shard config: %w", err))
	}
	return &cfg
}
