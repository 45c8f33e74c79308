package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort       string `env:"MANDOWN_HTTP_PORT" envDefault:"3000"`
	LogJSON        bool   `env:"MANDOWN_LOG_JSON" envDefault:"false"`
	DebugSolo      bool   `env:"MANDOWN_DEBUG_SOLO" envDefault:"true"`
	MaxPlayers     int    `env:"MANDOWN_MAX_PLAYERS" envDefault:"4"`
	BackupRedisURL string `env:"MANDOWN_BACKUP_REDIS_URL"`
	NatsURL        string `env:"MANDOWN_NATS_URL"`
}

// Init loads an optional .env file and parses the environment into a Config.
// Logging is configured here so every package sees the same formatter.
func Init() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using process environment")
	}

	conf, err := env.ParseAs[Config]()
	if err != nil {
		log.WithError(err).Fatal("Failed to parse environment config")
	}

	if conf.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	return conf
}
