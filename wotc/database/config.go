package database

import (
	"github.com/pkg/errors"

	"github.com/wotcworks/wotc-app/conf"
)

type Config struct {
	MaxOpenConns       int `conf:"WOTC_DB_MAX_OPEN_CONNS" conf_default:"40"`
	MaxIdleConns       int `conf:"WOTC_DB_MAX_IDLE_CONNS" conf_default:"20"`
	ConnMaxLifetimeMin int `conf:"WOTC_DB_CONN_MAX_LIFETIME_MIN" conf_default:"5"`

	DatabaseURL      string `conf:"DATABASE_URL"`
	QueueDatabaseURL string `conf:"QUEUE_DATABASE_URL"`

	QueueMaxConnections int `conf:"WOTC_QUEUE_MAX_CONNS" conf_default:"10"`
}

func LoadConfig() (cfg *Config, err error) {
	cfg = &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("invalid config, DatabaseURL must be set")
	}
	if cfg.QueueDatabaseURL == "" {
		cfg.QueueDatabaseURL = cfg.DatabaseURL
	}

	return cfg, nil
}
