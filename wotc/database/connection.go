package database

import (
	"database/sql"
	"log"
	"time"

	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	_ "github.com/lib/pq"
)

// Variable substitution to support testing.
var LogFatal = log.Fatal

// GetDbConnection opens the primary application database.
func GetDbConnection() *sql.DB {
	cfg, err := LoadConfig()
	if err != nil {
		LogFatal(err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		LogFatal(err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute)

	if pingErr := db.Ping(); pingErr != nil {
		LogFatal(pingErr)
	}
	return db
}

// GetQueuePool opens the pgx pool backing the que job queue. Statements are
// prepared on every new connection so que-go can use them.
func GetQueuePool() *pgx.ConnPool {
	cfg, err := LoadConfig()
	if err != nil {
		LogFatal(err)
	}

	connConfig, err := pgx.ParseURI(cfg.QueueDatabaseURL)
	if err != nil {
		LogFatal(err)
	}

	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:     connConfig,
		MaxConnections: cfg.QueueMaxConnections,
		AfterConnect:   que.PrepareStatements,
	})
	if err != nil {
		LogFatal(err)
	}

	return pool
}
