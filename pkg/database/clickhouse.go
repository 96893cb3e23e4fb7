package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"lookout/pkg/logging"
)

// The activity ledger uses two ClickHouse connections: the native driver
// for batch inserts on the ingestion path, and a database/sql handle for
// the aggregate queries behind ratings and the projection API.

// ClickHouseNativeConn is the native driver connection (batch inserts).
type ClickHouseNativeConn = driver.Conn

type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
	Debug    bool
}

func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Addr:     []string{"127.0.0.1:9000"},
		Database: "default",
		Username: "default",
	}
}

func (cfg ClickHouseConfig) options() *clickhouse.Options {
	return &clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
	}
}

// ConnectClickHouse opens the database/sql interface used for reads.
func ConnectClickHouse(cfg ClickHouseConfig, logger logging.Logger) (*sql.DB, error) {
	conn := clickhouse.OpenDB(cfg.options())
	if err := conn.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping ClickHouse")
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("Connected to ClickHouse (SQL interface)")
	return conn, nil
}

// ConnectClickHouseNative opens the native interface used for batch writes.
func ConnectClickHouseNative(cfg ClickHouseConfig, logger logging.Logger) (ClickHouseNativeConn, error) {
	conn, err := clickhouse.Open(cfg.options())
	if err != nil {
		logger.WithError(err).Error("Failed to open ClickHouse native connection")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		logger.WithError(err).Error("Failed to ping ClickHouse native connection")
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("Connected to ClickHouse (native interface)")
	return conn, nil
}

func MustConnectClickHouse(cfg ClickHouseConfig, logger logging.Logger) *sql.DB {
	conn, err := ConnectClickHouse(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	return conn
}

func MustConnectClickHouseNative(cfg ClickHouseConfig, logger logging.Logger) ClickHouseNativeConn {
	conn, err := ConnectClickHouseNative(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse native")
	}
	return conn
}
