package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/cassiomorais/paybridge/internal/config"
	"github.com/cassiomorais/paybridge/pkg/retry"
	"github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/rs/zerolog"
)

// DSN builds the driver connection string and the database/sql driver name.
func DSN(cfg *config.DatabaseConfig) (driverName, dsn string, err error) {
	d, err := DialectFor(cfg.Driver)
	if err != nil {
		return "", "", err
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	switch d.Name() {
	case DriverMSSQL:
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     addr,
			RawQuery: SQLServerQuery(cfg).Encode(),
		}
		return "sqlserver", u.String(), nil
	default:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = cfg.Name
		mc.ParseTime = true
		return "mysql", mc.FormatDSN(), nil
	}
}

// SQLServerQuery holds the connection parameters of a sqlserver:// URL. The
// migrate tool renders the same set.
func SQLServerQuery(cfg *config.DatabaseConfig) url.Values {
	q := url.Values{}
	q.Set("database", cfg.Name)
	if cfg.Encrypt != "" {
		q.Set("encrypt", strings.ToLower(cfg.Encrypt))
	}
	if cfg.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	return q
}

// Open creates the shared pool for the configured backend and waits for it to
// answer a ping, retrying with backoff. The returned UnitOfWork uses the
// strategy that matches the backend.
func Open(ctx context.Context, cfg *config.DatabaseConfig, log zerolog.Logger) (*sql.DB, UnitOfWork, error) {
	driverName, dsn, err := DSN(cfg)
	if err != nil {
		return nil, nil, err
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	retryCfg := retry.DefaultConfig()
	if cfg.ConnectRetries > 0 {
		retryCfg.MaxAttempts = cfg.ConnectRetries
	}
	if cfg.ConnectRetryDelay > 0 {
		retryCfg.InitialDelay = cfg.ConnectRetryDelay
	}
	retryCfg.OnRetry = func(n uint, err error) {
		log.Warn().Err(err).Uint("attempt", n+1).Str("driver", string(dialect.Name())).Msg("database not ready")
	}

	if err := retry.Do(ctx, retryCfg, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, NewUnitOfWork(db, dialect), nil
}
