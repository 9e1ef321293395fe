// Package database owns the administrative MySQL connection used to provision Magento databases.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/mage2-devtools/m2install/internal/config"
)

// dialTimeout bounds a single connection attempt so one probe cannot hang the readiness wait.
const dialTimeout = 5 * time.Second

// Conn is the subset of *sql.DB the provisioner needs.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Opener creates a new connection handle.
type Opener func(ctx context.Context) (Conn, error)

// Admin holds a lazily opened administrative connection.
// The handle is created on first use, reused afterwards and dropped by Release.
type Admin struct {
	open   Opener
	conn   Conn
	logger *slog.Logger
}

// Option configures an Admin.
type Option func(*Admin)

// WithOpener replaces the MySQL opener, mainly for tests.
func WithOpener(open Opener) Option {
	return func(a *Admin) {
		a.open = open
	}
}

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Admin) {
		a.logger = logger
	}
}

// NewAdmin constructs an Admin for the given endpoint. No connection is made yet.
func NewAdmin(cfg config.Database, opts ...Option) *Admin {
	a := &Admin{
		open:   MySQLOpener(cfg),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MySQLOpener returns an Opener connecting to cfg with the MySQL driver.
func MySQLOpener(cfg config.Database) Opener {
	return func(_ context.Context) (Conn, error) {
		connector, err := mysql.NewConnector(DriverConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("build mysql connector: %w", err)
		}
		db := sql.OpenDB(connector)
		db.SetMaxOpenConns(1)
		return db, nil
	}
}

// DriverConfig converts the endpoint settings into a driver configuration.
func DriverConfig(cfg config.Database) *mysql.Config {
	dc := mysql.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dc.Timeout = dialTimeout
	dc.AllowNativePasswords = true
	return dc
}

func (a *Admin) connection(ctx context.Context) (Conn, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	conn, err := a.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	a.logger.Debug("database connection opened")
	a.conn = conn
	return conn, nil
}

// Ping checks that the server answers a trivial read-only statement.
func (a *Admin) Ping(ctx context.Context) error {
	conn, err := a.connection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "SHOW DATABASES"); err != nil {
		return fmt.Errorf("show databases: %w", err)
	}
	return nil
}

// CreateDatabase creates name unless it already exists.
func (a *Admin) CreateDatabase(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("database name is empty")
	}
	conn, err := a.connection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	return nil
}

// Connected reports whether a handle is currently held.
func (a *Admin) Connected() bool {
	return a.conn != nil
}

// Release drops the held handle. It is safe to call when nothing is held.
func (a *Admin) Release() error {
	if a.conn == nil {
		return nil
	}
	conn := a.conn
	a.conn = nil
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close database connection: %w", err)
	}
	a.logger.Debug("database connection released")
	return nil
}

// QuoteIdentifier back-quotes a MySQL identifier.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// IsUnreachable reports whether err means the server cannot be reached yet:
// connection refused, host or network unreachable, an unresolvable host name
// or a failed dial.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}
