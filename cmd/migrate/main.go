package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/cassiomorais/paybridge/internal/config"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/sqlserver"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const migrationsRoot = "internal/repository/sqlstore/migrations"

func main() {
	var (
		direction string
		dbURL     string
		path      string
	)

	flag.StringVar(&direction, "direction", "up", "Migration direction: up or down")
	flag.StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var); built from config when empty")
	flag.StringVar(&path, "path", "", "Path to migration files; defaults to the directory for the configured driver")
	flag.Parse()

	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	if dbURL == "" || path == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		if dbURL == "" {
			dbURL = migrateURL(&cfg.Database)
		}
		if path == "" {
			path = migrationsRoot + "/" + migrationsDir(cfg.Database.Driver)
		}
	}

	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrate instance: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "Migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fmt.Fprintf(os.Stderr, "Migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations rolled back successfully")
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction: %s (use 'up' or 'down')\n", direction)
		os.Exit(1)
	}
}

func migrationsDir(driver string) string {
	switch strings.ToLower(driver) {
	case "mssql", "sqlserver":
		return "mssql"
	default:
		return "mysql"
	}
}

// migrateURL renders the database section in golang-migrate's URL form.
func migrateURL(c *config.DatabaseConfig) string {
	host := c.Host + ":" + strconv.Itoa(c.Port)
	creds := url.UserPassword(c.User, c.Password)
	if migrationsDir(c.Driver) == "mssql" {
		return fmt.Sprintf("sqlserver://%s@%s?%s", creds.String(), host, sqlstore.SQLServerQuery(c).Encode())
	}
	// the init migration holds several statements
	return fmt.Sprintf("mysql://%s@tcp(%s)/%s?multiStatements=true", creds.String(), host, c.Name)
}
