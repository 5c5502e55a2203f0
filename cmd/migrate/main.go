// Command migrate applies the relay schema (api_keys, call_audit) with
// golang-migrate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	action := flag.String("direction", "up", "up, down, force or version")
	steps := flag.Int("steps", 0, "number of steps for up/down (0 = all)")
	forceVersion := flag.Int("version", -1, "version to record with -direction force")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	m, err := migrate.New("file://"+*migrationsPath, databaseURL(*dbURL))
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	if err := apply(m, *action, *steps, *forceVersion); err != nil {
		log.Fatalf("migrate %s: %v", *action, err)
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Printf("migrate %s complete (no migrations applied)\n", *action)
	case err != nil:
		log.Fatalf("read schema version: %v", err)
	default:
		fmt.Printf("migrate %s complete (version: %d, dirty: %v)\n", *action, v, dirty)
	}
}

func apply(m *migrate.Migrate, action string, steps, forceVersion int) error {
	var err error
	switch action {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "force":
		// Clears a dirty flag left by a failed migration.
		if forceVersion < 0 {
			return errors.New("-version is required with -direction force")
		}
		err = m.Force(forceVersion)
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown direction %q", action)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// databaseURL resolves the DSN from the flag, DATABASE_URL, or the DB_*
// variables gateway.yaml also reads.
func databaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		envOrDefault("DB_USER", "universe"),
		envOrDefault("DB_PASSWORD", "universe-dev"),
		envOrDefault("DB_HOST", "localhost"),
		envOrDefault("DB_PORT", "5432"),
		envOrDefault("DB_NAME", "universe"),
	)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
