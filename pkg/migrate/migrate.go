package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where the repo keeps its goose SQL migrations.
const DefaultDir = "pkg/migrate/migrations"

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("migrate: nil db handle")
	}
	if dir == "" {
		return fmt.Errorf("migrate: empty migrations dir")
	}
	// schema lives on Postgres in every deployed environment
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	return nil
}

// Exec runs a goose command (up, down, status, ...) against db.
func Exec(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("migrate: %s: %w", command, err)
	}
	return nil
}

// ToVersion walks the schema up or down until it sits at target,
// a goose timestamp version (YYYYMMDDHHMMSS).
func ToVersion(ctx context.Context, db *sql.DB, dir, target string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}

	want, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("migrate: bad target version %q: %w", target, err)
	}
	have, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("migrate: read schema version: %w", err)
	}

	switch {
	case have < want:
		err = goose.UpToContext(ctx, db, dir, want)
	case have > want:
		err = goose.DownToContext(ctx, db, dir, want)
	}
	if err != nil {
		return fmt.Errorf("migrate: move %d to %d: %w", have, want, err)
	}
	return nil
}
