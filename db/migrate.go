package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationDir = "sqlite/migrations"

// Migrate applies every embedded migration not yet recorded in
// schema_migrations. 000 creates that table and records itself.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	log = logger.OrNop(log)

	files, err := migrationFiles()
	if err != nil {
		return err
	}

	applied := 0
	for _, name := range files {
		version := strings.SplitN(name, "_", 2)[0]

		done, err := isApplied(db, version)
		if err != nil {
			return errors.Wrapf(err, "check %s", name)
		}
		if done {
			log.Debugw("Migration already applied", "migration", name)
			continue
		}

		body, err := migrations.ReadFile(path.Join(migrationDir, name))
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}

		log.Infow("Applying migration", "migration", name, logger.FieldVersion, version)
		if err := apply(db, version, string(body)); err != nil {
			return errors.Wrapf(err, "apply %s", name)
		}
		applied++
	}

	log.Infow("Migrations complete", "total", len(files), "applied", applied)
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isApplied(db *sql.DB, version string) (bool, error) {
	var tables int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&tables)
	if err != nil {
		return false, err
	}
	if tables == 0 {
		if version != "000" {
			return false, errors.Newf("schema_migrations missing before migration %s", version)
		}
		return false, nil
	}

	var exists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
	return exists, err
}

func apply(db *sql.DB, version, body string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if _, err := tx.Exec(body); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "execute")
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "record")
	}
	return errors.Wrap(tx.Commit(), "commit")
}
