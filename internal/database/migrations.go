package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

func (db *DB) migrate() error {
	log.Info().Msg("running database migrations")

	migrations := []string{
		db.migrationSlots(),
		db.migrationSyncHistory(),
	}

	for i, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sync_history_started_at ON sync_history(started_at)",
	}
	for _, idx := range indexes {
		if _, err := db.conn.Exec(idx); err != nil {
			return fmt.Errorf("index creation: %w", err)
		}
	}

	log.Info().Msg("migrations complete")
	return nil
}

// migrationSlots holds one serialized value per persisted state slot
// ("launchList", "rocketCostMap").
func (db *DB) migrationSlots() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS slots (
		slot_key TEXT PRIMARY KEY,
		slot_value TEXT NOT NULL,
		updated_at %s NOT NULL
	)`, db.timestampType())
}

func (db *DB) migrationSyncHistory() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_history (
		id %s,
		sync_type TEXT NOT NULL,
		status TEXT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at %s NOT NULL,
		completed_at %s
	)`, db.autoIncrement(), db.timestampType(), db.timestampType())
}
