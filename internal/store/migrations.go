package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Game stats table - a single row with the Simon Says records
		`CREATE TABLE IF NOT EXISTS game_stats (
			id INTEGER PRIMARY KEY CHECK(id = 1),
			best_level INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Activity table - append-only log of demo events
		`CREATE TABLE IF NOT EXISTS activity (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK(kind IN ('demo', 'easter_egg', 'video_action', 'game', 'error')),
			message TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activity_kind ON activity(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
