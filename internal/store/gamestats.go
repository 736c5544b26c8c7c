package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/mudra/internal/simon"
)

// GameStatsRepository persists the Simon Says records. It implements
// simon.StatsStore.
type GameStatsRepository struct {
	db *sql.DB
}

// GameStats returns the game stats repository for this store.
func (s *Store) GameStats() *GameStatsRepository {
	return &GameStatsRepository{db: s.db}
}

// LoadStats returns the stored records, or zero records if none were saved.
func (r *GameStatsRepository) LoadStats(ctx context.Context) (simon.Stats, error) {
	var st simon.Stats
	err := r.db.QueryRowContext(ctx,
		`SELECT best_level, best_streak FROM game_stats WHERE id = 1`,
	).Scan(&st.BestLevel, &st.BestStreak)

	if errors.Is(err, sql.ErrNoRows) {
		return simon.Stats{}, nil
	}
	return st, err
}

// SaveStats replaces the stored records.
func (r *GameStatsRepository) SaveStats(ctx context.Context, st simon.Stats) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_stats (id, best_level, best_streak, updated_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   best_level = excluded.best_level,
		   best_streak = excluded.best_streak,
		   updated_at = excluded.updated_at`,
		st.BestLevel, st.BestStreak, time.Now(),
	)
	return err
}
