package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ayusman/mudra/internal/simon"
)

func TestGameStatsRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).GameStats()

	t.Run("empty store returns zero stats", func(t *testing.T) {
		st, err := repo.LoadStats(ctx)
		if err != nil {
			t.Fatalf("LoadStats() error = %v", err)
		}
		if st != (simon.Stats{}) {
			t.Errorf("expected zero stats, got %+v", st)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		if err := repo.SaveStats(ctx, simon.Stats{BestLevel: 5, BestStreak: 3}); err != nil {
			t.Fatalf("SaveStats() error = %v", err)
		}
		if err := repo.SaveStats(ctx, simon.Stats{BestLevel: 6, BestStreak: 3}); err != nil {
			t.Fatalf("SaveStats() error = %v", err)
		}

		st, err := repo.LoadStats(ctx)
		if err != nil {
			t.Fatalf("LoadStats() error = %v", err)
		}
		if st.BestLevel != 6 || st.BestStreak != 3 {
			t.Errorf("unexpected stats %+v", st)
		}
	})

	t.Run("implements StatsStore", func(t *testing.T) {
		var _ simon.StatsStore = repo
	})
}

func TestActivityRepository_Record(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Activity()

	a, err := repo.Record(ctx, ActivityVideoAction, "Video adelantado 10 segundos", map[string]any{"position": 40})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(a.ID) != 26 {
		t.Errorf("expected a ULID, got %q", a.ID)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Kind != ActivityVideoAction || got.Message != a.Message {
		t.Errorf("unexpected activity %+v", got)
	}

	var detail map[string]int
	if err := json.Unmarshal(got.Detail, &detail); err != nil || detail["position"] != 40 {
		t.Errorf("unexpected detail %s (%v)", got.Detail, err)
	}
}

func TestActivityRepository_GetByID_NotFound(t *testing.T) {
	repo := newTestStore(t).Activity()

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestActivityRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Activity()

	kinds := []ActivityKind{ActivityDemo, ActivityEasterEgg, ActivityDemo, ActivityGame, ActivityDemo}
	for i, k := range kinds {
		if _, err := repo.Record(ctx, k, string(rune('a'+i)), nil); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		list, err := repo.List(ctx, "", 10)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 5 {
			t.Fatalf("expected 5 entries, got %d", len(list))
		}
		if list[0].Message != "e" || list[4].Message != "a" {
			t.Errorf("unexpected order: %s ... %s", list[0].Message, list[4].Message)
		}
		if string(list[0].Detail) != "{}" {
			t.Errorf("expected empty detail, got %s", list[0].Detail)
		}
	})

	t.Run("filter by kind", func(t *testing.T) {
		list, err := repo.List(ctx, ActivityDemo, 2)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 2 {
			t.Errorf("expected limit of 2, got %d", len(list))
		}
		for _, a := range list {
			if a.Kind != ActivityDemo {
				t.Errorf("unexpected kind %s", a.Kind)
			}
		}
	})

	t.Run("count", func(t *testing.T) {
		if n, err := repo.Count(ctx, ActivityDemo); err != nil || n != 3 {
			t.Errorf("Count(demo) = %d, %v", n, err)
		}
		if n, err := repo.Count(ctx, ""); err != nil || n != 5 {
			t.Errorf("Count() = %d, %v", n, err)
		}
	})
}

func TestActivityRepository_RejectsUnknownKind(t *testing.T) {
	repo := newTestStore(t).Activity()
	if _, err := repo.Record(context.Background(), ActivityKind("bogus"), "", nil); err == nil {
		t.Error("expected constraint error for unknown kind")
	}
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Settings()

	if _, err := repo.Get(ctx, SettingDemoMode); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Set(ctx, SettingDemoMode, "video"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, SettingDemoMode, "simon"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, err := repo.Get(ctx, SettingDemoMode)
	if err != nil || v != "simon" {
		t.Errorf("Get() = %q, %v", v, err)
	}
}
