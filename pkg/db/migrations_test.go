package db

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

const migrationsTestPrefix = "db:migrations_test"

func TestLoadMigrationsFS_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"002_events.sql":    {Data: []byte("SECOND")},
		"001_sessions.sql":  {Data: []byte("FIRST")},
		"README.md":         {Data: []byte("# Migrations")},
		"embed.go":          {Data: []byte("package migrations")},
		"subdir.sql/x.sql":  {Data: []byte("NESTED")},
		"003_prune_idx.sql": {Data: []byte("THIRD")},
	}

	got, err := loadMigrationsFS(fsys, ".", "test")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	want := []Migration{
		{Name: "001_sessions.sql", SQL: "FIRST"},
		{Name: "002_events.sql", SQL: "SECOND"},
		{Name: "003_prune_idx.sql", SQL: "THIRD"},
	}
	if len(got) != len(want) {
		t.Fatalf("%s - got %d migrations, want %d: %+v", migrationsTestPrefix, len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s - migration[%d] = %+v, want %+v", migrationsTestPrefix, i, got[i], want[i])
		}
	}
}

func TestLoadMigrations_FromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_only.sql"), []byte("SELECT 1;"), 0644); err != nil {
		t.Fatalf("%s - write: %v", migrationsTestPrefix, err)
	}

	got, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("%s - LoadMigrations: %v", migrationsTestPrefix, err)
	}
	if len(got) != 1 || got[0].Name != "001_only.sql" || got[0].SQL != "SELECT 1;" {
		t.Errorf("%s - got %+v", migrationsTestPrefix, got)
	}
}

func TestLoadMigrations_FallsBackToEmbedded(t *testing.T) {
	for _, dir := range []string{"", filepath.Join(t.TempDir(), "missing")} {
		got, err := LoadMigrations(dir)
		if err != nil {
			t.Fatalf("%s - LoadMigrations(%q): %v", migrationsTestPrefix, dir, err)
		}
		if len(got) == 0 || got[0].Name != "001_sessions.sql" {
			t.Errorf("%s - LoadMigrations(%q) = %+v, want the embedded schema", migrationsTestPrefix, dir, got)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	migs := []Migration{{Name: "001.sql"}, {Name: "002.sql"}, {Name: "003.sql"}}
	applied := map[string]time.Time{"001.sql": time.Now(), "003.sql": time.Now()}

	got := pendingMigrations(migs, applied)
	if len(got) != 1 || got[0].Name != "002.sql" {
		t.Errorf("%s - pending = %+v, want only 002.sql", migrationsTestPrefix, got)
	}
	if got := pendingMigrations(migs, nil); len(got) != 3 {
		t.Errorf("%s - with nothing applied got %d pending, want 3", migrationsTestPrefix, len(got))
	}
}

func TestMigrationStates(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	states := migrationStates([]Migration{{Name: "001.sql"}, {Name: "002.sql"}}, map[string]time.Time{"001.sql": at})

	if !states[0].Applied || states[0].AppliedAt == nil || !states[0].AppliedAt.Equal(at) {
		t.Errorf("%s - states[0] = %+v, want applied at %v", migrationsTestPrefix, states[0], at)
	}
	if states[1].Applied || states[1].AppliedAt != nil {
		t.Errorf("%s - states[1] = %+v, want pending", migrationsTestPrefix, states[1])
	}
}
