package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func stepClock() func() time.Time {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "session.db"), WithClock(stepClock()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LastOpened(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.LastOpened(ctx)
	if err != nil || got != "" {
		t.Fatalf("LastOpened() on fresh db = %q, %v; want \"\", nil", got, err)
	}

	if err := s.RecordOpened(ctx, "/maps/a.json"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordOpened(ctx, "/maps/b.json"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LastOpened(ctx); got != "/maps/b.json" {
		t.Errorf("LastOpened() = %q, want /maps/b.json", got)
	}
}

func TestStore_RecentProjectsOrderAndCap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := range MaxRecentProjects + 3 {
		if err := s.RecordOpened(ctx, fmt.Sprintf("/maps/%02d.json", i)); err != nil {
			t.Fatal(err)
		}
	}
	// Reopening moves an entry to the front instead of duplicating it.
	if err := s.RecordOpened(ctx, "/maps/05.json"); err != nil {
		t.Fatal(err)
	}

	recent, err := s.RecentProjects(ctx)
	if err != nil {
		t.Fatalf("RecentProjects() error = %v", err)
	}
	if len(recent) != MaxRecentProjects {
		t.Fatalf("got %d recent projects, want %d", len(recent), MaxRecentProjects)
	}
	if recent[0].Path != "/maps/05.json" {
		t.Errorf("most recent = %s, want /maps/05.json", recent[0].Path)
	}
	if recent[1].Path != "/maps/12.json" {
		t.Errorf("second = %s, want /maps/12.json", recent[1].Path)
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].OpenedAt.After(recent[i-1].OpenedAt) {
			t.Errorf("entries out of order at %d", i)
		}
	}
	for _, rp := range recent {
		if rp.Path == "/maps/00.json" || rp.Path == "/maps/01.json" {
			t.Errorf("oldest entry %s should have been dropped", rp.Path)
		}
	}
}

func TestStore_ForgetProject(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	s.RecordOpened(ctx, "/maps/a.json")
	s.RecordOpened(ctx, "/maps/b.json")

	if err := s.ForgetProject(ctx, "/maps/b.json"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LastOpened(ctx); got != "" {
		t.Errorf("LastOpened() = %q after forgetting it, want empty", got)
	}
	recent, _ := s.RecentProjects(ctx)
	if len(recent) != 1 || recent[0].Path != "/maps/a.json" {
		t.Errorf("recent = %+v, want only a.json", recent)
	}
}

func TestStore_Settings(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, err := s.Setting(ctx, "theme"); ok || err != nil {
		t.Fatalf("Setting(missing) = ok %v, err %v", ok, err)
	}
	if err := s.SetSetting(ctx, "theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting(ctx, "theme", "light"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Setting(ctx, "theme")
	if err != nil || !ok || v != "light" {
		t.Errorf("Setting(theme) = %q, %v, %v; want light", v, ok, err)
	}
	if err := s.SetSetting(ctx, "", "x"); err == nil {
		t.Error("empty key should be rejected")
	}

	all, err := s.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if all["theme"] != "light" {
		t.Errorf("Settings() = %v", all)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordOpened(ctx, "/maps/keep.json"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if got, _ := s.LastOpened(ctx); got != "/maps/keep.json" {
		t.Errorf("LastOpened() after reopen = %q", got)
	}
}

func TestMigrate_RejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion+1)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(ctx, path); err == nil {
		t.Error("Open() should refuse a newer schema")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	for i := 0; i < 2; i++ {
		s, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open() #%d error = %v", i, err)
		}
		var version int
		if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
			t.Fatal(err)
		}
		if version != SchemaVersion {
			t.Errorf("user_version = %d, want %d", version, SchemaVersion)
		}
		s.Close()
	}
}
