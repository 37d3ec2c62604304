package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestMigrator_LoadSortsAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("docs")},
		"draft.sql":      {Data: []byte("SELECT 0;")},
		"abc_notnum.sql": {Data: []byte("SELECT 0;")},
	}

	migrations, err := NewMigratorFS(nil, files, nil).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) != 3 {
		t.Fatalf("got %d migrations, want 3", len(migrations))
	}
	for i, want := range []int{1, 2, 10} {
		if migrations[i].Version != want {
			t.Errorf("migrations[%d].Version = %d, want %d", i, migrations[i].Version, want)
		}
	}
	if migrations[0].Name != "001_first.sql" || migrations[0].SQL != "SELECT 1;" {
		t.Errorf("first = %+v", migrations[0])
	}
}

func TestMigrator_LoadRejectsDuplicateVersions(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigratorFS(nil, files, nil).Load(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil, nil).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) < 3 {
		t.Fatalf("got %d embedded migrations", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Name, m.Version, i+1)
		}
	}

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}
	schema := all.String()
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS adherence_alerts",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_adherence_alerts_pending",
		"WHERE status = 'pending'",
		"CREATE TABLE IF NOT EXISTS outbox",
		"CREATE TABLE IF NOT EXISTS inbox",
		"CREATE TABLE IF NOT EXISTS appointment_reminders",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
