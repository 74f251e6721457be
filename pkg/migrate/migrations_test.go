package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/quizlink-backend/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestAnalyticsMigrationKeysRollupAndFacts(t *testing.T) {
	content := readMigration(t, "*_create_quiz_analytics_daily.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS quiz_analytics_daily",
		"PRIMARY KEY (shop_id, quiz_id, summary_date)",
		"CREATE TABLE IF NOT EXISTS analytics_session_facts",
		"PRIMARY KEY (session_id, kind)",
		"CREATE TABLE IF NOT EXISTS analytics_order_facts",
		"DROP TABLE IF EXISTS quiz_analytics_daily",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSessionMigrationEnforcesCompletion(t *testing.T) {
	content := readMigration(t, "*_create_quiz_sessions.sql")

	checks := []string{
		"CHECK (completed = (completed_at IS NOT NULL))",
		"CHECK (completed_at IS NULL OR completed_at >= started_at)",
		"FOREIGN KEY (session_id) REFERENCES quiz_sessions(id) ON DELETE CASCADE",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestAttributionMigrationRestrictsTier(t *testing.T) {
	content := readMigration(t, "*_create_order_attributions.sql")
	if !strings.Contains(content, "CHECK (tier IN ('exact_customer', 'time_proximity', 'none'))") {
		t.Errorf("missing tier check constraint")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to be rejected")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Shop Index")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_shop_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestOutboxMigrationIndexesUnpublished(t *testing.T) {
	content := readMigration(t, "*_create_outbox_events.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"WHERE published_at IS NULL",
		"CHECK (event_type IN ('attribution.sync_completed'))",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := migrate.ListFiles("")
	if err != nil {
		t.Fatalf("list embedded: %v", err)
	}
	onDisk, err := migrate.ListFiles("migrations")
	if err != nil {
		t.Fatalf("list disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded set (%d) out of sync with disk (%d)", len(embedded), len(onDisk))
	}
	for i := range embedded {
		if embedded[i] != onDisk[i] {
			t.Fatalf("embedded %+v != disk %+v", embedded[i], onDisk[i])
		}
	}
	if err := migrate.ValidateDir(""); err != nil {
		t.Fatalf("embedded set should validate: %v", err)
	}
}

func TestNewRunnerRequiresDB(t *testing.T) {
	if _, err := migrate.NewRunner(nil, ""); err == nil {
		t.Fatal("expected nil db to be rejected")
	}
}
