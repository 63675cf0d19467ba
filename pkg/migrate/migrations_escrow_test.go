package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rentavacation/escrow-backend/pkg/migrate"
)

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}

func TestEscrowMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_escrow_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no escrow migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE booking_confirmations",
		"booking_id uuid NOT NULL UNIQUE REFERENCES bookings (id)",
		"CHECK (released_at IS NULL OR refunded_at IS NULL)",
		"CHECK (extensions_used >= 0)",
		"DROP TABLE IF EXISTS booking_confirmations",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCoreMigrationKeepsSplitConserved(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_core_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no core migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	if !strings.Contains(string(data), "commission_cents + owner_payout_cents = total_amount_cents") {
		t.Error("missing money conservation check on bookings")
	}
}
