package google

import (
	"context"
	"testing"
	"time"

	"monarch/internal/core"
	"monarch/internal/storage"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		name string
		base string
		year int
		want string
	}{
		{"plain base", "Net Worth", 2024, "2024 Net Worth"},
		{"already prefixed", "2023 Net Worth", 2024, "2023 Net Worth"},
		{"short base", "NW", 2024, "2024 NW"},
		{"empty", "", 2024, ""},
		{"numeric but not a year", "0042 Sheet", 2024, "2024 0042 Sheet"},
		{"whitespace trimmed", "  Net Worth  ", 2024, "2024 Net Worth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
			}
		})
	}
}

func TestBuildRow(t *testing.T) {
	fetchedAt := time.Date(2024, 3, 24, 18, 0, 0, 0, time.UTC)
	row := storage.SnapshotRow{
		ID:           7,
		FetchedAt:    fetchedAt,
		NetWorth:     core.Money{Cents: 1234550},
		AccountCount: 5,
		Income:       core.Money{Cents: 500000},
		Expense:      core.Money{Cents: -320000},
		Savings:      core.Money{Cents: 180000},
		SavingsRate:  0.36,
	}

	cols := buildRow(row)
	if len(cols) != 7 {
		t.Fatalf("got %d columns, want 7", len(cols))
	}
	if cols[0] != "2024-03-24T18:00:00Z" {
		t.Errorf("timestamp = %v", cols[0])
	}
	if cols[1] != 12345.5 {
		t.Errorf("net worth = %v, want 12345.5", cols[1])
	}
	if cols[3] != 3200.0 {
		t.Errorf("expense = %v, want positive 3200", cols[3])
	}
	if cols[6] != 5 {
		t.Errorf("accounts = %v, want 5", cols[6])
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Config{}); err == nil {
		t.Error("expected error for missing spreadsheet id")
	}
	if _, err := New(ctx, Config{SpreadsheetID: "sheet-1"}); err == nil {
		t.Error("expected error for missing credentials")
	}
}
