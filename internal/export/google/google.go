// Package google appends snapshot rows to a Google spreadsheet so net worth
// history lives somewhere a human already looks.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "monarch/internal/export"
	"monarch/internal/storage"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name without year (e.g. "Net Worth"); rows land on the
	// year-prefixed sheet for the snapshot's year.
	sheetBase string
}

var _ ports.SnapshotWriter = (*Client)(nil)

type Config struct {
	SpreadsheetID string
	SheetName     string // base name, defaults to "Net Worth"

	// Service account credentials, inline JSON or a file path. Inline wins.
	CredentialsJSON string
	CredentialsFile string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Net Worth"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetBase:     base,
	}, nil
}

// newSheetsService initializes a Sheets Service using service account
// credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte

	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = raw
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// AppendSnapshot writes one row for the snapshot on the sheet for its year
// and returns the written range.
func (c *Client) AppendSnapshot(ctx context.Context, row storage.SnapshotRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheetName := yearPrefixedName(c.sheetBase, row.FetchedAt.Year())

	// Find the next empty row from the sheet's current height.
	rng := fmt.Sprintf("%s!A:A", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", sheetName, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:G%d", sheetName, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{buildRow(row)}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", dataRange, err)
	}

	slog.InfoContext(ctx, "Snapshot row appended",
		"snapshot_id", row.ID,
		"range", dataRange)

	return dataRange, nil
}

// buildRow shapes a snapshot into spreadsheet columns:
// timestamp, net worth, income, expense, savings, savings rate, accounts.
func buildRow(row storage.SnapshotRow) []any {
	return []any{
		row.FetchedAt.UTC().Format(time.RFC3339),
		row.NetWorth.Float(),
		row.Income.Float(),
		row.Expense.Neg().Float(),
		row.Savings.Float(),
		row.SavingsRate,
		row.AccountCount,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with
// a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
