package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
)

// SheetsConfig selects the spreadsheet and the service account used to write
// it. ServiceAccountJSON wins over ServiceAccountFile.
type SheetsConfig struct {
	SpreadsheetID      string
	SheetPrefix        string
	ServiceAccountFile string
	ServiceAccountJSON string
}

// NewSheetsService authenticates with service account credentials.
func NewSheetsService(ctx context.Context, cfg SheetsConfig) (*gsheet.Service, error) {
	var credentials []byte
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		credentials = []byte(cfg.ServiceAccountJSON)
	case cfg.ServiceAccountFile != "":
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentials = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentials, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	httpClient := oauth2.NewClient(ctx, jwtConfig.TokenSource(ctx))
	svc, err := gsheet.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// SheetsExporter keeps one tab per identity, named "<prefix> <key>", and
// rewrites it with the budget summary on every export.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
	logger        *log.Logger

	mu    sync.Mutex
	known map[string]bool
}

var _ Exporter = (*SheetsExporter)(nil)

func NewSheetsExporter(svc *gsheet.Service, spreadsheetID, prefix string, logger *log.Logger) *SheetsExporter {
	if logger == nil {
		logger = log.Nop()
	}
	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		prefix:        strings.TrimSpace(prefix),
		logger:        logger.WithComponent(log.ComponentExport),
		known:         make(map[string]bool),
	}
}

// TabName returns the sheet title used for identity.
func (e *SheetsExporter) TabName(identity core.Identity) string {
	if e.prefix == "" {
		return identity.Key()
	}
	return e.prefix + " " + identity.Key()
}

func (e *SheetsExporter) Export(ctx context.Context, identity core.Identity, b core.Budget) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab := e.TabName(identity)
	if err := e.ensureTab(ctx, tab); err != nil {
		return err
	}

	quoted := quoteTab(tab)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, quoted+"!A:Z", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}

	rows := Rows(core.Summarize(b))
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, quoted+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", tab, err)
	}

	e.logger.InfoContext(ctx, "Budget exported",
		log.FieldIdentity, identity.Key(),
		log.FieldSheet, tab,
		"rows", len(rows))
	return nil
}

// ensureTab creates the tab unless it is already known to exist.
func (e *SheetsExporter) ensureTab(ctx context.Context, tab string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.known[tab] {
		return nil
	}

	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", e.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			e.known[sh.Properties.Title] = true
		}
	}
	if e.known[tab] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %s: %w", tab, err)
	}
	e.known[tab] = true
	e.logger.InfoContext(ctx, "Created sheet", log.FieldSheet, tab)
	return nil
}

// quoteTab quotes a sheet title for A1 notation.
func quoteTab(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
