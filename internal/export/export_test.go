package export

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/Ayushsunny/Budgease/internal/core"
)

func sampleBudget() core.Budget {
	return core.Budget{
		Salary: 1000,
		Categories: []core.Category{
			{ID: "1", Name: "Rent", Allocation: 600, Expenses: []core.Expense{
				{ID: "e1", Amount: 600, Date: "2025-03-01T09:00:00.000Z", Note: "March"},
			}},
			{ID: "2", Name: "Food", Allocation: 100, Expenses: []core.Expense{
				{ID: "e2", Amount: 80.1, Date: "2025-03-02T12:00:00.000Z"},
				{ID: "e3", Amount: 40.2, Date: "2025-03-03T12:00:00.000Z", Note: "pizza"},
			}},
			{ID: "3", Name: "Fun", Expenses: []core.Expense{}},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(core.Summarize(sampleBudget()))

	require.Len(t, rows, 1+3+5)
	assert.Equal(t, SummaryHeader, rows[0])
	assert.Equal(t, []any{"Rent", 600.0, 600.0, 0.0, 1}, rows[1])
	assert.Equal(t, []any{"Food", 100.0, 120.3, -20.3, 2}, rows[2])
	assert.Equal(t, []any{"Fun", 0.0, 0.0, 0.0, 0}, rows[3])
	assert.Equal(t, []any{"Total", 700.0, 720.3, -20.3, 3}, rows[4])
	assert.Empty(t, rows[5])
	assert.Equal(t, []any{"Salary", 1000.0}, rows[6])
	assert.Equal(t, []any{"Remaining", 279.7}, rows[7])
	assert.Equal(t, []any{"Unallocated", 300.0}, rows[8])
}

func TestRowsEmptyBudget(t *testing.T) {
	rows := Rows(core.Summarize(core.Budget{}))
	require.Len(t, rows, 1+5)
	assert.Equal(t, []any{"Total", 0.0, 0.0, 0.0, 0}, rows[1])
}

func TestExpenseRows(t *testing.T) {
	rows := ExpenseRows(sampleBudget())
	require.Len(t, rows, 4)
	assert.Equal(t, ExpenseHeader, rows[0])
	assert.Equal(t, []any{"Rent", "2025-03-01T09:00:00.000Z", 600.0, "March"}, rows[1])
	assert.Equal(t, []any{"Food", "2025-03-03T12:00:00.000Z", 40.2, "pizza"}, rows[3])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleBudget()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, ExpensesSheet}, f.GetSheetList())

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(summary), 5)
	assert.Equal(t, []string{"Category", "Allocation", "Spent", "Remaining", "Expenses"}, summary[0])
	assert.Equal(t, "Food", summary[2][0])
	assert.Equal(t, "-20.3", summary[2][3])

	salary, err := f.GetCellValue(SummarySheet, "B7")
	require.NoError(t, err)
	assert.Equal(t, "1000", salary)

	expenses, err := f.GetRows(ExpensesSheet)
	require.NoError(t, err)
	require.Len(t, expenses, 4)
	assert.Equal(t, "pizza", expenses[3][3])

	redID, err := f.GetCellStyle(SummarySheet, "D3")
	require.NoError(t, err)
	plainID, err := f.GetCellStyle(SummarySheet, "D2")
	require.NoError(t, err)
	assert.NotEqual(t, plainID, redID)
}

// fakeSheets records the Sheets API calls the exporter makes.
type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	calls   []string
	written [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get")
		sheets := make([]map[string]any, 0, len(f.titles))
		for _, title := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.titles = append(f.titles, rq.AddSheet.Properties.Title)
				f.calls = append(f.calls, "add:"+rq.AddSheet.Properties.Title)
			}
		}
		_, _ = io.WriteString(w, `{}`)
	case strings.HasSuffix(path, ":clear"):
		f.calls = append(f.calls, "clear:"+strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ":clear"))
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.written = vr.Values
		f.calls = append(f.calls, "update:"+path[strings.LastIndex(path, "/")+1:]+":"+r.URL.Query().Get("valueInputOption"))
		_, _ = io.WriteString(w, `{}`)
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newFakeExporter(t *testing.T, fake *fakeSheets) *SheetsExporter {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	svc, err := gsheet.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	return NewSheetsExporter(svc, "sheet-id", "Budget", nil)
}

func TestSheetsExporter_CreatesTabOnce(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Sheet1"}}
	exp := newFakeExporter(t, fake)
	alice := core.Identity{UID: "alice"}

	require.NoError(t, exp.Export(context.Background(), alice, sampleBudget()))
	require.NoError(t, exp.Export(context.Background(), alice, sampleBudget()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.calls, 6)
	assert.Equal(t, "get", fake.calls[0])
	assert.Equal(t, "add:Budget alice", fake.calls[1])
	assert.Equal(t, "clear:'Budget alice'!A:Z", fake.calls[2])
	assert.Equal(t, "update:'Budget alice'!A1:RAW", fake.calls[3])
	assert.Equal(t, "clear:'Budget alice'!A:Z", fake.calls[4])

	require.NotEmpty(t, fake.written)
	assert.Equal(t, "Category", fake.written[0][0])
	assert.Equal(t, "Rent", fake.written[1][0])
}

func TestSheetsExporter_ExistingTab(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Budget budgetData"}}
	exp := newFakeExporter(t, fake)

	require.NoError(t, exp.Export(context.Background(), core.Identity{}, core.DefaultBudget()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"get", "clear:'Budget budgetData'!A:Z", "update:'Budget budgetData'!A1:RAW"}, fake.calls)
}

func TestSheetsExporter_TabName(t *testing.T) {
	assert.Equal(t, "Budget bob", NewSheetsExporter(nil, "id", " Budget ", nil).TabName(core.Identity{UID: "bob"}))
	assert.Equal(t, "bob", NewSheetsExporter(nil, "id", "", nil).TabName(core.Identity{UID: "bob"}))
	assert.Equal(t, "'it''s'", quoteTab("it's"))

	err := NewSheetsExporter(nil, "id", "", nil).Export(context.Background(), core.Identity{}, core.Budget{})
	assert.Error(t, err)
}

func TestNewSheetsServiceRequiresCredentials(t *testing.T) {
	_, err := NewSheetsService(context.Background(), SheetsConfig{SpreadsheetID: "x"})
	assert.ErrorContains(t, err, "missing service account credentials")

	_, err = NewSheetsService(context.Background(), SheetsConfig{ServiceAccountJSON: "{not json"})
	assert.ErrorContains(t, err, "parse service account key")

	_, err = NewSheetsService(context.Background(), SheetsConfig{ServiceAccountFile: "/nonexistent/sa.json"})
	assert.ErrorContains(t, err, "read service account file")
}
