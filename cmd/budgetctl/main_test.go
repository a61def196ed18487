package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Ayushsunny/Budgease/internal/backend"
	"github.com/Ayushsunny/Budgease/internal/config"
	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/log"
	"github.com/Ayushsunny/Budgease/internal/persistence"
	"github.com/Ayushsunny/Budgease/internal/persistence/memory"
)

// flakyAdapter fails every save while failSaves is set.
type flakyAdapter struct {
	persistence.Adapter
	failSaves atomic.Bool
}

func (f *flakyAdapter) Save(ctx context.Context, id core.Identity, doc persistence.Document) error {
	if f.failSaves.Load() {
		return errors.New("disk full")
	}
	return f.Adapter.Save(ctx, id, doc)
}

type harness struct {
	mem     *memory.Store
	adapter *flakyAdapter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := memory.New()
	t.Cleanup(func() { _ = mem.Close() })
	return &harness{mem: mem, adapter: &flakyAdapter{Adapter: mem}}
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            "8081",
		DataBackend:     "memory",
		JWTSecret:       "test-secret",
		TokenTTL:        time.Hour,
		SessionTTL:      time.Minute,
		MaxSessions:     10,
		SaveTimeout:     time.Second,
		ReconcilePolicy: "last-notification-wins",
	}
}

// run executes one budgetctl invocation against the shared adapter.
func (h *harness) run(ctx context.Context, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	a.loadConfig = func() (*config.Config, error) { return testConfig(), nil }
	a.openBackend = func(context.Context, *config.Config, *log.Logger) (*backend.BackendResult, error) {
		return &backend.BackendResult{
			Adapter: h.adapter,
			Cleanup: func() error { return nil },
		}, nil
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func (h *harness) token(t *testing.T) string {
	t.Helper()
	out, _, err := h.run(context.Background(), "token", "issue", "--uid", "alice", "--email", "alice@example.com")
	require.NoError(t, err)
	tok := strings.TrimSpace(out)
	require.NotEmpty(t, tok)
	return tok
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd(newApp(&bytes.Buffer{}, &bytes.Buffer{}))

	for _, path := range [][]string{
		{"show"},
		{"watch"},
		{"salary", "set"},
		{"category", "add"},
		{"category", "rm"},
		{"category", "rename"},
		{"category", "allocate"},
		{"expense", "add"},
		{"export", "xlsx"},
		{"export", "sheets"},
		{"token", "issue"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("token"))
}

func TestSalaryAndShow(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t)
	ctx := context.Background()

	out, _, err := h.run(ctx, "--token", tok, "salary", "set", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "Salary set to 1000.00")

	raw, ok := h.mem.Raw("alice")
	require.True(t, ok)
	assert.Contains(t, string(raw), `"salary":1000`)

	out, _, err = h.run(ctx, "--token", tok, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "1000.00")
	for _, name := range core.DefaultCategoryNames {
		assert.Contains(t, out, name)
	}
}

func TestSalaryRejectsBadAmount(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(context.Background(), "salary", "set", "lots")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestCategoryAndExpense(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t)
	ctx := context.Background()

	out, _, err := h.run(ctx, "--token", tok, "category", "add", "Pet", "food")
	require.NoError(t, err)
	assert.Contains(t, out, `Added "Pet food"`)

	_, _, err = h.run(ctx, "--token", tok, "category", "allocate", "1", "200")
	require.NoError(t, err)
	_, _, err = h.run(ctx, "--token", tok, "category", "rename", "1", "Housing")
	require.NoError(t, err)

	out, _, err = h.run(ctx, "--token", tok, "expense", "add", "1", "12,50", "--note", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, `Logged 12.50 in "Housing"`)

	doc, err := h.mem.Load(ctx, core.Identity{UID: "alice"})
	require.NoError(t, err)
	c, _, ok := doc.Budget.Category("1")
	require.True(t, ok)
	assert.Equal(t, "Housing", c.Name)
	assert.Equal(t, 200.0, c.Allocation)
	require.Len(t, c.Expenses, 1)
	assert.Equal(t, 12.5, c.Expenses[0].Amount)
	assert.Equal(t, "keys", c.Expenses[0].Note)

	last := doc.Budget.Categories[len(doc.Budget.Categories)-1]
	assert.Equal(t, "Pet food", last.Name)

	out, _, err = h.run(ctx, "--token", tok, "show", "--expenses", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "12.50")
	assert.Contains(t, out, "keys")

	_, _, err = h.run(ctx, "--token", tok, "category", "rm", last.ID)
	require.NoError(t, err)
	doc, err = h.mem.Load(ctx, core.Identity{UID: "alice"})
	require.NoError(t, err)
	_, _, ok = doc.Budget.Category(last.ID)
	assert.False(t, ok)
}

func TestUnknownCategory(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t)

	for _, args := range [][]string{
		{"category", "rm", "nope"},
		{"category", "rename", "nope", "x"},
		{"category", "allocate", "nope", "10"},
		{"expense", "add", "nope", "10"},
	} {
		_, _, err := h.run(context.Background(), append([]string{"--token", tok}, args...)...)
		assert.ErrorIs(t, err, core.ErrCategoryNotFound, args)
	}
}

func TestInvalidToken(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(context.Background(), "--token", "garbage", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign in")
}

func TestSaveFailureIsReported(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t)
	h.adapter.failSaves.Store(true)

	_, errOut, err := h.run(context.Background(), "--token", tok, "salary", "set", "900")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotSaved)
	assert.Contains(t, errOut, "warning")
	assert.Contains(t, errOut, "disk full")

	_, ok := h.mem.Raw("alice")
	assert.False(t, ok)
}

func TestExportXLSX(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t)
	ctx := context.Background()

	_, _, err := h.run(ctx, "--token", tok, "salary", "set", "1500")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "budget.xlsx")
	out, _, err := h.run(ctx, "--token", tok, "export", "xlsx", file)
	require.NoError(t, err)
	assert.Contains(t, out, file)

	f, err := excelize.OpenFile(file)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "Expenses"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	var salary []string
	for _, r := range rows {
		if len(r) > 0 && r[0] == "Salary" {
			salary = r
		}
	}
	require.Len(t, salary, 2)
	assert.Equal(t, "1500", salary[1])
}

func TestExportSheetsNotConfigured(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(context.Background(), "export", "sheets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestWatchRendersUntilCancelled(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, _, err := h.run(ctx, "--token", tok, "watch")
	require.NoError(t, err)
	assert.Contains(t, out, "Budget: alice@example.com")
	assert.Contains(t, out, "updated")
}

func TestTokenIssueRequiresUID(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(context.Background(), "token", "issue")
	require.Error(t, err)
}
