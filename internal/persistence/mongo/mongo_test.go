package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Ayushsunny/Budgease/internal/core"
	"github.com/Ayushsunny/Budgease/internal/persistence"
)

func rawFrom(t *testing.T, v any) rawUserDoc {
	t.Helper()
	data, err := bson.Marshal(v)
	require.NoError(t, err)
	var raw rawUserDoc
	require.NoError(t, bson.Unmarshal(data, &raw))
	return raw
}

func TestEncodeDecodeDocument(t *testing.T) {
	b := core.DefaultBudget()
	b.Salary = 42
	b.Categories[1].Expenses = append(b.Categories[1].Expenses,
		core.Expense{ID: "x", Amount: 3.5, Date: "2025-01-01T00:00:00.000Z"})

	when := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	stored := encodeDoc("u1", persistence.Document{Budget: b, Revision: 9, Origin: "o"}, when)

	doc, err := decodeDoc(rawFrom(t, stored))
	require.NoError(t, err)
	assert.True(t, b.Equal(doc.Budget))
	assert.Equal(t, uint64(9), doc.Revision)
	assert.Equal(t, "o", doc.Origin)
	assert.True(t, when.Equal(doc.UpdatedAt))
}

func TestEncodeEmptyBudgetRoundTrips(t *testing.T) {
	stored := encodeDoc("u1", persistence.Document{Budget: core.Budget{Salary: 7}}, time.Now())
	doc, err := decodeDoc(rawFrom(t, stored))
	require.NoError(t, err)
	assert.Equal(t, 7.0, doc.Budget.Salary)
	assert.Empty(t, doc.Budget.Categories)
}

func TestDecodeRejectsLegacyArray(t *testing.T) {
	raw := rawFrom(t, bson.M{"_id": "u1", "budgetData": bson.A{}})
	_, err := decodeDoc(raw)
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}

func TestDecodeRejectsIncompleteOrInvalid(t *testing.T) {
	missing := rawFrom(t, bson.M{"_id": "u1", "budgetData": bson.M{"salary": 1.0}})
	_, err := decodeDoc(missing)
	assert.ErrorIs(t, err, core.ErrInvalidRecord)

	for name, category := range map[string]bson.M{
		"no allocation": {"id": "1", "name": "Rent", "expenses": bson.A{}},
		"no expenses":   {"id": "1", "name": "Rent", "allocation": 0.0},
		"extra field":   {"id": "1", "name": "Rent", "allocation": 0.0, "expenses": bson.A{}, "colour": "red"},
		"expense without date": {"id": "1", "name": "Rent", "allocation": 0.0, "expenses": bson.A{
			bson.M{"id": "e1", "amount": 5.0},
		}},
	} {
		raw := rawFrom(t, bson.M{"_id": "u1", "budgetData": bson.M{"salary": 1.0, "categories": bson.A{category}}})
		_, err = decodeDoc(raw)
		assert.ErrorIs(t, err, core.ErrInvalidRecord, name)
	}

	negative := rawFrom(t, bson.M{"_id": "u1", "budgetData": bson.M{"salary": -1.0, "categories": bson.A{}}})
	_, err = decodeDoc(negative)
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}

// TestStoreAgainstServer needs a replica set for change streams, e.g.
// MONGODB_TEST_URI=mongodb://localhost:27017/?replicaSet=rs0
func TestStoreAgainstServer(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Connect(ctx, uri, "budgease_test", "budgets_"+time.Now().Format("150405"), nil)
	require.NoError(t, err)
	defer func() {
		_ = s.collection.Drop(ctx)
		_ = s.Close(ctx)
	}()

	id := core.Identity{UID: "u1"}
	_, err = s.Load(ctx, id)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	got := make(chan persistence.Document, 4)
	unsub, err := s.Subscribe(ctx, id, func(doc persistence.Document) { got <- doc })
	require.NoError(t, err)
	defer unsub()

	b := core.DefaultBudget()
	b.Salary = 77
	require.NoError(t, s.Save(ctx, id, persistence.Document{Budget: b, Revision: 1, Origin: "t"}))

	select {
	case doc := <-got:
		assert.Equal(t, 77.0, doc.Budget.Salary)
	case <-ctx.Done():
		t.Fatal("no change notification")
	}

	doc, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Equal(doc.Budget))
}
