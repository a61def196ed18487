package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestIsValidAmount(t *testing.T) {
	cases := []struct {
		in float64
		ok bool
	}{
		{1, true},
		{0.01, true},
		{50000, true},
		{0, false},
		{-1, false},
		{math.NaN(), false},
		{math.Inf(1), false},
		{math.Inf(-1), false},
	}
	for _, tc := range cases {
		if got := IsValidAmount(tc.in); got != tc.ok {
			t.Fatalf("IsValidAmount(%v) = %v, want %v", tc.in, got, tc.ok)
		}
	}
}

func TestIsNonEmptyName(t *testing.T) {
	for _, s := range []string{"", " ", "\t\n"} {
		if IsNonEmptyName(s) {
			t.Fatalf("%q should be empty", s)
		}
	}
	if !IsNonEmptyName(" Travel ") {
		t.Fatalf("expected non-empty name")
	}
}

func TestDefaultBudget(t *testing.T) {
	b := DefaultBudget()
	if b.Salary != 0 {
		t.Fatalf("expected zero salary, got %v", b.Salary)
	}
	if len(b.Categories) != len(DefaultCategoryNames) {
		t.Fatalf("expected %d categories, got %d", len(DefaultCategoryNames), len(b.Categories))
	}
	if b.Categories[0].ID != "1" || b.Categories[0].Name != "Rent" {
		t.Fatalf("unexpected first category: %+v", b.Categories[0])
	}
	for _, c := range b.Categories {
		if c.Allocation != 0 || c.Expenses == nil || len(c.Expenses) != 0 {
			t.Fatalf("seed category not empty: %+v", c)
		}
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("default budget invalid: %v", err)
	}

	custom := DefaultBudget("A", "B")
	if len(custom.Categories) != 2 || custom.Categories[1].ID != "2" {
		t.Fatalf("unexpected custom seed: %+v", custom)
	}
}

func TestBudgetCloneIsDeep(t *testing.T) {
	b := DefaultBudget()
	b.Categories[0].Expenses = append(b.Categories[0].Expenses, Expense{ID: "e1", Amount: 10, Date: NowTimestamp(time.Now())})

	c := b.Clone()
	c.Categories[0].Expenses[0].Amount = 99
	c.Categories[0].Name = "Changed"

	if b.Categories[0].Expenses[0].Amount != 10 || b.Categories[0].Name != "Rent" {
		t.Fatalf("clone shares memory with original")
	}
	if b.Equal(c) {
		t.Fatalf("expected clone to differ after mutation")
	}
	if !b.Equal(b.Clone()) {
		t.Fatalf("expected fresh clone to be equal")
	}
}

func TestBudgetValidate(t *testing.T) {
	date := "2025-01-01T10:00:00.000Z"
	bads := []Budget{
		{Salary: -1},
		{Salary: math.NaN()},
		{Categories: []Category{{ID: "", Name: "x"}}},
		{Categories: []Category{{ID: "1", Name: " "}}},
		{Categories: []Category{{ID: "1", Name: "a", Allocation: -5}}},
		{Categories: []Category{{ID: "1", Name: "a"}, {ID: "1", Name: "b"}}},
		{Categories: []Category{{ID: "1", Name: "a", Expenses: []Expense{{ID: "e", Amount: -1, Date: date}}}}},
		{Categories: []Category{{ID: "1", Name: "a", Expenses: []Expense{{ID: "e", Amount: 1, Date: "yesterday"}}}}},
		{Categories: []Category{{ID: "1", Name: "a", Expenses: []Expense{{ID: "e", Amount: 1, Date: date}, {ID: "e", Amount: 2, Date: date}}}}},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}

	err := Budget{Categories: []Category{{ID: "1", Name: "a"}, {ID: "1", Name: "b"}}}.Validate()
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCategoryPatch(t *testing.T) {
	name := "  Travel "
	alloc := 120.5
	c := Category{ID: "1", Name: "Rent", Allocation: 10}

	p := CategoryPatch{Name: &name, Allocation: &alloc}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid patch, got %v", err)
	}
	got := p.Apply(c)
	if got.Name != "Travel" || got.Allocation != 120.5 || got.ID != "1" {
		t.Fatalf("unexpected patched category: %+v", got)
	}

	empty := ""
	if err := (CategoryPatch{Name: &empty}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	zero := 0.0
	if err := (CategoryPatch{Allocation: &zero}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestIdentityKey(t *testing.T) {
	if !(Identity{}).IsAnonymous() || (Identity{}).Key() != AnonymousKey {
		t.Fatalf("zero identity should be anonymous")
	}
	if (Identity{UID: "u1"}).Key() != "u1" {
		t.Fatalf("expected uid key")
	}
}

func TestNowTimestampRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 891000000, time.UTC)
	s := NowTimestamp(now)
	if s != "2025-03-04T05:06:07.891Z" {
		t.Fatalf("unexpected format %q", s)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil || !parsed.Equal(now) {
		t.Fatalf("round trip failed: %v %v", parsed, err)
	}
}
