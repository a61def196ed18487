package core

import "testing"

func TestDerivedViews(t *testing.T) {
	b := sampleBudget()

	if got := TotalAllocated(b); got != 15000 {
		t.Fatalf("TotalAllocated = %v", got)
	}
	if got := TotalSpent(b); got != 15012.5 {
		t.Fatalf("TotalSpent = %v", got)
	}
	if got := Remaining(b); got != 50000-15012.5 {
		t.Fatalf("Remaining = %v", got)
	}
	if got := CategoryRemaining(b.Categories[0]); got != -12.5 {
		t.Fatalf("CategoryRemaining = %v", got)
	}

	var perCategory float64
	for _, c := range b.Categories {
		perCategory += CategorySpent(c)
	}
	if perCategory != TotalSpent(b) {
		t.Fatalf("sum of category spent %v != total %v", perCategory, TotalSpent(b))
	}
}

func TestDerivedViewsEmptyBudget(t *testing.T) {
	b := Budget{Salary: 1234}
	if TotalSpent(b) != 0 || TotalAllocated(b) != 0 {
		t.Fatalf("expected zero totals")
	}
	if Remaining(b) != 1234 {
		t.Fatalf("remaining should equal salary, got %v", Remaining(b))
	}
	s := Summarize(b)
	if s.Remaining != 1234 || s.Unallocated != 1234 || len(s.Categories) != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestSummarizeDecimalSums(t *testing.T) {
	b := Budget{Salary: 1, Categories: []Category{{
		ID: "1", Name: "a", Allocation: 0.3,
		Expenses: []Expense{
			{ID: "x", Amount: 0.1, Date: "2025-01-01T00:00:00Z"},
			{ID: "y", Amount: 0.2, Date: "2025-01-01T00:00:00Z"},
		},
	}}}
	s := Summarize(b)
	if s.TotalSpent != 0.3 {
		t.Fatalf("expected exact 0.3, got %v", s.TotalSpent)
	}
	cs := s.Categories[0]
	if cs.Remaining != 0 || cs.Overspent || cs.Expenses != 2 {
		t.Fatalf("unexpected category summary: %+v", cs)
	}
	if s.Remaining != 0.7 {
		t.Fatalf("expected 0.7 remaining, got %v", s.Remaining)
	}
}
