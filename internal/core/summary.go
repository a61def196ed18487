package core

import "github.com/shopspring/decimal"

// CategorySummary is the read-only view of one category.
type CategorySummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Allocation float64 `json:"allocation"`
	Spent      float64 `json:"spent"`
	Remaining  float64 `json:"remaining"`
	Overspent  bool    `json:"overspent"`
	Expenses   int     `json:"expenses"`
}

// Summary aggregates a budget snapshot for display.
type Summary struct {
	Salary         float64           `json:"salary"`
	TotalAllocated float64           `json:"totalAllocated"`
	TotalSpent     float64           `json:"totalSpent"`
	Remaining      float64           `json:"remaining"`
	Unallocated    float64           `json:"unallocated"`
	Categories     []CategorySummary `json:"categories"`
}

// TotalAllocated sums the allocation of every category.
func TotalAllocated(b Budget) float64 {
	total := decimal.Zero
	for _, c := range b.Categories {
		total = total.Add(decimal.NewFromFloat(c.Allocation))
	}
	return total.InexactFloat64()
}

// TotalSpent sums every expense of every category.
func TotalSpent(b Budget) float64 {
	total := decimal.Zero
	for _, c := range b.Categories {
		total = total.Add(categorySpent(c))
	}
	return total.InexactFloat64()
}

// Remaining is salary minus everything spent. It may be negative.
func Remaining(b Budget) float64 {
	spent := decimal.Zero
	for _, c := range b.Categories {
		spent = spent.Add(categorySpent(c))
	}
	return decimal.NewFromFloat(b.Salary).Sub(spent).InexactFloat64()
}

// CategorySpent sums the expenses of c.
func CategorySpent(c Category) float64 {
	return categorySpent(c).InexactFloat64()
}

// CategoryRemaining is allocation minus spent; negative means overspent.
func CategoryRemaining(c Category) float64 {
	return decimal.NewFromFloat(c.Allocation).Sub(categorySpent(c)).InexactFloat64()
}

// Summarize computes every derived view over b in one pass.
func Summarize(b Budget) Summary {
	s := Summary{
		Salary:     b.Salary,
		Categories: make([]CategorySummary, 0, len(b.Categories)),
	}
	allocated, spent := decimal.Zero, decimal.Zero
	for _, c := range b.Categories {
		cs := categorySpent(c)
		rem := decimal.NewFromFloat(c.Allocation).Sub(cs)
		allocated = allocated.Add(decimal.NewFromFloat(c.Allocation))
		spent = spent.Add(cs)
		s.Categories = append(s.Categories, CategorySummary{
			ID:         c.ID,
			Name:       c.Name,
			Allocation: c.Allocation,
			Spent:      cs.InexactFloat64(),
			Remaining:  rem.InexactFloat64(),
			Overspent:  rem.IsNegative(),
			Expenses:   len(c.Expenses),
		})
	}
	salary := decimal.NewFromFloat(b.Salary)
	s.TotalAllocated = allocated.InexactFloat64()
	s.TotalSpent = spent.InexactFloat64()
	s.Remaining = salary.Sub(spent).InexactFloat64()
	s.Unallocated = salary.Sub(allocated).InexactFloat64()
	return s
}

func categorySpent(c Category) decimal.Decimal {
	amounts := make([]float64, len(c.Expenses))
	for i, e := range c.Expenses {
		amounts[i] = e.Amount
	}
	return sum(amounts...)
}
