package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultCategoryNames seeds a budget the first time an identity is seen.
var DefaultCategoryNames = []string{
	"Rent",
	"Home",
	"Food Order",
	"Grocery",
	"Shopping",
	"Subscription",
	"Misc",
}

type (
	// Identity is the user whose budget is being viewed. The zero value is the
	// anonymous identity.
	Identity struct {
		UID   string `json:"uid"`
		Email string `json:"email,omitempty"`
		Name  string `json:"name,omitempty"`
	}

	Expense struct {
		ID     string  `json:"id" bson:"id"`
		Amount float64 `json:"amount" bson:"amount"`
		Date   string  `json:"date" bson:"date"` // ISO-8601
		Note   string  `json:"note,omitempty" bson:"note,omitempty"`
	}

	Category struct {
		ID         string    `json:"id" bson:"id"`
		Name       string    `json:"name" bson:"name"`
		Allocation float64   `json:"allocation" bson:"allocation"`
		Expenses   []Expense `json:"expenses" bson:"expenses"`
	}

	Budget struct {
		Salary     float64    `json:"salary" bson:"salary"`
		Categories []Category `json:"categories" bson:"categories"`
	}

	// CategoryPatch carries the fields of an updateCategory call. Nil fields are
	// left untouched.
	CategoryPatch struct {
		Name       *string  `json:"name,omitempty"`
		Allocation *float64 `json:"allocation,omitempty"`
	}

	// ExpenseInput is what a caller supplies when logging a spend; the id is
	// generated by the store and an empty Date means now.
	ExpenseInput struct {
		Amount float64 `json:"amount"`
		Date   string  `json:"date,omitempty"`
		Note   string  `json:"note,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty category name")
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidDate      = errors.New("invalid date")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrInvalidRecord    = errors.New("invalid budget record")
)

// AnonymousKey is the storage key used for the anonymous identity by local-only
// adapters.
const AnonymousKey = "budgetData"

// IsAnonymous reports whether no user is signed in.
func (i Identity) IsAnonymous() bool {
	return strings.TrimSpace(i.UID) == ""
}

// Key returns the storage key for the identity.
func (i Identity) Key() string {
	if i.IsAnonymous() {
		return AnonymousKey
	}
	return i.UID
}

// IsValidAmount is true for finite values strictly greater than zero. Salary,
// allocation edits and expense amounts all go through it.
func IsValidAmount(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && x > 0
}

// IsNonEmptyName is true when s has at least one non-space character.
func IsNonEmptyName(s string) bool {
	return strings.TrimSpace(s) != ""
}

// DefaultBudget returns a zero-salary budget with one empty category per name,
// numbered "1".."n". Without names DefaultCategoryNames is used.
func DefaultBudget(names ...string) Budget {
	if len(names) == 0 {
		names = DefaultCategoryNames
	}
	b := Budget{Categories: make([]Category, 0, len(names))}
	for i, name := range names {
		b.Categories = append(b.Categories, Category{
			ID:       strconv.Itoa(i + 1),
			Name:     name,
			Expenses: []Expense{},
		})
	}
	return b
}

// NowTimestamp formats t the way expense dates are stored: UTC, millisecond
// precision, trailing Z.
func NowTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseTimestamp parses an ISO-8601 expense date.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Clone returns a deep copy; mutating the copy never affects b.
func (b Budget) Clone() Budget {
	out := Budget{Salary: b.Salary}
	if b.Categories == nil {
		return out
	}
	out.Categories = make([]Category, len(b.Categories))
	for i, c := range b.Categories {
		out.Categories[i] = c.Clone()
	}
	return out
}

func (c Category) Clone() Category {
	out := c
	out.Expenses = make([]Expense, len(c.Expenses))
	copy(out.Expenses, c.Expenses)
	return out
}

// Equal compares two budgets field for field, including order.
func (b Budget) Equal(o Budget) bool {
	if b.Salary != o.Salary || len(b.Categories) != len(o.Categories) {
		return false
	}
	for i := range b.Categories {
		if !b.Categories[i].Equal(o.Categories[i]) {
			return false
		}
	}
	return true
}

func (c Category) Equal(o Category) bool {
	if c.ID != o.ID || c.Name != o.Name || c.Allocation != o.Allocation || len(c.Expenses) != len(o.Expenses) {
		return false
	}
	for i := range c.Expenses {
		if c.Expenses[i] != o.Expenses[i] {
			return false
		}
	}
	return true
}

// Category returns the category with the given id and its index.
func (b Budget) Category(id string) (Category, int, bool) {
	for i, c := range b.Categories {
		if c.ID == id {
			return c, i, true
		}
	}
	return Category{}, -1, false
}

// Validate checks every invariant of a stored budget. Zero is accepted for
// stored amounts (the seed has zero salary and allocations); only mutations
// require strictly positive values.
func (b Budget) Validate() error {
	if !isStoredAmount(b.Salary) {
		return fmt.Errorf("salary: %w", ErrInvalidAmount)
	}
	seen := make(map[string]struct{}, len(b.Categories))
	for i, c := range b.Categories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("category %d: %w", i, err)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("category %q: %w", c.ID, ErrDuplicateID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("empty category id")
	}
	if !IsNonEmptyName(c.Name) {
		return ErrEmptyName
	}
	if !isStoredAmount(c.Allocation) {
		return fmt.Errorf("allocation: %w", ErrInvalidAmount)
	}
	seen := make(map[string]struct{}, len(c.Expenses))
	for i, e := range c.Expenses {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("expense %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("expense %q: %w", e.ID, ErrDuplicateID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("empty expense id")
	}
	if !isStoredAmount(e.Amount) {
		return ErrInvalidAmount
	}
	if _, err := ParseTimestamp(e.Date); err != nil {
		return err
	}
	return nil
}

// Validate checks a patch before it is merged into a category.
func (p CategoryPatch) Validate() error {
	if p.Name != nil && !IsNonEmptyName(*p.Name) {
		return ErrEmptyName
	}
	if p.Allocation != nil && !IsValidAmount(*p.Allocation) {
		return ErrInvalidAmount
	}
	return nil
}

// Apply merges the patch into c.
func (p CategoryPatch) Apply(c Category) Category {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Allocation != nil {
		c.Allocation = *p.Allocation
	}
	return c
}

func (in ExpenseInput) Validate() error {
	if !IsValidAmount(in.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(in.Date) != "" {
		if _, err := ParseTimestamp(in.Date); err != nil {
			return err
		}
	}
	return nil
}

func isStoredAmount(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && x >= 0
}
