package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Wire shapes used by DecodeBudget. Pointers let the decoder tell a missing
// key apart from a zero value.
type (
	wireBudget struct {
		Salary     *float64        `json:"salary"`
		Categories *[]wireCategory `json:"categories"`
	}

	wireCategory struct {
		ID         *string        `json:"id"`
		Name       *string        `json:"name"`
		Allocation *float64       `json:"allocation"`
		Expenses   *[]wireExpense `json:"expenses"`
	}

	wireExpense struct {
		ID     *string  `json:"id"`
		Amount *float64 `json:"amount"`
		Date   *string  `json:"date"`
		Note   *string  `json:"note"`
	}
)

// EncodeBudget serializes b into the persisted record layout. Nil slices are
// written as empty arrays.
func EncodeBudget(b Budget) ([]byte, error) {
	return json.Marshal(normalize(b))
}

// DecodeBudget parses a persisted record. It rejects unknown fields, missing
// keys and any invariant violation with ErrInvalidRecord.
func DecodeBudget(data []byte) (Budget, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireBudget
	if err := dec.Decode(&w); err != nil {
		return Budget{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Budget{}, fmt.Errorf("%w: trailing data", ErrInvalidRecord)
	}

	b, err := w.budget()
	if err != nil {
		return Budget{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := b.Validate(); err != nil {
		return Budget{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return b, nil
}

func (w wireBudget) budget() (Budget, error) {
	if w.Salary == nil {
		return Budget{}, errors.New("missing salary")
	}
	if w.Categories == nil {
		return Budget{}, errors.New("missing categories")
	}
	b := Budget{Salary: *w.Salary, Categories: make([]Category, 0, len(*w.Categories))}
	for i, wc := range *w.Categories {
		c, err := wc.category()
		if err != nil {
			return Budget{}, fmt.Errorf("category %d: %w", i, err)
		}
		b.Categories = append(b.Categories, c)
	}
	return b, nil
}

func (w wireCategory) category() (Category, error) {
	switch {
	case w.ID == nil:
		return Category{}, errors.New("missing id")
	case w.Name == nil:
		return Category{}, errors.New("missing name")
	case w.Allocation == nil:
		return Category{}, errors.New("missing allocation")
	case w.Expenses == nil:
		return Category{}, errors.New("missing expenses")
	}
	c := Category{ID: *w.ID, Name: *w.Name, Allocation: *w.Allocation, Expenses: make([]Expense, 0, len(*w.Expenses))}
	for i, we := range *w.Expenses {
		if we.ID == nil || we.Amount == nil || we.Date == nil {
			return Category{}, fmt.Errorf("expense %d: missing id, amount or date", i)
		}
		e := Expense{ID: *we.ID, Amount: *we.Amount, Date: *we.Date}
		if we.Note != nil {
			e.Note = *we.Note
		}
		c.Expenses = append(c.Expenses, e)
	}
	return c, nil
}

func normalize(b Budget) Budget {
	out := b.Clone()
	if out.Categories == nil {
		out.Categories = []Category{}
	}
	return out
}
