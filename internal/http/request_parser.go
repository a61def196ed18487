// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request bodies.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Ayushsunny/Budgease/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// errBadAmount marks an amount that is neither a JSON number nor a string.
var errBadAmount = errors.New("amount must be a number or a string")

// Amount accepts a JSON number or a string such as "12,50". A string that
// does not parse is kept as an error so the handler can answer 422 instead
// of failing the whole body with 400.
type Amount struct {
	Set   bool
	Value float64
	Err   error
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	a.Set = true
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Value, a.Err = core.ParseAmount(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errBadAmount
	}
	a.Value = f
	return nil
}

// Float returns the parsed amount. A missing amount is an invalid amount.
func (a Amount) Float() (float64, error) {
	if !a.Set {
		return 0, core.ErrInvalidAmount
	}
	if a.Err != nil {
		return 0, a.Err
	}
	if !core.IsValidAmount(a.Value) {
		return 0, core.ErrInvalidAmount
	}
	return a.Value, nil
}

type amountRequest struct {
	Amount Amount `json:"amount"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

type patchCategoryRequest struct {
	Name       *string `json:"name"`
	Allocation *Amount `json:"allocation"`
}

type expenseRequest struct {
	Amount Amount `json:"amount"`
	Date   string `json:"date"`
	Note   string `json:"note"`
}

// decodeJSON reads exactly one JSON object from the body into dst. Unknown
// fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
