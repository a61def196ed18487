package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ayushsunny/Budgease/internal/core"
)

func TestAmount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantSet   bool
		want      float64
		wantErr   error
		decodeErr bool
	}{
		{name: "number", input: `{"amount":12.5}`, wantSet: true, want: 12.5},
		{name: "dot string", input: `{"amount":"12.50"}`, wantSet: true, want: 12.5},
		{name: "comma string", input: `{"amount":"1500,25"}`, wantSet: true, want: 1500.25},
		{name: "padded string", input: `{"amount":"  42 "}`, wantSet: true, want: 42},
		{name: "missing", input: `{}`, wantErr: core.ErrInvalidAmount},
		{name: "null", input: `{"amount":null}`, wantErr: core.ErrInvalidAmount},
		{name: "zero", input: `{"amount":0}`, wantSet: true, wantErr: core.ErrInvalidAmount},
		{name: "negative number", input: `{"amount":-4}`, wantSet: true, wantErr: core.ErrInvalidAmount},
		{name: "signed string", input: `{"amount":"-4"}`, wantSet: true, wantErr: core.ErrInvalidAmount},
		{name: "word", input: `{"amount":"abc"}`, wantSet: true, wantErr: core.ErrInvalidAmount},
		{name: "bool", input: `{"amount":true}`, decodeErr: true},
		{name: "object", input: `{"amount":{"v":1}}`, decodeErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req amountRequest
			err := json.Unmarshal([]byte(tt.input), &req)
			if tt.decodeErr {
				if err == nil {
					t.Fatalf("Unmarshal(%s) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if req.Amount.Set != tt.wantSet {
				t.Errorf("Set = %v, want %v", req.Amount.Set, tt.wantSet)
			}
			got, err := req.Amount.Float()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Float() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Float() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Float() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"name":"Travel"}`},
		{name: "empty body", body: ``, wantErr: "request body is empty"},
		{name: "malformed", body: `{"name":`, wantErr: "invalid JSON body"},
		{name: "unknown field", body: `{"name":"x","color":"red"}`, wantErr: "unknown field"},
		{name: "trailing object", body: `{"name":"x"}{"name":"y"}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst categoryRequest
			err := decodeJSON(w, req, &dst)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("decodeJSON() error = %v", err)
				}
				if dst.Name != "Travel" {
					t.Errorf("Name = %q, want Travel", dst.Name)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("decodeJSON() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPatchCategoryRequest(t *testing.T) {
	var req patchCategoryRequest
	if err := json.Unmarshal([]byte(`{"allocation":"99,90"}`), &req); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if req.Name != nil {
		t.Errorf("Name = %v, want nil", *req.Name)
	}
	if req.Allocation == nil {
		t.Fatal("Allocation = nil, want value")
	}
	if got, err := req.Allocation.Float(); err != nil || got != 99.9 {
		t.Errorf("Allocation.Float() = %v, %v; want 99.9, nil", got, err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Groceries  ", "Groceries"},
		{"Rent\x00\x07", "Rent"},
		{"line\tone", "line\tone"},
		{"", ""},
		{"Caffè", "Caffè"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
