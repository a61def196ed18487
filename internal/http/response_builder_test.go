package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResponseBuilder_Body(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/categories/7").
		Body(map[string]string{"id": "7"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/categories/7" {
		t.Errorf("Location = %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["id"] != "7" {
		t.Errorf("body id = %q, want 7", body["id"])
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "" {
		t.Errorf("Content-Type = %q, want empty", got)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		builder    *JSONResponseBuilder
		wantStatus int
		wantCode   string
		wantHeader [2]string
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest, CodeBadRequest, [2]string{}},
		{"unauthorized", UnauthorizedError("no"), http.StatusUnauthorized, CodeUnauthorized, [2]string{"WWW-Authenticate", `Bearer realm="budgease"`}},
		{"validation", UnprocessableEntityError("invalid amount"), http.StatusUnprocessableEntity, CodeValidation, [2]string{}},
		{"not found", NotFoundError("category not found"), http.StatusNotFound, CodeNotFound, [2]string{}},
		{"not ready", ServiceUnavailableError("loading"), http.StatusServiceUnavailable, CodeNotReady, [2]string{"Retry-After", "1"}},
		{"internal", InternalServerError("boom"), http.StatusInternalServerError, CodeInternal, [2]string{}},
		{"rate limited", TooManyRequestsError(), http.StatusTooManyRequests, CodeRateLimited, [2]string{"Retry-After", "60"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if body.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Error, tt.wantCode)
			}
			if body.Message == "" {
				t.Error("message is empty")
			}
			if tt.wantHeader[0] != "" {
				if got := w.Header().Get(tt.wantHeader[0]); got != tt.wantHeader[1] {
					t.Errorf("%s = %q, want %q", tt.wantHeader[0], got, tt.wantHeader[1])
				}
			}
		})
	}
}
