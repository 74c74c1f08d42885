package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(Config{BaseURL: baseURL, APIKey: "test-key", Model: "test-model"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	return c
}

func TestComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "result = head(df)"}},
			},
		})
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "result = head(df)" {
		t.Fatalf("Complete() = %q", got)
	}
}

func TestComplete_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrNoCredentials},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrGeneratorUnavailable},
		{http.StatusBadRequest, ErrGeneratorError},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := newTestClient(t, srv.URL).Complete(context.Background(), "s", "u")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: error = %v, want %v", tt.status, err, tt.want)
		}
		srv.Close()
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "s", "u")
	if !errors.Is(err, ErrGeneratorEmpty) {
		t.Fatalf("error = %v, want ErrGeneratorEmpty", err)
	}
}

func TestComplete_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 5; i++ {
		c.Complete(context.Background(), "s", "u")
	}
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, ErrGeneratorUnavailable) {
		t.Fatalf("error = %v, want unavailable with open circuit", err)
	}
}

func TestNewHTTPClient_RequiresKey(t *testing.T) {
	_, err := NewHTTPClient(Config{}, zerolog.Nop())
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("error = %v, want ErrNoCredentials", err)
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(ErrRateLimited); got != ErrCodeRateLimited {
		t.Errorf("ErrorCode(rate limited) = %q", got)
	}
	if got := ErrorCode(errors.New("misc")); got != ErrCodeGeneratorError {
		t.Errorf("ErrorCode(misc) = %q", got)
	}
}
