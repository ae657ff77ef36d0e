package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/spendcheck/internal/logging"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "debug", "text"))
	defer slog.SetDefault(prev)

	r := chi.NewRouter()
	r.Use(Logger)
	r.Get("/api/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	tests := []struct {
		path string
		want []string
	}{
		{"/api/runs/run-9", []string{"level=WARN", "status=404", "run_id=run-9", "path=/api/runs/run-9"}},
		{"/health", []string{"level=INFO", "status=200", "method=GET"}},
	}
	for _, tt := range tests {
		buf.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
		line := buf.String()
		for _, w := range tt.want {
			if !strings.Contains(line, w) {
				t.Errorf("%s: log line %q missing %q", tt.path, line, w)
			}
		}
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusTeapot)

	if w.status != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("status = %d / %d, want 201", w.status, rec.Code)
	}
	if w.Unwrap() != rec {
		t.Error("Unwrap() did not return the wrapped writer")
	}
}
