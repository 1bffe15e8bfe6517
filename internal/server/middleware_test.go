package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		adopt  bool
	}{
		{"minted", "", false},
		{"caller id", "cli_3f2a9c1e", true},
		{"with spaces", "a b", false},
		{"with newline", "x\nlevel=ERROR", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if seen == "" || w.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("context id %q, header %q", seen, w.Header().Get(RequestIDHeader))
			}
			if got := seen == tt.header; got != tt.adopt {
				t.Errorf("id = %q, adopted caller id = %v, want %v", seen, got, tt.adopt)
			}
			if !tt.adopt && !strings.HasPrefix(seen, "req_") {
				t.Errorf("minted id = %q, want req_ prefix", seen)
			}
		})
	}
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		method string
		status int
		want   string
	}{
		{http.MethodGet, 0, "level=DEBUG"},
		{http.MethodPost, http.StatusCreated, "level=INFO"},
		{http.MethodPost, http.StatusConflict, "level=WARN"},
		{http.MethodGet, http.StatusInternalServerError, "level=ERROR"},
	}
	for _, tt := range tests {
		buf.Reset()
		h := requestIDMiddleware(loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tt.status != 0 {
				w.WriteHeader(tt.status)
			}
			w.Write([]byte("{}"))
		})))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, "/api/v1/jobs", nil))

		out := buf.String()
		wantStatus := tt.status
		if wantStatus == 0 {
			wantStatus = http.StatusOK
		}
		if !strings.Contains(out, tt.want) || !strings.Contains(out, "bytes=2") ||
			!strings.Contains(out, "status="+strconv.Itoa(wantStatus)) ||
			!strings.Contains(out, "request_id=req_") {
			t.Errorf("%s %d: log = %s", tt.method, tt.status, out)
		}
	}
}
