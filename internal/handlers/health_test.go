package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragbook/internal/lexical"
	"ragbook/internal/rag"
)

type fakeCollectionChecker struct {
	exists bool
	err    error
}

func (f fakeCollectionChecker) CollectionExists(context.Context, string) (bool, error) {
	return f.exists, f.err
}

type fakeLexicalSource struct {
	status rag.StageStatus
}

func (f fakeLexicalSource) Index(context.Context) (*lexical.Index, rag.StageStatus, error) {
	if f.status == rag.StageDegraded {
		return nil, f.status, errors.New("no index")
	}
	return nil, f.status, nil
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name        string
		store       fakeCollectionChecker
		lexical     LexicalIndexSource
		wantCode    int
		wantStatus  string
		wantLexical string
	}{
		{
			name:       "healthy without lexical provider",
			store:      fakeCollectionChecker{exists: true},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:        "healthy with lexical index",
			store:       fakeCollectionChecker{exists: true},
			lexical:     fakeLexicalSource{status: rag.StageApplied},
			wantCode:    http.StatusOK,
			wantStatus:  "healthy",
			wantLexical: "ok",
		},
		{
			name:        "lexical index unavailable",
			store:       fakeCollectionChecker{exists: true},
			lexical:     fakeLexicalSource{status: rag.StageDegraded},
			wantCode:    http.StatusOK,
			wantStatus:  "degraded",
			wantLexical: "unavailable",
		},
		{
			name:       "collection missing",
			store:      fakeCollectionChecker{exists: false},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name:        "vector store error",
			store:       fakeCollectionChecker{err: errors.New("connection refused")},
			lexical:     fakeLexicalSource{status: rag.StageDegraded},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  "unhealthy",
			wantLexical: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(tt.store, tt.lexical, "books")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Checks["lexical_index"] != tt.wantLexical {
				t.Errorf("lexical check = %q, want %q", resp.Checks["lexical_index"], tt.wantLexical)
			}
			if resp.Timestamp == "" {
				t.Error("timestamp missing")
			}
		})
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	handler := NewHealthHandler(fakeCollectionChecker{exists: true}, nil, "books")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
