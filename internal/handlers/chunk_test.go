package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func chunkRouter(t *testing.T) http.Handler {
	t.Helper()
	docs, chunks := newTestStore(t)
	r := chi.NewRouter()
	r.Get("/api/v1/chunks/{chunkID}", NewChunkHandler(chunks, docs).ServeHTTP)
	return r
}

func TestChunkHandler_JSON(t *testing.T) {
	router := chunkRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chunks/statics-0123456789ab::p1::c1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	var resp ChunkResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := ChunkResponse{
		ChunkID:     "statics-0123456789ab::p1::c1",
		DocID:       "statics-0123456789ab",
		DocTitle:    "Statics",
		LocalIdx:    1,
		PageStart:   1,
		PageEnd:     1,
		Section:     "Forces",
		PostContext: "Moments follow.",
		Text:        "A **force** has magnitude and direction.",
	}
	if resp != want {
		t.Errorf("response = %+v, want %+v", resp, want)
	}
}

func TestChunkHandler_HTML(t *testing.T) {
	router := chunkRouter(t)

	tests := []struct {
		name    string
		path    string
		want    []string
		notWant []string
	}{
		{
			name: "markdown rendered",
			path: "/api/v1/chunks/statics-0123456789ab::p1::c1?format=html",
			want: []string{"<title>Statics (page 1)</title>", "<strong>force</strong>", "Forces", "Moments follow."},
		},
		{
			name:    "raw html omitted",
			path:    "/api/v1/chunks/statics-0123456789ab::p2::c2?format=html",
			want:    []string{"page 2", "lever arm", "A force has magnitude."},
			notWant: []string{"<script>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("Content-Type = %q", ct)
			}
			body := w.Body.String()
			for _, s := range tt.want {
				if !strings.Contains(body, s) {
					t.Errorf("body missing %q", s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(body, s) {
					t.Errorf("body contains %q", s)
				}
			}
		})
	}
}

func TestChunkHandler_NotFound(t *testing.T) {
	router := chunkRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chunks/missing::p1::c1", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPageLabel(t *testing.T) {
	if got := pageLabel(3, 3); got != "page 3" {
		t.Errorf("pageLabel(3, 3) = %q", got)
	}
	if got := pageLabel(3, 5); got != "pages 3-5" {
		t.Errorf("pageLabel(3, 5) = %q", got)
	}
}
