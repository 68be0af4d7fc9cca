package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ragbook/internal/rag"
	"ragbook/internal/service"
	"ragbook/internal/vectorstore"
)

// mockRAGEngine is a mock implementation of rag.Engine for testing.
type mockRAGEngine struct {
	result      rag.AnswerResult
	err         error
	question    string
	hasDeadline bool
}

func (m *mockRAGEngine) Ask(ctx context.Context, question string) (rag.AnswerResult, error) {
	m.question = question
	_, m.hasDeadline = ctx.Deadline()
	return m.result, m.err
}

// jsonBody encodes body as JSON. Strings are sent verbatim.
func jsonBody(t *testing.T, body any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	return &buf
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAskHandler_Answer(t *testing.T) {
	engine := &mockRAGEngine{result: rag.AnswerResult{
		Answer: "Torque is force times lever arm.",
		Reason: "OK (re-ranked)",
		Passages: []rag.Candidate{{
			ChunkID:    "statics::p3::c1",
			FusedScore: 0.91,
			Payload:    vectorstore.ChunkPayload{ChunkID: "statics::p3::c1", DocTitle: "Statics", Page: 3, Text: "Torque..."},
		}},
		ProbingQuestions: []string{},
		ClaimCheck:       rag.ClaimCheckResult{Mode: rag.ClaimCheckRefuse, Unsupported: []string{}},
		Reranked:         true,
	}}
	handler := NewAskHandler(engine, time.Minute)

	w := postJSON(t, handler, "/api/v1/ask", AskRequest{Question: "What is torque?"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if engine.question != "What is torque?" {
		t.Errorf("engine got question %q", engine.question)
	}
	if !engine.hasDeadline {
		t.Error("request timeout was not applied")
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, key := range []string{"answer", "reason", "passages", "probing_questions", "claim_check", "reranked"} {
		if _, ok := got[key]; !ok {
			t.Errorf("response missing %q: %v", key, got)
		}
	}
	passages := got["passages"].([]any)
	first := passages[0].(map[string]any)
	if first["fused_score"] != 0.91 || first["chunk_id"] != "statics::p3::c1" {
		t.Errorf("passage = %v", first)
	}
}

func TestAskHandler_Refusal(t *testing.T) {
	engine := &mockRAGEngine{result: rag.AnswerResult{
		Answer:           "Not enough information in the books.",
		Reason:           "No hits in index.",
		Passages:         []rag.Candidate{},
		ProbingQuestions: []string{"Which topic? (Original query: 'x')"},
		ClaimCheck:       rag.ClaimCheckResult{Mode: rag.ClaimCheckRefuse, Unsupported: []string{}},
	}}

	w := postJSON(t, NewAskHandler(engine, 0), "/api/v1/ask", AskRequest{Question: "x"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for refusals", w.Code)
	}
	var got rag.AnswerResult
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Reason != "No hits in index." || len(got.ProbingQuestions) != 1 {
		t.Errorf("response = %+v", got)
	}
	if engine.hasDeadline {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestAskHandler_BadRequests(t *testing.T) {
	handler := NewAskHandler(&mockRAGEngine{}, 0)

	tests := []struct {
		name string
		body any
	}{
		{name: "invalid json", body: "{not json"},
		{name: "empty question", body: AskRequest{Question: ""}},
		{name: "blank question", body: AskRequest{Question: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler, "/api/v1/ask", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ask", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestAskHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "validation error",
			err:        &service.ValidationError{Field: "question", Message: "cannot be empty"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "embedding failure",
			err:        fmt.Errorf("%w: failed to embed question: %w", service.ErrExternalService, errors.New("refused")),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "vector store failure",
			err:        fmt.Errorf("%w: vector search failed: %w", service.ErrVectorStore, errors.New("down")),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "deadline exceeded",
			err:        fmt.Errorf("%w: failed to generate answer: %w", service.ErrExternalService, context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAskHandler(&mockRAGEngine{err: tt.err}, 0)
			w := postJSON(t, handler, "/api/v1/ask", AskRequest{Question: "What is torque?"})

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("error body = %q (decode err %v)", resp.Error, err)
			}
		})
	}
}
