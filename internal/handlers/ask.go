package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ragbook/internal/contextutil"
	"ragbook/internal/rag"
	"ragbook/internal/service"
)

// AskHandler handles HTTP requests for grounded questions.
type AskHandler struct {
	engine  rag.Engine
	timeout time.Duration
}

// NewAskHandler creates a new AskHandler. A positive timeout bounds each question.
func NewAskHandler(engine rag.Engine, timeout time.Duration) *AskHandler {
	return &AskHandler{
		engine:  engine,
		timeout: timeout,
	}
}

// AskRequest represents the HTTP request payload for a question.
//
// swagger:model AskRequest
type AskRequest struct {
	Question string `json:"question"`
}

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP answers a question from the indexed books.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question
//
// Retrieves passages with vector and lexical search, checks whether the evidence
// suffices and either answers from the passages or refuses with probing questions.
// Refusals are successful responses.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Answer or refusal with passages
//	'400':
//	  description: Bad request (empty question or invalid body)
//	'502':
//	  description: Embedding or generation service error
//	'503':
//	  description: Vector store unavailable
//	'504':
//	  description: Question timed out
//	'500':
//	  description: Internal server error
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		logger.WarnContext(ctx, "empty question in request")
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.engine.Ask(ctx, req.Question)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}

// handleError maps engine errors to HTTP status codes.
func (h *AskHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "question failed", "error", err)

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Question timed out")
	case errors.Is(err, service.ErrVectorStore):
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
	case errors.Is(err, service.ErrExternalService):
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to answer question")
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}
