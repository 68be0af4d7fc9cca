package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultPollInterval = time.Second
	defaultPollAttempts = 30
)

// ModelLoader loads models into a llama.cpp router server via the /models/load endpoint.
type ModelLoader struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	pollAttempts int
}

// NewModelLoader creates a new model loader.
func NewModelLoader(baseURL string) *ModelLoader {
	return &ModelLoader{
		baseURL:      baseURL,
		client:       newHTTPClient(),
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
}

// LoadModelRequest represents the request payload for loading a model.
type LoadModelRequest struct {
	Model     string   `json:"model"`
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// LoadModelResponse represents the response from the load model endpoint.
type LoadModelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ModelStatus represents the status of a model from the /models endpoint.
type ModelStatus struct {
	ID      string `json:"id"`
	InCache bool   `json:"in_cache"`
	Status  struct {
		Value    string `json:"value"`
		ExitCode *int   `json:"exit_code,omitempty"`
		Failed   *bool  `json:"failed,omitempty"`
	} `json:"status"`
}

// ModelsResponse represents the response from the /models endpoint.
type ModelsResponse struct {
	Data []ModelStatus `json:"data"`
}

// modelStatus returns the status entry for modelName, or nil when the server does not list it.
func (ml *ModelLoader) modelStatus(ctx context.Context, modelName string) (*ModelStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/models", ml.baseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := ml.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check model status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	for i := range modelsResp.Data {
		if modelsResp.Data[i].ID == modelName {
			return &modelsResp.Data[i], nil
		}
	}
	return nil, nil
}

// IsModelLoaded checks if a model is already loaded (in cache) in the llama.cpp server.
func (ml *ModelLoader) IsModelLoaded(ctx context.Context, modelName string) (bool, error) {
	status, err := ml.modelStatus(ctx, modelName)
	if err != nil {
		return false, err
	}
	return status != nil && status.InCache, nil
}

// LoadModel loads a model into the llama.cpp server with optional extra arguments.
// It checks if the model is already loaded first, and only loads if not in cache.
// It waits for the model to actually load and verifies it's in cache before returning.
func (ml *ModelLoader) LoadModel(ctx context.Context, modelName string, extraArgs []string) error {
	// A failed status check falls through to a load attempt; it may be transient.
	if loaded, err := ml.IsModelLoaded(ctx, modelName); err == nil && loaded {
		return nil
	}

	body, err := json.Marshal(LoadModelRequest{
		Model:     modelName,
		ExtraArgs: extraArgs,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/models/load", ml.baseURL), bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ml.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var loadResp LoadModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&loadResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !loadResp.Success {
		return fmt.Errorf("model load failed: %s", loadResp.Error)
	}

	// /models/load returns before loading finishes, and loading may still fail.
	ticker := time.NewTicker(ml.pollInterval)
	defer ticker.Stop()
	for i := 0; i < ml.pollAttempts; i++ {
		status, err := ml.modelStatus(ctx, modelName)
		if err == nil && status != nil {
			if status.InCache {
				return nil
			}
			if status.Status.Failed != nil && *status.Status.Failed {
				exitCode := 0
				if status.Status.ExitCode != nil {
					exitCode = *status.Status.ExitCode
				}
				return fmt.Errorf("model load failed with exit code %d", exitCode)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return fmt.Errorf("model did not load within timeout period")
}
