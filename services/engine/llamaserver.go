// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LlamaServer talks to a llama.cpp server that was started with the model
// named in the LoadRequest.
type LlamaServer struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewLlamaServer returns an Engine for the server at baseURL.
func NewLlamaServer(baseURL string, logger *slog.Logger) (*LlamaServer, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("llama server base URL not set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LlamaServer{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		logger:     logger,
	}, nil
}

// Load checks that the server is up and returns a session bound to req.
func (l *LlamaServer) Load(ctx context.Context, req LoadRequest) (Session, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llama server health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama server not ready: status %d", resp.StatusCode)
	}
	l.logger.Info("model session opened", "model_id", req.ModelID, "server", l.baseURL)
	return &llamaSession{server: l, req: req}, nil
}

type llamaSession struct {
	server *LlamaServer
	req    LoadRequest
}

type completionPayload struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// Generate formats the prompt with the model's template and posts it to
// /completion.
func (s *llamaSession) Generate(ctx context.Context, prompt Prompt, params GenerationParams) (string, error) {
	payload := completionPayload{
		Prompt:      s.req.Template.Format(prompt.System, prompt.User),
		NPredict:    512,
		Temperature: params.Temperature,
		TopK:        params.TopK,
		TopP:        params.TopP,
		Stop:        append(s.req.Template.StopSequences(), params.Stop...),
	}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.server.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.server.logger.Error("llama server returned an error", "status", resp.StatusCode, "body", string(msg))
		return "", fmt.Errorf("llama server returned status %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}

func (s *llamaSession) Close() error { return nil }
