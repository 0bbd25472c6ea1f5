// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// Classifier Contract
// =============================================================================

// Prediction is one statistical classifier output.
type Prediction struct {
	// Label is the predicted intent label.
	Label string `json:"label"`

	// Confidence is the classifier's probability for Label, in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Classifier is the statistical intent classifier contract.
//
// # Description
//
// The classifier is trained offline and deployed outside this service;
// the resolver only consumes its output. Implementations must be ready
// at construction; the resolver never triggers lazy model loads.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	// Predict returns the intent prediction for the given text.
	// A non-nil error means the classifier is unavailable or inference
	// failed; the resolver degrades to rule-only resolution.
	Predict(ctx context.Context, text string) (Prediction, error)
}

// ErrClassifierUnavailable marks a classifier that was not deployed or
// failed its startup check.
var ErrClassifierUnavailable = errors.New("intent classifier unavailable")

// =============================================================================
// UnavailableClassifier
// =============================================================================

// UnavailableClassifier is the typed "no classifier" variant injected when
// no classifier endpoint is configured. Predict always fails with
// ErrClassifierUnavailable, so resolution is rule-only.
type UnavailableClassifier struct{}

// Predict always returns ErrClassifierUnavailable.
func (UnavailableClassifier) Predict(context.Context, string) (Prediction, error) {
	return Prediction{}, ErrClassifierUnavailable
}

// =============================================================================
// HTTPClassifier
// =============================================================================

// HTTPClassifier calls a remote intent classifier over HTTP.
//
// # Description
//
// Sends POST {"text": ...} to the configured URL and expects
// {"label": ..., "confidence": ...} back. Each call is bounded by the
// client timeout; failures surface as errors and the resolver degrades
// to rules. No retries.
//
// # Thread Safety
//
// Safe for concurrent use.
type HTTPClassifier struct {
	url        string
	httpClient *http.Client
}

// NewHTTPClassifier creates a classifier client for the given endpoint.
//
// # Inputs
//
//   - url: Classifier predict endpoint. Must not be empty.
//   - timeout: Per-call timeout. Zero uses 2s.
//
// # Outputs
//
//   - *HTTPClassifier: Ready-to-use client. Never nil.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPClassifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Predict sends the text to the remote classifier.
func (c *HTTPClassifier) Predict(ctx context.Context, text string) (Prediction, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier: read response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("classifier: status %d", resp.StatusCode)
	}

	var pred Prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return Prediction{}, fmt.Errorf("classifier: decode response: %w", err)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		return Prediction{}, fmt.Errorf("classifier: confidence %v out of range", pred.Confidence)
	}
	return pred, nil
}
