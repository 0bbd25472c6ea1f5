// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backend is the HTTP client for the downstream TNEA decision
// backend. The chatbot never reimplements model logic; every statistical
// operation (cutoff prediction, recommendation ranking, comparison,
// safe/target/dream classification, cutoff history) is a call through
// this client.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/tneainsight/chatbot/services/chatbot/config"
)

// =============================================================================
// Metrics
// =============================================================================

var (
	downstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_downstream_requests_total",
		Help: "Downstream backend calls by operation and outcome.",
	}, []string{"operation", "result"})

	downstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatbot_downstream_duration_seconds",
		Help:    "Downstream backend call latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

var tracer = otel.Tracer("tneainsight.chatbot.backend")

// =============================================================================
// Result
// =============================================================================

// Result is one downstream call outcome. Downstream failure is data,
// not a Go error: network faults, timeouts and non-2xx responses all
// come back as OK=false so the engine can degrade to an apology rather
// than abort the request.
type Result struct {
	// OK reports whether the call returned a 2xx/3xx response.
	OK bool

	// Data is the raw response body on success. Nil on failure.
	Data json.RawMessage

	// Err describes the failure: the response body for non-2xx, the
	// transport error otherwise. Empty on success.
	Err string

	// StatusCode is the HTTP status, 0 when the call never completed.
	StatusCode int
}

// =============================================================================
// Request payloads
// =============================================================================

// RecommendRequest is the canonical recommendation payload. Optional
// fields marshal as JSON null when absent, matching what the backend
// routes expect.
type RecommendRequest struct {
	Cutoff             float64 `json:"cutoff"`
	Category           string  `json:"category"`
	Branch             *string `json:"branch"`
	Location           *string `json:"location"`
	GenderQuota        *string `json:"gender_quota"`
	FirstGraduateQuota *bool   `json:"first_graduate_quota"`
	Round              *int    `json:"round"`
	CollegeType        *string `json:"college_type"`
}

// legacyRecommendRequest is the remapped shape the legacy
// college-suggestions route expects.
type legacyRecommendRequest struct {
	Marks       float64 `json:"marks"`
	Category    string  `json:"category"`
	Preferences *string `json:"preferences"`
}

// PredictCutoffRequest is the cutoff-prediction payload. CollegeID and
// BranchID are reserved for a future college-specific prediction and
// are always null today.
type PredictCutoffRequest struct {
	Marks     float64 `json:"marks"`
	Category  string  `json:"category"`
	CollegeID *string `json:"collegeId"`
	BranchID  *string `json:"branchId"`
}

// CompareRequest carries the raw user message; the comparison backend
// does its own college-name resolution.
type CompareRequest struct {
	Query string `json:"query"`
}

// SafeTargetDreamRequest carries the raw message plus the effective
// entity snapshot for the request.
type SafeTargetDreamRequest struct {
	Query    string `json:"query"`
	Entities any    `json:"entities"`
}

// =============================================================================
// Client
// =============================================================================

// Client calls the downstream decision backend.
//
// # Description
//
// Every call is bounded by the configured timeout; there are no
// retries. Caller-supplied headers (session cookies, bearer tokens)
// are forwarded unchanged so the backend sees the end user's identity.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	baseURL    string
	cfg        *config.ServiceConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a downstream backend client from service config.
//
// # Inputs
//
//   - cfg: Supplies the base URL, per-operation paths and timeout.
//   - logger: Structured logger. Must not be nil.
//
// # Outputs
//
//   - *Client: Ready client. Never nil.
func NewClient(cfg *config.ServiceConfig, logger *slog.Logger) *Client {
	timeout := cfg.DownstreamTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// PredictCutoff calls the cutoff-prediction route.
func (c *Client) PredictCutoff(ctx context.Context, req PredictCutoffRequest, headers http.Header) Result {
	return c.post(ctx, "predict_cutoff", c.cfg.PredictCutoffPath, req, headers)
}

// RecommendColleges calls the recommendation route.
//
// # Description
//
// When the configured path is the legacy college-suggestions route the
// payload is remapped to the {marks, category, preferences} shape that
// route expects; any other path receives the canonical payload
// unmodified.
func (c *Client) RecommendColleges(ctx context.Context, req RecommendRequest, headers http.Header) Result {
	path := c.cfg.RecommendCollegesPath
	if strings.TrimRight(path, "/") == config.LegacyRecommendPath {
		adapted := legacyRecommendRequest{
			Marks:       req.Cutoff,
			Category:    req.Category,
			Preferences: req.Branch,
		}
		return c.post(ctx, "recommend_colleges", path, adapted, headers)
	}
	return c.post(ctx, "recommend_colleges", path, req, headers)
}

// CompareColleges calls the comparison route.
func (c *Client) CompareColleges(ctx context.Context, req CompareRequest, headers http.Header) Result {
	return c.post(ctx, "compare_colleges", c.cfg.CompareCollegesPath, req, headers)
}

// SafeTargetDream calls the safe/target/dream classification route.
func (c *Client) SafeTargetDream(ctx context.Context, req SafeTargetDreamRequest, headers http.Header) Result {
	return c.post(ctx, "safe_target_dream", c.cfg.SafeTargetDreamPath, req, headers)
}

// CutoffHistory fetches cutoff history records. params become query
// string values; a nil map sends no query string.
func (c *Client) CutoffHistory(ctx context.Context, params map[string]string, headers http.Header) Result {
	return c.get(ctx, "cutoff_history", c.cfg.CutoffHistoryPath, params, headers)
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) post(ctx context.Context, operation, path string, payload any, headers http.Header) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		downstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return Result{Err: fmt.Sprintf("encode payload: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		downstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return Result{Err: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, operation, req, headers)
}

func (c *Client) get(ctx context.Context, operation, path string, params map[string]string, headers http.Header) Result {
	target := c.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		downstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return Result{Err: fmt.Sprintf("build request: %v", err)}
	}
	return c.do(ctx, operation, req, headers)
}

func (c *Client) do(ctx context.Context, operation string, req *http.Request, headers http.Header) Result {
	ctx, span := tracer.Start(ctx, "backend."+operation)
	defer span.End()
	req = req.WithContext(ctx)

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	downstreamDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		downstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.WarnContext(ctx, "downstream call failed", "operation", operation, "error", err)
		return Result{Err: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		downstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return Result{Err: fmt.Sprintf("read response: %v", err), StatusCode: resp.StatusCode}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		downstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.WarnContext(ctx, "downstream rejected request",
			"operation", operation, "status", resp.StatusCode)
		return Result{Err: string(raw), StatusCode: resp.StatusCode}
	}

	downstreamRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return Result{OK: true, Data: json.RawMessage(raw), StatusCode: resp.StatusCode}
}

// =============================================================================
// Response normalization
// =============================================================================

// NormalizeResults flattens the two recommendation response shapes the
// backend is known to produce (an object carrying a "results" array,
// or a bare array) into one record list. Anything else normalizes to
// an empty list.
func NormalizeResults(data json.RawMessage) []map[string]any {
	if len(data) == 0 {
		return nil
	}
	var envelope struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Results != nil {
		return envelope.Results
	}
	var bare []map[string]any
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare
	}
	return nil
}
