// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the chat service configuration: the env-driven
// service settings and the embedded controlled vocabularies (entity
// canonicalization tables, deterministic intent rules, FAQ templates).
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// Service Configuration
// =============================================================================

// LegacyRecommendPath is the Node backend's college-suggestions route.
// When the recommend path is configured to exactly this value, the
// downstream client remaps {cutoff, category, branch} to
// {marks, category, preferences} before sending (see backend.Client).
const LegacyRecommendPath = "/api/college-suggestions"

// ServiceConfig is the env-driven configuration for the chat service.
//
// Description:
//
//	Values are injected from the environment at startup; nothing here is
//	computed. Paths default to the TNEAInsight Node server routes and can
//	be overridden to point at a dedicated ML backend.
//
// Thread Safety: Immutable after LoadServiceConfig; safe for concurrent use.
type ServiceConfig struct {
	// APIBaseURL is the downstream decision backend base URL.
	APIBaseURL string

	// PredictCutoffPath, RecommendCollegesPath, CompareCollegesPath,
	// SafeTargetDreamPath and CutoffHistoryPath are the downstream routes
	// for the five backend operations.
	PredictCutoffPath     string
	RecommendCollegesPath string
	CompareCollegesPath   string
	SafeTargetDreamPath   string
	CutoffHistoryPath     string

	// DownstreamTimeout bounds each downstream call. No retries.
	DownstreamTimeout time.Duration

	// ClassifierURL is the statistical intent classifier endpoint. Empty
	// means no classifier is deployed; the resolver degrades to rules.
	ClassifierURL string

	// ClassifierTimeout bounds each classifier call.
	ClassifierTimeout time.Duration

	// SessionTTL is the session memory time-to-live.
	SessionTTL time.Duration

	// SessionCapacity is the session memory LRU capacity.
	SessionCapacity int

	// BlendThreshold is the classifier confidence below which a matching
	// deterministic rule overrides the model prediction.
	BlendThreshold float64

	// RuleConfidenceFloor is the minimum confidence reported when a rule
	// override fires.
	RuleConfidenceFloor float64
}

// LoadServiceConfig reads the service configuration from the environment.
//
// # Description
//
// Every value has a default suitable for local development against the
// TNEAInsight Node server on localhost. Malformed values fall back to the
// default rather than failing startup.
//
// # Outputs
//
//   - *ServiceConfig: The loaded configuration. Never nil.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		APIBaseURL:            envString("TNEA_API_BASE_URL", "http://127.0.0.1:3000"),
		PredictCutoffPath:     envString("TNEA_PREDICT_CUTOFF_PATH", "/api/predict-cutoff"),
		RecommendCollegesPath: envString("TNEA_RECOMMEND_COLLEGES_PATH", LegacyRecommendPath),
		CompareCollegesPath:   envString("TNEA_COMPARE_COLLEGES_PATH", "/api/compare-colleges"),
		SafeTargetDreamPath:   envString("TNEA_SAFE_TARGET_DREAM_PATH", "/api/safe-target-dream"),
		CutoffHistoryPath:     envString("TNEA_CUTOFF_HISTORY_PATH", "/api/cutoff-history"),
		DownstreamTimeout:     envDuration("TNEA_DOWNSTREAM_TIMEOUT", 15*time.Second),
		ClassifierURL:         envString("INTENT_CLASSIFIER_URL", ""),
		ClassifierTimeout:     envDuration("INTENT_CLASSIFIER_TIMEOUT", 2*time.Second),
		SessionTTL:            envDuration("MEMORY_TTL", time.Hour),
		SessionCapacity:       envInt("MEMORY_MAX_SESSIONS", 5000),
		BlendThreshold:        envFloat("INTENT_BLEND_THRESHOLD", 0.55),
		RuleConfidenceFloor:   envFloat("INTENT_RULE_CONFIDENCE_FLOOR", 0.6),
	}
}

// envString reads a string environment variable with a default value.
func envString(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// envFloat reads a float64 environment variable with a default value.
func envFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// envDuration reads a duration environment variable with a default value.
// Accepts Go duration syntax ("30s", "1h") or a bare integer of seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
