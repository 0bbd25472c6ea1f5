// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent resolves a user message to an intent label and a
// confidence score by blending a statistical classifier with ordered
// keyword rules.
package intent

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/tneainsight/chatbot/services/chatbot/config"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// FallbackIntent is returned when neither the classifier nor the
	// rules can place the message.
	FallbackIntent = "fallback_unknown"

	// FallbackConfidence is the score assigned to FallbackIntent when
	// the classifier is unavailable and no rule fires.
	FallbackConfidence = 0.25
)

// supportedIntents is the closed set the decision engine can act on.
// Classifier labels outside this set collapse to FallbackIntent.
var supportedIntents = map[string]struct{}{
	"greeting":                {},
	"goodbye":                 {},
	"cutoff_prediction":       {},
	"college_recommendation":  {},
	"college_comparison":      {},
	"safe_target_dream_query": {},
	"counselling_process":     {},
	"document_verification":   {},
	"seat_trend_analysis":     {},
	FallbackIntent:            {},
}

// =============================================================================
// Metrics
// =============================================================================

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_intent_resolutions_total",
		Help: "Intent resolutions by winning source (model, rule, blend, fallback).",
	}, []string{"source"})

	classifierErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_intent_classifier_errors_total",
		Help: "Classifier calls that failed and degraded to rule-only resolution.",
	})
)

var tracer = otel.Tracer("tneainsight.chatbot.intent")

// =============================================================================
// Resolution
// =============================================================================

// Resolution is the outcome of intent resolution for one message.
type Resolution struct {
	// Intent is the resolved intent label, always in the supported set.
	Intent string

	// Confidence is the blended confidence in [0, 1].
	Confidence float64

	// Source records which path won: "model", "rule", "blend", or
	// "fallback". Diagnostic only.
	Source string

	// RuleReason is the matched rule's reason string, empty if no rule
	// fired.
	RuleReason string
}

// =============================================================================
// Resolver
// =============================================================================

// compiledRule is one keyword rule with word-boundary matchers.
type compiledRule struct {
	intent   string
	reason   string
	patterns []*regexp.Regexp
}

// Resolver blends classifier predictions with ordered keyword rules.
//
// # Description
//
// Rules are checked in declaration order; the first rule with any
// keyword present in the message wins. Keywords match on word
// boundaries, so "hi" does not fire inside "which". The classifier
// prediction and the rule verdict are then blended: a confident model
// keeps its label, a hesitant model defers to the rule, and total
// silence falls back to FallbackIntent.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Resolver struct {
	classifier     Classifier
	rules          []compiledRule
	blendThreshold float64
	ruleFloor      float64
	logger         *slog.Logger
}

// NewResolver builds a resolver from the rule set and service config.
//
// # Inputs
//
//   - classifier: Statistical classifier, may be UnavailableClassifier.
//   - rules: Ordered keyword rules from config.
//   - cfg: Supplies the blend threshold and rule confidence floor.
//   - logger: Structured logger. Must not be nil.
//
// # Outputs
//
//   - *Resolver: Ready resolver. Never nil.
func NewResolver(classifier Classifier, rules *config.IntentRuleSet, cfg *config.ServiceConfig, logger *slog.Logger) *Resolver {
	compiled := make([]compiledRule, 0, len(rules.Rules))
	for _, r := range rules.Rules {
		cr := compiledRule{intent: r.Intent, reason: r.Reason}
		for _, kw := range r.Keywords {
			// Word boundaries keep short keywords like "hi" from
			// matching inside other words. \b is ASCII-only, so Tamil
			// keywords match as plain substrings.
			pattern := `(?i)` + regexp.QuoteMeta(kw)
			if isASCIIWord(kw) {
				pattern = `(?i)\b` + regexp.QuoteMeta(kw) + `\b`
			}
			cr.patterns = append(cr.patterns, regexp.MustCompile(pattern))
		}
		compiled = append(compiled, cr)
	}
	return &Resolver{
		classifier:     classifier,
		rules:          compiled,
		blendThreshold: cfg.BlendThreshold,
		ruleFloor:      cfg.RuleConfidenceFloor,
		logger:         logger,
	}
}

// Resolve determines the intent for a single message.
//
// # Description
//
// Blend policy:
//
//   - Classifier unavailable, rule fired: rule intent at the rule
//     confidence floor.
//   - Classifier unavailable, no rule: FallbackIntent at
//     FallbackConfidence.
//   - Classifier below the blend threshold and a rule fired: rule
//     intent, confidence raised to at least the rule floor (never
//     lowered below the model's own score).
//   - Otherwise: the classifier's label, collapsed to FallbackIntent
//     when outside the supported set.
//
// # Inputs
//
//   - ctx: Request context.
//   - message: Raw user message.
//
// # Outputs
//
//   - Resolution: Never empty; Intent is always a supported label.
func (r *Resolver) Resolve(ctx context.Context, message string) Resolution {
	ctx, span := tracer.Start(ctx, "intent.Resolve")
	defer span.End()

	ruleIntent, ruleReason := r.matchRules(message)

	pred, err := r.classifier.Predict(ctx, message)
	if err != nil {
		if !errors.Is(err, ErrClassifierUnavailable) {
			classifierErrorsTotal.Inc()
			r.logger.WarnContext(ctx, "intent classifier failed, degrading to rules", "error", err)
		}
		if ruleIntent != "" {
			resolutionsTotal.WithLabelValues("rule").Inc()
			return Resolution{Intent: ruleIntent, Confidence: r.ruleFloor, Source: "rule", RuleReason: ruleReason}
		}
		resolutionsTotal.WithLabelValues("fallback").Inc()
		return Resolution{Intent: FallbackIntent, Confidence: FallbackConfidence, Source: "fallback"}
	}

	label := pred.Label
	if _, ok := supportedIntents[label]; !ok {
		label = FallbackIntent
	}

	if pred.Confidence < r.blendThreshold && ruleIntent != "" {
		conf := pred.Confidence
		if conf < r.ruleFloor {
			conf = r.ruleFloor
		}
		resolutionsTotal.WithLabelValues("blend").Inc()
		return Resolution{Intent: ruleIntent, Confidence: conf, Source: "blend", RuleReason: ruleReason}
	}

	resolutionsTotal.WithLabelValues("model").Inc()
	return Resolution{Intent: label, Confidence: pred.Confidence, Source: "model"}
}

// isASCIIWord reports whether every rune is ASCII.
func isASCIIWord(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

// matchRules returns the first rule whose keywords appear in the
// message, or empty strings when none fire.
func (r *Resolver) matchRules(message string) (intent, reason string) {
	lower := strings.ToLower(message)
	for _, cr := range r.rules {
		for _, p := range cr.patterns {
			if p.MatchString(lower) {
				return cr.intent, cr.reason
			}
		}
	}
	return "", ""
}

// Supported returns the sorted list of intents the service can act on.
func Supported() []string {
	out := make([]string, 0, len(supportedIntents))
	for k := range supportedIntents {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
