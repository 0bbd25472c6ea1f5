// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chatbot is the TNEA admissions assistant core: it extracts
// entities from a message, merges them into session memory, routes the
// resolved intent to the downstream decision backend, and renders the
// reply. All statistical reasoning lives downstream; this package only
// orchestrates.
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/tneainsight/chatbot/services/chatbot/backend"
	"github.com/tneainsight/chatbot/services/chatbot/config"
	"github.com/tneainsight/chatbot/services/chatbot/intent"
	"github.com/tneainsight/chatbot/services/chatbot/nlu"
	"github.com/tneainsight/chatbot/services/chatbot/respond"
	"github.com/tneainsight/chatbot/services/chatbot/session"
)

// =============================================================================
// Metrics
// =============================================================================

var outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatbot_outcomes_total",
	Help: "Chat outcomes by final intent and disposition (answered, clarification, downstream_error).",
}, []string{"intent", "disposition"})

var tracer = otel.Tracer("tneainsight.chatbot")

// =============================================================================
// Request / Outcome
// =============================================================================

// Request is one chat turn as seen by the engine. Transport-level
// validation has already happened by the time it gets here.
type Request struct {
	UserID    string
	SessionID string
	Message   string
	Language  string
}

// Entities is the effective entity snapshot for a turn: session-sticky
// fields come from merged memory, per-message fields (college name,
// college type, round) come from the current message only.
type Entities struct {
	Cutoff             *float64 `json:"cutoff"`
	Category           *string  `json:"category"`
	Branch             *string  `json:"branch"`
	Location           *string  `json:"location"`
	CollegeName        *string  `json:"college_name"`
	CollegeType        *string  `json:"college_type"`
	RoundNumber        *int     `json:"round_number"`
	GenderQuota        *string  `json:"gender_quota"`
	FirstGraduateQuota *bool    `json:"first_graduate_quota"`
}

// Outcome is the JSON-serializable result of one chat turn. Every turn
// produces an Outcome; downstream failures surface as apology text plus
// DownstreamError, never as a transport error.
type Outcome struct {
	Intent          string   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	Entities        Entities `json:"entities"`
	Results         []any    `json:"results"`
	ResponseText    string   `json:"response_text"`
	DownstreamError string   `json:"downstream_error,omitempty"`
}

// =============================================================================
// Engine
// =============================================================================

// Engine routes resolved intents to downstream operations.
//
// # Thread Safety
//
// Safe for concurrent use; per-session races on the sticky merge are
// accepted (last writer per field wins).
type Engine struct {
	sessions  *session.Store
	extractor *nlu.Extractor
	canon     *nlu.Canonicalizer
	client    *backend.Client
	faq       *config.FAQTable
	logger    *slog.Logger
}

// NewEngine wires the decision engine from its collaborators.
//
// # Inputs
//
//   - sessions: Bounded TTL session store.
//   - extractor: Entity extractor; its canonicalizer is shared.
//   - canon: Controlled-vocabulary canonicalizer.
//   - client: Downstream backend client.
//   - faq: FAQ reply templates.
//   - logger: Structured logger. Must not be nil.
//
// # Outputs
//
//   - *Engine: Ready engine. Never nil.
func NewEngine(sessions *session.Store, extractor *nlu.Extractor, canon *nlu.Canonicalizer, client *backend.Client, faq *config.FAQTable, logger *slog.Logger) *Engine {
	return &Engine{
		sessions:  sessions,
		extractor: extractor,
		canon:     canon,
		client:    client,
		faq:       faq,
		logger:    logger,
	}
}

// Handle runs one chat turn.
//
// # Description
//
// Extracts entities from the message, sticky-merges them into session
// memory, validates the effective entities, then either returns a
// clarification (missing or unrecognized fields) or dispatches the
// intent's downstream operation and renders the reply. Downstream
// failure degrades to an apology with the error attached; it never
// fails the turn.
//
// # Inputs
//
//   - ctx: Request context; bounds the downstream calls.
//   - req: The chat turn.
//   - resolved: Intent resolution for the message.
//   - headers: Caller headers (cookies, auth) forwarded downstream.
//
// # Outputs
//
//   - *Outcome: Never nil.
func (e *Engine) Handle(ctx context.Context, req Request, resolved intent.Resolution, headers http.Header) *Outcome {
	ctx, span := tracer.Start(ctx, "engine.Handle")
	defer span.End()

	ents := e.extractor.Extract(req.Message)

	// College name, type and round are per-message context, not sticky.
	state := e.sessions.Update(req.UserID, req.SessionID, session.Update{
		Cutoff:        ents.Cutoff,
		Category:      ents.Category,
		Branch:        ents.Branch,
		District:      ents.District,
		GenderQuota:   ents.GenderQuota,
		FirstGraduate: ents.FirstGraduate,
		LastIntent:    resolved.Intent,
	})

	effective := Entities{
		Cutoff:             state.Cutoff,
		Category:           state.Category,
		Branch:             state.Branch,
		Location:           state.District,
		CollegeName:        ents.CollegeName,
		CollegeType:        ents.CollegeType,
		RoundNumber:        ents.Round,
		GenderQuota:        state.GenderQuota,
		FirstGraduateQuota: state.FirstGraduate,
	}

	// An uncanonicalizable branch overrides intent handling entirely.
	if effective.Branch != nil && e.canon.Branch(*effective.Branch) == "" {
		outcomesTotal.WithLabelValues(intent.FallbackIntent, "clarification").Inc()
		return &Outcome{
			Intent:     intent.FallbackIntent,
			Confidence: resolved.Confidence,
			Entities:   effective,
			Results:    []any{},
			ResponseText: "I couldn't recognize that branch. Try one of these: " +
				strings.Join(e.canon.SuggestBranches(), ", ") + ".",
		}
	}

	switch resolved.Intent {
	case "college_recommendation":
		return e.handleRecommendation(ctx, req, resolved, effective, headers)
	case "cutoff_prediction":
		return e.handlePrediction(ctx, resolved, effective, headers)
	case "college_comparison":
		return e.handleComparison(ctx, req, resolved, effective, headers)
	case "safe_target_dream_query":
		return e.handleSafeTargetDream(ctx, req, resolved, effective, headers)
	case "greeting", "goodbye", "counselling_process", "document_verification", "seat_trend_analysis":
		outcomesTotal.WithLabelValues(resolved.Intent, "answered").Inc()
		return &Outcome{
			Intent:       resolved.Intent,
			Confidence:   resolved.Confidence,
			Entities:     effective,
			Results:      []any{},
			ResponseText: respond.RenderFAQ(e.faq, resolved.Intent, req.Language),
		}
	default:
		outcomesTotal.WithLabelValues(intent.FallbackIntent, "clarification").Inc()
		return &Outcome{
			Intent:     intent.FallbackIntent,
			Confidence: resolved.Confidence,
			Entities:   effective,
			Results:    []any{},
			ResponseText: "I want to help - are you looking for cutoff prediction, college recommendations, " +
				"college comparison, or counselling guidance? Please share your cutoff + category to get started.",
		}
	}
}

// =============================================================================
// Intent handlers
// =============================================================================

func (e *Engine) handleRecommendation(ctx context.Context, req Request, resolved intent.Resolution, effective Entities, headers http.Header) *Outcome {
	if effective.Cutoff == nil || effective.Category == nil {
		outcomesTotal.WithLabelValues(resolved.Intent, "clarification").Inc()
		return &Outcome{
			Intent:       resolved.Intent,
			Confidence:   resolved.Confidence,
			Entities:     effective,
			Results:      []any{},
			ResponseText: "Could you please provide your cutoff score and community category (OC/BC/BCM/MBC/SC/ST/SCA)?",
		}
	}

	payload := backend.RecommendRequest{
		Cutoff:             *effective.Cutoff,
		Category:           e.canon.Category(*effective.Category),
		Branch:             e.canonBranchPtr(effective.Branch),
		Location:           e.canonLocationPtr(effective.Location),
		GenderQuota:        effective.GenderQuota,
		FirstGraduateQuota: effective.FirstGraduateQuota,
		Round:              effective.RoundNumber,
		CollegeType:        effective.CollegeType,
	}

	rec := e.client.RecommendColleges(ctx, payload, headers)
	if !rec.OK {
		outcomesTotal.WithLabelValues(resolved.Intent, "downstream_error").Inc()
		return &Outcome{
			Intent:          resolved.Intent,
			Confidence:      resolved.Confidence,
			Entities:        effective,
			Results:         []any{},
			ResponseText:    "I couldn't reach the recommendation engine right now. Please try again in a moment.",
			DownstreamError: rec.Err,
		}
	}

	lastYear := e.lastYearCutoff(ctx, headers)
	recommendations := backend.NormalizeResults(rec.Data)
	text, rows := respond.RenderRecommendations(*effective.Cutoff, *effective.Category, payload.Branch, payload.Location, recommendations, lastYear)

	results := make([]any, 0, len(rows))
	for _, row := range rows {
		results = append(results, row)
	}
	outcomesTotal.WithLabelValues(resolved.Intent, "answered").Inc()
	return &Outcome{
		Intent:       resolved.Intent,
		Confidence:   resolved.Confidence,
		Entities:     effective,
		Results:      results,
		ResponseText: text,
	}
}

func (e *Engine) handlePrediction(ctx context.Context, resolved intent.Resolution, effective Entities, headers http.Header) *Outcome {
	if effective.Cutoff == nil || effective.Category == nil {
		outcomesTotal.WithLabelValues(resolved.Intent, "clarification").Inc()
		return &Outcome{
			Intent:       resolved.Intent,
			Confidence:   resolved.Confidence,
			Entities:     effective,
			Results:      []any{},
			ResponseText: "Please share your cutoff/marks and category, and (if possible) the college + branch you want to predict for.",
		}
	}

	// Cutoff doubles as marks when the user phrases it that way.
	payload := backend.PredictCutoffRequest{
		Marks:    *effective.Cutoff,
		Category: e.canon.Category(*effective.Category),
	}
	pred := e.client.PredictCutoff(ctx, payload, headers)
	if !pred.OK {
		outcomesTotal.WithLabelValues(resolved.Intent, "downstream_error").Inc()
		return &Outcome{
			Intent:          resolved.Intent,
			Confidence:      resolved.Confidence,
			Entities:        effective,
			Results:         []any{},
			ResponseText:    "I couldn't reach the cutoff prediction engine right now. Please try again.",
			DownstreamError: pred.Err,
		}
	}

	results := []any{}
	if len(pred.Data) > 0 {
		results = append(results, pred.Data)
	}
	outcomesTotal.WithLabelValues(resolved.Intent, "answered").Inc()
	return &Outcome{
		Intent:       resolved.Intent,
		Confidence:   resolved.Confidence,
		Entities:     effective,
		Results:      results,
		ResponseText: fmt.Sprintf("Here's the cutoff prediction output from the model: %s", pred.Data),
	}
}

func (e *Engine) handleComparison(ctx context.Context, req Request, resolved intent.Resolution, effective Entities, headers http.Header) *Outcome {
	// Comparison needs a college named in this message, not one
	// remembered from a previous turn.
	if effective.CollegeName == nil {
		outcomesTotal.WithLabelValues(resolved.Intent, "clarification").Inc()
		return &Outcome{
			Intent:       resolved.Intent,
			Confidence:   resolved.Confidence,
			Entities:     effective,
			Results:      []any{},
			ResponseText: `Which two colleges do you want to compare? (Example: "Compare PSG Tech vs SSN")`,
		}
	}

	res := e.client.CompareColleges(ctx, backend.CompareRequest{Query: req.Message}, headers)
	if !res.OK {
		outcomesTotal.WithLabelValues(resolved.Intent, "downstream_error").Inc()
		return &Outcome{
			Intent:          resolved.Intent,
			Confidence:      resolved.Confidence,
			Entities:        effective,
			Results:         []any{},
			ResponseText:    "I couldn't reach the college comparison module right now.",
			DownstreamError: res.Err,
		}
	}

	results := []any{}
	if len(res.Data) > 0 {
		results = append(results, res.Data)
	}
	outcomesTotal.WithLabelValues(resolved.Intent, "answered").Inc()
	return &Outcome{
		Intent:       resolved.Intent,
		Confidence:   resolved.Confidence,
		Entities:     effective,
		Results:      results,
		ResponseText: "Here's the comparison result.",
	}
}

func (e *Engine) handleSafeTargetDream(ctx context.Context, req Request, resolved intent.Resolution, effective Entities, headers http.Header) *Outcome {
	if effective.Cutoff == nil || effective.Category == nil {
		outcomesTotal.WithLabelValues(resolved.Intent, "clarification").Inc()
		return &Outcome{
			Intent:       resolved.Intent,
			Confidence:   resolved.Confidence,
			Entities:     effective,
			Results:      []any{},
			ResponseText: "Share your cutoff and category, and the college/branch you're aiming for, and I'll classify it as Safe/Target/Dream.",
		}
	}

	res := e.client.SafeTargetDream(ctx, backend.SafeTargetDreamRequest{Query: req.Message, Entities: effective}, headers)
	if !res.OK {
		outcomesTotal.WithLabelValues(resolved.Intent, "downstream_error").Inc()
		return &Outcome{
			Intent:          resolved.Intent,
			Confidence:      resolved.Confidence,
			Entities:        effective,
			Results:         []any{},
			ResponseText:    "I couldn't reach the Safe/Target/Dream classifier right now.",
			DownstreamError: res.Err,
		}
	}

	results := []any{}
	if len(res.Data) > 0 {
		results = append(results, res.Data)
	}
	outcomesTotal.WithLabelValues(resolved.Intent, "answered").Inc()
	return &Outcome{
		Intent:       resolved.Intent,
		Confidence:   resolved.Confidence,
		Entities:     effective,
		Results:      results,
		ResponseText: "Here's the Safe/Target/Dream output.",
	}
}

// =============================================================================
// Enrichment
// =============================================================================

// lastYearCutoff is a best-effort read of the first cutoff-history
// record's generalCutoff value. Any failure (unreachable backend,
// unexpected shape, uncoercible field) yields nil and is never
// surfaced; the history backend gives no ordering guarantee, so this is
// an approximation of "last year", not a contract.
func (e *Engine) lastYearCutoff(ctx context.Context, headers http.Header) *float64 {
	hist := e.client.CutoffHistory(ctx, nil, headers)
	if !hist.OK {
		return nil
	}
	records := backend.NormalizeResults(hist.Data)
	if len(records) == 0 {
		return nil
	}
	switch v := records[0]["generalCutoff"].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

// canonBranchPtr canonicalizes an optional branch; the guard in Handle
// has already rejected unrecognizable values.
func (e *Engine) canonBranchPtr(branch *string) *string {
	if branch == nil {
		return nil
	}
	if code := e.canon.Branch(*branch); code != "" {
		return &code
	}
	return nil
}

// canonLocationPtr canonicalizes an optional district name, passing
// through values outside the alias table unchanged.
func (e *Engine) canonLocationPtr(location *string) *string {
	if location == nil {
		return nil
	}
	if name := e.canon.Location(*location); name != "" {
		return &name
	}
	return nil
}
