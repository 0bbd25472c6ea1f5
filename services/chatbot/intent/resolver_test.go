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
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/tneainsight/chatbot/services/chatbot/config"
)

// mockClassifier lets tests control the classifier verdict per call.
type mockClassifier struct {
	predictFn func(ctx context.Context, text string) (Prediction, error)
}

func (m *mockClassifier) Predict(ctx context.Context, text string) (Prediction, error) {
	return m.predictFn(ctx, text)
}

func newTestResolver(t *testing.T, classifier Classifier) *Resolver {
	t.Helper()
	rules, err := config.GetIntentRules()
	if err != nil {
		t.Fatalf("GetIntentRules() error = %v", err)
	}
	cfg := &config.ServiceConfig{BlendThreshold: 0.55, RuleConfidenceFloor: 0.6}
	return NewResolver(classifier, rules, cfg, slog.Default())
}

func TestResolveRuleOnlyWhenUnavailable(t *testing.T) {
	r := newTestResolver(t, UnavailableClassifier{})

	res := r.Resolve(context.Background(), "hello there")
	if res.Intent != "greeting" {
		t.Errorf("Intent = %q, want greeting", res.Intent)
	}
	if res.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", res.Confidence)
	}
	if res.Source != "rule" {
		t.Errorf("Source = %q, want rule", res.Source)
	}
}

func TestResolveFallbackWhenNothingMatches(t *testing.T) {
	r := newTestResolver(t, UnavailableClassifier{})

	res := r.Resolve(context.Background(), "xyzzy plugh")
	if res.Intent != FallbackIntent {
		t.Errorf("Intent = %q, want %q", res.Intent, FallbackIntent)
	}
	if res.Confidence != FallbackConfidence {
		t.Errorf("Confidence = %v, want %v", res.Confidence, FallbackConfidence)
	}
}

func TestResolveConfidentModelKeepsLabel(t *testing.T) {
	r := newTestResolver(t, &mockClassifier{
		predictFn: func(context.Context, string) (Prediction, error) {
			return Prediction{Label: "cutoff_prediction", Confidence: 0.9}, nil
		},
	})

	// The message also fires the comparison rule, but a confident model
	// wins.
	res := r.Resolve(context.Background(), "compare cutoffs please")
	if res.Intent != "cutoff_prediction" {
		t.Errorf("Intent = %q, want cutoff_prediction", res.Intent)
	}
	if res.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", res.Confidence)
	}
	if res.Source != "model" {
		t.Errorf("Source = %q, want model", res.Source)
	}
}

func TestResolveHesitantModelDefersToRule(t *testing.T) {
	r := newTestResolver(t, &mockClassifier{
		predictFn: func(context.Context, string) (Prediction, error) {
			return Prediction{Label: "seat_trend_analysis", Confidence: 0.3}, nil
		},
	})

	res := r.Resolve(context.Background(), "recommend some colleges")
	if res.Intent != "college_recommendation" {
		t.Errorf("Intent = %q, want college_recommendation", res.Intent)
	}
	// Confidence rises to the rule floor but is never reported as the
	// model's own low score.
	if res.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", res.Confidence)
	}
	if res.Source != "blend" {
		t.Errorf("Source = %q, want blend", res.Source)
	}
}

func TestResolveClassifierErrorDegradesToRules(t *testing.T) {
	r := newTestResolver(t, &mockClassifier{
		predictFn: func(context.Context, string) (Prediction, error) {
			return Prediction{}, errors.New("inference failed")
		},
	})

	res := r.Resolve(context.Background(), "recommend some colleges")
	if res.Intent != "college_recommendation" {
		t.Errorf("Intent = %q, want college_recommendation", res.Intent)
	}
	if res.Source != "rule" {
		t.Errorf("Source = %q, want rule", res.Source)
	}
}

func TestResolveUnsupportedLabelCollapses(t *testing.T) {
	r := newTestResolver(t, &mockClassifier{
		predictFn: func(context.Context, string) (Prediction, error) {
			return Prediction{Label: "weather_forecast", Confidence: 0.95}, nil
		},
	})

	res := r.Resolve(context.Background(), "xyzzy plugh")
	if res.Intent != FallbackIntent {
		t.Errorf("Intent = %q, want %q", res.Intent, FallbackIntent)
	}
}

func TestRuleKeywordsMatchOnWordBoundaries(t *testing.T) {
	r := newTestResolver(t, UnavailableClassifier{})

	// "which" contains "hi" but must not read as a greeting; the message
	// fires the recommendation rule instead.
	res := r.Resolve(context.Background(), "which college suits me")
	if res.Intent == "greeting" {
		t.Fatalf("Intent = greeting for %q, keyword matched inside a word", "which college suits me")
	}
	if res.Intent != "college_recommendation" {
		t.Errorf("Intent = %q, want college_recommendation", res.Intent)
	}
}

func TestRuleOrderFirstGroupWins(t *testing.T) {
	r := newTestResolver(t, UnavailableClassifier{})

	// Greeting is declared before recommendation; a message firing both
	// resolves to the earlier group.
	res := r.Resolve(context.Background(), "hi, recommend colleges")
	if res.Intent != "greeting" {
		t.Errorf("Intent = %q, want greeting", res.Intent)
	}
}

func TestSupportedIsClosedAndSorted(t *testing.T) {
	got := Supported()
	if len(got) != 10 {
		t.Fatalf("Supported() returned %d intents, want 10", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("Supported() not sorted: %q before %q", got[i-1], got[i])
		}
	}
}
