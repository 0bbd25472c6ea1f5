// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package respond turns downstream payloads into user-facing replies:
// normalized recommendation records with Safe/Target/Dream labels, and
// fixed FAQ templates keyed by intent and language.
package respond

import (
	"fmt"
	"math"
	"strings"

	"github.com/tneainsight/chatbot/services/chatbot/config"
)

// Classification thresholds. A record at or above SafeThreshold is
// "Safe", at or above TargetThreshold is "Target", everything below is
// "Dream".
const (
	SafeThreshold   = 0.75
	TargetThreshold = 0.5
)

// Record is one normalized recommendation row.
type Record struct {
	College            string   `json:"college"`
	Branch             *string  `json:"branch"`
	Location           *string  `json:"location"`
	Probability        float64  `json:"probability"`
	ProbabilityPercent int      `json:"probability_percent"`
	Classification     string   `json:"classification"`
	LastYearCutoff     *float64 `json:"last_year_cutoff"`
}

// ClassifyProbability maps an admission probability to its
// Safe/Target/Dream tier.
func ClassifyProbability(p float64) string {
	switch {
	case p >= SafeThreshold:
		return "Safe"
	case p >= TargetThreshold:
		return "Target"
	default:
		return "Dream"
	}
}

// Percent converts a probability to a whole percentage, rounding half
// away from zero and clamping to [0, 100].
func Percent(p float64) int {
	clamped := math.Max(0, math.Min(1, p))
	return int(math.Round(clamped * 100))
}

// RenderRecommendations normalizes raw recommendation records and
// composes the narrative reply.
//
// # Description
//
// Each raw record may carry a `probability` in [0, 1] or a legacy
// `matchScore` in [0, 100]; records with neither default to 0.5.
// College and branch names are read from the known downstream aliases,
// falling back to the request's own branch/location. Probabilities are
// rounded to 4 decimal places; downstream-provided classifications are
// kept, otherwise the tier is derived from the probability.
//
// # Inputs
//
//   - cutoff: The applicant's cutoff score, used in the narrative.
//   - category: Community category code, used in the narrative.
//   - branch, location: Canonical request entities, may be nil.
//   - recommendations: Raw downstream records, already list-normalized.
//   - lastYearCutoff: Optional reference cutoff; nil when the history
//     lookup failed or produced nothing.
//
// # Outputs
//
//   - string: The narrative reply.
//   - []Record: Normalized rows, one per input record. Never nil.
func RenderRecommendations(cutoff float64, category string, branch, location *string, recommendations []map[string]any, lastYearCutoff *float64) (string, []Record) {
	results := make([]Record, 0, len(recommendations))
	for _, rec := range recommendations {
		prob, ok := numberField(rec, "probability")
		if !ok {
			if score, scoreOK := numberField(rec, "matchScore"); scoreOK {
				prob, ok = score/100.0, true
			}
		}
		if !ok {
			prob = 0.5
		}

		row := Record{
			College:            stringField(rec, "college", "name", "collegeName"),
			Probability:        math.Round(prob*10000) / 10000,
			ProbabilityPercent: Percent(prob),
			LastYearCutoff:     lastYearCutoff,
		}
		if row.College == "" {
			row.College = "Unknown College"
		}
		if b := stringField(rec, "branch", "branchName"); b != "" {
			row.Branch = &b
		} else {
			row.Branch = branch
		}
		if l := stringField(rec, "location"); l != "" {
			row.Location = &l
		} else {
			row.Location = location
		}
		if cls := stringField(rec, "classification"); cls != "" {
			row.Classification = cls
		} else {
			row.Classification = ClassifyProbability(prob)
		}
		if own, ownOK := numberField(rec, "last_year_cutoff"); ownOK {
			row.LastYearCutoff = &own
		}
		results = append(results, row)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Based on your %.1f cutoff (%s)", cutoff, category)
	if branch != nil {
		fmt.Fprintf(&sb, " for %s", *branch)
	}
	if location != nil {
		fmt.Fprintf(&sb, " in %s", *location)
	}
	sb.WriteString(", here are the best-matching colleges with probability and Safe/Target/Dream labels.")
	if lastYearCutoff != nil {
		diff := cutoff - *lastYearCutoff
		fmt.Fprintf(&sb, " Last year's cutoff was ~%.1f (you are %+.1f vs last year).", *lastYearCutoff, diff)
	}
	sb.WriteString(" If you tell me 2-3 preferred colleges, I can refine the list.")

	return sb.String(), results
}

// numberField reads a numeric field regardless of whether the decoder
// produced float64 or an integer-typed value.
func numberField(rec map[string]any, key string) (float64, bool) {
	switch v := rec[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// stringField returns the first non-empty string among the given keys.
func stringField(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := rec[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// RenderFAQ looks up the fixed reply for (intent, language).
//
// # Description
//
// Tamil requests fall back to the English template when no Tamil entry
// exists; a miss in both languages returns the generic fallback line.
func RenderFAQ(table *config.FAQTable, intent, language string) string {
	if language != "" && language != "en" {
		if text := lookupFAQ(table, intent, language); text != "" {
			return text
		}
	}
	if text := lookupFAQ(table, intent, "en"); text != "" {
		return text
	}
	return table.Fallback
}

func lookupFAQ(table *config.FAQTable, intent, language string) string {
	for _, tpl := range table.Templates {
		if tpl.Intent == intent && tpl.Language == language {
			return tpl.Text
		}
	}
	return ""
}
