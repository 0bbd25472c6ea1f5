// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tneainsight/chatbot/services/chatbot/config"
)

// =============================================================================
// Extracted Entities
// =============================================================================

// Entities is the structured entity bag extracted from one message.
//
// # Description
//
// Every field is optional; nil means the message carried no signal for it.
// An Entities value is produced fresh per message, never mutated after
// extraction, and discarded once merged into session state.
type Entities struct {
	// Cutoff is the applicant's admission-eligibility mark (2-3 digits,
	// up to two decimal places).
	Cutoff *float64

	// Category is the canonical reservation category code.
	Category *string

	// Branch is the canonical branch code.
	Branch *string

	// District is the canonical district or pass-through place name.
	District *string

	// CollegeName is a free-text college reference (not canonicalized).
	CollegeName *string

	// CollegeType is Government, Autonomous or Private.
	CollegeType *string

	// Round is the counselling round number (1-3).
	Round *int

	// GenderQuota is "female" or "male"; female takes precedence when both
	// keyword sets appear.
	GenderQuota *string

	// FirstGraduate is the tri-state first-graduate quota flag; nil means
	// unknown.
	FirstGraduate *bool
}

// =============================================================================
// Extractor
// =============================================================================

// gazetteerLabel identifies one labeled span class in the pattern pass.
type gazetteerLabel int

const (
	labelBranch gazetteerLabel = iota
	labelCategory
	labelLocation
)

// Extractor performs hybrid entity extraction over a normalized message.
//
// # Description
//
// Extraction runs a fixed precedence pipeline: explicit regex/keyword
// signals first (cutoff, category, round, gender, first-graduate, college
// type), then a gazetteer span pass for branch/category/location, then
// location and college-name fallbacks, then a final canonicalization pass.
// Regex precedence over the gazetteer is intentional: explicit numeric,
// category and round signals are unambiguous and must not be overridden by
// noisier span matching. No field has more than one writer per call.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Extractor struct {
	canon *Canonicalizer

	numberRE      *regexp.Regexp
	cutoffValueRE *regexp.Regexp
	categoryRE    *regexp.Regexp
	roundRE       *regexp.Regexp
	femaleRE      *regexp.Regexp
	maleRE        *regexp.Regexp
	govtRE        *regexp.Regexp
	autoRE        *regexp.Regexp
	privRE        *regexp.Regexp
	locFallbackRE *regexp.Regexp
	quotedRE      *regexp.Regexp
	collegeRE     *regexp.Regexp

	gazetteer     map[gazetteerLabel]*regexp.Regexp
	branchCodeGaz *regexp.Regexp
}

// NewExtractor builds an Extractor from the controlled vocabulary.
//
// # Inputs
//
//   - vocab: Loaded vocabulary (gazetteer source). Must not be nil.
//   - canon: Canonicalizer built from the same vocabulary. Must not be nil.
//
// # Outputs
//
//   - *Extractor: Ready-to-use extractor. Never nil.
func NewExtractor(vocab *config.Vocabulary, canon *Canonicalizer) *Extractor {
	e := &Extractor{
		canon:         canon,
		numberRE:      regexp.MustCompile(`\d+(?:\.\d+)?`),
		cutoffValueRE: regexp.MustCompile(`^\d{2,3}(?:\.\d{1,2})?$`),
		categoryRE:    regexp.MustCompile(`(?i)\b(OC|BCM|BC|MBC|SC|ST|SCA)\b`),
		roundRE:       regexp.MustCompile(`(?i)\b(?:round|rnd)\s*([123])\b`),
		femaleRE:      regexp.MustCompile(`(?i)\b(?:female|girls|women)\b`),
		maleRE:        regexp.MustCompile(`(?i)\b(?:male|boys|men)\b`),
		govtRE:        regexp.MustCompile(`(?i)\b(?:govt|government)\b`),
		autoRE:        regexp.MustCompile(`(?i)\b(?:autonomous|auto)\b`),
		privRE:        regexp.MustCompile(`(?i)\b(?:private)\b`),
		locFallbackRE: regexp.MustCompile(`(?i)\b(?:in|at|near)\s+([A-Za-z][A-Za-z .'-]{2,40})\b`),
		quotedRE:      regexp.MustCompile(`"([^"]{3,80})"`),
		collegeRE:     regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z .'-]{2,80}\b(?:college|institute|university)\b[ A-Za-z.&'-]{0,40})`),
		gazetteer:     make(map[gazetteerLabel]*regexp.Regexp),
	}

	// Branch spans: canonical codes match case-sensitively ("IT" yes, the
	// pronoun "it" no); aliases of three or more characters match
	// case-insensitively. Two-letter aliases like "ai" or "cs" are too
	// ambiguous in lowercase running text.
	var branchCodes, branchAliases []string
	for _, b := range vocab.Branches {
		branchCodes = append(branchCodes, b.Code)
		for _, a := range b.Aliases {
			if len(a) >= 3 {
				branchAliases = append(branchAliases, a)
			}
		}
	}
	var locationTokens []string
	for _, d := range vocab.Districts {
		locationTokens = append(locationTokens, d.Name)
		locationTokens = append(locationTokens, d.Aliases...)
	}
	e.gazetteer[labelBranch] = compileGazetteer(branchAliases, false)
	e.gazetteer[labelCategory] = compileGazetteer(vocab.Categories, true)
	e.gazetteer[labelLocation] = compileGazetteer(locationTokens, false)
	e.branchCodeGaz = compileGazetteer(branchCodes, true)
	return e
}

// compileGazetteer builds one word-boundary alternation over the given
// tokens. Longer tokens sort first so a span like "computer science" wins
// over "cse" at the same position.
func compileGazetteer(tokens []string, caseSensitive bool) *regexp.Regexp {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	escaped := make([]string, len(sorted))
	for i, t := range sorted {
		escaped[i] = regexp.QuoteMeta(t)
	}
	prefix := `(?i)`
	if caseSensitive {
		prefix = ``
	}
	return regexp.MustCompile(prefix + `\b(` + strings.Join(escaped, "|") + `)\b`)
}

// NormalizeWhitespace collapses runs of whitespace to single spaces and
// trims the ends. All extraction and intent resolution operates on
// normalized text.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Extract produces the entity bag for one normalized message.
//
// # Description
//
// Runs the precedence pipeline described on Extractor. Fields the message
// carries no signal for stay nil.
//
// # Inputs
//
//   - text: Whitespace-normalized message text.
//
// # Outputs
//
//   - Entities: The extracted entity bag.
func (e *Extractor) Extract(text string) Entities {
	var out Entities

	// 1. Numeric cutoff: first 2-3 digit number with at most two decimal
	// places. Candidate digit runs are maximal, so a token adjacent to more
	// digits fails the value check rather than matching a prefix.
	for _, cand := range e.numberRE.FindAllString(text, -1) {
		if !e.cutoffValueRE.MatchString(cand) {
			continue
		}
		if v, err := strconv.ParseFloat(cand, 64); err == nil {
			out.Cutoff = &v
		}
		break
	}

	// 2. Category code, canonicalized.
	if m := e.categoryRE.FindStringSubmatch(text); m != nil {
		if cat := e.canon.Category(m[1]); cat != "" {
			out.Category = &cat
		}
	}

	// 3. Round number.
	if m := e.roundRE.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out.Round = &n
		}
	}

	// 4. Gender quota; female keywords take precedence.
	if e.femaleRE.MatchString(text) {
		g := "female"
		out.GenderQuota = &g
	} else if e.maleRE.MatchString(text) {
		g := "male"
		out.GenderQuota = &g
	}

	// 5. First-graduate tri-state.
	out.FirstGraduate = e.canon.DetectFirstGraduate(text).Bool()

	// 6. College type: government before autonomous before private.
	switch {
	case e.govtRE.MatchString(text):
		t := "Government"
		out.CollegeType = &t
	case e.autoRE.MatchString(text):
		t := "Autonomous"
		out.CollegeType = &t
	case e.privRE.MatchString(text):
		t := "Private"
		out.CollegeType = &t
	}

	// 7. Gazetteer span pass; raw span text, canonicalized in step 10.
	// Only fills fields the explicit signals above left empty.
	var rawBranch, rawDistrict string
	rawBranch = firstSpan(text, e.branchCodeGaz, e.gazetteer[labelBranch])
	if out.Category == nil {
		if m := e.gazetteer[labelCategory].FindStringSubmatch(text); m != nil {
			if cat := e.canon.Category(m[1]); cat != "" {
				out.Category = &cat
			}
		}
	}
	if m := e.gazetteer[labelLocation].FindStringSubmatch(text); m != nil {
		rawDistrict = m[1]
	}

	// 8. Location fallback: "in/at/near <capitalized phrase>".
	if rawDistrict == "" {
		if m := e.locFallbackRE.FindStringSubmatch(text); m != nil {
			rawDistrict = m[1]
		}
	}

	// 9. College name: quoted substring preferred, else a phrase ending in
	// college/institute/university.
	if m := e.quotedRE.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		out.CollegeName = &name
	} else if m := e.collegeRE.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		out.CollegeName = &name
	}

	// 10. Final canonicalization of the raw span fields.
	if rawBranch != "" {
		if code := e.canon.Branch(rawBranch); code != "" {
			out.Branch = &code
		}
	}
	if rawDistrict != "" {
		if name := e.canon.Location(rawDistrict); name != "" {
			out.District = &name
		}
	}

	return out
}

// firstSpan returns the earliest match across the given span regexes, or ""
// when none match. Used for the branch pass, where canonical codes and
// lowercase aliases are matched by separate expressions.
func firstSpan(text string, regexes ...*regexp.Regexp) string {
	best := -1
	var span string
	for _, re := range regexes {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if best == -1 || loc[2] < best {
			best = loc[2]
			span = text[loc[2]:loc[3]]
		}
	}
	return span
}
