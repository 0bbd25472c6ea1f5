// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nlu implements the language-understanding leaves of the chat
// service: canonicalization of free-text fragments against the controlled
// vocabularies, and hybrid entity extraction from a single message.
package nlu

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tneainsight/chatbot/services/chatbot/config"
)

// =============================================================================
// Canonicalizer
// =============================================================================

// branchCodeRE accepts short branch codes outside the alias table:
// 2-6 uppercase letters, optionally with one '&' group (e.g. "EEE", "CSBS",
// "AI&DS"). Matched against the uppercased input.
var branchCodeRE = regexp.MustCompile(`^[A-Z]{2,6}(&[A-Z]{1,4})?$`)

// placeNameRE accepts free-text locations that look like a place name:
// letters, spaces, periods, apostrophes and hyphens, 2-41 characters.
var placeNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z .'-]{1,40}$`)

// Canonicalizer maps free-text fragments to controlled vocabulary values.
//
// # Description
//
// All methods are total: they never fail, returning the empty string (or
// FGUnknown) when the input has no canonical form. The alias tables come
// from the embedded vocabulary; lookup maps are built once at construction.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Canonicalizer struct {
	categories   map[string]struct{}
	branchAlias  map[string]string // lowercase alias -> canonical code
	districtAl   map[string]string // lowercase alias -> canonical name
	branchCodes  []string          // sorted canonical codes, for suggestions
	collegeTypes map[string]string // keyword -> canonical type
	fgAffirm     []string
	fgNegate     []string
}

// FirstGraduate is the tri-state result of first-graduate detection.
type FirstGraduate int

const (
	// FGUnknown means neither an affirmative nor a negating signal was seen.
	// Detection is unreliable without one, so unknown is the default; it is
	// never collapsed to false.
	FGUnknown FirstGraduate = iota

	// FGTrue means an affirmative first-graduate keyword was present.
	FGTrue

	// FGFalse means an explicit negation was present.
	FGFalse
)

// Bool returns the tri-state as a nullable bool (nil for unknown).
func (fg FirstGraduate) Bool() *bool {
	switch fg {
	case FGTrue:
		v := true
		return &v
	case FGFalse:
		v := false
		return &v
	default:
		return nil
	}
}

// NewCanonicalizer builds a Canonicalizer from the controlled vocabulary.
//
// # Inputs
//
//   - vocab: Loaded vocabulary tables. Must not be nil.
//
// # Outputs
//
//   - *Canonicalizer: Ready-to-use canonicalizer. Never nil.
func NewCanonicalizer(vocab *config.Vocabulary) *Canonicalizer {
	c := &Canonicalizer{
		categories:   make(map[string]struct{}, len(vocab.Categories)),
		branchAlias:  make(map[string]string),
		districtAl:   make(map[string]string),
		collegeTypes: make(map[string]string),
		fgAffirm:     vocab.FirstGraduate.Affirm,
		fgNegate:     vocab.FirstGraduate.Negate,
	}
	for _, cat := range vocab.Categories {
		c.categories[strings.ToUpper(cat)] = struct{}{}
	}
	for _, b := range vocab.Branches {
		c.branchCodes = append(c.branchCodes, b.Code)
		c.branchAlias[strings.ToLower(b.Code)] = b.Code
		for _, a := range b.Aliases {
			c.branchAlias[strings.ToLower(a)] = b.Code
		}
	}
	sort.Strings(c.branchCodes)
	for _, d := range vocab.Districts {
		c.districtAl[strings.ToLower(d.Name)] = d.Name
		for _, a := range d.Aliases {
			c.districtAl[strings.ToLower(a)] = d.Name
		}
	}
	for typ, keywords := range vocab.CollegeTypes {
		canonical := strings.ToUpper(typ[:1]) + strings.ToLower(typ[1:])
		for _, kw := range keywords {
			c.collegeTypes[strings.ToLower(kw)] = canonical
		}
	}
	return c
}

// Category canonicalizes a reservation category code.
//
// # Description
//
// Uppercases and exact-matches against the fixed category set. No fuzzy
// matching: the return value is always one of the fixed codes or "".
func (c *Canonicalizer) Category(text string) string {
	t := strings.ToUpper(strings.TrimSpace(text))
	if _, ok := c.categories[t]; ok {
		return t
	}
	return ""
}

// Branch canonicalizes a branch reference.
//
// # Description
//
// Case-insensitive match against the branch alias table first. If the table
// has no entry, short codes matching branchCodeRE pass through uppercased;
// this covers branches that exist in the admission process but not in the
// alias table. Everything else returns "".
func (c *Canonicalizer) Branch(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	if code, ok := c.branchAlias[strings.ToLower(t)]; ok {
		return code
	}
	upper := strings.ToUpper(t)
	if branchCodeRE.MatchString(upper) {
		return upper
	}
	return ""
}

// Location canonicalizes a district or place reference.
//
// # Description
//
// Matches the district alias table first, returning the canonical
// title-cased name. Unknown locations pass through as provided when they
// look like a place name; everything else returns "".
func (c *Canonicalizer) Location(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	if name, ok := c.districtAl[strings.ToLower(t)]; ok {
		return name
	}
	if placeNameRE.MatchString(t) {
		return t
	}
	return ""
}

// CollegeType canonicalizes a college type reference to one of
// Government, Autonomous or Private.
//
// Exact keyword match first, then substring match on the "gov"/"auto"/"priv"
// stems, in that order.
func (c *Canonicalizer) CollegeType(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return ""
	}
	if canonical, ok := c.collegeTypes[t]; ok {
		return canonical
	}
	switch {
	case strings.Contains(t, "gov"):
		return "Government"
	case strings.Contains(t, "auto"):
		return "Autonomous"
	case strings.Contains(t, "priv"):
		return "Private"
	}
	return ""
}

// DetectFirstGraduate scans for first-graduate quota signals.
//
// # Description
//
// Negating phrases are checked before affirmative ones, so "not first
// graduate" yields FGFalse even though it contains an affirmative phrase.
// With neither signal the result is FGUnknown, never FGFalse.
func (c *Canonicalizer) DetectFirstGraduate(text string) FirstGraduate {
	t := strings.ToLower(text)
	for _, kw := range c.fgNegate {
		if strings.Contains(t, kw) {
			return FGFalse
		}
	}
	for _, kw := range c.fgAffirm {
		if strings.Contains(t, kw) {
			return FGTrue
		}
	}
	return FGUnknown
}

// SuggestBranches returns the canonical branch codes from the alias table,
// sorted, for use in clarification prompts.
func (c *Canonicalizer) SuggestBranches() []string {
	out := make([]string, len(c.branchCodes))
	copy(out, c.branchCodes)
	return out
}
