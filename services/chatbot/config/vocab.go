// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Controlled Vocabularies
// =============================================================================

//go:embed vocab.yaml
var defaultVocabularyYAML []byte

// =============================================================================
// Vocabulary Types
// =============================================================================

// Vocabulary holds the controlled vocabularies used for entity
// canonicalization: category codes, branch and district alias tables,
// gender and college-type keyword sets, and first-graduate signals.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Vocabulary struct {
	// Categories is the fixed set of reservation category codes (OC, BC, ...).
	Categories []string `yaml:"categories"`

	// Branches maps canonical branch codes to their free-text aliases.
	Branches []BranchEntry `yaml:"branches"`

	// Districts maps canonical district names to their free-text aliases.
	Districts []DistrictEntry `yaml:"districts"`

	// Gender maps the two gender-quota values to their keyword sets.
	Gender map[string][]string `yaml:"gender"`

	// CollegeTypes maps the three college types to their keyword sets.
	CollegeTypes map[string][]string `yaml:"college_types"`

	// FirstGraduate holds affirmative and negating first-graduate keywords.
	FirstGraduate FirstGraduateKeywords `yaml:"first_graduate"`
}

// BranchEntry maps one canonical branch code to its alias set.
type BranchEntry struct {
	// Code is the canonical branch short code (e.g. "CSE").
	Code string `yaml:"code"`

	// Aliases are lowercase free-text forms that canonicalize to Code.
	Aliases []string `yaml:"aliases"`
}

// DistrictEntry maps one canonical district name to its alias set.
type DistrictEntry struct {
	// Name is the canonical, title-cased district name (e.g. "Chennai").
	Name string `yaml:"name"`

	// Aliases are lowercase free-text forms that canonicalize to Name.
	Aliases []string `yaml:"aliases"`
}

// FirstGraduateKeywords holds the two keyword sets for the tri-state
// first-graduate detector. Negating phrases are checked before affirmative
// ones so "not first graduate" never reads as an affirmation.
type FirstGraduateKeywords struct {
	Affirm []string `yaml:"affirm"`
	Negate []string `yaml:"negate"`
}

// Validate checks structural invariants of the vocabulary.
//
// # Outputs
//
//   - error: Non-nil if a required table is empty or an entry is malformed.
func (v *Vocabulary) Validate() error {
	if len(v.Categories) == 0 {
		return fmt.Errorf("vocabulary: categories must not be empty")
	}
	for i, b := range v.Branches {
		if b.Code == "" {
			return fmt.Errorf("vocabulary: branches[%d] has empty code", i)
		}
	}
	for i, d := range v.Districts {
		if d.Name == "" {
			return fmt.Errorf("vocabulary: districts[%d] has empty name", i)
		}
	}
	return nil
}

// =============================================================================
// Singleton Vocabulary
// =============================================================================

var (
	vocabOnce    sync.Once
	cachedVocab  *Vocabulary
	vocabLoadErr error
)

// GetVocabulary returns the embedded controlled vocabulary.
//
// # Description
//
// Decodes vocab.yaml on first call and caches the result. The embedded
// tables ship with the binary; there is no runtime override: new aliases
// land through a code change, the same way intent rules do.
//
// # Outputs
//
//   - *Vocabulary: The loaded vocabulary. Never nil on success.
//   - error: Non-nil if decoding or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetVocabulary() (*Vocabulary, error) {
	vocabOnce.Do(func() {
		cachedVocab, vocabLoadErr = LoadVocabulary(defaultVocabularyYAML)
	})
	return cachedVocab, vocabLoadErr
}

// LoadVocabulary decodes and validates a vocabulary from YAML bytes.
//
// # Inputs
//
//   - raw: YAML document matching the Vocabulary schema.
//
// # Outputs
//
//   - *Vocabulary: The decoded vocabulary.
//   - error: Non-nil on decode or validation failure.
func LoadVocabulary(raw []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}
