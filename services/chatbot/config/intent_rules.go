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

//go:embed intent_rules.yaml
var defaultIntentRulesYAML []byte

// IntentRule is one ordered keyword group in the deterministic intent layer.
//
// Description:
//
//	When any keyword matches the message on a word boundary, the rule's
//	intent is selected and later rules are not consulted. Order in the
//	YAML file is significant.
type IntentRule struct {
	// Intent is the intent label this rule selects.
	Intent string `yaml:"intent"`

	// Keywords are word-boundary patterns; multi-word entries must appear
	// as a contiguous phrase.
	Keywords []string `yaml:"keywords"`

	// Reason explains why this rule exists (for logging/tracing).
	Reason string `yaml:"reason"`
}

// IntentRuleSet is the ordered deterministic rule list.
type IntentRuleSet struct {
	Rules []IntentRule `yaml:"rules"`
}

var (
	intentRulesOnce    sync.Once
	cachedIntentRules  *IntentRuleSet
	intentRulesLoadErr error
)

// GetIntentRules returns the embedded deterministic intent rules.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetIntentRules() (*IntentRuleSet, error) {
	intentRulesOnce.Do(func() {
		cachedIntentRules, intentRulesLoadErr = LoadIntentRules(defaultIntentRulesYAML)
	})
	return cachedIntentRules, intentRulesLoadErr
}

// LoadIntentRules decodes and validates intent rules from YAML bytes.
func LoadIntentRules(raw []byte) (*IntentRuleSet, error) {
	var rs IntentRuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("decode intent rules: %w", err)
	}
	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("intent rules: rule list must not be empty")
	}
	for i, r := range rs.Rules {
		if r.Intent == "" {
			return nil, fmt.Errorf("intent rules: rules[%d] has empty intent", i)
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("intent rules: rules[%d] (%s) has no keywords", i, r.Intent)
		}
	}
	return &rs, nil
}
