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

//go:embed faq.yaml
var defaultFAQYAML []byte

// FAQTemplate is one templated reply keyed by (intent, language).
type FAQTemplate struct {
	Intent   string `yaml:"intent"`
	Language string `yaml:"language"`
	Text     string `yaml:"text"`
}

// FAQTable holds the fixed FAQ reply templates plus the generic fallback
// line used when no (intent, language) entry exists.
type FAQTable struct {
	Fallback  string        `yaml:"fallback"`
	Templates []FAQTemplate `yaml:"templates"`
}

var (
	faqOnce    sync.Once
	cachedFAQ  *FAQTable
	faqLoadErr error
)

// GetFAQTable returns the embedded FAQ reply templates.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetFAQTable() (*FAQTable, error) {
	faqOnce.Do(func() {
		cachedFAQ, faqLoadErr = LoadFAQTable(defaultFAQYAML)
	})
	return cachedFAQ, faqLoadErr
}

// LoadFAQTable decodes and validates an FAQ table from YAML bytes.
func LoadFAQTable(raw []byte) (*FAQTable, error) {
	var t FAQTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode faq table: %w", err)
	}
	if t.Fallback == "" {
		return nil, fmt.Errorf("faq table: fallback line must not be empty")
	}
	for i, tpl := range t.Templates {
		if tpl.Intent == "" || tpl.Language == "" || tpl.Text == "" {
			return nil, fmt.Errorf("faq table: templates[%d] is incomplete", i)
		}
	}
	return &t, nil
}
