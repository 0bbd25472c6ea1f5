// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"log/slog"
	"testing"
	"time"
)

func newTestStore(t *testing.T, capacity int, ttl time.Duration) *Store {
	t.Helper()
	return NewStore(capacity, ttl, slog.Default())
}

func TestKeyComposition(t *testing.T) {
	if got := Key("u1", "s1"); got != "u1::s1" {
		t.Errorf("Key(u1, s1) = %q, want u1::s1", got)
	}
	// Empty session ID uses the default sub-key.
	if got := Key("u1", ""); got != "u1::default" {
		t.Errorf("Key(u1, \"\") = %q, want u1::default", got)
	}
}

func TestStickyMergeNilNeverOverwrites(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)

	branch := "CSE"
	s.Update("u1", "", Update{Branch: &branch})

	// A later update with no branch must leave the stored branch alone.
	cutoff := 178.0
	state := s.Update("u1", "", Update{Cutoff: &cutoff})

	if state.Branch == nil || *state.Branch != "CSE" {
		t.Errorf("Branch = %v after nil update, want CSE", state.Branch)
	}
	if state.Cutoff == nil || *state.Cutoff != 178.0 {
		t.Errorf("Cutoff = %v, want 178.0", state.Cutoff)
	}
}

func TestStickyMergeNewValueWins(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)

	old := "CSE"
	s.Update("u1", "", Update{Branch: &old})
	updated := "ECE"
	state := s.Update("u1", "", Update{Branch: &updated})

	if state.Branch == nil || *state.Branch != "ECE" {
		t.Errorf("Branch = %v, want ECE", state.Branch)
	}
}

func TestLastIntentTracksEveryTurn(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)

	s.Update("u1", "", Update{LastIntent: "greeting"})
	state := s.Update("u1", "", Update{LastIntent: "college_recommendation"})
	if state.LastIntent != "college_recommendation" {
		t.Errorf("LastIntent = %q, want college_recommendation", state.LastIntent)
	}
}

func TestSessionIsolation(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)

	cutoff := 178.0
	s.Update("u1", "a", Update{Cutoff: &cutoff})

	if state := s.Get("u1", "b"); state.Cutoff != nil {
		t.Errorf("session b Cutoff = %v, want nil", *state.Cutoff)
	}
	if state := s.Get("u2", "a"); state.Cutoff != nil {
		t.Errorf("user u2 Cutoff = %v, want nil", *state.Cutoff)
	}
}

func TestTTLExpiryYieldsFreshState(t *testing.T) {
	s := newTestStore(t, 10, 20*time.Millisecond)

	cutoff := 178.0
	s.Update("u1", "", Update{Cutoff: &cutoff})

	time.Sleep(60 * time.Millisecond)

	if state := s.Get("u1", ""); state.Cutoff != nil {
		t.Errorf("Cutoff = %v after TTL expiry, want nil", *state.Cutoff)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := newTestStore(t, 2, time.Hour)

	cutoff := 100.0
	s.Update("u1", "", Update{Cutoff: &cutoff})
	s.Update("u2", "", Update{Cutoff: &cutoff})
	s.Update("u3", "", Update{Cutoff: &cutoff})

	if s.Len() > 2 {
		t.Errorf("Len() = %d, want at most 2", s.Len())
	}
	// The least recently used session was evicted.
	if state := s.Get("u1", ""); state.Cutoff != nil {
		t.Errorf("u1 Cutoff = %v after eviction, want nil", *state.Cutoff)
	}
	if state := s.Get("u3", ""); state.Cutoff == nil {
		t.Error("u3 Cutoff = nil, want 100.0")
	}
}

func TestGetUnknownKeyReturnsEmptyState(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)

	state := s.Get("ghost", "")
	if state.Cutoff != nil || state.Branch != nil || state.LastIntent != "" {
		t.Errorf("fresh state not empty: %+v", state)
	}
}
