// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session implements the bounded per-session entity memory:
// an LRU cache with per-entry absolute expiry, keyed by (user, session),
// holding sticky-merged entity state.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	sessionGetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatbot",
		Subsystem: "session",
		Name:      "gets_total",
		Help:      "Session lookups by result: hit, miss",
	}, []string{"result"})

	sessionEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatbot",
		Subsystem: "session",
		Name:      "evictions_total",
		Help:      "Sessions evicted by capacity pressure or TTL expiry",
	})
)

// =============================================================================
// Session State
// =============================================================================

// DefaultSessionID is the sub-key used when a request carries no session
// identity, so all of a user's session-less turns share state.
const DefaultSessionID = "default"

// State is the accumulated entity memory for one (user, session) key.
//
// # Description
//
// Every entity field is optional; nil means no turn has supplied it yet.
// The sticky-merge invariant: a field is overwritten only when a new
// message supplies a non-nil value for it; absence never erases known
// state. Extras is an open-ended bag for future signals.
type State struct {
	Cutoff        *float64
	Category      *string
	Branch        *string
	District      *string
	CollegeName   *string
	CollegeType   *string
	Round         *int
	GenderQuota   *string
	FirstGraduate *bool

	// LastIntent is the most recently recognized intent for this session.
	LastIntent string

	// Extras carries future signals that have no dedicated field yet.
	Extras map[string]any
}

// Update is the set of incoming values for one sticky merge. Nil fields
// are skipped; LastIntent is applied when non-empty.
type Update struct {
	Cutoff        *float64
	Category      *string
	Branch        *string
	District      *string
	CollegeName   *string
	CollegeType   *string
	Round         *int
	GenderQuota   *string
	FirstGraduate *bool
	LastIntent    string
	Extras        map[string]any
}

// merge applies the sticky-merge rule field by field. The fields are
// enumerated explicitly so the invariant stays statically checkable:
// no reflection over arbitrary names.
func (st *State) merge(u Update) {
	if u.Cutoff != nil {
		st.Cutoff = u.Cutoff
	}
	if u.Category != nil {
		st.Category = u.Category
	}
	if u.Branch != nil {
		st.Branch = u.Branch
	}
	if u.District != nil {
		st.District = u.District
	}
	if u.CollegeName != nil {
		st.CollegeName = u.CollegeName
	}
	if u.CollegeType != nil {
		st.CollegeType = u.CollegeType
	}
	if u.Round != nil {
		st.Round = u.Round
	}
	if u.GenderQuota != nil {
		st.GenderQuota = u.GenderQuota
	}
	if u.FirstGraduate != nil {
		st.FirstGraduate = u.FirstGraduate
	}
	if u.LastIntent != "" {
		st.LastIntent = u.LastIntent
	}
	for k, v := range u.Extras {
		if v == nil {
			continue
		}
		if st.Extras == nil {
			st.Extras = make(map[string]any)
		}
		st.Extras[k] = v
	}
}

// =============================================================================
// Store
// =============================================================================

// Store is the bounded session memory.
//
// # Description
//
// Entries live in an LRU cache with per-entry absolute expiry: an entry is
// invisible to Get once its age reaches the TTL even if capacity pressure
// has not evicted it, and the least-recently-used entry is dropped on
// overflow. Every read and write re-inserts the entry, resetting its
// expiry. State is process-lifetime only; nothing is persisted.
//
// # Thread Safety
//
// Get and Update are atomic per call. Two concurrent requests for the same
// key can still interleave between the engine's merge and read-back; that
// race is accepted; the last writer wins per individual field.
type Store struct {
	mu     sync.Mutex
	lru    *expirable.LRU[string, *State]
	logger *slog.Logger
}

// NewStore creates a session store with the given capacity and TTL.
//
// # Inputs
//
//   - capacity: Maximum session count; the LRU entry is evicted on overflow.
//   - ttl: Per-entry absolute expiry, measured from the last re-insert.
//   - logger: Logger for eviction diagnostics. May be nil.
//
// # Outputs
//
//   - *Store: Ready-to-use store. Never nil.
func NewStore(capacity int, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger}
	s.lru = expirable.NewLRU[string, *State](capacity, func(key string, _ *State) {
		sessionEvictionsTotal.Inc()
		logger.Debug("session evicted", slog.String("key", key))
	}, ttl)
	return s
}

// Key builds the composite session key. An absent session identity maps to
// DefaultSessionID so session-less turns from the same user share state.
func Key(userID, sessionID string) string {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return fmt.Sprintf("%s::%s", userID, sessionID)
}

// Get returns the session state for (userID, sessionID), creating an empty
// state on first access. The entry's expiry is refreshed.
func (s *Store) Get(userID, sessionID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreate(Key(userID, sessionID))
}

// Update sticky-merges the incoming values into the session state and
// returns the merged result. The entry's expiry is refreshed.
func (s *Store) Update(userID, sessionID string, u Update) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(userID, sessionID)
	st := s.getOrCreate(key)
	st.merge(u)
	s.lru.Add(key, st)
	return *st
}

// Len returns the current session count (expired entries may be included
// until the cache notices them).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// getOrCreate looks up the state for key, creating and inserting an empty
// one on miss. Re-adds on hit so the expiry clock restarts. Callers must
// hold s.mu.
func (s *Store) getOrCreate(key string) *State {
	if st, ok := s.lru.Get(key); ok {
		sessionGetsTotal.WithLabelValues("hit").Inc()
		s.lru.Add(key, st)
		return st
	}
	sessionGetsTotal.WithLabelValues("miss").Inc()
	st := &State{}
	s.lru.Add(key, st)
	return st
}
