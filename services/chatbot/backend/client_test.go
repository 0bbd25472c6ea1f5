// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tneainsight/chatbot/services/chatbot/config"
)

func newTestClient(t *testing.T, server *httptest.Server, recommendPath string) *Client {
	t.Helper()
	cfg := &config.ServiceConfig{
		APIBaseURL:            server.URL,
		PredictCutoffPath:     "/api/predict-cutoff",
		RecommendCollegesPath: recommendPath,
		CompareCollegesPath:   "/api/compare-colleges",
		SafeTargetDreamPath:   "/api/safe-target-dream",
		CutoffHistoryPath:     "/api/cutoff-history",
		DownstreamTimeout:     2 * time.Second,
	}
	return NewClient(cfg, slog.Default())
}

func strPtr(s string) *string { return &s }

func TestRecommendLegacyPathRemapsPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != config.LegacyRecommendPath {
			t.Errorf("path = %q, want %q", r.URL.Path, config.LegacyRecommendPath)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, config.LegacyRecommendPath)
	res := c.RecommendColleges(context.Background(), RecommendRequest{
		Cutoff:   178.0,
		Category: "BC",
		Branch:   strPtr("CSE"),
	}, nil)

	if !res.OK {
		t.Fatalf("Result.OK = false, err = %q", res.Err)
	}
	if got["marks"] != 178.0 {
		t.Errorf("marks = %v, want 178.0", got["marks"])
	}
	if got["category"] != "BC" {
		t.Errorf("category = %v, want BC", got["category"])
	}
	if got["preferences"] != "CSE" {
		t.Errorf("preferences = %v, want CSE", got["preferences"])
	}
	if _, present := got["cutoff"]; present {
		t.Error("legacy payload still carries the cutoff key")
	}
}

func TestRecommendNonLegacyPathSendsCanonicalPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server, "/api/recommend")
	res := c.RecommendColleges(context.Background(), RecommendRequest{
		Cutoff:   178.0,
		Category: "BC",
		Branch:   strPtr("CSE"),
	}, nil)

	if !res.OK {
		t.Fatalf("Result.OK = false, err = %q", res.Err)
	}
	if got["cutoff"] != 178.0 {
		t.Errorf("cutoff = %v, want 178.0", got["cutoff"])
	}
	if got["branch"] != "CSE" {
		t.Errorf("branch = %v, want CSE", got["branch"])
	}
	if _, present := got["marks"]; present {
		t.Error("canonical payload carries the legacy marks key")
	}
}

func TestNon2xxSurfacesBodyAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	c := newTestClient(t, server, "/api/recommend")
	res := c.PredictCutoff(context.Background(), PredictCutoffRequest{Marks: 178, Category: "BC"}, nil)

	if res.OK {
		t.Fatal("Result.OK = true for 502 response")
	}
	if res.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", res.StatusCode)
	}
	if res.Err != "upstream down" {
		t.Errorf("Err = %q, want response body", res.Err)
	}
}

func TestNetworkFailureIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c := newTestClient(t, server, "/api/recommend")
	res := c.CompareColleges(context.Background(), CompareRequest{Query: "compare A vs B"}, nil)

	if res.OK {
		t.Fatal("Result.OK = true for refused connection")
	}
	if res.Err == "" {
		t.Error("Err is empty, want transport error detail")
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", res.StatusCode)
	}
}

func TestHeadersForwardedDownstream(t *testing.T) {
	var gotCookie, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Cookie", "session=abc")
	headers.Set("Authorization", "Bearer tok")

	c := newTestClient(t, server, "/api/recommend")
	c.SafeTargetDream(context.Background(), SafeTargetDreamRequest{Query: "q"}, headers)

	if gotCookie != "session=abc" {
		t.Errorf("Cookie = %q, want session=abc", gotCookie)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
}

func TestCutoffHistoryQueryParams(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"generalCutoff": 176.5}]`))
	}))
	defer server.Close()

	c := newTestClient(t, server, "/api/recommend")
	res := c.CutoffHistory(context.Background(), map[string]string{"year": "2024"}, nil)

	if !res.OK {
		t.Fatalf("Result.OK = false, err = %q", res.Err)
	}
	if gotQuery != "year=2024" {
		t.Errorf("query = %q, want year=2024", gotQuery)
	}
}

func TestNormalizeResultsShapes(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"envelope", `{"results": [{"college": "A"}, {"college": "B"}]}`, 2},
		{"bare array", `[{"college": "A"}]`, 1},
		{"empty envelope", `{"results": []}`, 0},
		{"unrelated object", `{"status": "ok"}`, 0},
		{"scalar", `42`, 0},
		{"empty", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeResults(json.RawMessage(tt.data))
			if len(got) != tt.want {
				t.Errorf("NormalizeResults(%s) returned %d records, want %d", tt.data, len(got), tt.want)
			}
		})
	}
}
