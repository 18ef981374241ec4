// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package eval

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/viewfinder/internal/als"
	"github.com/tomtom215/viewfinder/internal/index"
	"github.com/tomtom215/viewfinder/internal/matrix"
	"github.com/tomtom215/viewfinder/internal/model"
)

func TestPrecisionAtK(t *testing.T) {
	relevant := map[string]bool{"v1": true, "v3": true}

	tests := []struct {
		name        string
		recommended []string
		k           int
		want        float64
	}{
		{"all hits", []string{"v1", "v3"}, 2, 1.0},
		{"half hits", []string{"v1", "v2"}, 2, 0.5},
		{"no hits", []string{"v2", "v4"}, 2, 0.0},
		{"short list counts against k", []string{"v1"}, 4, 0.25},
		{"truncates beyond k", []string{"v2", "v1", "v3"}, 1, 0.0},
		{"zero k", []string{"v1"}, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrecisionAtK(tt.recommended, relevant, tt.k); got != tt.want {
				t.Errorf("PrecisionAtK = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestRecallAtK(t *testing.T) {
	relevant := map[string]bool{"v1": true, "v3": true, "v5": true, "v7": true}

	tests := []struct {
		name        string
		recommended []string
		k           int
		want        float64
	}{
		{"half recalled", []string{"v1", "v3"}, 2, 0.5},
		{"all recalled", []string{"v1", "v3", "v5", "v7"}, 4, 1.0},
		{"none recalled", []string{"v2"}, 1, 0.0},
		{"empty relevant", nil, 2, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := relevant
			if tt.name == "empty relevant" {
				rel = map[string]bool{}
			}
			if got := RecallAtK(tt.recommended, rel, tt.k); got != tt.want {
				t.Errorf("RecallAtK = %f, want %f", got, tt.want)
			}
		})
	}
}

// blockSnapshot trains on two disjoint communities so held-out preferences
// are predictable: community members should be recommended their own
// community's unseen videos.
func blockSnapshot(t *testing.T) *model.Snapshot {
	t.Helper()

	users := index.Build(index.KindUser, []string{"u1", "u2", "u3", "u4"})
	videos := index.Build(index.KindVideo, []string{"v1", "v2", "v3", "v4", "v5", "v6"})

	b := matrix.NewBuilder(users.Len(), videos.Len())
	add := func(u, v string, r float64) {
		ui, _ := users.Lookup(u)
		vi, _ := videos.Lookup(v)
		if err := b.Add(ui, vi, r); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	// Community A: u1, u2 watch v1-v3. u1's v3 is held out below.
	add("u1", "v1", 3)
	add("u1", "v2", 2)
	add("u2", "v1", 2)
	add("u2", "v2", 3)
	add("u2", "v3", 4)
	// Community B: u3, u4 watch v4-v6.
	add("u3", "v4", 3)
	add("u3", "v5", 2)
	add("u4", "v4", 2)
	add("u4", "v5", 3)
	add("u4", "v6", 4)

	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	factors, err := als.NewTrainer(als.Config{
		Factors:        8,
		Iterations:     20,
		Regularization: 0.1,
		Alpha:          40,
		Seed:           42,
	}).Train(context.Background(), m)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	snap, err := model.New(factors, users, videos, m, model.Params{}, time.Now())
	if err != nil {
		t.Fatalf("model.New failed: %v", err)
	}
	return snap
}

func TestEvaluateRecoversCommunityPreference(t *testing.T) {
	snap := blockSnapshot(t)

	// Held out: u1 should be recommended v3 (its community's remaining
	// video), u3 should be recommended v6.
	holdout := map[string][]string{
		"u1": {"v3"},
		"u3": {"v6"},
	}

	result, err := Evaluate(snap, holdout, 1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Users != 2 {
		t.Fatalf("Users = %d, want 2", result.Users)
	}
	if result.PrecisionAtK != 1.0 {
		t.Errorf("PrecisionAtK = %f, want 1.0", result.PrecisionAtK)
	}
	if result.RecallAtK != 1.0 {
		t.Errorf("RecallAtK = %f, want 1.0", result.RecallAtK)
	}
}

func TestEvaluateSkipsUnknownUsers(t *testing.T) {
	snap := blockSnapshot(t)

	holdout := map[string][]string{
		"u1":    {"v3"},
		"ghost": {"v1"},
	}

	result, err := Evaluate(snap, holdout, 1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Users != 1 {
		t.Errorf("Users = %d, want 1 (unknown user skipped)", result.Users)
	}
}

func TestEvaluateEmptyHoldout(t *testing.T) {
	snap := blockSnapshot(t)

	result, err := Evaluate(snap, map[string][]string{}, 5)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Users != 0 {
		t.Errorf("Users = %d, want 0", result.Users)
	}
	if result.PrecisionAtK != 0 || result.RecallAtK != 0 {
		t.Errorf("metrics = (%f, %f), want zeros", result.PrecisionAtK, result.RecallAtK)
	}
	if math.IsNaN(result.PrecisionAtK) {
		t.Error("PrecisionAtK is NaN for empty holdout")
	}
}
