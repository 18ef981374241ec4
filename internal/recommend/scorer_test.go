// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/viewfinder/internal/als"
	"github.com/tomtom215/viewfinder/internal/index"
	"github.com/tomtom215/viewfinder/internal/matrix"
	"github.com/tomtom215/viewfinder/internal/model"
)

// triple is one aggregated interaction.
type triple struct {
	user, video string
	rating      float64
}

// trainSnapshot builds indexes, compiles the matrix, and trains a snapshot
// from raw triples.
func trainSnapshot(t *testing.T, triples []triple, cfg als.Config) *model.Snapshot {
	t.Helper()

	var userIDs, videoIDs []string
	for _, tr := range triples {
		userIDs = append(userIDs, tr.user)
		videoIDs = append(videoIDs, tr.video)
	}
	users := index.Build(index.KindUser, userIDs)
	videos := index.Build(index.KindVideo, videoIDs)

	b := matrix.NewBuilder(users.Len(), videos.Len())
	for _, tr := range triples {
		ui, err := users.Lookup(tr.user)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", tr.user, err)
		}
		vi, err := videos.Lookup(tr.video)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", tr.video, err)
		}
		if err := b.Add(ui, vi, tr.rating); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	factors, err := als.NewTrainer(cfg).Train(context.Background(), m)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	snap, err := model.New(factors, users, videos, m, model.Params{}, time.Now())
	if err != nil {
		t.Fatalf("model.New failed: %v", err)
	}
	return snap
}

// fiveByFive is a 5-user, 5-video interaction set exercising the full
// train-then-recommend path.
func fiveByFive(t *testing.T) *model.Snapshot {
	t.Helper()
	return trainSnapshot(t, []triple{
		{"u1", "v1", 3},
		{"u1", "v2", 1},
		{"u2", "v3", 4},
		{"u3", "v4", 1},
		{"u4", "v5", 3},
		{"u5", "v1", 1},
	}, als.Config{
		Factors:        20,
		Iterations:     20,
		Regularization: 0.1,
		Alpha:          40,
		Seed:           42,
	})
}

func TestRecommendExcludesSeen(t *testing.T) {
	snap := fiveByFive(t)

	recs, err := Recommend(snap, "u2", 2, true)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	valid := map[string]bool{"v1": true, "v2": true, "v4": true, "v5": true}
	for _, rec := range recs {
		if rec.VideoID == "v3" {
			t.Error("recommendation contains v3, which u2 already interacted with")
		}
		if !valid[rec.VideoID] {
			t.Errorf("recommendation %q not in the unseen candidate set", rec.VideoID)
		}
	}
	if recs[0].VideoID == recs[1].VideoID {
		t.Error("duplicate video in recommendations")
	}
}

func TestRecommendIncludeSeen(t *testing.T) {
	snap := fiveByFive(t)

	recs, err := Recommend(snap, "u2", 5, false)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("len(recs) = %d, want all 5 videos", len(recs))
	}

	// The trained model must rank u2's own strong interaction first when
	// seen videos stay in the pool.
	if recs[0].VideoID != "v3" {
		t.Errorf("top recommendation = %q, want v3", recs[0].VideoID)
	}
}

func TestRecommendSortedDescending(t *testing.T) {
	snap := fiveByFive(t)

	recs, err := Recommend(snap, "u1", 5, false)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Score > recs[i-1].Score {
			t.Errorf("scores not descending: recs[%d]=%f > recs[%d]=%f", i, recs[i].Score, i-1, recs[i-1].Score)
		}
	}
}

func TestRecommendUnknownUser(t *testing.T) {
	snap := fiveByFive(t)

	_, err := Recommend(snap, "ghost", 5, true)
	if err == nil {
		t.Fatal("Recommend(unknown user) = nil error")
	}
	var unknownErr *index.UnknownEntityError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("error type = %T, want *index.UnknownEntityError", err)
	}
	if unknownErr.ID != "ghost" {
		t.Errorf("error ID = %q, want ghost", unknownErr.ID)
	}
}

func TestRecommendNonPositiveN(t *testing.T) {
	snap := fiveByFive(t)

	for _, n := range []int{0, -1} {
		recs, err := Recommend(snap, "u1", n, true)
		if err != nil {
			t.Fatalf("Recommend(n=%d) failed: %v", n, err)
		}
		if recs == nil {
			t.Errorf("Recommend(n=%d) = nil slice, want empty", n)
		}
		if len(recs) != 0 {
			t.Errorf("Recommend(n=%d) returned %d items, want 0", n, len(recs))
		}
	}
}

func TestRecommendAllSeen(t *testing.T) {
	// One user who has interacted with every video.
	snap := trainSnapshot(t, []triple{
		{"u1", "v1", 2},
		{"u1", "v2", 3},
	}, als.Config{Factors: 4, Iterations: 5, Regularization: 0.1, Seed: 1})

	recs, err := Recommend(snap, "u1", 10, true)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Recommend with all videos seen returned %d items, want 0", len(recs))
	}
}

func TestRecommendNLargerThanCatalog(t *testing.T) {
	snap := fiveByFive(t)

	recs, err := Recommend(snap, "u3", 100, true)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	// u3 has seen 1 of 5 videos.
	if len(recs) != 4 {
		t.Errorf("len(recs) = %d, want 4", len(recs))
	}
}

func TestRecommendDeterministic(t *testing.T) {
	a := fiveByFive(t)
	b := fiveByFive(t)

	for _, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		ra, err := Recommend(a, user, 5, true)
		if err != nil {
			t.Fatalf("Recommend(%s) failed: %v", user, err)
		}
		rb, err := Recommend(b, user, 5, true)
		if err != nil {
			t.Fatalf("Recommend(%s) failed: %v", user, err)
		}
		if len(ra) != len(rb) {
			t.Fatalf("user %s: result lengths differ: %d vs %d", user, len(ra), len(rb))
		}
		for i := range ra {
			if ra[i] != rb[i] {
				t.Errorf("user %s: recs[%d] = %+v vs %+v across identical training runs", user, i, ra[i], rb[i])
			}
		}
	}
}

func TestRecommendTieBreakByIndex(t *testing.T) {
	// Symmetric interactions: u1 rates v1 and v2 identically, so their
	// trained factors receive identical updates and scores tie. The lower
	// dense index (v1, seen first) must rank first.
	snap := trainSnapshot(t, []triple{
		{"u1", "v1", 2},
		{"u1", "v2", 2},
	}, als.Config{Factors: 4, Iterations: 5, Regularization: 0.1, Seed: 3})

	recs, err := Recommend(snap, "u1", 2, false)
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if recs[0].Score == recs[1].Score && recs[0].VideoID != "v1" {
		t.Errorf("tied scores ordered %q before %q, want v1 first", recs[0].VideoID, recs[1].VideoID)
	}
}
