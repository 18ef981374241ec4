// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package recommend ranks videos for a user from a trained model snapshot.
//
// The scorer computes the dot product between the user's factor vector and
// every video factor vector, optionally drops videos the user already
// interacted with, and returns the top N by score. Ranking is total: equal
// scores break toward the lower dense video index, so identical snapshots
// always produce identical orderings.
package recommend

import (
	"sort"

	"github.com/tomtom215/viewfinder/internal/model"
)

// Recommendation is one ranked video.
type Recommendation struct {
	// VideoID is the external video identifier.
	VideoID string `json:"video_id"`

	// Score is the raw predicted preference, unnormalized.
	Score float64 `json:"score"`
}

// scored pairs a dense video index with its score during ranking.
type scored struct {
	video int
	score float64
}

// Recommend returns up to n videos for the user, best first. An unknown
// user yields an *index.UnknownEntityError. n <= 0 yields an empty, non-nil
// slice. With excludeSeen set, every video the user interacted with during
// training is removed from the candidate set; an empty result is valid and
// not an error.
func Recommend(snap *model.Snapshot, userID string, n int, excludeSeen bool) ([]Recommendation, error) {
	u, err := snap.Users().Lookup(userID)
	if err != nil {
		return nil, err
	}

	if n <= 0 {
		return []Recommendation{}, nil
	}

	userVec := snap.UserFactor(u)
	numVideos := snap.Videos().Len()

	candidates := make([]scored, 0, numVideos)
	for v := 0; v < numVideos; v++ {
		if excludeSeen && snap.HasSeen(u, v) {
			continue
		}
		videoVec := snap.VideoFactor(v)
		var score float64
		for f := range userVec {
			score += userVec[f] * videoVec[f]
		}
		candidates = append(candidates, scored{video: v, score: score})
	}

	// Score descending; ties go to the lower video index. Stable ordering
	// is part of the contract, not a nicety.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].video < candidates[j].video
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]Recommendation, n)
	for i := 0; i < n; i++ {
		out[i] = Recommendation{
			VideoID: snap.Videos().ID(candidates[i].video),
			Score:   candidates[i].score,
		}
	}
	return out, nil
}
