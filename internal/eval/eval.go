// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package eval measures offline ranking quality of a trained snapshot
// against held-out interactions.
package eval

import (
	"errors"

	"github.com/tomtom215/viewfinder/internal/index"
	"github.com/tomtom215/viewfinder/internal/logging"
	"github.com/tomtom215/viewfinder/internal/model"
	"github.com/tomtom215/viewfinder/internal/recommend"
)

// Result aggregates ranking metrics over the evaluated users.
type Result struct {
	// PrecisionAtK is the mean fraction of the top-k that is relevant.
	PrecisionAtK float64 `json:"precision_at_k"`

	// RecallAtK is the mean fraction of relevant videos found in the top-k.
	RecallAtK float64 `json:"recall_at_k"`

	// K is the cutoff the metrics were computed at.
	K int `json:"k"`

	// Users is how many held-out users contributed to the means. Users
	// absent from the trained snapshot are skipped, not scored as zero.
	Users int `json:"users"`
}

// PrecisionAtK returns |top-k ∩ relevant| / k for one user.
func PrecisionAtK(recommended []string, relevant map[string]bool, k int) float64 {
	if k <= 0 {
		return 0
	}
	if len(recommended) > k {
		recommended = recommended[:k]
	}
	hits := 0
	for _, id := range recommended {
		if relevant[id] {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// RecallAtK returns |top-k ∩ relevant| / |relevant| for one user.
func RecallAtK(recommended []string, relevant map[string]bool, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	if len(recommended) > k {
		recommended = recommended[:k]
	}
	hits := 0
	for _, id := range recommended {
		if relevant[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(relevant))
}

// Evaluate scores the snapshot's top-k recommendations against held-out
// relevant videos per user. Videos seen during training are excluded from
// the candidate pool, matching how the model serves.
func Evaluate(snap *model.Snapshot, holdout map[string][]string, k int) (Result, error) {
	var sumPrecision, sumRecall float64
	users := 0

	for userID, relevantIDs := range holdout {
		if len(relevantIDs) == 0 {
			continue
		}

		recs, err := recommend.Recommend(snap, userID, k, true)
		if err != nil {
			var unknownErr *index.UnknownEntityError
			if errors.As(err, &unknownErr) {
				// Cold-start user not in the training set.
				continue
			}
			return Result{}, err
		}

		relevant := make(map[string]bool, len(relevantIDs))
		for _, id := range relevantIDs {
			relevant[id] = true
		}

		recommended := make([]string, len(recs))
		for i, rec := range recs {
			recommended[i] = rec.VideoID
		}

		sumPrecision += PrecisionAtK(recommended, relevant, k)
		sumRecall += RecallAtK(recommended, relevant, k)
		users++
	}

	result := Result{K: k, Users: users}
	if users > 0 {
		result.PrecisionAtK = sumPrecision / float64(users)
		result.RecallAtK = sumRecall / float64(users)
	}

	logger := logging.WithComponent("eval")
	logger.Info().
		Int("k", k).
		Int("users", users).
		Float64("precision_at_k", result.PrecisionAtK).
		Float64("recall_at_k", result.RecallAtK).
		Msg("offline evaluation complete")
	return result, nil
}
