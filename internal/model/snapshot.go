// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package model defines the trained model snapshot, the atomic holder the
// serving path reads from, and the versioned on-disk artifact store.
//
// A Snapshot bundles everything recommendation serving needs: both factor
// matrices, the identifier indexes, and the per-user seen sets. Snapshots
// are immutable once built; reloads swap a new snapshot into a Holder
// without blocking in-flight readers.
package model

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/tomtom215/viewfinder/internal/als"
	"github.com/tomtom215/viewfinder/internal/index"
	"github.com/tomtom215/viewfinder/internal/matrix"
)

// Params records the hyperparameters a snapshot was trained with, for the
// status endpoint and artifact inspection.
type Params struct {
	Factors        int     `json:"factors"`
	Iterations     int     `json:"iterations"`
	Regularization float64 `json:"regularization"`
	Alpha          float64 `json:"alpha"`
	ConfidenceMode string  `json:"confidence_mode"`
	Seed           int64   `json:"seed"`
}

// Metadata describes a snapshot without its factor payload.
type Metadata struct {
	// Version is the artifact sequence number, 0 until persisted.
	Version int `json:"version"`

	// TrainedAt is when training finished.
	TrainedAt time.Time `json:"trained_at"`

	// Users and Videos are the entity counts.
	Users  int `json:"users"`
	Videos int `json:"videos"`

	// Interactions is the number of distinct (user, video) cells trained on.
	Interactions int `json:"interactions"`

	// Params are the training hyperparameters.
	Params Params `json:"params"`
}

// Snapshot is an immutable trained model ready for serving.
type Snapshot struct {
	meta Metadata

	users  *index.Index
	videos *index.Index

	userFactors  [][]float64
	videoFactors [][]float64
	rank         int

	// Per-user seen video indices in CSR layout, sorted within each user.
	seenPtr []int
	seenIdx []int
}

// New builds a Snapshot from trained factors, the indexes they were trained
// against, and the interaction matrix that supplies the seen sets.
func New(factors *als.Factors, users, videos *index.Index, m *matrix.Matrix, params Params, trainedAt time.Time) (*Snapshot, error) {
	if len(factors.Users) != users.Len() {
		return nil, fmt.Errorf("user factor rows %d do not match index size %d", len(factors.Users), users.Len())
	}
	if len(factors.Videos) != videos.Len() {
		return nil, fmt.Errorf("video factor rows %d do not match index size %d", len(factors.Videos), videos.Len())
	}
	if m.Rows() != users.Len() || m.Cols() != videos.Len() {
		return nil, fmt.Errorf("matrix shape %dx%d does not match indexes %dx%d",
			m.Rows(), m.Cols(), users.Len(), videos.Len())
	}

	seenPtr := make([]int, users.Len()+1)
	seenIdx := make([]int, 0, m.NNZ())
	for u := 0; u < users.Len(); u++ {
		cols, _ := m.Row(u)
		seenIdx = append(seenIdx, cols...)
		seenPtr[u+1] = len(seenIdx)
	}

	return &Snapshot{
		meta: Metadata{
			TrainedAt:    trainedAt,
			Users:        users.Len(),
			Videos:       videos.Len(),
			Interactions: m.NNZ(),
			Params:       params,
		},
		users:        users,
		videos:       videos,
		userFactors:  factors.Users,
		videoFactors: factors.Videos,
		rank:         factors.Rank,
		seenPtr:      seenPtr,
		seenIdx:      seenIdx,
	}, nil
}

// Meta returns the snapshot metadata.
func (s *Snapshot) Meta() Metadata { return s.meta }

// WithVersion returns a copy of the snapshot carrying the given artifact
// version. The receiver is left untouched; the factor matrices and seen sets
// are shared, which is safe because snapshots never change after
// construction.
func (s *Snapshot) WithVersion(version int) *Snapshot {
	out := *s
	out.meta.Version = version
	return &out
}

// Users returns the user identifier index.
func (s *Snapshot) Users() *index.Index { return s.users }

// Videos returns the video identifier index.
func (s *Snapshot) Videos() *index.Index { return s.videos }

// Rank returns the latent dimensionality.
func (s *Snapshot) Rank() int { return s.rank }

// UserFactor returns the factor vector for a dense user index. The slice
// aliases internal storage and must not be modified.
func (s *Snapshot) UserFactor(u int) []float64 { return s.userFactors[u] }

// VideoFactor returns the factor vector for a dense video index. The slice
// aliases internal storage and must not be modified.
func (s *Snapshot) VideoFactor(v int) []float64 { return s.videoFactors[v] }

// Seen returns the sorted dense video indices user u interacted with during
// training. The slice aliases internal storage and must not be modified.
func (s *Snapshot) Seen(u int) []int {
	return s.seenIdx[s.seenPtr[u]:s.seenPtr[u+1]]
}

// HasSeen reports whether user u interacted with video v during training.
func (s *Snapshot) HasSeen(u, v int) bool {
	seen := s.Seen(u)
	i := sort.SearchInts(seen, v)
	return i < len(seen) && seen[i] == v
}

// Holder publishes the current serving snapshot. Swap is atomic, so readers
// always observe a complete model and reloads never block requests.
type Holder struct {
	ptr atomic.Pointer[Snapshot]
}

// Load returns the current snapshot, or nil before the first Swap.
func (h *Holder) Load() *Snapshot {
	return h.ptr.Load()
}

// Swap publishes a new snapshot and returns the previous one.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	return h.ptr.Swap(s)
}
