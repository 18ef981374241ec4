// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package model

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tomtom215/viewfinder/internal/index"
	"github.com/tomtom215/viewfinder/internal/logging"
)

// FormatVersion is the current artifact encoding version. Artifacts written
// with a different version are rejected at load time.
const FormatVersion = 1

// ErrNoArtifacts is returned by LoadLatest when the store directory holds
// no model artifacts.
var ErrNoArtifacts = errors.New("no model artifacts found")

// ErrArtifactVersion is returned when a stored artifact's format version or
// internal shape does not match what this build expects.
var ErrArtifactVersion = errors.New("incompatible model artifact")

// ErrArtifactCorrupt is returned when an artifact's checksum does not match
// its payload.
var ErrArtifactCorrupt = errors.New("model artifact checksum mismatch")

// envelope is the outer on-disk structure: a format version, a SHA-256
// checksum, and the gob-encoded artifact payload the checksum covers.
type envelope struct {
	FormatVersion int
	Checksum      string
	Payload       []byte
}

// artifact is the gob-encoded persisted form of a Snapshot.
type artifact struct {
	Meta Metadata

	UserIDs  []string
	VideoIDs []string

	UserFactors  [][]float64
	VideoFactors [][]float64
	Rank         int

	SeenPtr []int
	SeenIdx []int
}

// Store persists model snapshots as versioned files named
// model_v{N}.gob.gz under a single directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// path returns the file path for a version number.
func (st *Store) path(version int) string {
	return filepath.Join(st.dir, fmt.Sprintf("model_v%d.gob.gz", version))
}

// Versions returns the stored artifact versions in ascending order.
func (st *Store) Versions() ([]int, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var v int
		if n, err := fmt.Sscanf(entry.Name(), "model_v%d.gob.gz", &v); err == nil && n == 1 && v > 0 {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)
	return versions, nil
}

// Save persists the snapshot as the next version and returns it. The write
// goes through a temp file and rename so a crash never leaves a partial
// artifact under a valid name.
func (st *Store) Save(s *Snapshot) (int, error) {
	versions, err := st.Versions()
	if err != nil {
		return 0, err
	}
	version := 1
	if len(versions) > 0 {
		version = versions[len(versions)-1] + 1
	}

	art := artifact{
		Meta:         s.meta,
		UserIDs:      s.users.IDs(),
		VideoIDs:     s.videos.IDs(),
		UserFactors:  s.userFactors,
		VideoFactors: s.videoFactors,
		Rank:         s.rank,
		SeenPtr:      s.seenPtr,
		SeenIdx:      s.seenIdx,
	}
	art.Meta.Version = version

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(&art); err != nil {
		return 0, fmt.Errorf("failed to encode artifact: %w", err)
	}
	sum := sha256.Sum256(payload.Bytes())

	env := envelope{
		FormatVersion: FormatVersion,
		Checksum:      hex.EncodeToString(sum[:]),
		Payload:       payload.Bytes(),
	}

	tmp, err := os.CreateTemp(st.dir, "model_*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // best-effort cleanup, gone after rename

	gz := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(gz).Encode(&env); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return 0, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // flush error takes precedence
		return 0, fmt.Errorf("failed to flush artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, st.path(version)); err != nil {
		return 0, fmt.Errorf("failed to publish artifact: %w", err)
	}

	logger := logging.WithComponent("model")
	logger.Info().
		Int("version", version).
		Int("users", art.Meta.Users).
		Int("videos", art.Meta.Videos).
		Str("path", st.path(version)).
		Msg("model artifact saved")
	return version, nil
}

// Load reads and validates the artifact with the given version.
func (st *Store) Load(version int) (*Snapshot, error) {
	f, err := os.Open(st.path(version))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact v%d: %w", version, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress artifact v%d: %w", version, err)
	}
	defer gz.Close() //nolint:errcheck // read-only stream

	var env envelope
	if err := gob.NewDecoder(gz).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode artifact v%d: %w", version, err)
	}

	if env.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, expected %d", ErrArtifactVersion, env.FormatVersion, FormatVersion)
	}
	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return nil, fmt.Errorf("%w: artifact v%d", ErrArtifactCorrupt, version)
	}

	var art artifact
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(&art); err != nil {
		return nil, fmt.Errorf("failed to decode artifact payload v%d: %w", version, err)
	}

	return restoreSnapshot(&art)
}

// restoreSnapshot rebuilds a Snapshot from its persisted form, validating
// shape consistency. A mismatch means the artifact was produced by an
// incompatible build or tampered with.
func restoreSnapshot(art *artifact) (*Snapshot, error) {
	if len(art.UserFactors) != len(art.UserIDs) {
		return nil, fmt.Errorf("%w: %d user factor rows for %d user IDs",
			ErrArtifactVersion, len(art.UserFactors), len(art.UserIDs))
	}
	if len(art.VideoFactors) != len(art.VideoIDs) {
		return nil, fmt.Errorf("%w: %d video factor rows for %d video IDs",
			ErrArtifactVersion, len(art.VideoFactors), len(art.VideoIDs))
	}
	for _, row := range art.UserFactors {
		if len(row) != art.Rank {
			return nil, fmt.Errorf("%w: user factor width %d, expected rank %d", ErrArtifactVersion, len(row), art.Rank)
		}
	}
	for _, row := range art.VideoFactors {
		if len(row) != art.Rank {
			return nil, fmt.Errorf("%w: video factor width %d, expected rank %d", ErrArtifactVersion, len(row), art.Rank)
		}
	}
	if len(art.SeenPtr) != len(art.UserIDs)+1 {
		return nil, fmt.Errorf("%w: seen-set pointer length %d for %d users",
			ErrArtifactVersion, len(art.SeenPtr), len(art.UserIDs))
	}

	users, err := index.Restore(index.KindUser, art.UserIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactVersion, err)
	}
	videos, err := index.Restore(index.KindVideo, art.VideoIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactVersion, err)
	}

	return &Snapshot{
		meta:         art.Meta,
		users:        users,
		videos:       videos,
		userFactors:  art.UserFactors,
		videoFactors: art.VideoFactors,
		rank:         art.Rank,
		seenPtr:      art.SeenPtr,
		seenIdx:      art.SeenIdx,
	}, nil
}

// LoadLatest loads the highest stored version, or ErrNoArtifacts when the
// directory holds none.
func (st *Store) LoadLatest() (*Snapshot, error) {
	versions, err := st.Versions()
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNoArtifacts
	}
	return st.Load(versions[len(versions)-1])
}

// Prune deletes all but the newest retain artifacts.
func (st *Store) Prune(retain int) error {
	if retain < 1 {
		return fmt.Errorf("retain must be positive, got %d", retain)
	}
	versions, err := st.Versions()
	if err != nil {
		return err
	}
	if len(versions) <= retain {
		return nil
	}

	logger := logging.WithComponent("model")
	for _, v := range versions[:len(versions)-retain] {
		if err := os.Remove(st.path(v)); err != nil {
			return fmt.Errorf("failed to prune artifact v%d: %w", v, err)
		}
		logger.Debug().Int("version", v).Msg("pruned model artifact")
	}
	return nil
}
