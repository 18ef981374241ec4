// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package ingest reads raw user-video interactions from CSV and compiles
// them into the training dataset: aggregated ratings, identifier indexes,
// and the sparse interaction matrix.
//
// The source format is a header row followed by
//
//	userId,videoId,interactionValue
//
// rows. Repeated (user, video) pairs are summed into a single aggregated
// rating. Index ordering follows first appearance in the stream, so the
// same file always compiles to the same dataset.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tomtom215/viewfinder/internal/index"
	"github.com/tomtom215/viewfinder/internal/logging"
	"github.com/tomtom215/viewfinder/internal/matrix"
)

// ErrNoInteractions is returned when the source contains a header but no
// data rows.
var ErrNoInteractions = errors.New("interaction source contains no rows")

// Interaction is one raw event from the source.
type Interaction struct {
	UserID  string
	VideoID string
	Value   float64
}

// Dataset is the compiled training input.
type Dataset struct {
	// Users and Videos map external identifiers to dense indices in
	// first-seen order.
	Users  *index.Index
	Videos *index.Index

	// Matrix holds one aggregated rating per observed (user, video) cell.
	Matrix *matrix.Matrix

	// RawRows is the number of source rows before aggregation.
	RawRows int
}

// ReadCSV parses interactions from r. The first row is treated as a header
// and skipped. A row with the wrong field count, an empty identifier, or a
// non-numeric or negative value fails the whole read; partial input must
// never reach training.
func ReadCSV(r io.Reader) ([]Interaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoInteractions
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var out []Interaction
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		userID, videoID := record[0], record[1]
		if userID == "" || videoID == "" {
			return nil, fmt.Errorf("line %d: empty identifier", line)
		}
		value, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid interaction value %q", line, record[2])
		}
		if value < 0 {
			return nil, fmt.Errorf("line %d: negative interaction value %f", line, value)
		}

		out = append(out, Interaction{UserID: userID, VideoID: videoID, Value: value})
	}

	if len(out) == 0 {
		return nil, ErrNoInteractions
	}
	return out, nil
}

// cell identifies one aggregated (user, video) pair.
type cell struct {
	u, v int
}

// Compile aggregates raw interactions and builds the dataset. Repeated
// pairs sum their values, matching how repeated plays accumulate evidence
// of preference.
func Compile(interactions []Interaction) (*Dataset, error) {
	if len(interactions) == 0 {
		return nil, ErrNoInteractions
	}

	userIDs := make([]string, len(interactions))
	videoIDs := make([]string, len(interactions))
	for i, it := range interactions {
		userIDs[i] = it.UserID
		videoIDs[i] = it.VideoID
	}
	users := index.Build(index.KindUser, userIDs)
	videos := index.Build(index.KindVideo, videoIDs)

	aggregated := make(map[cell]float64, len(interactions))
	order := make([]cell, 0, len(interactions))
	for _, it := range interactions {
		u, err := users.Lookup(it.UserID)
		if err != nil {
			return nil, err
		}
		v, err := videos.Lookup(it.VideoID)
		if err != nil {
			return nil, err
		}
		key := cell{u: u, v: v}
		if _, seen := aggregated[key]; !seen {
			order = append(order, key)
		}
		aggregated[key] += it.Value
	}

	b := matrix.NewBuilder(users.Len(), videos.Len())
	for _, key := range order {
		if err := b.Add(key.u, key.v, aggregated[key]); err != nil {
			return nil, err
		}
	}
	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	return &Dataset{
		Users:   users,
		Videos:  videos,
		Matrix:  m,
		RawRows: len(interactions),
	}, nil
}

// LoadFile reads and compiles the interaction CSV at path.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open interaction source: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	interactions, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ds, err := Compile(interactions)
	if err != nil {
		return nil, err
	}

	logger := logging.WithComponent("ingest")
	logger.Info().
		Str("path", path).
		Int("raw_rows", ds.RawRows).
		Int("users", ds.Users.Len()).
		Int("videos", ds.Videos.Len()).
		Int("cells", ds.Matrix.NNZ()).
		Msg("interaction source loaded")
	return ds, nil
}
