// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package index maps external string identifiers to dense integer indices
// and back. The factorization and matrix layers work exclusively in dense
// index space; this package is the only place external IDs are translated.
//
// An Index is built once from the full set of observed identifiers and is
// immutable afterward, so concurrent lookups need no synchronization.
package index

import "fmt"

// EntityKind labels which side of the interaction matrix an identifier
// belongs to, for error reporting.
type EntityKind string

const (
	// KindUser marks user identifiers.
	KindUser EntityKind = "user"
	// KindVideo marks video identifiers.
	KindVideo EntityKind = "video"
)

// UnknownEntityError reports a lookup of an identifier that was not present
// when the index was built.
type UnknownEntityError struct {
	Kind EntityKind
	ID   string
}

// Error implements the error interface.
func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown %s identifier %q", e.Kind, e.ID)
}

// Index is an immutable bijection between external string identifiers and
// the dense range [0, Len).
type Index struct {
	kind    EntityKind
	toDense map[string]int
	toID    []string
}

// Build constructs an Index from identifiers in first-seen order. Duplicate
// identifiers are assigned once and keep their first position, so the same
// interaction stream always yields the same mapping.
func Build(kind EntityKind, ids []string) *Index {
	idx := &Index{
		kind:    kind,
		toDense: make(map[string]int, len(ids)),
		toID:    make([]string, 0, len(ids)),
	}
	for _, id := range ids {
		if _, seen := idx.toDense[id]; seen {
			continue
		}
		idx.toDense[id] = len(idx.toID)
		idx.toID = append(idx.toID, id)
	}
	return idx
}

// Restore rebuilds an Index from a previously persisted dense ordering.
// Position i of ids becomes dense index i.
func Restore(kind EntityKind, ids []string) (*Index, error) {
	idx := &Index{
		kind:    kind,
		toDense: make(map[string]int, len(ids)),
		toID:    make([]string, len(ids)),
	}
	for i, id := range ids {
		if _, dup := idx.toDense[id]; dup {
			return nil, fmt.Errorf("duplicate %s identifier %q in persisted ordering", kind, id)
		}
		idx.toDense[id] = i
		idx.toID[i] = id
	}
	return idx, nil
}

// Len returns the number of distinct identifiers in the index.
func (idx *Index) Len() int {
	return len(idx.toID)
}

// Kind returns the entity kind the index was built for.
func (idx *Index) Kind() EntityKind {
	return idx.kind
}

// Lookup returns the dense index for an external identifier. An identifier
// the index has never seen yields an UnknownEntityError.
func (idx *Index) Lookup(id string) (int, error) {
	dense, ok := idx.toDense[id]
	if !ok {
		return 0, &UnknownEntityError{Kind: idx.kind, ID: id}
	}
	return dense, nil
}

// Contains reports whether the external identifier is present.
func (idx *Index) Contains(id string) bool {
	_, ok := idx.toDense[id]
	return ok
}

// ID returns the external identifier at the given dense index. It panics if
// dense is out of range, matching slice semantics: dense indices originate
// inside the engine and an out-of-range value is a programming error.
func (idx *Index) ID(dense int) string {
	return idx.toID[dense]
}

// IDs returns the external identifiers in dense order. The returned slice
// is a copy; callers may retain or modify it.
func (idx *Index) IDs() []string {
	out := make([]string, len(idx.toID))
	copy(out, idx.toID)
	return out
}
