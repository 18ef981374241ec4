// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package matrix implements the sparse user-video interaction matrix.
//
// Interactions are accumulated in coordinate (COO) form, then compiled into
// compressed sparse row (CSR) and compressed sparse column (CSC) views. The
// user-factor solve and the scorer walk rows; the video-factor solve walks
// columns. A compiled Matrix is immutable and safe for concurrent reads.
package matrix

import (
	"fmt"
	"sort"
)

// DuplicateEntryError reports two interactions for the same (user, video)
// cell reaching the builder. Aggregation upstream must have collapsed them,
// so a duplicate here means corrupted input and training aborts.
type DuplicateEntryError struct {
	Row int
	Col int
}

// Error implements the error interface.
func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("duplicate interaction entry at row %d, col %d", e.Row, e.Col)
}

// entry is a single COO coordinate.
type entry struct {
	row, col int
	val      float64
}

// Builder accumulates interactions in coordinate form.
type Builder struct {
	rows, cols int
	entries    []entry
}

// NewBuilder creates a Builder for a rows x cols matrix.
func NewBuilder(rows, cols int) *Builder {
	return &Builder{rows: rows, cols: cols}
}

// Add records one interaction value at (row, col). Bounds are checked here
// so a bad dense index fails at build time rather than corrupting the
// compressed arrays later.
func (b *Builder) Add(row, col int, val float64) error {
	if row < 0 || row >= b.rows {
		return fmt.Errorf("row %d out of range [0, %d)", row, b.rows)
	}
	if col < 0 || col >= b.cols {
		return fmt.Errorf("col %d out of range [0, %d)", col, b.cols)
	}
	b.entries = append(b.entries, entry{row: row, col: col, val: val})
	return nil
}

// Build compiles the accumulated entries into an immutable Matrix with both
// CSR and CSC views. It returns a DuplicateEntryError if any (row, col)
// appears more than once.
func (b *Builder) Build() (*Matrix, error) {
	// Row-major sort makes duplicates adjacent and yields sorted CSR
	// column indices within each row.
	sort.Slice(b.entries, func(i, j int) bool {
		if b.entries[i].row != b.entries[j].row {
			return b.entries[i].row < b.entries[j].row
		}
		return b.entries[i].col < b.entries[j].col
	})

	for i := 1; i < len(b.entries); i++ {
		if b.entries[i].row == b.entries[i-1].row && b.entries[i].col == b.entries[i-1].col {
			return nil, &DuplicateEntryError{Row: b.entries[i].row, Col: b.entries[i].col}
		}
	}

	m := &Matrix{
		rows: b.rows,
		cols: b.cols,
		nnz:  len(b.entries),

		rowPtr: make([]int, b.rows+1),
		colIdx: make([]int, len(b.entries)),
		rowVal: make([]float64, len(b.entries)),

		colPtr: make([]int, b.cols+1),
		rowIdx: make([]int, len(b.entries)),
		colVal: make([]float64, len(b.entries)),
	}

	for i, e := range b.entries {
		m.rowPtr[e.row+1]++
		m.colIdx[i] = e.col
		m.rowVal[i] = e.val
	}
	for r := 0; r < b.rows; r++ {
		m.rowPtr[r+1] += m.rowPtr[r]
	}

	// CSC via counting sort over columns; entries are already row-sorted,
	// so row indices within each column come out sorted too.
	for _, e := range b.entries {
		m.colPtr[e.col+1]++
	}
	for c := 0; c < b.cols; c++ {
		m.colPtr[c+1] += m.colPtr[c]
	}
	next := make([]int, b.cols)
	copy(next, m.colPtr[:b.cols])
	for _, e := range b.entries {
		pos := next[e.col]
		m.rowIdx[pos] = e.row
		m.colVal[pos] = e.val
		next[e.col]++
	}

	return m, nil
}

// Matrix is an immutable sparse matrix with CSR and CSC views over the same
// nonzero set.
type Matrix struct {
	rows, cols, nnz int

	// CSR: rowPtr[r]..rowPtr[r+1] index into colIdx/rowVal.
	rowPtr []int
	colIdx []int
	rowVal []float64

	// CSC: colPtr[c]..colPtr[c+1] index into rowIdx/colVal.
	colPtr []int
	rowIdx []int
	colVal []float64
}

// Rows returns the number of rows (users).
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns (videos).
func (m *Matrix) Cols() int { return m.cols }

// NNZ returns the number of stored nonzero entries.
func (m *Matrix) NNZ() int { return m.nnz }

// Row returns the column indices and values of row r. The returned slices
// alias internal storage and must not be modified.
func (m *Matrix) Row(r int) (cols []int, vals []float64) {
	start, end := m.rowPtr[r], m.rowPtr[r+1]
	return m.colIdx[start:end], m.rowVal[start:end]
}

// Col returns the row indices and values of column c. The returned slices
// alias internal storage and must not be modified.
func (m *Matrix) Col(c int) (rows []int, vals []float64) {
	start, end := m.colPtr[c], m.colPtr[c+1]
	return m.rowIdx[start:end], m.colVal[start:end]
}

// RowNNZ returns the number of stored entries in row r.
func (m *Matrix) RowNNZ(r int) int {
	return m.rowPtr[r+1] - m.rowPtr[r]
}

// At returns the stored value at (row, col), or 0 for an unobserved cell.
// Column indices within a row are sorted, so a binary search suffices.
func (m *Matrix) At(row, col int) float64 {
	cols, vals := m.Row(row)
	i := sort.SearchInts(cols, col)
	if i < len(cols) && cols[i] == col {
		return vals[i]
	}
	return 0
}

// Density returns nnz / (rows*cols), or 0 for a degenerate shape.
func (m *Matrix) Density() float64 {
	if m.rows == 0 || m.cols == 0 {
		return 0
	}
	return float64(m.nnz) / (float64(m.rows) * float64(m.cols))
}
