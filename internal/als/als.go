// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

// Package als implements Alternating Least Squares matrix factorization for
// implicit feedback.
// Reference: "Collaborative Filtering for Implicit Feedback Datasets"
// (Hu, Koren, Volinsky, 2008)
//
// The trainer factorizes the sparse user-video interaction matrix into user
// and video latent factor matrices. Observed cells carry preference p = 1
// with a confidence weight derived from the aggregated interaction value;
// unobserved cells carry p = 0 with baseline confidence 1. Each alternation
// round solves one regularized least-squares system per user, then one per
// video, holding the other side fixed.
//
// Training is deterministic for a fixed seed and input: factor
// initialization is sequential, per-entity solves write disjoint rows, and
// worker count only changes scheduling, never results.
package als

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/viewfinder/internal/logging"
	"github.com/tomtom215/viewfinder/internal/matrix"
)

// ErrNumericalInstability is returned when a per-entity normal equation
// system is not positive definite. This can only happen with zero
// regularization; any lambda > 0 guarantees positive definiteness.
var ErrNumericalInstability = errors.New("normal equations not positive definite; increase regularization")

// ErrEmptyMatrix is returned when training is attempted on a matrix with no
// interactions.
var ErrEmptyMatrix = errors.New("interaction matrix has no entries")

// ConfidenceMode selects the rating-to-confidence transform.
type ConfidenceMode string

const (
	// ConfidenceLinear applies c = 1 + alpha*r.
	ConfidenceLinear ConfidenceMode = "linear"
	// ConfidenceRaw uses the aggregated rating directly as confidence,
	// c = r.
	ConfidenceRaw ConfidenceMode = "raw"
)

// Config contains the ALS hyperparameters.
type Config struct {
	// Factors is the latent dimensionality.
	Factors int

	// Iterations is the number of alternation rounds.
	Iterations int

	// Regularization is the L2 lambda added to each system's diagonal.
	Regularization float64

	// Alpha scales the linear confidence transform.
	Alpha float64

	// ConfidenceMode selects the confidence transform.
	ConfidenceMode ConfidenceMode

	// Seed initializes the factor matrices. Fixed seed, fixed input,
	// fixed hyperparameters give bit-identical factors.
	Seed int64

	// Workers is the number of goroutines solving per-entity systems
	// within a step. <= 0 uses runtime.NumCPU().
	Workers int

	// EarlyStopTolerance stops training once the observed-cell RMSE
	// improves by less than this amount between rounds. <= 0 disables
	// early stopping.
	EarlyStopTolerance float64
}

// DefaultConfig returns the hyperparameters the engine was tuned with.
func DefaultConfig() Config {
	return Config{
		Factors:        20,
		Iterations:     20,
		Regularization: 0.1,
		Alpha:          40.0,
		ConfidenceMode: ConfidenceLinear,
		Seed:           42,
	}
}

// Factors holds the trained latent factor matrices. Row u of Users pairs
// with row v of Videos: the predicted preference is their dot product.
type Factors struct {
	// Users is numUsers x Rank.
	Users [][]float64

	// Videos is numVideos x Rank.
	Videos [][]float64

	// Rank is the latent dimensionality both matrices share.
	Rank int

	// IterationsRun is the number of alternation rounds executed. It is
	// below the configured count only when early stopping triggered.
	IterationsRun int

	// FinalRMSE is the observed-cell reconstruction RMSE after the last
	// round. Zero when early stopping is disabled (the trainer skips the
	// extra pass).
	FinalRMSE float64
}

// Trainer runs ALS over a compiled interaction matrix.
type Trainer struct {
	cfg Config
}

// NewTrainer creates a Trainer, filling unset config fields with defaults.
func NewTrainer(cfg Config) *Trainer {
	def := DefaultConfig()
	if cfg.Factors <= 0 {
		cfg.Factors = def.Factors
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = def.Iterations
	}
	// Alpha 0 is a valid choice (uniform confidence in linear mode), so
	// only a negative value falls back to the default.
	if cfg.Alpha < 0 {
		cfg.Alpha = def.Alpha
	}
	if cfg.ConfidenceMode == "" {
		cfg.ConfidenceMode = def.ConfidenceMode
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Trainer{cfg: cfg}
}

// confidence transforms an aggregated rating into a confidence weight.
func (t *Trainer) confidence(rating float64) float64 {
	if t.cfg.ConfidenceMode == ConfidenceRaw {
		return rating
	}
	return 1.0 + t.cfg.Alpha*rating
}

// Train fits the factor matrices to the interaction matrix. The context is
// checked between alternation steps; a cancelled context aborts training
// and discards partial factors.
func (t *Trainer) Train(ctx context.Context, m *matrix.Matrix) (*Factors, error) {
	if m.NNZ() == 0 {
		return nil, ErrEmptyMatrix
	}

	numUsers, numVideos, rank := m.Rows(), m.Cols(), t.cfg.Factors
	logger := logging.WithComponent("als")
	logger.Info().
		Int("users", numUsers).
		Int("videos", numVideos).
		Int("factors", rank).
		Int("iterations", t.cfg.Iterations).
		Float64("regularization", t.cfg.Regularization).
		Int("nnz", m.NNZ()).
		Msg("training started")

	// Sequential seeded initialization keeps training reproducible for a
	// fixed seed regardless of worker count.
	rng := rand.New(rand.NewSource(t.cfg.Seed)) //nolint:gosec // determinism is required, not cryptographic strength
	users := initFactors(rng, numUsers, rank)
	videos := initFactors(rng, numVideos, rank)

	prevRMSE := math.Inf(1)
	iterationsRun := 0
	finalRMSE := 0.0

	for iter := 0; iter < t.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled at iteration %d: %w", iter, err)
		}

		// Fix videos, solve every user row, then fix users and solve
		// every video column. The barrier between the two steps is what
		// makes each solve see a consistent fixed side.
		if err := t.solveSide(ctx, users, videos, m.Row, numUsers); err != nil {
			return nil, err
		}
		if err := t.solveSide(ctx, videos, users, m.Col, numVideos); err != nil {
			return nil, err
		}
		iterationsRun++

		if t.cfg.EarlyStopTolerance > 0 {
			rmse := observedRMSE(m, users, videos)
			logger.Debug().
				Int("iteration", iter+1).
				Float64("rmse", rmse).
				Msg("iteration complete")
			finalRMSE = rmse
			if prevRMSE-rmse < t.cfg.EarlyStopTolerance {
				logger.Info().
					Int("iteration", iter+1).
					Float64("rmse", rmse).
					Msg("early stop: rmse improvement below tolerance")
				break
			}
			prevRMSE = rmse
		}
	}

	logger.Info().
		Int("iterations_run", iterationsRun).
		Msg("training complete")

	return &Factors{
		Users:         users,
		Videos:        videos,
		Rank:          rank,
		IterationsRun: iterationsRun,
		FinalRMSE:     finalRMSE,
	}, nil
}

// initFactors allocates an n x rank matrix with small random entries drawn
// sequentially from rng.
func initFactors(rng *rand.Rand, n, rank int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, rank)
		for f := range row {
			row[f] = 0.01 * rng.NormFloat64()
		}
		out[i] = row
	}
	return out
}

// solveSide recomputes every row of target while fixed stays constant.
// observed(i) yields the fixed-side indices and aggregated ratings for
// target entity i. Rows are partitioned into contiguous chunks across the
// worker pool; each worker writes only its own rows.
func (t *Trainer) solveSide(ctx context.Context, target, fixed [][]float64, observed func(int) ([]int, []float64), n int) error {
	rank := t.cfg.Factors
	gram := gramMatrix(fixed, rank)
	for f := 0; f < rank; f++ {
		gram[f][f] += t.cfg.Regularization
	}

	g, ctx := errgroup.WithContext(ctx)
	workers := t.cfg.Workers
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, n)
		if start >= end {
			break
		}

		g.Go(func() error {
			// Scratch buffers reused across this worker's rows.
			a := newSquare(rank)
			chol := newSquare(rank)
			b := make([]float64, rank)

			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				indices, ratings := observed(i)
				t.buildSystem(a, b, gram, fixed, indices, ratings)
				if err := choleskySolve(a, b, chol, target[i]); err != nil {
					return fmt.Errorf("entity %d: %w", i, err)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// buildSystem fills A = gram + sum (c-1) y y' and b = sum c y for one
// entity's observed interactions. gram already carries the lambda diagonal.
func (t *Trainer) buildSystem(a [][]float64, b []float64, gram, fixed [][]float64, indices []int, ratings []float64) {
	rank := len(b)
	for f := 0; f < rank; f++ {
		copy(a[f], gram[f])
		b[f] = 0
	}

	for k, j := range indices {
		y := fixed[j]
		c := t.confidence(ratings[k])
		cMinus1 := c - 1.0

		for f1 := 0; f1 < rank; f1++ {
			yf1 := y[f1]
			for f2 := f1; f2 < rank; f2++ {
				delta := cMinus1 * yf1 * y[f2]
				a[f1][f2] += delta
				if f1 != f2 {
					a[f2][f1] += delta
				}
			}
			b[f1] += c * yf1
		}
	}
}

// gramMatrix computes M'M for an n x rank matrix M.
func gramMatrix(m [][]float64, rank int) [][]float64 {
	g := newSquare(rank)
	for _, row := range m {
		for f1 := 0; f1 < rank; f1++ {
			rf1 := row[f1]
			for f2 := f1; f2 < rank; f2++ {
				g[f1][f2] += rf1 * row[f2]
			}
		}
	}
	for f1 := 0; f1 < rank; f1++ {
		for f2 := f1 + 1; f2 < rank; f2++ {
			g[f2][f1] = g[f1][f2]
		}
	}
	return g
}

// newSquare allocates an n x n matrix of zeros.
func newSquare(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

// choleskySolve solves A*x = b for symmetric positive definite A, writing
// the result into x. l is caller-provided scratch for the decomposition.
// A non-positive pivot means A is singular, which lambda > 0 rules out, so
// the error surfaces only with zero regularization on degenerate data.
func choleskySolve(a [][]float64, b []float64, l [][]float64, x []float64) error {
	n := len(b)

	// A = L L'
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return ErrNumericalInstability
				}
				l[i][i] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}

	// L z = b, forward substitution; z stored in x.
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= l[i][j] * x[j]
		}
		x[i] = sum / l[i][i]
	}

	// L' x = z, back substitution in place.
	for i := n - 1; i >= 0; i-- {
		sum := x[i]
		for j := i + 1; j < n; j++ {
			sum -= l[j][i] * x[j]
		}
		x[i] = sum / l[i][i]
	}

	return nil
}

// observedRMSE computes the root mean squared error between the preference
// 1.0 and the predicted dot product over observed cells only.
func observedRMSE(m *matrix.Matrix, users, videos [][]float64) float64 {
	var sum float64
	for u := 0; u < m.Rows(); u++ {
		cols, _ := m.Row(u)
		for _, v := range cols {
			pred := dot(users[u], videos[v])
			diff := 1.0 - pred
			sum += diff * diff
		}
	}
	return math.Sqrt(sum / float64(m.NNZ()))
}

// dot returns the inner product of two equal-length vectors.
func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
