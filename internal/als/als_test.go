// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package als

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tomtom215/viewfinder/internal/matrix"
)

// buildMatrix compiles a matrix from (user, video, rating) triples.
func buildMatrix(t *testing.T, rows, cols int, triples [][3]float64) *matrix.Matrix {
	t.Helper()
	b := matrix.NewBuilder(rows, cols)
	for _, tr := range triples {
		if err := b.Add(int(tr[0]), int(tr[1]), tr[2]); err != nil {
			t.Fatalf("Add(%v) failed: %v", tr, err)
		}
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return m
}

// blockMatrix has two disjoint user/video communities: users 0-1 watch
// videos 0-1, users 2-3 watch videos 2-3.
func blockMatrix(t *testing.T) *matrix.Matrix {
	t.Helper()
	return buildMatrix(t, 4, 4, [][3]float64{
		{0, 0, 3}, {0, 1, 2},
		{1, 0, 1}, {1, 1, 4},
		{2, 2, 2}, {2, 3, 3},
		{3, 2, 4}, {3, 3, 1},
	})
}

func TestTrainRecoversBlockStructure(t *testing.T) {
	m := blockMatrix(t)

	trainer := NewTrainer(Config{
		Factors:        8,
		Iterations:     20,
		Regularization: 0.1,
		Alpha:          40,
		Seed:           42,
		Workers:        2,
	})
	factors, err := trainer.Train(context.Background(), m)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}

	if len(factors.Users) != 4 || len(factors.Videos) != 4 {
		t.Fatalf("factor shapes = %dx%d users, %dx%d videos",
			len(factors.Users), factors.Rank, len(factors.Videos), factors.Rank)
	}
	if factors.IterationsRun != 20 {
		t.Errorf("IterationsRun = %d, want 20", factors.IterationsRun)
	}

	// Within-community scores must dominate cross-community scores.
	for u := 0; u < 4; u++ {
		var inBlock, outBlock float64
		for v := 0; v < 4; v++ {
			score := dot(factors.Users[u], factors.Videos[v])
			if (u < 2) == (v < 2) {
				inBlock += score
			} else {
				outBlock += score
			}
		}
		if inBlock <= outBlock {
			t.Errorf("user %d: in-block score sum %f <= out-block %f", u, inBlock, outBlock)
		}
	}
}

func TestTrainDeterministic(t *testing.T) {
	m := blockMatrix(t)
	cfg := Config{
		Factors:        6,
		Iterations:     5,
		Regularization: 0.1,
		Seed:           7,
	}

	run := func(workers int) *Factors {
		c := cfg
		c.Workers = workers
		factors, err := NewTrainer(c).Train(context.Background(), m)
		if err != nil {
			t.Fatalf("Train() failed: %v", err)
		}
		return factors
	}

	base := run(1)
	for _, workers := range []int{1, 2, 8} {
		other := run(workers)
		for u := range base.Users {
			for f := range base.Users[u] {
				if base.Users[u][f] != other.Users[u][f] {
					t.Fatalf("workers=%d: user factor [%d][%d] = %v, want %v (not deterministic)",
						workers, u, f, other.Users[u][f], base.Users[u][f])
				}
			}
		}
		for v := range base.Videos {
			for f := range base.Videos[v] {
				if base.Videos[v][f] != other.Videos[v][f] {
					t.Fatalf("workers=%d: video factor [%d][%d] differs (not deterministic)", workers, v, f)
				}
			}
		}
	}
}

func TestTrainSeedChangesFactors(t *testing.T) {
	m := blockMatrix(t)

	train := func(seed int64) *Factors {
		factors, err := NewTrainer(Config{
			Factors:        6,
			Iterations:     3,
			Regularization: 0.1,
			Seed:           seed,
		}).Train(context.Background(), m)
		if err != nil {
			t.Fatalf("Train() failed: %v", err)
		}
		return factors
	}

	a, b := train(1), train(2)
	same := true
	for u := range a.Users {
		for f := range a.Users[u] {
			if a.Users[u][f] != b.Users[u][f] {
				same = false
			}
		}
	}
	if same {
		t.Error("factors identical across different seeds")
	}
}

func TestTrainZeroRegularizationRecovery(t *testing.T) {
	// Fully observed noiseless matrix: every preference is exactly 1, so a
	// rank-1 factorization reproduces it. With every entity observed and
	// rank 1, the 1x1 normal equations stay positive even at lambda = 0.
	m := buildMatrix(t, 3, 3, [][3]float64{
		{0, 0, 2}, {0, 1, 2}, {0, 2, 2},
		{1, 0, 2}, {1, 1, 2}, {1, 2, 2},
		{2, 0, 2}, {2, 1, 2}, {2, 2, 2},
	})

	factors, err := NewTrainer(Config{
		Factors:        1,
		Iterations:     10,
		Regularization: 0,
		Seed:           42,
	}).Train(context.Background(), m)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}

	for u := 0; u < 3; u++ {
		for v := 0; v < 3; v++ {
			pred := dot(factors.Users[u], factors.Videos[v])
			if math.Abs(pred-1.0) > 0.01 {
				t.Errorf("predicted preference (%d, %d) = %f, want ~1.0", u, v, pred)
			}
		}
	}
}

func TestTrainEmptyMatrix(t *testing.T) {
	m := buildMatrix(t, 3, 3, nil)

	_, err := NewTrainer(DefaultConfig()).Train(context.Background(), m)
	if !errors.Is(err, ErrEmptyMatrix) {
		t.Fatalf("Train(empty) error = %v, want ErrEmptyMatrix", err)
	}
}

func TestTrainCancelled(t *testing.T) {
	m := blockMatrix(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTrainer(DefaultConfig()).Train(ctx, m)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Train(cancelled ctx) error = %v, want context.Canceled", err)
	}
}

func TestTrainEarlyStop(t *testing.T) {
	m := blockMatrix(t)

	factors, err := NewTrainer(Config{
		Factors:            6,
		Iterations:         20,
		Regularization:     0.1,
		Seed:               42,
		EarlyStopTolerance: 100.0,
	}).Train(context.Background(), m)
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}

	if factors.IterationsRun >= 20 {
		t.Errorf("IterationsRun = %d, want early stop before 20", factors.IterationsRun)
	}
	if factors.FinalRMSE <= 0 {
		t.Errorf("FinalRMSE = %f, want > 0 with early stopping enabled", factors.FinalRMSE)
	}
}

func TestConfidenceModes(t *testing.T) {
	tests := []struct {
		name   string
		mode   ConfidenceMode
		alpha  float64
		rating float64
		want   float64
	}{
		{"linear scales with alpha", ConfidenceLinear, 40, 2, 81},
		{"linear at zero rating", ConfidenceLinear, 40, 0, 1},
		{"raw passes rating through", ConfidenceRaw, 40, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trainer := NewTrainer(Config{Alpha: tt.alpha, ConfidenceMode: tt.mode})
			if got := trainer.confidence(tt.rating); got != tt.want {
				t.Errorf("confidence(%f) = %f, want %f", tt.rating, got, tt.want)
			}
		})
	}
}

func TestZeroAlphaHonored(t *testing.T) {
	// Alpha 0 in linear mode means uniform confidence c = 1 for every
	// observed cell; it must not be silently replaced with the default.
	trainer := NewTrainer(Config{Alpha: 0, ConfidenceMode: ConfidenceLinear})
	if got := trainer.confidence(3); got != 1.0 {
		t.Errorf("confidence(3) with alpha 0 = %f, want 1.0", got)
	}

	if got := NewTrainer(Config{Alpha: -1}).cfg.Alpha; got != 40.0 {
		t.Errorf("negative alpha backfilled to %f, want default 40", got)
	}
}

func TestCholeskySolve(t *testing.T) {
	// A = [[4, 2], [2, 3]], b = [10, 9] has exact solution x = [1.5, 2].
	a := [][]float64{{4, 2}, {2, 3}}
	b := []float64{10, 9}
	x := make([]float64, 2)

	if err := choleskySolve(a, b, newSquare(2), x); err != nil {
		t.Fatalf("choleskySolve() failed: %v", err)
	}

	want := []float64{1.5, 2}
	for i := range want {
		if math.Abs(x[i]-want[i]) > 1e-12 {
			t.Errorf("x[%d] = %f, want %f", i, x[i], want[i])
		}
	}
}

func TestCholeskySingular(t *testing.T) {
	// Rank-deficient matrix: second row is a multiple of the first.
	a := [][]float64{{1, 2}, {2, 4}}
	b := []float64{1, 2}
	x := make([]float64, 2)

	err := choleskySolve(a, b, newSquare(2), x)
	if !errors.Is(err, ErrNumericalInstability) {
		t.Fatalf("choleskySolve(singular) error = %v, want ErrNumericalInstability", err)
	}
}

func TestTrainZeroRegularizationSingular(t *testing.T) {
	// One user, one video, rank 2: with lambda = 0 the 2x2 normal
	// equations built from a single rank-one update are singular.
	m := buildMatrix(t, 1, 1, [][3]float64{{0, 0, 5}})

	_, err := NewTrainer(Config{
		Factors:        2,
		Iterations:     1,
		Regularization: 0,
		Seed:           1,
	}).Train(context.Background(), m)
	if !errors.Is(err, ErrNumericalInstability) {
		t.Fatalf("Train(lambda=0, degenerate) error = %v, want ErrNumericalInstability", err)
	}
}

func TestNewTrainerDefaults(t *testing.T) {
	trainer := NewTrainer(Config{})

	if trainer.cfg.Factors != 20 {
		t.Errorf("default Factors = %d, want 20", trainer.cfg.Factors)
	}
	if trainer.cfg.Iterations != 20 {
		t.Errorf("default Iterations = %d, want 20", trainer.cfg.Iterations)
	}
	if trainer.cfg.ConfidenceMode != ConfidenceLinear {
		t.Errorf("default ConfidenceMode = %q, want linear", trainer.cfg.ConfidenceMode)
	}
	if trainer.cfg.Workers < 1 {
		t.Errorf("default Workers = %d, want >= 1", trainer.cfg.Workers)
	}
}
