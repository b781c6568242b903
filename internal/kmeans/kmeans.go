// Package kmeans implements the clustering trainer behind the IVF index:
// k-means++ seeding followed by Lloyd iterations. The trainer is not
// internally synchronized; callers hold exclusive access while training.
package kmeans

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/distance"
)

// Config controls a training run.
type Config struct {
	// MaxIterations bounds the number of Lloyd iterations.
	MaxIterations int
	// ConvergenceThreshold stops training once the largest centroid
	// movement between iterations falls below it.
	ConvergenceThreshold float32
	// Metric is the distance used for assignment.
	Metric core.DistanceMetric
	// Seed makes training reproducible when non-nil.
	Seed *int64
}

// DefaultConfig returns the standard training parameters.
func DefaultConfig(metric core.DistanceMetric) Config {
	return Config{
		MaxIterations:        100,
		ConvergenceThreshold: 1e-4,
		Metric:               metric,
	}
}

// Train clusters the input vectors into at most k centroids. If k exceeds
// the number of inputs it is silently reduced so that each vector gets its
// own cluster. The result minimizes within-cluster squared distance under
// the configured metric, up to local-optimum quality.
func Train(vectors [][]float32, k int, cfg Config) ([][]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no training vectors", core.ErrInvalidParameter)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: cluster count must be positive, got %d", core.ErrInvalidParameter, k)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional training vectors", core.ErrInvalidParameter)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: training vector %d has dimension %d, want %d",
				core.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	if k > len(vectors) {
		k = len(vectors)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	if cfg.ConvergenceThreshold <= 0 {
		cfg.ConvergenceThreshold = 1e-4
	}

	var rng *rand.Rand
	if cfg.Seed != nil {
		rng = rand.New(rand.NewSource(*cfg.Seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	centroids := seedPlusPlus(vectors, k, cfg.Metric, rng)

	assignments := make([]int, len(vectors))
	counts := make([]int, k)
	sums := make([][]float32, k)
	for c := range sums {
		sums[c] = make([]float32, dim)
	}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		// Assignment step.
		for c := 0; c < k; c++ {
			counts[c] = 0
			for d := 0; d < dim; d++ {
				sums[c][d] = 0
			}
		}
		for i, v := range vectors {
			c := nearestCentroid(v, centroids, cfg.Metric)
			assignments[i] = c
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += v[d]
			}
		}

		// Update step: each centroid becomes the mean of its members.
		// An empty cluster is reseeded from a random input vector.
		var maxShift float32
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				src := vectors[rng.Intn(len(vectors))]
				copy(centroids[c], src)
				maxShift = float32(math.Inf(1))
				continue
			}
			inv := 1.0 / float32(counts[c])
			var shift float32
			for d := 0; d < dim; d++ {
				mean := sums[c][d] * inv
				delta := mean - centroids[c][d]
				shift += delta * delta
				centroids[c][d] = mean
			}
			if s := float32(math.Sqrt(float64(shift))); s > maxShift {
				maxShift = s
			}
		}

		if maxShift < cfg.ConvergenceThreshold {
			break
		}
	}

	return centroids, nil
}

// Assign returns the index of the nearest centroid for each input vector.
func Assign(vectors [][]float32, centroids [][]float32, metric core.DistanceMetric) []int {
	out := make([]int, len(vectors))
	for i, v := range vectors {
		out[i] = nearestCentroid(v, centroids, metric)
	}
	return out
}

// seedPlusPlus picks the initial centroids: the first uniformly at random,
// each following one sampled with probability proportional to the squared
// distance from its nearest already-chosen centroid. best holds the true
// metric distance so the weight is D(x)^2 for every metric.
func seedPlusPlus(vectors [][]float32, k int, metric core.DistanceMetric, rng *rand.Rand) [][]float32 {
	dim := len(vectors[0])
	centroids := make([][]float32, k)

	first := rng.Intn(len(vectors))
	centroids[0] = append(make([]float32, 0, dim), vectors[first]...)

	// best[i] tracks the distance from vectors[i] to its nearest chosen
	// centroid so each round only scores against the newest centroid.
	best := make([]float32, len(vectors))
	for i, v := range vectors {
		best[i] = distance.Calculate(v, centroids[0], metric)
	}

	for c := 1; c < k; c++ {
		var total float64
		for i := range vectors {
			total += float64(best[i]) * float64(best[i])
		}

		var idx int
		if total > 0 {
			target := rng.Float64() * total
			var cumulative float64
			idx = len(vectors) - 1
			for i := range vectors {
				cumulative += float64(best[i]) * float64(best[i])
				if cumulative >= target {
					idx = i
					break
				}
			}
		} else {
			// All weights vanished (duplicate inputs); fall back to uniform.
			idx = rng.Intn(len(vectors))
		}

		centroids[c] = append(make([]float32, 0, dim), vectors[idx]...)

		for i, v := range vectors {
			if d := distance.Calculate(v, centroids[c], metric); d < best[i] {
				best[i] = d
			}
		}
	}

	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32, metric core.DistanceMetric) int {
	bestIdx := 0
	bestDist := float32(math.MaxFloat32)
	for c, centroid := range centroids {
		if d := distance.CalculateOrdering(v, centroid, metric); d < bestDist {
			bestDist = d
			bestIdx = c
		}
	}
	return bestIdx
}
