package kmeans

import (
	"math/rand"
	"testing"

	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/distance"
)

func seeded(seed int64) *int64 { return &seed }

// threeBlobs generates n vectors around three well-separated centers.
func threeBlobs(n int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	centers := [][]float32{{0, 0}, {10, 10}, {-10, 10}}
	out := make([][]float32, n)
	for i := range out {
		c := centers[i%3]
		out[i] = []float32{
			c[0] + float32(rng.NormFloat64())*0.5,
			c[1] + float32(rng.NormFloat64())*0.5,
		}
	}
	return out
}

func TestTrainFindsSeparatedClusters(t *testing.T) {
	vectors := threeBlobs(300, 1)
	cfg := DefaultConfig(core.L2)
	cfg.Seed = seeded(42)

	centroids, err := Train(vectors, 3, cfg)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if len(centroids) != 3 {
		t.Fatalf("expected 3 centroids, got %d", len(centroids))
	}

	// Each true center should have a learned centroid within 1.0.
	for _, center := range [][]float32{{0, 0}, {10, 10}, {-10, 10}} {
		best := float32(1e9)
		for _, c := range centroids {
			if d := distance.L2(center, c); d < best {
				best = d
			}
		}
		if best > 1.0 {
			t.Errorf("no centroid near %v (closest at distance %f)", center, best)
		}
	}
}

func TestTrainReproducibleWithSeed(t *testing.T) {
	vectors := threeBlobs(90, 7)
	cfg := DefaultConfig(core.L2)
	cfg.Seed = seeded(123)

	a, err := Train(vectors, 3, cfg)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	b, err := Train(vectors, 3, cfg)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	for c := range a {
		for d := range a[c] {
			if a[c][d] != b[c][d] {
				t.Fatalf("seeded runs diverged at centroid %d dim %d: %f vs %f",
					c, d, a[c][d], b[c][d])
			}
		}
	}
}

func TestTrainReducesKAboveN(t *testing.T) {
	vectors := [][]float32{{1, 1}, {2, 2}, {3, 3}}
	cfg := DefaultConfig(core.L2)
	cfg.Seed = seeded(1)

	centroids, err := Train(vectors, 10, cfg)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if len(centroids) != 3 {
		t.Errorf("k should be reduced to n=3, got %d centroids", len(centroids))
	}
}

func TestTrainRejectsBadInput(t *testing.T) {
	cfg := DefaultConfig(core.L2)

	if _, err := Train(nil, 3, cfg); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := Train([][]float32{{1, 2}}, 0, cfg); err == nil {
		t.Error("expected error for k=0")
	}
	if _, err := Train([][]float32{{1, 2}, {1, 2, 3}}, 1, cfg); err == nil {
		t.Error("expected error for ragged input")
	}
}

func TestTrainDuplicateInputs(t *testing.T) {
	// All-identical inputs collapse the k-means++ weights to zero; the
	// trainer must still return k valid centroids.
	vectors := make([][]float32, 20)
	for i := range vectors {
		vectors[i] = []float32{5, 5}
	}
	cfg := DefaultConfig(core.L2)
	cfg.Seed = seeded(9)

	centroids, err := Train(vectors, 4, cfg)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	for _, c := range centroids {
		if c[0] != 5 || c[1] != 5 {
			t.Errorf("centroid should equal the duplicated input, got %v", c)
		}
	}
}

func TestAssign(t *testing.T) {
	centroids := [][]float32{{0, 0}, {10, 10}}
	vectors := [][]float32{{1, 1}, {9, 9}, {0.5, 0}, {11, 10}}

	got := Assign(vectors, centroids, core.L2)
	want := []int{0, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vector %d assigned to %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTrainCosineMetric(t *testing.T) {
	// Two directional groups; cosine clustering must separate them even
	// though magnitudes overlap.
	vectors := [][]float32{
		{1, 0.1}, {2, 0.1}, {5, 0.3},
		{0.1, 1}, {0.1, 2}, {0.2, 5},
	}
	cfg := DefaultConfig(core.Cosine)
	cfg.Seed = seeded(11)

	centroids, err := Train(vectors, 2, cfg)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	a := Assign(vectors[:3], centroids, core.Cosine)
	b := Assign(vectors[3:], centroids, core.Cosine)
	if a[0] != a[1] || a[1] != a[2] {
		t.Errorf("x-leaning vectors split across clusters: %v", a)
	}
	if b[0] != b[1] || b[1] != b[2] {
		t.Errorf("y-leaning vectors split across clusters: %v", b)
	}
	if a[0] == b[0] {
		t.Error("the two directional groups should land in different clusters")
	}
}
