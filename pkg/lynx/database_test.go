package lynx

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynxdb/lynx/pkg/config"
	"github.com/lynxdb/lynx/pkg/core"
)

func flatConfig(dim int) config.Config {
	cfg := config.Default(dim)
	cfg.IndexType = core.IndexFlat
	return cfg
}

func hnswConfig(dim int) config.Config {
	cfg := config.Default(dim)
	seed := int64(42)
	cfg.HNSW.RandomSeed = &seed
	return cfg
}

func ivfConfig(dim, clusters int) config.Config {
	cfg := config.Default(dim)
	cfg.IndexType = core.IndexIVF
	cfg.IVF.NClusters = clusters
	cfg.IVF.NProbe = clusters
	seed := int64(42)
	cfg.HNSW.RandomSeed = &seed
	return cfg
}

func randomRecords(n, dim int, seed int64) []core.VectorRecord {
	rng := rand.New(rand.NewSource(seed))
	out := make([]core.VectorRecord, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = float32(rng.NormFloat64())
		}
		out[i] = core.VectorRecord{ID: uint64(i), Vector: v}
	}
	return out
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.Default(0))
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestFlatExactSearchScenario(t *testing.T) {
	// Four points on two axes; query near the origin expects exact
	// distances 0.1 and 0.9.
	db, err := New(flatConfig(4))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Insert(core.VectorRecord{ID: 1, Vector: []float32{0, 0, 0, 0}}))
	require.NoError(t, db.Insert(core.VectorRecord{ID: 2, Vector: []float32{1, 0, 0, 0}}))
	require.NoError(t, db.Insert(core.VectorRecord{ID: 3, Vector: []float32{0, 1, 0, 0}}))
	require.NoError(t, db.Insert(core.VectorRecord{ID: 4, Vector: []float32{2, 0, 0, 0}}))

	res, err := db.Search([]float32{0.1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, uint64(1), res.Items[0].ID)
	assert.InDelta(t, 0.1, res.Items[0].Distance, 1e-6)
	assert.Equal(t, uint64(2), res.Items[1].ID)
	assert.InDelta(t, 0.9, res.Items[1].Distance, 1e-6)
}

func TestInsertDuplicateRejected(t *testing.T) {
	// Duplicate insert keeps the first vector (SQL INSERT semantics).
	db, _ := New(flatConfig(2))
	defer db.Close()

	v1 := []float32{1, 1}
	v2 := []float32{2, 2}
	require.NoError(t, db.Insert(core.VectorRecord{ID: 7, Vector: v1}))

	err := db.Insert(core.VectorRecord{ID: 7, Vector: v2})
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	rec, err := db.Get(7)
	require.NoError(t, err)
	assert.Equal(t, v1, rec.Vector)
	assert.Equal(t, 1, db.Size())
}

func TestInsertDimensionMismatch(t *testing.T) {
	db, _ := New(flatConfig(4))
	defer db.Close()

	err := db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, 0, db.Size())
}

func TestRemoveLifecycle(t *testing.T) {
	db, _ := New(hnswConfig(4))
	defer db.Close()

	rec := core.VectorRecord{ID: 1, Vector: []float32{1, 2, 3, 4}, Metadata: []byte("meta")}
	require.NoError(t, db.Insert(rec))
	assert.True(t, db.Contains(1))

	require.NoError(t, db.Remove(1))
	assert.False(t, db.Contains(1))
	assert.Equal(t, 0, db.Size())

	_, err := db.Get(1)
	assert.ErrorIs(t, err, core.ErrVectorNotFound)
	assert.ErrorIs(t, db.Remove(1), core.ErrVectorNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	db, _ := New(flatConfig(2))
	defer db.Close()

	db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 2}, Metadata: []byte("m")})
	rec, err := db.Get(1)
	require.NoError(t, err)

	// Mutating the returned record must not affect the stored one.
	rec.Vector[0] = 99
	rec.Metadata[0] = 'x'

	again, _ := db.Get(1)
	assert.Equal(t, float32(1), again.Vector[0])
	assert.Equal(t, byte('m'), again.Metadata[0])
}

func TestSearchDimensionMismatchIsEmpty(t *testing.T) {
	db, _ := New(flatConfig(4))
	defer db.Close()
	db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 2, 3, 4}})

	res, err := db.Search([]float32{1, 2}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestSearchUpdatesStats(t *testing.T) {
	db, _ := New(flatConfig(2))
	defer db.Close()
	db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 1}})

	for i := 0; i < 5; i++ {
		_, err := db.Search([]float32{1, 1}, 1, nil)
		require.NoError(t, err)
	}

	stats := db.Stats()
	assert.Equal(t, uint64(5), stats.TotalQueries)
	assert.Equal(t, uint64(1), stats.TotalInserts)
	assert.Equal(t, uint64(1), stats.VectorCount)
	assert.Equal(t, 2, stats.Dimension)
	assert.Greater(t, stats.MemoryUsageBytes, int64(0))
	assert.GreaterOrEqual(t, stats.MemoryUsageBytes, stats.IndexMemoryBytes)
}

func TestTotalInsertsMonotonic(t *testing.T) {
	db, _ := New(flatConfig(2))
	defer db.Close()

	db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 1}})
	db.Insert(core.VectorRecord{ID: 2, Vector: []float32{2, 2}})
	db.Remove(1)
	db.Remove(2)

	stats := db.Stats()
	assert.Equal(t, uint64(2), stats.TotalInserts)
	assert.Equal(t, uint64(0), stats.VectorCount)
}

func TestSearchResultTiming(t *testing.T) {
	db, _ := New(flatConfig(2))
	defer db.Close()
	db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 1}})

	res, err := db.Search([]float32{1, 1}, 1, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.QueryTimeMs, 0.0)
	assert.Equal(t, uint64(1), res.TotalCandidates)
}

func TestSearchImmediatelyFindable(t *testing.T) {
	// Every inserted record is findable by its own vector right away,
	// for every index type.
	for name, cfg := range map[string]config.Config{
		"flat": flatConfig(8),
		"hnsw": hnswConfig(8),
		"ivf":  ivfConfig(8, 4),
	} {
		t.Run(name, func(t *testing.T) {
			db, err := New(cfg)
			require.NoError(t, err)
			defer db.Close()

			records := randomRecords(50, 8, 3)
			for _, rec := range records {
				require.NoError(t, db.Insert(rec))

				res, err := db.Search(rec.Vector, 1, nil)
				require.NoError(t, err)
				require.NotEmpty(t, res.Items)
				assert.Equal(t, rec.ID, res.Items[0].ID)
			}
		})
	}
}

func TestSearchWithFilter(t *testing.T) {
	db, _ := New(flatConfig(2))
	defer db.Close()
	for id := uint64(0); id < 20; id++ {
		db.Insert(core.VectorRecord{ID: id, Vector: []float32{float32(id), 0}})
	}

	res, err := db.Search([]float32{0, 0}, 5, &core.SearchParams{
		Filter: func(id uint64) bool { return id >= 10 },
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Items)
	for _, item := range res.Items {
		assert.GreaterOrEqual(t, item.ID, uint64(10))
	}
}

func TestAllRecordsIterator(t *testing.T) {
	db, _ := New(flatConfig(2))
	defer db.Close()

	want := map[uint64]string{1: "a", 2: "b", 3: "c"}
	for id, meta := range want {
		db.Insert(core.VectorRecord{ID: id, Vector: []float32{float32(id), 0}, Metadata: []byte(meta)})
	}

	it := db.AllRecords()
	got := make(map[uint64]string)
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		got[rec.ID] = string(rec.Metadata)
	}
	it.Close()
	assert.Equal(t, want, got)

	// Close released the lock: writes proceed.
	require.NoError(t, db.Insert(core.VectorRecord{ID: 4, Vector: []float32{4, 0}}))
}

func TestAllRecordsBlocksWriters(t *testing.T) {
	db, _ := New(flatConfig(2))
	defer db.Close()
	db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 0}})

	it := db.AllRecords()

	var wg sync.WaitGroup
	inserted := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		db.Insert(core.VectorRecord{ID: 2, Vector: []float32{2, 0}})
		close(inserted)
	}()

	// While the iterator lives the writer must be blocked.
	select {
	case <-inserted:
		t.Fatal("insert completed while iterator held the shared lock")
	default:
	}

	it.Close()
	wg.Wait()
	<-inserted
	assert.True(t, db.Contains(2))
}

func TestVersionAndConfig(t *testing.T) {
	cfg := flatConfig(16)
	db, _ := New(cfg)
	defer db.Close()

	assert.Equal(t, Version, db.Version())
	assert.Equal(t, 16, db.Dimension())
	assert.Equal(t, cfg.IndexType, db.Config().IndexType)
}

func TestApproxDistancesNonDecreasing(t *testing.T) {
	for name, cfg := range map[string]config.Config{
		"hnsw": hnswConfig(16),
		"ivf":  ivfConfig(16, 8),
	} {
		t.Run(name, func(t *testing.T) {
			db, err := New(cfg)
			require.NoError(t, err)
			defer db.Close()
			require.NoError(t, db.BatchInsert(randomRecords(500, 16, 4)))

			rng := rand.New(rand.NewSource(5))
			for q := 0; q < 10; q++ {
				query := make([]float32, 16)
				for d := range query {
					query[d] = float32(rng.NormFloat64())
				}
				res, err := db.Search(query, 10, nil)
				require.NoError(t, err)
				for i := 1; i < len(res.Items); i++ {
					assert.GreaterOrEqual(t, res.Items[i].Distance, res.Items[i-1].Distance)
				}
			}
		})
	}
}
