// Command cli is the Lynx demonstration and benchmarking tool.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lynxdb/lynx/pkg/config"
	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/lynx"
)

var (
	flagDimension int
	flagIndex     string
	flagMetric    string
	flagCount     int
	flagQueries   int
	flagK         int
	flagDataPath  string
	flagSeed      int64
)

func main() {
	root := &cobra.Command{
		Use:   "lynx",
		Short: "Lynx vector database demo and benchmark tool",
	}
	root.PersistentFlags().IntVar(&flagDimension, "dimension", 128, "vector dimension")
	root.PersistentFlags().StringVar(&flagIndex, "index", "hnsw", "index type: flat, hnsw, ivf")
	root.PersistentFlags().StringVar(&flagMetric, "metric", "l2", "distance metric: l2, cosine, dot")
	root.PersistentFlags().Int64Var(&flagSeed, "seed", 42, "random seed")

	demo := &cobra.Command{
		Use:   "demo",
		Short: "Insert random vectors and run a sample query",
		RunE:  runDemo,
	}
	demo.Flags().IntVar(&flagCount, "count", 1000, "number of vectors to insert")
	demo.Flags().IntVar(&flagK, "k", 5, "neighbors to retrieve")

	bench := &cobra.Command{
		Use:   "bench",
		Short: "Measure insert and search throughput",
		RunE:  runBench,
	}
	bench.Flags().IntVar(&flagCount, "count", 10000, "number of vectors to insert")
	bench.Flags().IntVar(&flagQueries, "queries", 1000, "number of queries to run")
	bench.Flags().IntVar(&flagK, "k", 10, "neighbors per query")

	optimize := &cobra.Command{
		Use:   "optimize",
		Short: "Load a persisted database, optimize its index, and save",
		RunE:  runOptimize,
	}
	optimize.Flags().StringVar(&flagDataPath, "data", "", "data directory (required)")
	optimize.MarkFlagRequired("data")

	root.AddCommand(demo, bench, optimize)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildConfig() (config.Config, error) {
	cfg := config.Default(flagDimension)
	cfg.HNSW.RandomSeed = &flagSeed

	indexType, err := config.ParseIndexType(flagIndex)
	if err != nil {
		return cfg, err
	}
	cfg.IndexType = indexType

	metric, err := config.ParseDistanceMetric(flagMetric)
	if err != nil {
		return cfg, err
	}
	cfg.DistanceMetric = metric
	return cfg, nil
}

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	db, err := lynx.New(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	vectors := randomVectors(flagCount, flagDimension, flagSeed)
	records := make([]core.VectorRecord, len(vectors))
	for i, v := range vectors {
		records[i] = core.VectorRecord{
			ID:       uint64(i),
			Vector:   v,
			Metadata: []byte(fmt.Sprintf("rec_%d", i)),
		}
	}
	start := time.Now()
	if err := db.BatchInsert(records); err != nil {
		return err
	}
	fmt.Printf("inserted %d vectors in %v\n", len(records), time.Since(start))

	query := vectors[0]
	result, err := db.Search(query, flagK, nil)
	if err != nil {
		return err
	}
	fmt.Printf("top-%d neighbors of vector 0 (%d candidates scored, %.3f ms):\n",
		flagK, result.TotalCandidates, result.QueryTimeMs)
	for rank, item := range result.Items {
		fmt.Printf("  %2d. id=%-6d distance=%.6f\n", rank+1, item.ID, item.Distance)
	}

	stats := db.Stats()
	fmt.Printf("size=%d memory=%.1fMB index_memory=%.1fMB\n",
		stats.VectorCount,
		float64(stats.MemoryUsageBytes)/(1<<20),
		float64(stats.IndexMemoryBytes)/(1<<20))
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	db, err := lynx.New(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	vectors := randomVectors(flagCount, flagDimension, flagSeed)

	insertStart := time.Now()
	for i, v := range vectors {
		if err := db.Insert(core.VectorRecord{ID: uint64(i), Vector: v}); err != nil {
			return err
		}
	}
	insertDur := time.Since(insertStart)
	fmt.Printf("insert: %d vectors in %v (%.0f vec/s)\n",
		flagCount, insertDur, float64(flagCount)/insertDur.Seconds())

	queries := randomVectors(flagQueries, flagDimension, flagSeed+1)
	searchStart := time.Now()
	for _, q := range queries {
		if _, err := db.Search(q, flagK, nil); err != nil {
			return err
		}
	}
	searchDur := time.Since(searchStart)
	fmt.Printf("search: %d queries in %v (%.0f qps, %.3f ms avg)\n",
		flagQueries, searchDur,
		float64(flagQueries)/searchDur.Seconds(),
		searchDur.Seconds()*1000/float64(flagQueries))
	return nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	cfg.DataPath = flagDataPath

	db, err := lynx.New(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Load(); err != nil {
		return fmt.Errorf("load %s: %w", flagDataPath, err)
	}
	fmt.Printf("loaded %d vectors from %s\n", db.Size(), flagDataPath)

	start := time.Now()
	if err := db.OptimizeIndex(); err != nil {
		return err
	}
	fmt.Printf("optimized index in %v\n", time.Since(start))

	if err := db.Save(); err != nil {
		return err
	}
	fmt.Println("saved")
	return nil
}
