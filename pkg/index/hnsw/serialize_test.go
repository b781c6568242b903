package hnsw

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lynxdb/lynx/pkg/core"
)

func populatedIndex(t *testing.T, n int) *Index {
	t.Helper()
	idx, err := New(testConfig(8))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	vectors := randomVectors(n, 8, 33)
	for i, v := range vectors {
		if err := idx.Add(uint64(i*3), v); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	return idx
}

func TestSerializeRoundTrip(t *testing.T) {
	idx := populatedIndex(t, 200)

	var buf bytes.Buffer
	if err := idx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	restored, _ := New(testConfig(8))
	if err := restored.Deserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if restored.Size() != idx.Size() {
		t.Fatalf("size mismatch after round trip: %d vs %d", restored.Size(), idx.Size())
	}

	// The restored graph is structurally identical: same entry point,
	// same nodes, same neighbor lists.
	idx.mu.RLock()
	restored.mu.RLock()
	defer idx.mu.RUnlock()
	defer restored.mu.RUnlock()

	if restored.entryPoint != idx.entryPoint || restored.entryPointLayer != idx.entryPointLayer {
		t.Errorf("entry point differs: %d/%d vs %d/%d",
			restored.entryPoint, restored.entryPointLayer, idx.entryPoint, idx.entryPointLayer)
	}
	for id, orig := range idx.nodes {
		got, ok := restored.nodes[id]
		if !ok {
			t.Fatalf("node %d missing after round trip", id)
		}
		if got.maxLayer != orig.maxLayer {
			t.Errorf("node %d layer %d vs %d", id, got.maxLayer, orig.maxLayer)
		}
		for layer := 0; layer <= orig.maxLayer; layer++ {
			if len(got.neighbors[layer]) != len(orig.neighbors[layer]) {
				t.Errorf("node %d layer %d neighbor count differs", id, layer)
				continue
			}
			for i := range orig.neighbors[layer] {
				if got.neighbors[layer][i] != orig.neighbors[layer][i] {
					t.Errorf("node %d layer %d neighbor %d differs", id, layer, i)
				}
			}
		}
	}
}

func TestSerializeDeterministic(t *testing.T) {
	idx := populatedIndex(t, 100)

	var a, b bytes.Buffer
	if err := idx.Serialize(&a); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if err := idx.Serialize(&b); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("serialization is not deterministic")
	}
}

func TestSerializeEmpty(t *testing.T) {
	idx, _ := New(testConfig(8))

	var buf bytes.Buffer
	if err := idx.Serialize(&buf); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	restored, _ := New(testConfig(8))
	if err := restored.Deserialize(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if restored.Size() != 0 {
		t.Errorf("expected empty graph, got %d nodes", restored.Size())
	}

	// An emptied-then-restored graph accepts inserts.
	if err := restored.Add(1, make([]float32, 8)); err != nil {
		t.Errorf("Add after empty restore failed: %v", err)
	}
}

func TestSearchAfterRoundTrip(t *testing.T) {
	idx := populatedIndex(t, 300)

	var buf bytes.Buffer
	idx.Serialize(&buf)
	restored, _ := New(testConfig(8))
	restored.Deserialize(bytes.NewReader(buf.Bytes()))

	// Identical structure means identical search results.
	queries := randomVectors(20, 8, 34)
	for _, q := range queries {
		a, _ := idx.Search(q, 5, nil)
		b, _ := restored.Search(q, 5, nil)
		if len(a.Items) != len(b.Items) {
			t.Fatalf("result count differs: %d vs %d", len(a.Items), len(b.Items))
		}
		for i := range a.Items {
			if a.Items[i] != b.Items[i] {
				t.Fatalf("results differ at rank %d: %v vs %v", i, a.Items[i], b.Items[i])
			}
		}
	}
}

func TestDeserializeRejectsMismatch(t *testing.T) {
	idx := populatedIndex(t, 10)
	var buf bytes.Buffer
	idx.Serialize(&buf)

	wrongDim, _ := New(testConfig(16))
	if err := wrongDim.Deserialize(bytes.NewReader(buf.Bytes())); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Errorf("expected DimensionMismatch, got %v", err)
	}

	cfg := testConfig(8)
	cfg.M = 8
	wrongM, _ := New(cfg)
	if err := wrongM.Deserialize(bytes.NewReader(buf.Bytes())); !errors.Is(err, core.ErrInvalidParameter) {
		t.Errorf("expected InvalidParameter for M mismatch, got %v", err)
	}

	junk, _ := New(testConfig(8))
	if err := junk.Deserialize(bytes.NewReader([]byte("XXXXYYYYZZZZ"))); !errors.Is(err, core.ErrIOError) {
		t.Errorf("expected IOError for bad magic, got %v", err)
	}
}
