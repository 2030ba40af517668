package vector

import (
	"context"
	"math"
	"testing"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/vecmath"
)

func TestFlatIndex_InnerProduct(t *testing.T) {
	idx, err := NewFlatIndex("")
	if err != nil {
		t.Fatal(err)
	}
	vecs := map[string][]float32{
		"x":  {1, 0},
		"y":  {0, 1},
		"xy": {1, 1},
	}
	for _, id := range []string{"x", "y", "xy"} {
		if err := idx.Add(id, vecmath.Normalize(vecs[id])); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := idx.Search(context.Background(), core.IndexQuery{
		Vector: vecmath.Normalize([]float32{1, 0.1}),
		Limit:  2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].ArticleID != "x" || hits[1].ArticleID != "xy" {
		t.Fatalf("order = %v, want [x xy]", hits)
	}
	// 归一化后内积 == 余弦
	want := vecmath.CosineSimilarity([]float32{1, 0.1}, []float32{1, 0})
	if math.Abs(hits[0].Score-want) > 1e-6 {
		t.Errorf("score = %v, want %v", hits[0].Score, want)
	}
}

func TestFlatIndex_StableTies(t *testing.T) {
	idx, _ := NewFlatIndex(core.MetricInnerProduct)
	for _, id := range []string{"first", "second", "third"} {
		_ = idx.Add(id, []float32{1, 0})
	}
	hits, err := idx.Search(context.Background(), core.IndexQuery{Vector: []float32{1, 0}, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if hits[i].ArticleID != want {
			t.Fatalf("tie order = %v", hits)
		}
	}
}

func TestFlatIndex_MetricOverride(t *testing.T) {
	idx, _ := NewFlatIndex("")
	_ = idx.Add("near", []float32{1, 0})
	_ = idx.Add("long", []float32{5, 5})

	tests := []struct {
		metric core.Metric
		want   string
	}{
		{"", "long"},
		{core.MetricCosine, "near"},
		{core.MetricEuclidean, "near"},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			hits, err := idx.Search(context.Background(), core.IndexQuery{Vector: []float32{1, 0}, Metric: tt.metric})
			if err != nil {
				t.Fatal(err)
			}
			if hits[0].ArticleID != tt.want {
				t.Errorf("top = %s, want %s", hits[0].ArticleID, tt.want)
			}
		})
	}
	if _, err := idx.Search(context.Background(), core.IndexQuery{Vector: []float32{1, 0}, Metric: "hamming"}); !core.IsInvalidInput(err) {
		t.Fatalf("unsupported metric error = %v", err)
	}
}

func TestFlatIndex_Errors(t *testing.T) {
	if _, err := NewFlatIndex("hamming"); !core.IsInvalidInput(err) {
		t.Fatalf("NewFlatIndex(hamming) error = %v", err)
	}

	idx, _ := NewFlatIndex("")
	if err := idx.Add("a", nil); !core.IsInvalidInput(err) {
		t.Fatalf("Add(empty) error = %v", err)
	}
	_ = idx.Add("a", []float32{1, 0})
	if err := idx.Add("b", []float32{1, 0, 0}); !core.IsInvalidInput(err) {
		t.Fatalf("Add(mismatch) error = %v", err)
	}
	if _, err := idx.Search(context.Background(), core.IndexQuery{Vector: []float32{1}}); !core.IsInvalidInput(err) {
		t.Fatalf("Search(mismatch) error = %v", err)
	}
}

func TestFlatIndex_EmptyAndClose(t *testing.T) {
	idx, _ := NewFlatIndex("")
	hits, err := idx.Search(context.Background(), core.IndexQuery{Vector: []float32{1}})
	if err != nil || len(hits) != 0 {
		t.Fatalf("empty index search = %v, %v", hits, err)
	}
	_ = idx.Add("a", []float32{1})
	_ = idx.Close()
	if idx.Len() != 0 || idx.Dimension() != 0 {
		t.Fatal("Close() should reset the index")
	}
}
