package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/persona/core"
)

func candidate(id string, createdAt time.Time) *core.ScoredArticle {
	it := core.NewScoredArticle(id)
	it.CreatedAt = createdAt
	return it
}

func ids(items []*core.ScoredArticle) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ArticleID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilterByTimeWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := candidate("fresh", now.Add(-2*time.Hour))
	day := candidate("day", now.Add(-30*time.Hour))
	old := candidate("old", now.Add(-100*time.Hour))
	unknown := candidate("unknown", time.Time{})

	tests := []struct {
		name string
		in   []*core.ScoredArticle
		read map[string]struct{}
		want []string
	}{
		{"primary hit", []*core.ScoredArticle{old, day, fresh, unknown}, nil, []string{"fresh"}},
		{"fallback when primary empty", []*core.ScoredArticle{old, day, unknown}, nil, []string{"day"}},
		{"read excluded before fallback", []*core.ScoredArticle{fresh, day}, map[string]struct{}{"fresh": {}}, []string{"day"}},
		{"nothing in either window", []*core.ScoredArticle{old, unknown}, nil, []string{}},
		{"empty input", nil, nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByTimeWindow(tt.in, tt.read, 12*time.Hour, 72*time.Hour, now)
			if got == nil {
				t.Fatal("FilterByTimeWindow() returned nil, want empty slice")
			}
			if !equalIDs(ids(got), tt.want) {
				t.Errorf("FilterByTimeWindow() = %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestTimeWindowNode_UsesContextClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rctx := core.NewRecommendContext(1, now)
	rctx.ReadIDs = map[string]struct{}{"b": {}}

	node := &TimeWindow{Primary: 12 * time.Hour, Fallback: 72 * time.Hour}
	got, err := node.Process(context.Background(), rctx, []*core.ScoredArticle{
		candidate("a", now.Add(-time.Hour)),
		candidate("b", now.Add(-time.Hour)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got), []string{"a"}) {
		t.Errorf("Process() = %v, want [a]", ids(got))
	}
}

type errFilter struct{}

func (errFilter) Name() string { return "filter.err" }
func (errFilter) ShouldFilter(context.Context, *core.RecommendContext, *core.ScoredArticle) (bool, error) {
	return false, errors.New("boom")
}

func TestFilterNode(t *testing.T) {
	rctx := core.NewRecommendContext(1, time.Now())
	rctx.ReadIDs = map[string]struct{}{"read": {}}

	expr, err := NewExprFilter(`!("category" in item.meta) || item.meta.category != "politics"`)
	if err != nil {
		t.Fatal(err)
	}

	politics := candidate("politics", time.Time{})
	politics.Meta["category"] = "politics"
	read := candidate("read", time.Time{})
	keep := candidate("keep", time.Time{})

	node := &FilterNode{Filters: []Filter{errFilter{}, ReadFilter{}, expr}}
	got, err := node.Process(context.Background(), rctx, []*core.ScoredArticle{politics, read, nil, keep})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got), []string{"keep"}) {
		t.Errorf("Process() = %v, want [keep]", ids(got))
	}
	if lbl, ok := read.Labels["filtered"]; !ok || lbl.Source != "filter.read" {
		t.Errorf("read label = %+v, want source filter.read", lbl)
	}
	if lbl := politics.Labels["filtered"]; lbl.Source != "filter.expr" {
		t.Errorf("politics label = %+v, want source filter.expr", lbl)
	}
}

func TestFilterNode_FailClosed(t *testing.T) {
	rctx := core.NewRecommendContext(1, time.Now())
	long := Func{Label: "filter.long_id", Fn: func(_ *core.RecommendContext, it *core.ScoredArticle) bool {
		return len(it.ArticleID) > 3
	}}

	tests := []struct {
		name       string
		failClosed bool
		want       []string
	}{
		{"fail open keeps candidates on error", false, []string{"a", "bb"}},
		{"fail closed drops candidates on error", true, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &FilterNode{Filters: []Filter{long, errFilter{}}, FailClosed: tt.failClosed}
			in := []*core.ScoredArticle{candidate("a", time.Time{}), candidate("bb", time.Time{}), candidate("cccc", time.Time{})}
			got, err := node.Process(context.Background(), rctx, in)
			if err != nil {
				t.Fatal(err)
			}
			if !equalIDs(ids(got), tt.want) {
				t.Errorf("Process() = %v, want %v", ids(got), tt.want)
			}
			if lbl := in[2].Labels["filtered"]; lbl.Source != "filter.long_id" {
				t.Errorf("cccc label = %+v, want source filter.long_id", lbl)
			}
		})
	}
}

func TestNewExprFilter_Invalid(t *testing.T) {
	if _, err := NewExprFilter("item.similarity >"); !core.IsInvalidInput(err) {
		t.Errorf("NewExprFilter() error = %v, want invalid input", err)
	}
}
