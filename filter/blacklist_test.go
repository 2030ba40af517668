package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/store"
)

type countingList struct {
	ids   map[string][]string
	calls int
	err   error
}

func (c *countingList) GetIDList(_ context.Context, key string) ([]string, error) {
	c.calls++
	return c.ids[key], c.err
}

func TestBlacklistFilter(t *testing.T) {
	lists := &countingList{ids: map[string][]string{"bl": {"dyn"}}}
	f := NewBlacklistFilter([]string{"static"}, lists, "bl")
	rctx := core.NewRecommendContext(1, time.Now())
	node := &FilterNode{Filters: []Filter{f}}

	items := []*core.ScoredArticle{
		core.NewScoredArticle("static"),
		core.NewScoredArticle("dyn"),
		core.NewScoredArticle("ok1"),
		core.NewScoredArticle("ok2"),
	}
	out, err := node.Process(context.Background(), rctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(out), []string{"ok1", "ok2"}) {
		t.Fatalf("out = %v", ids(out))
	}
	// 动态黑名单每个请求只读一次
	if lists.calls != 1 {
		t.Errorf("store calls = %d, want 1", lists.calls)
	}
	if lbl, ok := items[1].Labels["filtered"]; !ok || lbl.Source != "filter.blacklist" {
		t.Errorf("filtered label = %+v", items[1].Labels)
	}
}

func TestBlacklistFilter_StoreErrorKeeps(t *testing.T) {
	f := NewBlacklistFilter(nil, &countingList{err: errors.New("redis down")}, "bl")
	drop, err := f.ShouldFilter(context.Background(), core.NewRecommendContext(1, time.Now()), core.NewScoredArticle("a"))
	if err == nil || drop {
		t.Fatalf("ShouldFilter = %v, %v; want keep with error", drop, err)
	}
}

func TestUserBlockFilter(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	adapter := NewStoreAdapter(kv)
	if err := adapter.PutIDList(ctx, DefaultUserBlockPrefix+":7", []string{"42"}); err != nil {
		t.Fatal(err)
	}
	f := NewUserBlockFilter(adapter, "")

	blocked := core.NewScoredArticle("x")
	blocked.AuthorID = 42
	other := core.NewScoredArticle("y")
	other.AuthorID = 43

	tests := []struct {
		name string
		user int64
		item *core.ScoredArticle
		want bool
	}{
		{name: "blocked author", user: 7, item: blocked, want: true},
		{name: "other author", user: 7, item: other, want: false},
		{name: "user without list", user: 8, item: blocked, want: false},
		{name: "anonymous", user: 0, item: blocked, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ShouldFilter(ctx, core.NewRecommendContext(tt.user, time.Now()), tt.item)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ShouldFilter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoreAdapter_Corrupt(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	_ = kv.Set(ctx, "bad", []byte("{not json"), 0)
	if _, err := NewStoreAdapter(kv).GetIDList(ctx, "bad"); err == nil {
		t.Fatal("GetIDList should fail on corrupt data")
	}
	got, err := NewStoreAdapter(kv).GetIDList(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("GetIDList(missing) = %v, %v", got, err)
	}
}
