package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/persona/core"
)

func appendNode(id string) Func {
	return Func{
		Label: "append." + id,
		Stage: KindRecall,
		Fn: func(_ context.Context, _ *core.RecommendContext, items []*core.ScoredArticle) ([]*core.ScoredArticle, error) {
			return append(items, core.NewScoredArticle(id)), nil
		},
	}
}

func TestPipeline_Run(t *testing.T) {
	boom := errors.New("boom")
	failing := Func{
		Label: "explode",
		Stage: KindReRank,
		Fn: func(context.Context, *core.RecommendContext, []*core.ScoredArticle) ([]*core.ScoredArticle, error) {
			return nil, boom
		},
	}

	tests := []struct {
		name    string
		nodes   []Node
		want    []string
		wantErr string
	}{
		{"empty pipeline", nil, nil, ""},
		{"nodes run in order", []Node{appendNode("a"), appendNode("b")}, []string{"a", "b"}, ""},
		{"error names the node", []Node{appendNode("a"), failing, appendNode("b")}, nil, "rerank explode: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Pipeline{Nodes: tt.nodes}
			got, err := p.Run(context.Background(), core.NewRecommendContext(1, time.Now()), nil)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) || !errors.Is(err, boom) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ArticleID != id {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ArticleID, id)
				}
			}
		})
	}
}

func TestPipeline_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pipeline{Nodes: []Node{appendNode("a")}}
	if _, err := p.Run(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
