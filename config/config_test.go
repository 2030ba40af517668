package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ranking.DefaultLimit != 10 || cfg.Ranking.MaxLimit != 50 {
		t.Errorf("ranking limits = %d/%d", cfg.Ranking.DefaultLimit, cfg.Ranking.MaxLimit)
	}
	if cfg.Search.RelevanceFloor != 0.3 || cfg.Search.TopK != 20 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Weighting.Like != 0.5 || cfg.Weighting.RecencyWindow != 24*time.Hour {
		t.Errorf("weighting = %+v", cfg.Weighting)
	}
	if cfg.Scheduler.Interval != 6*time.Hour {
		t.Errorf("scheduler.interval = %v", cfg.Scheduler.Interval)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /tmp/p.db
ranking:
  default_limit: 20
  primary_window: 6h
search:
  top_k: 40
  composite:
    follow_boost: 50
  post_nodes:
    - type: rerank.diversity
      config: {key: author, max_per_key: 2}
scheduler:
  interval: 30m
`)
	t.Setenv("PERSONA_SEARCH__TOP_K", "35")
	t.Setenv("PERSONA_EMBEDDING__ENDPOINT", "http://embedder:9000/embed")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.SQLitePath != "/tmp/p.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Ranking.DefaultLimit != 20 || cfg.Ranking.PrimaryWindow != 6*time.Hour {
		t.Errorf("ranking = %+v", cfg.Ranking)
	}
	// 文件里没写的字段保留默认值
	if cfg.Ranking.FallbackWindow != 72*time.Hour {
		t.Errorf("fallback_window = %v, want default 72h", cfg.Ranking.FallbackWindow)
	}
	if cfg.Search.TopK != 35 {
		t.Errorf("search.top_k = %d, want env override 35", cfg.Search.TopK)
	}
	if cfg.Search.Composite.FollowBoost != 50 || cfg.Search.Composite.Similarity != 0.5 {
		t.Errorf("composite = %+v", cfg.Search.Composite)
	}
	if cfg.Embedding.Endpoint != "http://embedder:9000/embed" {
		t.Errorf("endpoint = %q", cfg.Embedding.Endpoint)
	}
	if cfg.Scheduler.Interval != 30*time.Minute {
		t.Errorf("scheduler.interval = %v", cfg.Scheduler.Interval)
	}
	if len(cfg.Search.PostNodes) != 1 || cfg.Search.PostNodes[0].Type != "rerank.diversity" {
		t.Fatalf("post_nodes = %+v", cfg.Search.PostNodes)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load should fail for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "postgres" }, want: "storage.backend"},
		{name: "mongo without uri", mutate: func(c *Config) { c.Storage.Backend = BackendMongo }, want: "storage.mongo.uri"},
		{name: "unknown profiles", mutate: func(c *Config) { c.Storage.Profiles = "etcd" }, want: "storage.profiles"},
		{name: "negative profile ttl", mutate: func(c *Config) { c.Storage.ProfileTTL = -time.Second }, want: "profile_ttl"},
		{name: "relative endpoint", mutate: func(c *Config) { c.Embedding.Endpoint = "/embed" }, want: "embedding.endpoint"},
		{name: "negative weight", mutate: func(c *Config) { c.Weighting.Like = -1 }, want: "weighting.like"},
		{name: "stale age below window", mutate: func(c *Config) { c.Weighting.StaleAge = time.Hour }, want: "stale_age"},
		{name: "default above max", mutate: func(c *Config) { c.Ranking.DefaultLimit = 60 }, want: "default_limit"},
		{name: "fallback below primary", mutate: func(c *Config) { c.Ranking.FallbackWindow = time.Hour }, want: "fallback_window"},
		{name: "relevance floor", mutate: func(c *Config) { c.Search.RelevanceFloor = 2 }, want: "relevance_floor"},
		{name: "unknown post node", mutate: func(c *Config) {
			c.Ranking.PostNodes = []pipeline.NodeConfig{{Type: "rank.lr"}}
		}, want: "rank.lr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("PERSONA_STORAGE__MONGO__URI"); got != "storage.mongo.uri" {
		t.Errorf("envKey = %q", got)
	}
	if got := envKey("PERSONA_SEARCH__RELEVANCE_FLOOR"); got != "search.relevance_floor" {
		t.Errorf("envKey = %q", got)
	}
}

func TestBuildPostNodes(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	ctx := context.Background()
	_ = kv.Set(ctx, "persona:blacklist", []byte(`["b"]`), 0)

	nodes, err := BuildPostNodes(NodeDeps{KV: kv}, []pipeline.NodeConfig{
		{Type: "filter", Config: map[string]any{"filters": []any{
			map[string]any{"type": "blacklist", "ids": []any{"a"}, "key": "persona:blacklist"},
			map[string]any{"type": "min_similarity", "threshold": 0.1},
		}}},
		{Type: "rerank.diversity", Config: map[string]any{"key": "author"}},
		{Type: "rerank.topn", Config: map[string]any{"n": 2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	items := []*core.ScoredArticle{
		{ArticleID: "a", Similarity: 0.9, AuthorID: 1},
		{ArticleID: "b", Similarity: 0.8, AuthorID: 2},
		{ArticleID: "c", Similarity: 0.7, AuthorID: 3},
		{ArticleID: "d", Similarity: 0.6, AuthorID: 3},
		{ArticleID: "e", Similarity: 0.5, AuthorID: 4},
		{ArticleID: "f", Similarity: 0.05, AuthorID: 5},
	}
	p := &pipeline.Pipeline{Nodes: nodes}
	out, err := p.Run(ctx, core.NewRecommendContext(1, time.Now()), items)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, it := range out {
		ids = append(ids, it.ArticleID)
	}
	if strings.Join(ids, ",") != "c,e" {
		t.Errorf("post nodes output = %v, want [c e]", ids)
	}
}

func TestBuildPostNodes_Errors(t *testing.T) {
	tests := []pipeline.NodeConfig{
		{Type: "rank.lr"},
		{Type: "rerank.topn", Config: map[string]any{}},
		{Type: "filter", Config: map[string]any{}},
		{Type: "filter", Config: map[string]any{"filters": []any{map[string]any{"type": "exposed"}}}},
		{Type: "filter", Config: map[string]any{"filters": []any{map[string]any{"type": "expr", "expr": "item.("}}}},
	}
	for _, nc := range tests {
		if _, err := BuildPostNodes(NodeDeps{}, []pipeline.NodeConfig{nc}); err == nil {
			t.Errorf("BuildPostNodes(%+v) should fail", nc)
		}
	}
	if nodes, err := BuildPostNodes(NodeDeps{}, nil); err != nil || nodes != nil {
		t.Errorf("BuildPostNodes(nil) = %v, %v", nodes, err)
	}
}

func TestLoad_ExampleFiles(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "configs", "persona.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Scheduler.Interval != 6*time.Hour {
		t.Errorf("storage = %+v, scheduler = %+v", cfg.Storage, cfg.Scheduler)
	}
	if len(cfg.Ranking.PostNodes) != 1 || len(cfg.Search.PostNodes) != 1 {
		t.Fatalf("post nodes = %+v / %+v", cfg.Ranking.PostNodes, cfg.Search.PostNodes)
	}
	kv := store.NewMemoryStore()
	defer kv.Close()
	for _, cfgs := range [][]pipeline.NodeConfig{cfg.Ranking.PostNodes, cfg.Search.PostNodes} {
		if _, err := BuildPostNodes(NodeDeps{KV: kv}, cfgs); err != nil {
			t.Fatalf("BuildPostNodes(%v) = %v", nodeTypes(cfgs), err)
		}
	}

	fx, err := store.ReadFixturesFile(filepath.Join("..", "configs", "fixtures.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	articles, err := fx.Corpus().ListArticles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range articles {
		if !a.Usable() {
			t.Errorf("example article %s is not usable", a.ArticleID)
		}
	}
	if len(articles) != 3 {
		t.Errorf("example articles = %d, want 3", len(articles))
	}
}
