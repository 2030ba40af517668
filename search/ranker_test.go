package search

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/store"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func (s *stubEmbedder) EmbedLong(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func addArticle(c *store.MemoryCorpus, id string, author int64, created time.Time, title, text []float32) {
	c.AddArticle(&core.Article{
		ArticleEmbedding: core.ArticleEmbedding{ArticleID: id, TitleEmbedding: title, TextEmbedding: text},
		AuthorID:         author,
		CreatedAt:        created,
	})
}

func newRanker(corpus *store.MemoryCorpus, emb core.EmbeddingService) *Ranker {
	return NewRanker(emb, corpus,
		WithEngagement(corpus),
		WithSocialGraph(corpus),
		WithSearchRecorder(corpus),
		WithUserDirectory(corpus),
		WithClock(func() time.Time { return now }),
		WithLogger(logging.NewTestLogger(io.Discard)),
	)
}

func TestSearch_ExactMatch(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	addArticle(corpus, "match", 1, now, []float32{3, 4}, []float32{3, 4})
	addArticle(corpus, "orthogonal", 1, now, []float32{-4, 3}, []float32{-4, 3})

	got, err := newRanker(corpus, &stubEmbedder{vec: []float32{0.6, 0.8}}).Search(context.Background(), "vectors", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ArticleID != "match" {
		t.Fatalf("Search() = %v, want only [match]", got)
	}
	if math.Abs(got[0].Similarity-1) > 1e-6 {
		t.Errorf("similarity = %v, want ~1", got[0].Similarity)
	}
	// 0.5*1 + 0 - 0 + 0.1*0/1
	if math.Abs(got[0].CompositeScore-0.5) > 1e-6 {
		t.Errorf("composite = %v, want 0.5", got[0].CompositeScore)
	}
}

func TestSearch_RelevanceFloor(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	// cos = 0.29 < 0.3
	addArticle(corpus, "weak", 1, now, []float32{0.29, float32(math.Sqrt(1 - 0.29*0.29))}, []float32{0.29, float32(math.Sqrt(1 - 0.29*0.29))})
	addArticle(corpus, "ok", 1, now, []float32{0.31, float32(math.Sqrt(1 - 0.31*0.31))}, []float32{0.31, float32(math.Sqrt(1 - 0.31*0.31))})

	got, err := newRanker(corpus, &stubEmbedder{vec: []float32{1, 0}}).Search(context.Background(), "q", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ArticleID != "ok" {
		t.Fatalf("Search() = %d results, want only [ok]", len(got))
	}
}

func TestSearch_CompositeOrdering(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	addArticle(corpus, "stranger", 2, now.Add(-73*24*time.Hour), []float32{1, 0}, []float32{1, 0})
	addArticle(corpus, "followed", 3, now, []float32{0.6, 0.8}, []float32{0.6, 0.8})
	addArticle(corpus, "old", 2, now.Add(-730*24*time.Hour), []float32{1, 0}, []float32{1, 0})
	addArticle(corpus, "popular", 2, now, []float32{0.8, 0.6}, []float32{0.8, 0.6})
	addArticle(corpus, "no_date", 2, time.Time{}, []float32{1, 0}, []float32{1, 0})
	addArticle(corpus, "wrong_dim", 2, now, []float32{1, 0, 0}, []float32{1, 0, 0})
	addArticle(corpus, "broken", 2, now, []float32{1, 0}, nil)
	corpus.Follow(42, 3)
	for i := 0; i < 4; i++ {
		corpus.AddLike(int64(100+i), core.LikeEvent{ArticleID: "popular"})
	}
	corpus.AddComment("popular")

	got, err := newRanker(corpus, &stubEmbedder{vec: []float32{1, 0}}).Search(context.Background(), "q", 42)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"followed", "popular", "stranger", "no_date", "old"}
	if len(got) != len(want) {
		t.Fatalf("Search() len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ArticleID != id {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].ArticleID, id)
		}
	}
	// popular: 0.5*0.8 + 0.1*5/5 = 0.5
	if math.Abs(got[1].CompositeScore-0.5) > 1e-6 || got[1].Popularity != 5 {
		t.Errorf("popular = score %v pop %d", got[1].CompositeScore, got[1].Popularity)
	}
	// stranger: 0.5 - 0.2*73/365 = 0.46
	if math.Abs(got[2].CompositeScore-0.46) > 1e-6 {
		t.Errorf("stranger score = %v, want 0.46", got[2].CompositeScore)
	}
	// no_date: 0.5 - 0.2*365/365 = 0.3
	if math.Abs(got[3].CompositeScore-0.3) > 1e-6 {
		t.Errorf("no_date score = %v, want 0.3", got[3].CompositeScore)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CompositeScore > got[i-1].CompositeScore {
			t.Fatal("results not sorted by composite score")
		}
	}
}

func TestSearch_Limit(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	for i := 0; i < 30; i++ {
		addArticle(corpus, string(rune('a'+i%26))+string(rune('0'+i/26)), 1, now, []float32{1, 0}, []float32{1, 0})
	}
	got, err := newRanker(corpus, &stubEmbedder{vec: []float32{1, 0}}).Search(context.Background(), "q", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Errorf("Search() len = %d, want 10", len(got))
	}
	if got[0].ArticleID != "a0" {
		t.Errorf("ties should keep corpus order, first = %s", got[0].ArticleID)
	}
}

func TestSearch_TopKCutBeforeComposite(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	for i := 0; i < 20; i++ {
		addArticle(corpus, string(rune('a'+i)), 1, now, []float32{1, 0}, []float32{1, 0})
	}
	// 相似度约 0.9，作者被关注：若进入候选会因关注加成排第一
	addArticle(corpus, "followed", 3, now, []float32{0.9, 0.436}, []float32{0.9, 0.436})
	corpus.Follow(42, 3)

	got, err := newRanker(corpus, &stubEmbedder{vec: []float32{1, 0}}).Search(context.Background(), "q", 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("Search() len = %d, want 10", len(got))
	}
	for _, it := range got {
		if it.ArticleID == "followed" {
			t.Fatal("article outside the nearest 20 survived into composite ranking")
		}
	}
}

// timedEmbedder 记录调用时 ctx 剩余的时间
type timedEmbedder struct {
	stubEmbedder
	timeout time.Duration
	left    time.Duration
}

func (e *timedEmbedder) TimeoutFor(string) time.Duration { return e.timeout }

func (e *timedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if dl, ok := ctx.Deadline(); ok {
		e.left = time.Until(dl)
	}
	return e.stubEmbedder.Embed(ctx, text)
}

func TestSearch_EmbedBudgetFollowsClientTimeout(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	addArticle(corpus, "a", 1, now, []float32{1, 0}, []float32{1, 0})

	tests := []struct {
		name    string
		timeout time.Duration
		min     time.Duration
		max     time.Duration
	}{
		{"long query keeps the long timeout", time.Minute, 50 * time.Second, time.Minute},
		{"short client timeout keeps the search floor", time.Second, 20 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &timedEmbedder{stubEmbedder: stubEmbedder{vec: []float32{1, 0}}, timeout: tt.timeout}
			if _, err := newRanker(corpus, emb).Search(context.Background(), "q", 0); err != nil {
				t.Fatal(err)
			}
			if emb.left < tt.min || emb.left > tt.max {
				t.Errorf("embed deadline in %v, want between %v and %v", emb.left, tt.min, tt.max)
			}
		})
	}
}

func TestSearch_Errors(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	addArticle(corpus, "a", 1, now, []float32{1, 0}, []float32{1, 0})

	emb := &stubEmbedder{vec: []float32{1, 0}}
	if _, err := newRanker(corpus, emb).Search(context.Background(), "   ", 1); !core.IsInvalidInput(err) {
		t.Errorf("blank query error = %v, want invalid input", err)
	}
	if emb.calls != 0 {
		t.Error("blank query should not call the embedding service")
	}

	_, err := newRanker(corpus, &stubEmbedder{err: errors.New("timeout")}).Search(context.Background(), "q", 1)
	if !core.IsUnavailable(err) || !errors.Is(err, core.ErrEmbeddingUnavailable) {
		t.Errorf("embed failure error = %v, want embedding unavailable", err)
	}

	_, err = newRanker(corpus, &stubEmbedder{}).Search(context.Background(), "q", 1)
	if !errors.Is(err, core.ErrEmbeddingUnavailable) {
		t.Errorf("empty embedding error = %v, want embedding unavailable", err)
	}
}

func TestSearch_RecordsHistory(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	addArticle(corpus, "a", 1, now, []float32{1, 0}, []float32{1, 0})
	r := newRanker(corpus, &stubEmbedder{vec: []float32{1, 0}})

	if _, err := r.Search(context.Background(), " golang ", 5); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Search(context.Background(), "anonymous", 0); err != nil {
		t.Fatal(err)
	}

	inter, _ := corpus.GetInteractions(context.Background(), 5)
	if len(inter.Searches) != 1 || inter.Searches[0].Query != "golang" {
		t.Fatalf("recorded searches = %+v, want one golang search", inter.Searches)
	}
	ids, _ := corpus.ListUserIDs(context.Background())
	for _, id := range ids {
		if id == 0 {
			t.Error("anonymous search should not be recorded")
		}
	}
}

func TestSearchAll(t *testing.T) {
	corpus := store.NewMemoryCorpus()
	addArticle(corpus, "a", 1, now, []float32{1, 0}, []float32{1, 0})
	corpus.AddUser(1, "gopher")
	corpus.AddUser(2, "Gophers_united")
	corpus.AddUser(3, "rustacean")

	res, err := newRanker(corpus, &stubEmbedder{vec: []float32{1, 0}}).SearchAll(context.Background(), "gopher", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Users) != 2 || len(res.Articles) != 1 {
		t.Errorf("SearchAll() = %d users, %d articles; want 2, 1", len(res.Users), len(res.Articles))
	}

	noDir := NewRanker(&stubEmbedder{vec: []float32{1, 0}}, corpus, WithLogger(logging.NewTestLogger(io.Discard)))
	res, err = noDir.SearchAll(context.Background(), "gopher", 0)
	if err != nil || res.Users == nil || len(res.Users) != 0 {
		t.Errorf("SearchAll() without directory = %+v, %v", res, err)
	}
}
