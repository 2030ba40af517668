package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/ingest"
	"github.com/rushteam/persona/profile"
	"github.com/rushteam/persona/search"
	"github.com/rushteam/persona/store"
)

const serverFixtures = `
articles:
  - id: a1
    author_id: 7
    title_embedding: [1, 0]
    text_embedding: [1, 0]
  - id: a2
    author_id: 8
    title_embedding: [1, 0, 0]
    text_embedding: [1, 0]
comments:
  - {article_id: a1}
likes:
  - {user_id: 1, article_id: a1, created_at: 2025-06-01T11:00:00Z}
  - {user_id: 2, article_id: a1, created_at: 2025-06-01T11:00:00Z}
searches:
  - {user_id: 1, query: old, embedding: [1, 0], created_at: 2025-06-01T09:00:00Z}
  - {user_id: 1, query: broken, embedding: [1, 0], created_at: yesterday}
  - {user_id: 1, query: new, embedding: [1, 0], created_at: 2025-06-02T09:00:00Z}
`

type fakeAggregator struct{}

func (fakeAggregator) Aggregate(_ context.Context, userID int64) (*profile.Result, error) {
	if userID == 2 {
		return &profile.Result{Status: profile.StatusNoInteractions, UserID: userID}, nil
	}
	if userID == 3 {
		return nil, errors.New("disk on fire")
	}
	return &profile.Result{Status: profile.StatusSuccess, UserID: userID, Contributions: 3}, nil
}

type fakeRecommender struct {
	gotLimit int
}

func (f *fakeRecommender) FindSimilar(_ context.Context, userID int64, limit int) ([]*core.ScoredArticle, error) {
	f.gotLimit = limit
	if userID == 404 {
		return nil, core.ErrNoProfile
	}
	it := core.NewScoredArticle("a1")
	it.Similarity = 0.9
	return []*core.ScoredArticle{it}, nil
}

func (f *fakeRecommender) RecommendUnread(_ context.Context, _ int64) ([]*core.ScoredArticle, error) {
	return []*core.ScoredArticle{core.NewScoredArticle("u1"), core.NewScoredArticle("u2")}, nil
}

func (f *fakeRecommender) TimeBased(_ context.Context, _ int64) ([]*core.ScoredArticle, error) {
	return []*core.ScoredArticle{}, nil
}

type fakeSearcher struct {
	gotRequester int64
}

func (f *fakeSearcher) SearchAll(_ context.Context, query string, requesterID int64) (*search.Results, error) {
	f.gotRequester = requesterID
	if query == "down" {
		return nil, fmt.Errorf("%w: timeout", core.ErrEmbeddingUnavailable)
	}
	it := core.NewScoredArticle("a1")
	it.Similarity, it.CompositeScore, it.Popularity = 0.8, 20.4, 3
	it.CreatedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &search.Results{
		Users:    []core.UserSummary{{UserID: 1, Username: "alice"}},
		Articles: []*core.ScoredArticle{it},
	}, nil
}

type fakeIngester struct{}

func (fakeIngester) ProcessBatch(_ context.Context, articles []ingest.RawArticle) (*ingest.BatchResult, error) {
	return &ingest.BatchResult{Processed: len(articles)}, nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeRecommender, *fakeSearcher) {
	t.Helper()
	fx, err := store.ParseFixtures(strings.NewReader(serverFixtures))
	if err != nil {
		t.Fatal(err)
	}
	corpus := fx.Corpus()
	rec, srch := &fakeRecommender{}, &fakeSearcher{}
	s := New(Deps{
		Aggregator:   fakeAggregator{},
		Recommender:  rec,
		Searcher:     srch,
		Ingester:     fakeIngester{},
		Corpus:       corpus,
		Engagement:   corpus,
		Interactions: corpus,
	}, opts...)
	return s, rec, srch
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	out := map[string]any{}
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, target, rr.Body.String(), err)
		}
	}
	return rr, out
}

func TestRoutes_Status(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"generate ok", http.MethodPost, "/ai/generate-embedding", `{"userId": 1}`, http.StatusOK},
		{"generate no interactions", http.MethodPost, "/ai/generate-embedding", `{"userId": 2}`, http.StatusOK},
		{"generate internal", http.MethodPost, "/ai/generate-embedding", `{"userId": 3}`, http.StatusInternalServerError},
		{"generate zero user", http.MethodPost, "/ai/generate-embedding", `{"userId": 0}`, http.StatusBadRequest},
		{"generate bad json", http.MethodPost, "/ai/generate-embedding", `{"userId": "x"`, http.StatusBadRequest},
		{"similar ok", http.MethodPost, "/ai/find-similar-articles", `{"userId": 1, "limit": 5}`, http.StatusOK},
		{"similar limit too big", http.MethodPost, "/ai/find-similar-articles", `{"userId": 1, "limit": 51}`, http.StatusBadRequest},
		{"similar no profile", http.MethodPost, "/ai/find-similar-articles", `{"userId": 404}`, http.StatusNotFound},
		{"recommended ok", http.MethodGet, "/articles/recommended?userId=1", "", http.StatusOK},
		{"recommended missing user", http.MethodGet, "/articles/recommended", "", http.StatusBadRequest},
		{"time-based bad user", http.MethodGet, "/articles/time-based?userId=abc", "", http.StatusBadRequest},
		{"search ok", http.MethodGet, "/search?q=golang&userId=1", "", http.StatusOK},
		{"search blank", http.MethodGet, "/search?q=%20%20", "", http.StatusBadRequest},
		{"search embedding down", http.MethodGet, "/search?q=down", "", http.StatusBadGateway},
		{"process ok", http.MethodPost, "/ai/process-articles", `{"articles":[{"id":"n1","title":"t","text":"x"}]}`, http.StatusOK},
		{"process empty", http.MethodPost, "/ai/process-articles", `{"articles":[]}`, http.StatusBadRequest},
		{"process missing id", http.MethodPost, "/ai/process-articles", `{"articles":[{"title":"t"}]}`, http.StatusBadRequest},
		{"debug ok", http.MethodPost, "/ai/debug-article", `{"articleId":"a1"}`, http.StatusOK},
		{"debug missing", http.MethodPost, "/ai/debug-article", `{"articleId":"zz"}`, http.StatusNotFound},
		{"history ok", http.MethodGet, "/search-history?userId=1", "", http.StatusOK},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"wrong method", http.MethodGet, "/ai/generate-embedding", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, _ := do(t, h, tt.method, tt.target, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestFindSimilar_ConfiguredMaxLimit(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		limit   int
		want    int
		details string
	}{
		{"raised max accepts 80", 100, 80, http.StatusOK, ""},
		{"raised max rejects 101", 100, 101, http.StatusBadRequest, "max=100"},
		{"lowered max rejects 30", 20, 30, http.StatusBadRequest, "max=20"},
		{"lowered max accepts 20", 20, 20, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec, _ := newTestServer(t, WithMaxLimit(tt.max))
			body := fmt.Sprintf(`{"userId": 1, "limit": %d}`, tt.limit)
			rr, out := do(t, s.Handler(), http.MethodPost, "/ai/find-similar-articles", body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", rr.Code, tt.want, rr.Body.String())
			}
			if tt.details != "" {
				details, _ := out["details"].(map[string]any)
				if details["limit"] != tt.details {
					t.Errorf("details = %v, want limit=%s", out["details"], tt.details)
				}
				if rec.gotLimit != 0 {
					t.Errorf("rejected request reached the recommender with limit %d", rec.gotLimit)
				}
			}
		})
	}
}

func TestFindSimilar_Body(t *testing.T) {
	s, rec, _ := newTestServer(t)
	rr, out := do(t, s.Handler(), http.MethodPost, "/ai/find-similar-articles", `{"userId": 1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rec.gotLimit != 0 {
		t.Errorf("omitted limit forwarded as %d, want 0", rec.gotLimit)
	}
	if out["userId"] != float64(1) || out["count"] != float64(1) {
		t.Errorf("body = %v", out)
	}
	arts, _ := out["similarArticles"].([]any)
	if len(arts) != 1 {
		t.Fatalf("similarArticles = %v", out["similarArticles"])
	}
	first := arts[0].(map[string]any)
	if first["articleId"] != "a1" || first["similarity"] != 0.9 {
		t.Errorf("article = %v", first)
	}
	if _, ok := first["score"]; ok {
		t.Error("find-similar should not expose composite score")
	}
}

func TestGenerateEmbedding_Message(t *testing.T) {
	s, _, _ := newTestServer(t)
	_, out := do(t, s.Handler(), http.MethodPost, "/ai/generate-embedding", `{"userId": 2}`)
	msg, _ := out["message"].(string)
	if !strings.Contains(msg, "No interactions found for user 2") {
		t.Errorf("message = %q", msg)
	}
	if out["status"] != string(profile.StatusNoInteractions) {
		t.Errorf("status = %v", out["status"])
	}
}

func TestSearch_Body(t *testing.T) {
	s, _, srch := newTestServer(t)
	_, out := do(t, s.Handler(), http.MethodGet, "/search?q=golang&userId=9", "")
	if srch.gotRequester != 9 {
		t.Errorf("requester = %d, want 9", srch.gotRequester)
	}
	if out["total_users"] != float64(1) || out["total_articles"] != float64(1) {
		t.Errorf("totals = %v / %v", out["total_users"], out["total_articles"])
	}
	arts := out["articles"].([]any)
	first := arts[0].(map[string]any)
	if first["score"] != 20.4 || first["popularity"] != float64(3) {
		t.Errorf("article = %v", first)
	}
	if first["createdAt"] != "2025-06-01T00:00:00Z" {
		t.Errorf("createdAt = %v", first["createdAt"])
	}

	do(t, s.Handler(), http.MethodGet, "/search?q=golang", "")
	if srch.gotRequester != 0 {
		t.Errorf("anonymous requester = %d, want 0", srch.gotRequester)
	}
}

func TestDebugArticle(t *testing.T) {
	s, _, _ := newTestServer(t)
	_, out := do(t, s.Handler(), http.MethodPost, "/ai/debug-article", `{"articleId":"a1"}`)
	if out["usable"] != true || out["dimension"] != float64(2) {
		t.Errorf("a1 = %v", out)
	}
	if out["likes"] != float64(2) || out["comments"] != float64(1) || out["popularity"] != float64(3) {
		t.Errorf("a1 engagement = %v", out)
	}

	_, out = do(t, s.Handler(), http.MethodPost, "/ai/debug-article", `{"articleId":"a2"}`)
	if out["exists"] != true || out["usable"] != false || out["titleEmbeddingDim"] != float64(3) {
		t.Errorf("a2 = %v", out)
	}
}

func TestSearchHistory_Order(t *testing.T) {
	s, _, _ := newTestServer(t)
	_, out := do(t, s.Handler(), http.MethodGet, "/search-history?userId=1", "")
	searches := out["searches"].([]any)
	var got []string
	for _, e := range searches {
		got = append(got, e.(map[string]any)["query"].(string))
	}
	if strings.Join(got, ",") != "new,old,broken" {
		t.Errorf("order = %v, want [new old broken]", got)
	}
}

func TestRequestID(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("echoed request id = %q", got)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("request id should be generated")
	}
}

func TestHealth_NotReady(t *testing.T) {
	s := New(Deps{}, WithReadiness(func(context.Context) error { return errors.New("mongo down") }))
	rr, out := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusServiceUnavailable || out["status"] != "unavailable" {
		t.Errorf("status = %d, body = %v", rr.Code, out)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	s, _, _ := newTestServer(t)
	WithMaxBodyBytes(16)(s)
	rr, _ := do(t, s.Handler(), http.MethodPost, "/ai/generate-embedding", `{"userId": 1, "padding": "xxxxxxxxxxxxxxxx"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

type fakeHTTPServer struct {
	stop     chan struct{}
	shutdown bool
}

func (f *fakeHTTPServer) ListenAndServe() error {
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdown = true
	close(f.stop)
	return nil
}

func TestService_GracefulShutdown(t *testing.T) {
	fs := &fakeHTTPServer{stop: make(chan struct{})}
	svc := NewService(fs, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if !fs.shutdown {
		t.Error("Shutdown was not called")
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}
