package server

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/ingest"
	"github.com/rushteam/persona/pkg/conv"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/profile"
)

type userRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
}

type similarRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
	Limit  int   `json:"limit" validate:"omitempty,min=1"`
}

type processRequest struct {
	Articles []ingest.RawArticle `json:"articles" validate:"required,min=1,dive"`
}

type debugRequest struct {
	ArticleID string `json:"articleId" validate:"required"`
}

// articleView 是排序结果的对外表示
type articleView struct {
	ArticleID  string     `json:"articleId"`
	Similarity float64    `json:"similarity"`
	Score      *float64   `json:"score,omitempty"`
	AuthorID   int64      `json:"authorId,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	Popularity *int       `json:"popularity,omitempty"`
	Title      string     `json:"title,omitempty"`
}

func viewOf(it *core.ScoredArticle, withScore bool) articleView {
	v := articleView{ArticleID: it.ArticleID, Similarity: it.Similarity, AuthorID: it.AuthorID}
	if !it.CreatedAt.IsZero() {
		t := it.CreatedAt.UTC()
		v.CreatedAt = &t
	}
	if title, ok := it.Meta["title"].(string); ok {
		v.Title = title
	}
	if withScore {
		score, pop := it.CompositeScore, it.Popularity
		v.Score, v.Popularity = &score, &pop
	}
	return v
}

func viewsOf(items []*core.ScoredArticle, withScore bool) []articleView {
	out := make([]articleView, 0, len(items))
	for _, it := range items {
		out = append(out, viewOf(it, withScore))
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			respondJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerateEmbedding(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Aggregator.Aggregate(r.Context(), req.UserID)
	if err != nil {
		respondDomainError(w, logging.Ctx(r.Context(), s.logger), err)
		return
	}
	body := map[string]any{"message": res.Message(), "status": res.Status}
	if res.Status == profile.StatusSuccess {
		body["contributions"] = res.Contributions
	}
	respondJSON(w, s.logger, http.StatusOK, body)
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	items, err := s.deps.Recommender.FindSimilar(r.Context(), req.UserID, req.Limit)
	if err != nil {
		respondDomainError(w, logging.Ctx(r.Context(), s.logger), err)
		return
	}
	respondJSON(w, s.logger, http.StatusOK, map[string]any{
		"userId":          req.UserID,
		"similarArticles": viewsOf(items, false),
		"count":           len(items),
	})
}

func (s *Server) handleRecommended(w http.ResponseWriter, r *http.Request) {
	s.serveUserList(w, r, s.deps.Recommender.RecommendUnread)
}

func (s *Server) handleTimeBased(w http.ResponseWriter, r *http.Request) {
	s.serveUserList(w, r, s.deps.Recommender.TimeBased)
}

type listFunc func(ctx context.Context, userID int64) ([]*core.ScoredArticle, error)

func (s *Server) serveUserList(w http.ResponseWriter, r *http.Request, fn listFunc) {
	logger := logging.Ctx(r.Context(), s.logger)
	userID, err := userIDParam(r, true)
	if err != nil {
		respondDomainError(w, logger, err)
		return
	}
	items, err := fn(r.Context(), userID)
	if err != nil {
		respondDomainError(w, logger, err)
		return
	}
	respondJSON(w, s.logger, http.StatusOK, map[string]any{
		"userId":   userID,
		"articles": viewsOf(items, false),
		"count":    len(items),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	logger := logging.Ctx(r.Context(), s.logger)
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, logger, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	requester, err := userIDParam(r, false)
	if err != nil {
		respondDomainError(w, logger, err)
		return
	}
	res, err := s.deps.Searcher.SearchAll(r.Context(), query, requester)
	if err != nil {
		respondDomainError(w, logger, err)
		return
	}
	respondJSON(w, s.logger, http.StatusOK, map[string]any{
		"users":          res.Users,
		"articles":       viewsOf(res.Articles, true),
		"total_users":    len(res.Users),
		"total_articles": len(res.Articles),
	})
}

func (s *Server) handleProcessArticles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		respondError(w, s.logger, http.StatusNotImplemented, "article ingestion is not configured")
		return
	}
	var req processRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.Ingester.ProcessBatch(r.Context(), req.Articles)
	if err != nil {
		respondDomainError(w, logging.Ctx(r.Context(), s.logger), err)
		return
	}
	respondJSON(w, s.logger, http.StatusOK, res)
}

// debugView 文章向量诊断信息
type debugView struct {
	ArticleID  string `json:"articleId"`
	Exists     bool   `json:"exists"`
	Usable     bool   `json:"usable"`
	TitleDim   int    `json:"titleEmbeddingDim"`
	TextDim    int    `json:"textEmbeddingDim"`
	Dimension  int    `json:"dimension"`
	AuthorID   int64  `json:"authorId,omitempty"`
	Likes      int    `json:"likes"`
	Comments   int    `json:"comments"`
	Popularity int    `json:"popularity"`
}

func (s *Server) handleDebugArticle(w http.ResponseWriter, r *http.Request) {
	var req debugRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	logger := logging.Ctx(r.Context(), s.logger)
	view := debugView{ArticleID: req.ArticleID}
	a, err := s.deps.Corpus.GetArticle(r.Context(), req.ArticleID)
	switch {
	case core.IsStoreNotFound(err):
		respondJSON(w, s.logger, http.StatusNotFound, view)
		return
	case err != nil:
		respondDomainError(w, logger, err)
		return
	}
	view.Exists = true
	view.Usable = a.Usable()
	view.TitleDim = len(a.TitleEmbedding)
	view.TextDim = len(a.TextEmbedding)
	view.Dimension = a.Dimension()
	view.AuthorID = a.AuthorID
	if s.deps.Engagement != nil {
		eng, err := s.deps.Engagement.ArticleEngagement(r.Context(), req.ArticleID)
		if err != nil {
			logger.Warn().Err(err).Str("article_id", req.ArticleID).Msg("engagement lookup failed")
		} else {
			view.Likes, view.Comments, view.Popularity = eng.Likes, eng.Comments, eng.Popularity()
		}
	}
	respondJSON(w, s.logger, http.StatusOK, view)
}

type searchEntry struct {
	Query     string     `json:"query"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// handleSearchHistory 返回最近的搜索，按时间倒序；时间无法解析的排在最后
func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	logger := logging.Ctx(r.Context(), s.logger)
	if s.deps.Interactions == nil {
		respondError(w, logger, http.StatusNotImplemented, "search history is not configured")
		return
	}
	userID, err := userIDParam(r, true)
	if err != nil {
		respondDomainError(w, logger, err)
		return
	}
	inter, err := s.deps.Interactions.GetInteractions(r.Context(), userID)
	if err != nil {
		respondDomainError(w, logger, err)
		return
	}
	out := make([]searchEntry, 0, len(inter.Searches))
	for _, ev := range inter.Searches {
		e := searchEntry{Query: ev.Query}
		if t, ok := conv.ParseTime(ev.CreatedAt); ok {
			t = t.UTC()
			e.CreatedAt = &t
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	respondJSON(w, s.logger, http.StatusOK, map[string]any{
		"userId":   userID,
		"searches": out,
		"count":    len(out),
	})
}
