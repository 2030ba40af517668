package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rushteam/persona/core"
)

// MemoryCorpus 是内存实现的语料 + 交互存储，用于测试/开发/原型。
// 实现 CorpusReader、InteractionReader、EngagementReader、SocialGraph、
// UserLister、UserDirectory、SearchRecorder、ArticleWriter。
//
// ListArticles 按首次写入顺序返回，排序结果因此可复现。
type MemoryCorpus struct {
	mu           sync.RWMutex
	articles     map[string]*core.Article
	order        []string
	interactions map[int64]*core.Interactions
	comments     map[string]int
	follows      map[int64]map[int64]struct{}
	users        map[int64]string
}

// NewMemoryCorpus 创建空语料
func NewMemoryCorpus() *MemoryCorpus {
	return &MemoryCorpus{
		articles:     make(map[string]*core.Article),
		interactions: make(map[int64]*core.Interactions),
		comments:     make(map[string]int),
		follows:      make(map[int64]map[int64]struct{}),
		users:        make(map[int64]string),
	}
}

func (m *MemoryCorpus) Name() string { return "memory" }

// AddArticle 写入或覆盖文章
func (m *MemoryCorpus) AddArticle(a *core.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[a.ArticleID]; !ok {
		m.order = append(m.order, a.ArticleID)
	}
	cp := *a
	m.articles[a.ArticleID] = &cp
}

func (m *MemoryCorpus) userInteractions(userID int64) *core.Interactions {
	inter, ok := m.interactions[userID]
	if !ok {
		inter = &core.Interactions{}
		m.interactions[userID] = inter
	}
	return inter
}

// AddLike 追加点赞
func (m *MemoryCorpus) AddLike(userID int64, ev core.LikeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inter := m.userInteractions(userID)
	inter.Likes = append(inter.Likes, ev)
}

// AddSave 追加收藏
func (m *MemoryCorpus) AddSave(userID int64, ev core.SaveEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inter := m.userInteractions(userID)
	inter.Saves = append(inter.Saves, ev)
}

// AddRead 追加阅读
func (m *MemoryCorpus) AddRead(userID int64, ev core.ReadEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inter := m.userInteractions(userID)
	inter.Reads = append(inter.Reads, ev)
}

// AddComment 记一条评论
func (m *MemoryCorpus) AddComment(articleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[articleID]++
}

// Follow 记录关注关系
func (m *MemoryCorpus) Follow(followerID, followedID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.follows[followerID]
	if !ok {
		set = make(map[int64]struct{})
		m.follows[followerID] = set
	}
	set[followedID] = struct{}{}
}

// AddUser 注册用户名（用户搜索用）
func (m *MemoryCorpus) AddUser(userID int64, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = username
}

// RecordSearch 实现 core.SearchRecorder
func (m *MemoryCorpus) RecordSearch(_ context.Context, userID int64, ev core.SearchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inter := m.userInteractions(userID)
	inter.Searches = append(inter.Searches, ev)
	return nil
}

// GetArticle 实现 core.CorpusReader
func (m *MemoryCorpus) GetArticle(_ context.Context, articleID string) (*core.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[articleID]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	cp := *a
	return &cp, nil
}

// ListArticles 实现 core.CorpusReader
func (m *MemoryCorpus) ListArticles(_ context.Context) ([]*core.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Article, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.articles[id]
		out = append(out, &cp)
	}
	return out, nil
}

// PutArticleEmbedding 实现 core.ArticleWriter；文章不存在时新建
func (m *MemoryCorpus) PutArticleEmbedding(_ context.Context, emb *core.ArticleEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[emb.ArticleID]
	if !ok {
		a = &core.Article{}
		m.articles[emb.ArticleID] = a
		m.order = append(m.order, emb.ArticleID)
	}
	a.ArticleEmbedding = *emb
	return nil
}

// GetInteractions 实现 core.InteractionReader
func (m *MemoryCorpus) GetInteractions(_ context.Context, userID int64) (*core.Interactions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inter, ok := m.interactions[userID]
	if !ok {
		return &core.Interactions{}, nil
	}
	return &core.Interactions{
		Likes:    append([]core.LikeEvent(nil), inter.Likes...),
		Saves:    append([]core.SaveEvent(nil), inter.Saves...),
		Reads:    append([]core.ReadEvent(nil), inter.Reads...),
		Searches: append([]core.SearchEvent(nil), inter.Searches...),
	}, nil
}

// ReadArticleIDs 实现 core.InteractionReader
func (m *MemoryCorpus) ReadArticleIDs(_ context.Context, userID int64) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{})
	if inter, ok := m.interactions[userID]; ok {
		for _, r := range inter.Reads {
			if r.ArticleID != "" {
				out[r.ArticleID] = struct{}{}
			}
		}
	}
	return out, nil
}

// ArticleEngagement 实现 core.EngagementReader：点赞数 + 评论数
func (m *MemoryCorpus) ArticleEngagement(_ context.Context, articleID string) (core.Engagement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e := core.Engagement{Comments: m.comments[articleID]}
	for _, inter := range m.interactions {
		for _, l := range inter.Likes {
			if l.ArticleID == articleID {
				e.Likes++
			}
		}
	}
	return e, nil
}

// IsFollowing 实现 core.SocialGraph
func (m *MemoryCorpus) IsFollowing(_ context.Context, followerID, followedID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.follows[followerID][followedID]
	return ok, nil
}

// ListUserIDs 实现 core.UserLister：有交互的用户与注册用户的并集，升序
func (m *MemoryCorpus) ListUserIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int64]struct{}, len(m.interactions)+len(m.users))
	for id := range m.interactions {
		seen[id] = struct{}{}
	}
	for id := range m.users {
		seen[id] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// SearchUsers 实现 core.UserDirectory：用户名大小写不敏感的子串匹配，按 ID 升序
func (m *MemoryCorpus) SearchUsers(_ context.Context, query string, limit int) ([]core.UserSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]core.UserSummary, 0)
	if q == "" {
		return out, nil
	}
	for id, name := range m.users {
		if strings.Contains(strings.ToLower(name), q) {
			out = append(out, core.UserSummary{UserID: id, Username: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close 实现生命周期接口
func (m *MemoryCorpus) Close() error { return nil }

var (
	_ core.CorpusReader      = (*MemoryCorpus)(nil)
	_ core.InteractionReader = (*MemoryCorpus)(nil)
	_ core.EngagementReader  = (*MemoryCorpus)(nil)
	_ core.SocialGraph       = (*MemoryCorpus)(nil)
	_ core.UserLister        = (*MemoryCorpus)(nil)
	_ core.UserDirectory     = (*MemoryCorpus)(nil)
	_ core.SearchRecorder    = (*MemoryCorpus)(nil)
	_ core.ArticleWriter     = (*MemoryCorpus)(nil)
)
