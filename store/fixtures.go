package store

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/conv"
)

// Fixtures 是 YAML 语料种子文件的结构，开发模式与测试用。
//
//	articles:
//	  - id: a1
//	    author_id: 7
//	    created_at: 2025-06-01T10:00:00Z
//	    title_embedding: [1, 0]
//	    text_embedding: [1, 0]
//	likes:
//	  - {user_id: 1, article_id: a1, created_at: 2025-06-01T10:00:00Z}
//
// 时间与阅读指标字段保持原始值，交给权重计算做容错。
type Fixtures struct {
	Articles []struct {
		ID             string    `yaml:"id"`
		AuthorID       int64     `yaml:"author_id"`
		Title          string    `yaml:"title"`
		Category       string    `yaml:"category"`
		CreatedAt      any       `yaml:"created_at"`
		TitleEmbedding []float32 `yaml:"title_embedding"`
		TextEmbedding  []float32 `yaml:"text_embedding"`
	} `yaml:"articles"`

	Users []struct {
		ID       int64  `yaml:"id"`
		Username string `yaml:"username"`
	} `yaml:"users"`

	Follows []struct {
		Follower int64 `yaml:"follower"`
		Followed int64 `yaml:"followed"`
	} `yaml:"follows"`

	Comments []struct {
		ArticleID string `yaml:"article_id"`
	} `yaml:"comments"`

	Likes []struct {
		UserID    int64  `yaml:"user_id"`
		ArticleID string `yaml:"article_id"`
		CreatedAt any    `yaml:"created_at"`
	} `yaml:"likes"`

	Saves []struct {
		UserID    int64  `yaml:"user_id"`
		ArticleID string `yaml:"article_id"`
		CreatedAt any    `yaml:"created_at"`
	} `yaml:"saves"`

	Reads []struct {
		UserID           int64  `yaml:"user_id"`
		ArticleID        string `yaml:"article_id"`
		ReadCount        any    `yaml:"read_count"`
		InitialDurationS any    `yaml:"initial_duration"`
		LatestDurationS  any    `yaml:"latest_duration"`
		InitialReadPct   any    `yaml:"initial_read_percentage"`
		LatestReadPct    any    `yaml:"latest_read_percentage"`
		LastReadAt       any    `yaml:"last_read_at"`
	} `yaml:"reads"`

	Searches []struct {
		UserID    int64     `yaml:"user_id"`
		Query     string    `yaml:"query"`
		Embedding []float32 `yaml:"embedding"`
		CreatedAt any       `yaml:"created_at"`
	} `yaml:"searches"`
}

// ParseFixtures 解析 YAML 种子数据
func ParseFixtures(r io.Reader) (*Fixtures, error) {
	var fx Fixtures
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &fx, nil
}

// ReadFixturesFile 从文件解析种子数据
func ReadFixturesFile(path string) (*Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return ParseFixtures(f)
}

// LoadFixtures 从 YAML 读取种子数据，构建 MemoryCorpus
func LoadFixtures(r io.Reader) (*MemoryCorpus, error) {
	fx, err := ParseFixtures(r)
	if err != nil {
		return nil, err
	}
	return fx.Corpus(), nil
}

// LoadFixturesFile 从文件读取种子数据
func LoadFixturesFile(path string) (*MemoryCorpus, error) {
	fx, err := ReadFixturesFile(path)
	if err != nil {
		return nil, err
	}
	return fx.Corpus(), nil
}

// Corpus 把种子数据灌进新的 MemoryCorpus
func (fx *Fixtures) Corpus() *MemoryCorpus {
	m := NewMemoryCorpus()
	for _, a := range fx.Articles {
		createdAt, _ := conv.ParseTime(a.CreatedAt)
		m.AddArticle(&core.Article{
			ArticleEmbedding: core.ArticleEmbedding{
				ArticleID:      a.ID,
				TitleEmbedding: a.TitleEmbedding,
				TextEmbedding:  a.TextEmbedding,
			},
			AuthorID:  a.AuthorID,
			Title:     a.Title,
			Category:  a.Category,
			CreatedAt: createdAt,
		})
	}
	for _, u := range fx.Users {
		m.AddUser(u.ID, u.Username)
	}
	for _, f := range fx.Follows {
		m.Follow(f.Follower, f.Followed)
	}
	for _, c := range fx.Comments {
		m.AddComment(c.ArticleID)
	}
	for _, l := range fx.Likes {
		m.AddLike(l.UserID, core.LikeEvent{ArticleID: l.ArticleID, CreatedAt: l.CreatedAt})
	}
	for _, s := range fx.Saves {
		m.AddSave(s.UserID, core.SaveEvent{ArticleID: s.ArticleID, CreatedAt: s.CreatedAt})
	}
	for _, r := range fx.Reads {
		m.AddRead(r.UserID, core.ReadEvent{
			ArticleID:        r.ArticleID,
			ReadCount:        r.ReadCount,
			InitialDurationS: r.InitialDurationS,
			LatestDurationS:  r.LatestDurationS,
			InitialReadPct:   r.InitialReadPct,
			LatestReadPct:    r.LatestReadPct,
			LastReadAt:       r.LastReadAt,
		})
	}
	for _, s := range fx.Searches {
		_ = m.RecordSearch(context.Background(), s.UserID, core.SearchEvent{Query: s.Query, Embedding: s.Embedding, CreatedAt: s.CreatedAt})
	}
	return m
}
