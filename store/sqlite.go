package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/conv"
)

// SQLiteStore 是单文件部署用的存储后端，同时实现语料、交互、社交、画像等全部协作方接口。
//
// 向量以 little-endian float32 BLOB 存储；交互记录里的时间与阅读指标按原值存储
// （SQLite 动态类型），读取时交给权重计算做容错。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）数据库并初始化表结构。path 为 ":memory:" 时使用内存库。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// 单连接：内存库每个连接是独立的库，文件库也避免写锁竞争
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
		PRAGMA busy_timeout = 5000;

		CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			author_id INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			created_at TEXT,
			title_embedding BLOB,
			text_embedding BLOB
		);

		CREATE TABLE IF NOT EXISTS likes (
			user_id INTEGER NOT NULL,
			article_id TEXT NOT NULL,
			created_at
		);

		CREATE TABLE IF NOT EXISTS saves (
			user_id INTEGER NOT NULL,
			article_id TEXT NOT NULL,
			created_at
		);

		CREATE TABLE IF NOT EXISTS reads (
			user_id INTEGER NOT NULL,
			article_id TEXT NOT NULL,
			read_count,
			initial_duration,
			latest_duration,
			initial_read_percentage,
			latest_read_percentage,
			last_read_at
		);

		CREATE TABLE IF NOT EXISTS searches (
			user_id INTEGER NOT NULL,
			query TEXT NOT NULL,
			embedding BLOB,
			created_at
		);

		CREATE TABLE IF NOT EXISTS comments (
			article_id TEXT NOT NULL,
			user_id INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS follows (
			follower_id INTEGER NOT NULL,
			followed_id INTEGER NOT NULL,
			PRIMARY KEY (follower_id, followed_id)
		);

		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id INTEGER PRIMARY KEY,
			embedding BLOB NOT NULL,
			last_updated TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_likes_user ON likes(user_id);
		CREATE INDEX IF NOT EXISTS idx_likes_article ON likes(article_id);
		CREATE INDEX IF NOT EXISTS idx_saves_user ON saves(user_id);
		CREATE INDEX IF NOT EXISTS idx_reads_user ON reads(user_id);
		CREATE INDEX IF NOT EXISTS idx_searches_user ON searches(user_id);
		CREATE INDEX IF NOT EXISTS idx_comments_article ON comments(article_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Close 关闭数据库
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping 检查数据库连接
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// encodeVector 把向量编码为 little-endian float32 BLOB
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector 解码 BLOB；长度不是 4 的倍数时返回 nil
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// sqlValue 把交互记录里的原始值转换成 SQLite 能存的值，保留可被权重计算容错解析的形态
func sqlValue(v any) any {
	switch x := v.(type) {
	case nil, string, int, int32, int64, float32, float64, bool:
		return x
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return x.UTC().Format(time.RFC3339Nano)
	}
	if t, ok := conv.ParseTime(v); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	if f, ok := conv.ToFloat64(v); ok {
		return f
	}
	return fmt.Sprint(v)
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// AddArticle 写入或覆盖文章
func (s *SQLiteStore) AddArticle(ctx context.Context, a *core.Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, author_id, title, category, created_at, title_embedding, text_embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author_id = excluded.author_id,
			title = excluded.title,
			category = excluded.category,
			created_at = excluded.created_at,
			title_embedding = excluded.title_embedding,
			text_embedding = excluded.text_embedding`,
		a.ArticleID, a.AuthorID, a.Title, a.Category, formatTime(a.CreatedAt),
		encodeVector(a.TitleEmbedding), encodeVector(a.TextEmbedding),
	)
	if err != nil {
		return fmt.Errorf("inserting article %s: %w", a.ArticleID, err)
	}
	return nil
}

// PutArticleEmbedding 实现 core.ArticleWriter；文章不存在时新建
func (s *SQLiteStore) PutArticleEmbedding(ctx context.Context, emb *core.ArticleEmbedding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, title_embedding, text_embedding) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title_embedding = excluded.title_embedding,
			text_embedding = excluded.text_embedding`,
		emb.ArticleID, encodeVector(emb.TitleEmbedding), encodeVector(emb.TextEmbedding),
	)
	if err != nil {
		return fmt.Errorf("updating embedding of %s: %w", emb.ArticleID, err)
	}
	return nil
}

const articleColumns = "id, author_id, title, category, created_at, title_embedding, text_embedding"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*core.Article, error) {
	var (
		a         core.Article
		createdAt sql.NullString
		title     []byte
		text      []byte
	)
	if err := row.Scan(&a.ArticleID, &a.AuthorID, &a.Title, &a.Category, &createdAt, &title, &text); err != nil {
		return nil, err
	}
	if createdAt.Valid {
		a.CreatedAt, _ = conv.ParseTime(createdAt.String)
	}
	a.TitleEmbedding = decodeVector(title)
	a.TextEmbedding = decodeVector(text)
	return &a, nil
}

// GetArticle 实现 core.CorpusReader
func (s *SQLiteStore) GetArticle(ctx context.Context, articleID string) (*core.Article, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE id = ?", articleID)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying article %s: %w", articleID, err)
	}
	return a, nil
}

// ListArticles 实现 core.CorpusReader，按写入顺序返回
func (s *SQLiteStore) ListArticles(ctx context.Context) ([]*core.Article, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+articleColumns+" FROM articles ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var out []*core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddLike 记录点赞
func (s *SQLiteStore) AddLike(ctx context.Context, userID int64, ev core.LikeEvent) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO likes (user_id, article_id, created_at) VALUES (?, ?, ?)",
		userID, ev.ArticleID, sqlValue(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting like: %w", err)
	}
	return nil
}

// AddSave 记录收藏
func (s *SQLiteStore) AddSave(ctx context.Context, userID int64, ev core.SaveEvent) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO saves (user_id, article_id, created_at) VALUES (?, ?, ?)",
		userID, ev.ArticleID, sqlValue(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting save: %w", err)
	}
	return nil
}

// AddRead 记录阅读
func (s *SQLiteStore) AddRead(ctx context.Context, userID int64, ev core.ReadEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reads (user_id, article_id, read_count, initial_duration, latest_duration,
			initial_read_percentage, latest_read_percentage, last_read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, ev.ArticleID, sqlValue(ev.ReadCount), sqlValue(ev.InitialDurationS), sqlValue(ev.LatestDurationS),
		sqlValue(ev.InitialReadPct), sqlValue(ev.LatestReadPct), sqlValue(ev.LastReadAt))
	if err != nil {
		return fmt.Errorf("inserting read: %w", err)
	}
	return nil
}

// RecordSearch 实现 core.SearchRecorder
func (s *SQLiteStore) RecordSearch(ctx context.Context, userID int64, ev core.SearchEvent) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO searches (user_id, query, embedding, created_at) VALUES (?, ?, ?, ?)",
		userID, ev.Query, encodeVector(ev.Embedding), sqlValue(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting search: %w", err)
	}
	return nil
}

// AddComment 记录评论（只用于热度计数）
func (s *SQLiteStore) AddComment(ctx context.Context, articleID string, userID int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO comments (article_id, user_id) VALUES (?, ?)", articleID, userID)
	if err != nil {
		return fmt.Errorf("inserting comment: %w", err)
	}
	return nil
}

// Follow 记录关注关系
func (s *SQLiteStore) Follow(ctx context.Context, followerID, followedID int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO follows (follower_id, followed_id) VALUES (?, ?)", followerID, followedID)
	if err != nil {
		return fmt.Errorf("inserting follow: %w", err)
	}
	return nil
}

// AddUser 写入或覆盖用户
func (s *SQLiteStore) AddUser(ctx context.Context, userID int64, username string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO users (id, username) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET username = excluded.username",
		userID, username)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetInteractions 实现 core.InteractionReader
func (s *SQLiteStore) GetInteractions(ctx context.Context, userID int64) (*core.Interactions, error) {
	out := &core.Interactions{}

	likes, err := s.simpleEvents(ctx, "likes", userID)
	if err != nil {
		return nil, err
	}
	for _, e := range likes {
		out.Likes = append(out.Likes, core.LikeEvent{ArticleID: e.articleID, CreatedAt: e.createdAt})
	}
	saves, err := s.simpleEvents(ctx, "saves", userID)
	if err != nil {
		return nil, err
	}
	for _, e := range saves {
		out.Saves = append(out.Saves, core.SaveEvent{ArticleID: e.articleID, CreatedAt: e.createdAt})
	}

	if out.Reads, err = s.reads(ctx, userID); err != nil {
		return nil, err
	}
	if out.Searches, err = s.searches(ctx, userID); err != nil {
		return nil, err
	}
	return out, nil
}

type simpleEvent struct {
	articleID string
	createdAt any
}

// simpleEvents 读取点赞/收藏；table 只会是内部常量
func (s *SQLiteStore) simpleEvents(ctx context.Context, table string, userID int64) ([]simpleEvent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT article_id, created_at FROM "+table+" WHERE user_id = ? ORDER BY rowid", userID)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []simpleEvent
	for rows.Next() {
		var e simpleEvent
		if err := rows.Scan(&e.articleID, &e.createdAt); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) reads(ctx context.Context, userID int64) ([]core.ReadEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id, read_count, initial_duration, latest_duration,
			initial_read_percentage, latest_read_percentage, last_read_at
		FROM reads WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying reads: %w", err)
	}
	defer rows.Close()

	var out []core.ReadEvent
	for rows.Next() {
		var ev core.ReadEvent
		if err := rows.Scan(&ev.ArticleID, &ev.ReadCount, &ev.InitialDurationS, &ev.LatestDurationS,
			&ev.InitialReadPct, &ev.LatestReadPct, &ev.LastReadAt); err != nil {
			return nil, fmt.Errorf("scanning read: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) searches(ctx context.Context, userID int64) ([]core.SearchEvent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT query, embedding, created_at FROM searches WHERE user_id = ? ORDER BY rowid", userID)
	if err != nil {
		return nil, fmt.Errorf("querying searches: %w", err)
	}
	defer rows.Close()

	var out []core.SearchEvent
	for rows.Next() {
		var (
			ev  core.SearchEvent
			emb []byte
		)
		if err := rows.Scan(&ev.Query, &emb, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning search: %w", err)
		}
		ev.Embedding = decodeVector(emb)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReadArticleIDs 实现 core.InteractionReader
func (s *SQLiteStore) ReadArticleIDs(ctx context.Context, userID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT article_id FROM reads WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("querying read ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning read id: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// ArticleEngagement 实现 core.EngagementReader
func (s *SQLiteStore) ArticleEngagement(ctx context.Context, articleID string) (core.Engagement, error) {
	var e core.Engagement
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM likes WHERE article_id = ?),
			(SELECT COUNT(*) FROM comments WHERE article_id = ?)`,
		articleID, articleID).Scan(&e.Likes, &e.Comments)
	if err != nil {
		return core.Engagement{}, fmt.Errorf("counting engagement of %s: %w", articleID, err)
	}
	return e, nil
}

// IsFollowing 实现 core.SocialGraph
func (s *SQLiteStore) IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followed_id = ?",
		followerID, followedID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying follow: %w", err)
	}
	return n > 0, nil
}

// ListUserIDs 实现 core.UserLister：注册用户与有交互用户的并集，升序
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM users
		UNION SELECT user_id FROM likes
		UNION SELECT user_id FROM saves
		UNION SELECT user_id FROM reads
		UNION SELECT user_id FROM searches
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("querying user ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SearchUsers 实现 core.UserDirectory：用户名大小写不敏感的子串匹配
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, limit int) ([]core.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []core.UserSummary{}, nil
	}
	if limit <= 0 {
		limit = core.DefaultUserSearchLimit
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(query))
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username FROM users WHERE LOWER(username) LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`,
		"%"+escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	defer rows.Close()

	out := []core.UserSummary{}
	for rows.Next() {
		var u core.UserSummary
		if err := rows.Scan(&u.UserID, &u.Username); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetProfile 实现 core.ProfileStore
func (s *SQLiteStore) GetProfile(ctx context.Context, userID int64) (*core.UserProfileEmbedding, error) {
	var (
		emb     []byte
		updated string
	)
	err := s.db.QueryRowContext(ctx, "SELECT embedding, last_updated FROM user_profiles WHERE user_id = ?", userID).
		Scan(&emb, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile of %d: %w", userID, err)
	}
	p := &core.UserProfileEmbedding{UserID: userID, Embedding: decodeVector(emb)}
	if len(p.Embedding) == 0 {
		return nil, core.ErrNoProfile
	}
	p.LastUpdated, _ = conv.ParseTime(updated)
	return p, nil
}

// PutProfile 实现 core.ProfileStore（按 user_id upsert，后写者生效）
func (s *SQLiteStore) PutProfile(ctx context.Context, p *core.UserProfileEmbedding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, embedding, last_updated) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET embedding = excluded.embedding, last_updated = excluded.last_updated`,
		p.UserID, encodeVector(p.Embedding), p.LastUpdated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storing profile of %d: %w", p.UserID, err)
	}
	return nil
}

// Seed 把种子数据写入数据库
func (s *SQLiteStore) Seed(ctx context.Context, fx *Fixtures) error {
	for _, a := range fx.Articles {
		createdAt, _ := conv.ParseTime(a.CreatedAt)
		if err := s.AddArticle(ctx, &core.Article{
			ArticleEmbedding: core.ArticleEmbedding{ArticleID: a.ID, TitleEmbedding: a.TitleEmbedding, TextEmbedding: a.TextEmbedding},
			AuthorID:         a.AuthorID,
			Title:            a.Title,
			Category:         a.Category,
			CreatedAt:        createdAt,
		}); err != nil {
			return err
		}
	}
	for _, u := range fx.Users {
		if err := s.AddUser(ctx, u.ID, u.Username); err != nil {
			return err
		}
	}
	for _, f := range fx.Follows {
		if err := s.Follow(ctx, f.Follower, f.Followed); err != nil {
			return err
		}
	}
	for _, c := range fx.Comments {
		if err := s.AddComment(ctx, c.ArticleID, 0); err != nil {
			return err
		}
	}
	for _, l := range fx.Likes {
		if err := s.AddLike(ctx, l.UserID, core.LikeEvent{ArticleID: l.ArticleID, CreatedAt: l.CreatedAt}); err != nil {
			return err
		}
	}
	for _, sv := range fx.Saves {
		if err := s.AddSave(ctx, sv.UserID, core.SaveEvent{ArticleID: sv.ArticleID, CreatedAt: sv.CreatedAt}); err != nil {
			return err
		}
	}
	for _, r := range fx.Reads {
		if err := s.AddRead(ctx, r.UserID, core.ReadEvent{
			ArticleID:        r.ArticleID,
			ReadCount:        r.ReadCount,
			InitialDurationS: r.InitialDurationS,
			LatestDurationS:  r.LatestDurationS,
			InitialReadPct:   r.InitialReadPct,
			LatestReadPct:    r.LatestReadPct,
			LastReadAt:       r.LastReadAt,
		}); err != nil {
			return err
		}
	}
	for _, se := range fx.Searches {
		if err := s.RecordSearch(ctx, se.UserID, core.SearchEvent{Query: se.Query, Embedding: se.Embedding, CreatedAt: se.CreatedAt}); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ core.CorpusReader      = (*SQLiteStore)(nil)
	_ core.InteractionReader = (*SQLiteStore)(nil)
	_ core.ProfileStore      = (*SQLiteStore)(nil)
	_ core.EngagementReader  = (*SQLiteStore)(nil)
	_ core.SocialGraph       = (*SQLiteStore)(nil)
	_ core.UserLister        = (*SQLiteStore)(nil)
	_ core.UserDirectory     = (*SQLiteStore)(nil)
	_ core.SearchRecorder    = (*SQLiteStore)(nil)
	_ core.ArticleWriter     = (*SQLiteStore)(nil)
)
