package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/conv"
)

// 集合名与线上文档库保持一致
const (
	collArticles     = "articles"
	collLikes        = "likes"
	collReads        = "articleReads"
	collSaved        = "saved"
	collSearch       = "search"
	collComments     = "comments"
	collFollows      = "follows"
	collUsers        = "users"
	collUserProfiles = "user_profiles"
)

// MongoOptions 是文档库连接配置
type MongoOptions struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`

	// SearchHistoryLimit 每个用户最多读取的搜索记录数（按时间倒序），默认 50
	SearchHistoryLimit int64 `koanf:"search_history_limit"`
}

// MongoStore 是文档库后端，实现语料、交互、社交、画像等协作方接口。
//
// 文档字段别名在 mongo_normalize.go 中归一化；用户 ID 在不同集合里可能存成数字或字符串，
// 查询时两种形态都匹配。
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	opts   MongoOptions
}

// OpenMongo 连接文档库并 Ping 一次
func OpenMongo(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, core.ErrInvalidInput(core.ModuleStore, "mongo: uri is required")
	}
	if opts.Database == "" {
		opts.Database = "iTech"
	}
	if opts.SearchHistoryLimit <= 0 {
		opts.SearchHistoryLimit = 50
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(opts.Database), opts: opts}, nil
}

func (s *MongoStore) Name() string { return "mongo" }

// Ping 检查连接
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close 断开连接
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func userIDFilter(field string, userID int64) bson.M {
	return bson.M{field: bson.M{"$in": bson.A{userID, strconv.FormatInt(userID, 10)}}}
}

func articleIDFilter(id string) bson.M {
	cands := bson.A{}
	for _, c := range idCandidates(id) {
		cands = append(cands, c)
	}
	return bson.M{"$or": bson.A{
		bson.M{"articleId": bson.M{"$in": cands}},
		bson.M{"_id": bson.M{"$in": cands}},
	}}
}

func (s *MongoStore) findDocs(ctx context.Context, coll string, filter any, opts ...*options.FindOptions) ([]bson.M, error) {
	cur, err := s.db.Collection(coll).Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll, err)
	}
	return docs, nil
}

// GetArticle 实现 core.CorpusReader
func (s *MongoStore) GetArticle(ctx context.Context, articleID string) (*core.Article, error) {
	var doc bson.M
	err := s.db.Collection(collArticles).FindOne(ctx, articleIDFilter(articleID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find article %s: %w", articleID, err)
	}
	return articleFromDoc(doc), nil
}

// ListArticles 实现 core.CorpusReader，按 _id 升序保证顺序稳定
func (s *MongoStore) ListArticles(ctx context.Context) ([]*core.Article, error) {
	docs, err := s.findDocs(ctx, collArticles, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := make([]*core.Article, 0, len(docs))
	for _, d := range docs {
		if a := articleFromDoc(d); a.ArticleID != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

// PutArticleEmbedding 实现 core.ArticleWriter，文章不存在时新建
func (s *MongoStore) PutArticleEmbedding(ctx context.Context, emb *core.ArticleEmbedding) error {
	if emb == nil || emb.ArticleID == "" {
		return core.ErrInvalidInput(core.ModuleStore, "article embedding requires an id")
	}
	_, err := s.db.Collection(collArticles).UpdateOne(ctx,
		bson.M{"articleId": emb.ArticleID},
		bson.M{"$set": bson.M{
			"title_embedding": emb.TitleEmbedding,
			"text_embedding":  emb.TextEmbedding,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update article %s: %w", emb.ArticleID, err)
	}
	return nil
}

// GetInteractions 实现 core.InteractionReader
func (s *MongoStore) GetInteractions(ctx context.Context, userID int64) (*core.Interactions, error) {
	out := &core.Interactions{}

	likes, err := s.findDocs(ctx, collLikes, userIDFilter("userId", userID))
	if err != nil {
		return nil, err
	}
	for _, d := range likes {
		out.Likes = append(out.Likes, likeFromDoc(d))
	}

	saves, err := s.findDocs(ctx, collSaved, userIDFilter("userId", userID))
	if err != nil {
		return nil, err
	}
	for _, d := range saves {
		out.Saves = append(out.Saves, saveFromDoc(d))
	}

	reads, err := s.findDocs(ctx, collReads, userIDFilter("userId", userID))
	if err != nil {
		return nil, err
	}
	for _, d := range reads {
		out.Reads = append(out.Reads, readFromDoc(d))
	}

	searches, err := s.findDocs(ctx, collSearch, userIDFilter("user_id", userID),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(s.opts.SearchHistoryLimit))
	if err != nil {
		return nil, err
	}
	for _, d := range searches {
		out.Searches = append(out.Searches, searchFromDoc(d))
	}
	return out, nil
}

// ReadArticleIDs 实现 core.InteractionReader
func (s *MongoStore) ReadArticleIDs(ctx context.Context, userID int64) (map[string]struct{}, error) {
	docs, err := s.findDocs(ctx, collReads, userIDFilter("userId", userID),
		options.Find().SetProjection(bson.M{"articleId": 1, "article_id": 1}))
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if id := idString(pick(d, articleIDKeys...)); id != "" {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// RecordSearch 实现 core.SearchRecorder
func (s *MongoStore) RecordSearch(ctx context.Context, userID int64, ev core.SearchEvent) error {
	createdAt, ok := conv.ParseTime(ev.CreatedAt)
	if !ok {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Collection(collSearch).InsertOne(ctx, bson.M{
		"query":      ev.Query,
		"embedding":  ev.Embedding,
		"user_id":    strconv.FormatInt(userID, 10),
		"created_at": createdAt,
	})
	if err != nil {
		return fmt.Errorf("insert search: %w", err)
	}
	return nil
}

// ArticleEngagement 实现 core.EngagementReader
func (s *MongoStore) ArticleEngagement(ctx context.Context, articleID string) (core.Engagement, error) {
	cands := bson.A{}
	for _, c := range idCandidates(articleID) {
		cands = append(cands, c)
	}
	filter := bson.M{"articleId": bson.M{"$in": cands}}

	likes, err := s.db.Collection(collLikes).CountDocuments(ctx, filter)
	if err != nil {
		return core.Engagement{}, fmt.Errorf("count likes: %w", err)
	}
	comments, err := s.db.Collection(collComments).CountDocuments(ctx, filter)
	if err != nil {
		return core.Engagement{}, fmt.Errorf("count comments: %w", err)
	}
	return core.Engagement{Likes: int(likes), Comments: int(comments)}, nil
}

// IsFollowing 实现 core.SocialGraph
func (s *MongoStore) IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error) {
	filter := bson.M{
		"followerId": bson.M{"$in": bson.A{followerID, strconv.FormatInt(followerID, 10)}},
		"followedId": bson.M{"$in": bson.A{followedID, strconv.FormatInt(followedID, 10)}},
	}
	n, err := s.db.Collection(collFollows).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count follows: %w", err)
	}
	return n > 0, nil
}

// ListUserIDs 实现 core.UserLister：点赞、阅读、收藏过的用户，升序去重
func (s *MongoStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	for _, coll := range []string{collLikes, collReads, collSaved} {
		vals, err := s.db.Collection(coll).Distinct(ctx, "userId", bson.M{})
		if err != nil {
			return nil, fmt.Errorf("distinct %s.userId: %w", coll, err)
		}
		for _, v := range vals {
			if id, ok := conv.ToInt64(normalizeValue(v)); ok && id > 0 {
				seen[id] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// SearchUsers 实现 core.UserDirectory，用户名大小写不敏感的子串匹配
func (s *MongoStore) SearchUsers(ctx context.Context, query string, limit int) ([]core.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []core.UserSummary{}, nil
	}
	if limit <= 0 {
		limit = core.DefaultUserSearchLimit
	}
	filter := bson.M{"username": bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}}
	docs, err := s.findDocs(ctx, collUsers, filter,
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	out := make([]core.UserSummary, 0, len(docs))
	for _, d := range docs {
		id, _ := conv.ToInt64(pick(d, "id", "userId", "user_id"))
		name, _ := conv.ToString(pick(d, "username"))
		out = append(out, core.UserSummary{UserID: id, Username: name})
	}
	return out, nil
}

// GetProfile 实现 core.ProfileStore
func (s *MongoStore) GetProfile(ctx context.Context, userID int64) (*core.UserProfileEmbedding, error) {
	var doc bson.M
	err := s.db.Collection(collUserProfiles).FindOne(ctx, userIDFilter("userId", userID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("find profile %d: %w", userID, err)
	}
	emb := vectorField(doc, "embedding")
	if len(emb) == 0 {
		return nil, core.ErrNoProfile
	}
	updated, _ := conv.ParseTime(pick(doc, "last_updated", "lastUpdated"))
	return &core.UserProfileEmbedding{UserID: userID, Embedding: emb, LastUpdated: updated}, nil
}

// PutProfile 实现 core.ProfileStore，按 userId upsert
func (s *MongoStore) PutProfile(ctx context.Context, p *core.UserProfileEmbedding) error {
	if p == nil || p.UserID <= 0 {
		return core.ErrInvalidInput(core.ModuleStore, "profile requires a positive user id")
	}
	_, err := s.db.Collection(collUserProfiles).UpdateOne(ctx,
		bson.M{"userId": p.UserID},
		bson.M{"$set": bson.M{"embedding": p.Embedding, "last_updated": p.LastUpdated}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %d: %w", p.UserID, err)
	}
	return nil
}

var (
	_ core.CorpusReader      = (*MongoStore)(nil)
	_ core.InteractionReader = (*MongoStore)(nil)
	_ core.ProfileStore      = (*MongoStore)(nil)
	_ core.EngagementReader  = (*MongoStore)(nil)
	_ core.SocialGraph       = (*MongoStore)(nil)
	_ core.UserLister        = (*MongoStore)(nil)
	_ core.UserDirectory     = (*MongoStore)(nil)
	_ core.SearchRecorder    = (*MongoStore)(nil)
	_ core.ArticleWriter     = (*MongoStore)(nil)
)
