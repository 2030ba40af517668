package core

import "context"

// 存储协作方接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 存储适配器负责把文档里的字段别名（camelCase/snake_case、$oid）归一化成强类型记录，
//     算法组件只看到这里的类型
//   - 一个后端可以同时实现多个接口（store.SQLiteStore、store.MongoStore、store.MemoryCorpus）

// CorpusReader 是文章语料的读取接口：按 ID 读取 + 全量扫描。
type CorpusReader interface {
	// GetArticle 读取单篇文章，不存在时返回 ErrStoreNotFound
	GetArticle(ctx context.Context, articleID string) (*Article, error)

	// ListArticles 全量扫描文章投影（向量 + 作者 + 发布时间），顺序稳定
	ListArticles(ctx context.Context) ([]*Article, error)
}

// InteractionReader 读取用户交互记录。
type InteractionReader interface {
	// GetInteractions 读取用户全部交互；用户无交互时返回空集合而不是错误
	GetInteractions(ctx context.Context, userID int64) (*Interactions, error)

	// ReadArticleIDs 返回用户读过的文章 ID 集合
	ReadArticleIDs(ctx context.Context, userID int64) (map[string]struct{}, error)
}

// ProfileStore 是用户画像向量的读写接口（按 user_id upsert）。
type ProfileStore interface {
	// GetProfile 读取画像，不存在时返回 ErrNoProfile
	GetProfile(ctx context.Context, userID int64) (*UserProfileEmbedding, error)

	// PutProfile 整体覆盖写入画像
	PutProfile(ctx context.Context, profile *UserProfileEmbedding) error
}

// EngagementReader 读取文章互动计数（点赞 + 评论）。
type EngagementReader interface {
	ArticleEngagement(ctx context.Context, articleID string) (Engagement, error)
}

// SocialGraph 是关注关系查询接口。
type SocialGraph interface {
	IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error)
}

// UserLister 列出需要周期性重算画像的用户。
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// UserDirectory 按用户名模糊搜索用户。
type UserDirectory interface {
	SearchUsers(ctx context.Context, query string, limit int) ([]UserSummary, error)
}

// SearchRecorder 记录用户搜索（查询文本 + 查询向量），供后续画像聚合使用。
type SearchRecorder interface {
	RecordSearch(ctx context.Context, userID int64, ev SearchEvent) error
}

// ArticleWriter 写入文章的标题/正文向量（文章入库/更新时）。
type ArticleWriter interface {
	PutArticleEmbedding(ctx context.Context, emb *ArticleEmbedding) error
}
