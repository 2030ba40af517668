package core

// InteractionKind 标记用户交互的类型。
type InteractionKind string

const (
	KindLike   InteractionKind = "like"
	KindSave   InteractionKind = "save"
	KindRead   InteractionKind = "read"
	KindSearch InteractionKind = "search"
)

// 交互记录由外部 CRUD 层追加写入，引擎只读不改。
//
// 时间戳与阅读指标保留存储层读到的原始值（字符串、time.Time、数字、{"$date": ...} 等），
// 由 weight 包统一做容错解析：解析失败时按“过期”处理，而不是让整次聚合失败。

// LikeEvent 点赞
type LikeEvent struct {
	ArticleID string
	CreatedAt any
}

// SaveEvent 收藏
type SaveEvent struct {
	ArticleID string
	CreatedAt any
}

// ReadEvent 阅读。数值字段缺失或非数值时：ReadCount 视为 1，其余视为 0。
type ReadEvent struct {
	ArticleID        string
	ReadCount        any
	InitialDurationS any // 首次阅读时长（秒）
	LatestDurationS  any // 最近一次阅读时长（秒）
	InitialReadPct   any // 首次阅读进度（0-100）
	LatestReadPct    any // 最近一次阅读进度（0-100）
	LastReadAt       any
}

// SearchEvent 搜索。Embedding 是查询文本的向量，直接作为画像的一个贡献项。
type SearchEvent struct {
	Query     string
	Embedding []float32
	CreatedAt any
}

// Interactions 是一个用户全部交互记录的集合。
type Interactions struct {
	Likes    []LikeEvent
	Saves    []SaveEvent
	Reads    []ReadEvent
	Searches []SearchEvent
}

// Empty 判断四类交互是否都为空
func (i *Interactions) Empty() bool {
	if i == nil {
		return true
	}
	return len(i.Likes) == 0 && len(i.Saves) == 0 && len(i.Reads) == 0 && len(i.Searches) == 0
}

// Count 返回交互记录总数
func (i *Interactions) Count() int {
	if i == nil {
		return 0
	}
	return len(i.Likes) + len(i.Saves) + len(i.Reads) + len(i.Searches)
}
