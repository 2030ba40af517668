package store

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/conv"
)

// 文档库里同一字段有 camelCase / snake_case 两种写法，ID 可能是 ObjectID、{"$oid": ...} 或字符串。
// 这里把它们统一成 core 的强类型记录，算法组件不感知别名。

var (
	articleIDKeys      = []string{"articleId", "article_id"}
	titleEmbeddingKeys = []string{"title_embedding", "titleEmbedding"}
	textEmbeddingKeys  = []string{"text_embedding", "textEmbedding"}
	authorIDKeys       = []string{"authorId", "author_id", "userId", "user_id"}
	createdAtKeys      = []string{"createdAt", "created_at"}
)

// normalizeValue 把 BSON 专有类型转换成 conv 能处理的普通值
func normalizeValue(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return nil
		}
		return f
	case bson.M:
		return normalizeMap(map[string]any(x))
	case map[string]any:
		return normalizeMap(x)
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		return normalizeSlice([]any(x))
	case []any:
		return normalizeSlice(x)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = normalizeValue(v)
	}
	return out
}

// pick 返回第一个存在且非 nil 的字段值（已归一化）
func pick(doc map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := doc[k]; ok && v != nil {
			return normalizeValue(v)
		}
	}
	return nil
}

// idString 把各种形态的 ID 统一成字符串
func idString(v any) string {
	switch x := normalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any:
		if oid, ok := x["$oid"].(string); ok {
			return oid
		}
		return ""
	default:
		if n, ok := conv.ToInt64(x); ok {
			return strconv.FormatInt(n, 10)
		}
		return ""
	}
}

// vectorField 读取向量字段，元素不是数值时视为缺失
func vectorField(doc map[string]any, keys ...string) []float32 {
	v, ok := conv.ToFloat32Slice(pick(doc, keys...))
	if !ok {
		return nil
	}
	return v
}

// articleFromDoc 归一化文章文档；ID 优先取 articleId，否则取 _id
func articleFromDoc(doc map[string]any) *core.Article {
	id := idString(pick(doc, articleIDKeys...))
	if id == "" {
		id = idString(doc["_id"])
	}
	a := &core.Article{
		ArticleEmbedding: core.ArticleEmbedding{
			ArticleID:      id,
			TitleEmbedding: vectorField(doc, titleEmbeddingKeys...),
			TextEmbedding:  vectorField(doc, textEmbeddingKeys...),
		},
	}
	a.AuthorID, _ = conv.ToInt64(pick(doc, authorIDKeys...))
	a.Title, _ = conv.ToString(pick(doc, "title"))
	a.Category, _ = conv.ToString(pick(doc, "category"))
	a.CreatedAt, _ = conv.ParseTime(pick(doc, createdAtKeys...))
	return a
}

func likeFromDoc(doc map[string]any) core.LikeEvent {
	return core.LikeEvent{
		ArticleID: idString(pick(doc, articleIDKeys...)),
		CreatedAt: pick(doc, createdAtKeys...),
	}
}

func saveFromDoc(doc map[string]any) core.SaveEvent {
	return core.SaveEvent{
		ArticleID: idString(pick(doc, articleIDKeys...)),
		CreatedAt: pick(doc, createdAtKeys...),
	}
}

func readFromDoc(doc map[string]any) core.ReadEvent {
	return core.ReadEvent{
		ArticleID:        idString(pick(doc, articleIDKeys...)),
		ReadCount:        pick(doc, "readCount", "read_count"),
		InitialDurationS: pick(doc, "initialDuration", "initial_duration"),
		LatestDurationS:  pick(doc, "latestDuration", "latest_duration"),
		InitialReadPct:   pick(doc, "initialReadPercentage", "initial_read_percentage"),
		LatestReadPct:    pick(doc, "latestReadPercentage", "latest_read_percentage"),
		LastReadAt:       pick(doc, "lastReadAt", "last_read_at"),
	}
}

func searchFromDoc(doc map[string]any) core.SearchEvent {
	q, _ := conv.ToString(pick(doc, "query"))
	return core.SearchEvent{
		Query:     q,
		Embedding: vectorField(doc, "embedding"),
		CreatedAt: pick(doc, createdAtKeys...),
	}
}

// idCandidates 返回查询某个 ID 字段时应匹配的所有形态（字符串 + ObjectID）
func idCandidates(id string) []any {
	out := []any{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		out = append(out, oid)
	}
	return out
}
