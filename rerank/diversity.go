package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pipeline"
)

// Diversity 是多样性 ReRank：同一个 key 最多保留 MaxPerKey 篇，按当前顺序保留靠前的。
//
// key 来源：
//   - Key == "author"：AuthorID（0 视为无 key）
//   - 其它：label[Key].Value，再退到 meta[Key] (string)，默认 "category"
//
// 没有 key 的候选总是保留。
type Diversity struct {
	Key       string
	MaxPerKey int // 默认 1
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.ScoredArticle,
) ([]*core.ScoredArticle, error) {
	if len(items) == 0 {
		return items, nil
	}

	key := n.Key
	if key == "" {
		key = "category"
	}
	limit := n.MaxPerKey
	if limit <= 0 {
		limit = 1
	}

	seen := make(map[string]int, 32)
	out := make([]*core.ScoredArticle, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		k := diversityKey(it, key)
		if k == "" {
			out = append(out, it)
			continue
		}
		if seen[k] >= limit {
			continue
		}
		seen[k]++
		out = append(out, it)
	}
	return out, nil
}

func diversityKey(it *core.ScoredArticle, key string) string {
	if key == "author" {
		if it.AuthorID <= 0 {
			return ""
		}
		return strconv.FormatInt(it.AuthorID, 10)
	}
	if it.Labels != nil {
		if lbl, ok := it.Labels[key]; ok && lbl.Value != "" {
			return lbl.Value
		}
	}
	if it.Meta != nil {
		if s, ok := it.Meta[key].(string); ok {
			return s
		}
	}
	return ""
}
