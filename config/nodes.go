package config

import (
	"fmt"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/filter"
	"github.com/rushteam/persona/pipeline"
	"github.com/rushteam/persona/pkg/conv"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/rerank"
)

// 配置驱动的后置节点（ranking.post_nodes / search.post_nodes）：
//
//	post_nodes:
//	  - type: filter
//	    config:
//	      filters:
//	        - {type: blacklist, ids: [a1], key: persona:blacklist}
//	        - {type: user_block}
//	        - {type: expr, expr: "item.popularity > 3"}
//	  - type: rerank.diversity
//	    config: {key: author, max_per_key: 2}
//	  - type: rerank.topn
//	    config: {n: 20}
var postNodeTypes = []string{"filter", "rerank.diversity", "rerank.topn"}

// NodeDeps 是节点构建时需要的外部依赖
type NodeDeps struct {
	// KV 存放黑名单、用户拉黑列表；为 nil 时相关过滤器只用静态配置
	KV core.KVStore
}

// SupportedNodeTypes 返回可配置的节点类型
func SupportedNodeTypes() []string {
	return append([]string(nil), postNodeTypes...)
}

func knownNodeType(t string) bool {
	for _, k := range postNodeTypes {
		if k == t {
			return true
		}
	}
	return false
}

func nodeTypes(cfgs []pipeline.NodeConfig) []string {
	out := make([]string, 0, len(cfgs))
	for _, nc := range cfgs {
		out = append(out, nc.Type)
	}
	return out
}

// NewNodeFactory 返回注册了全部内置节点的工厂
func NewNodeFactory(deps NodeDeps) *pipeline.NodeFactory {
	var lists filter.ListStore
	if deps.KV != nil {
		lists = filter.NewStoreAdapter(deps.KV)
	}

	f := pipeline.NewNodeFactory()
	f.Register("filter", func(cfg map[string]any) (pipeline.Node, error) {
		return buildFilterNode(cfg, lists)
	})
	f.Register("rerank.diversity", buildDiversityNode)
	f.Register("rerank.topn", buildTopNNode)
	return f
}

// BuildPostNodes 构建一组后置节点
func BuildPostNodes(deps NodeDeps, cfgs []pipeline.NodeConfig) ([]pipeline.Node, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	return NewNodeFactory(deps).BuildNodes(cfgs)
}

func buildDiversityNode(cfg map[string]any) (pipeline.Node, error) {
	return &rerank.Diversity{
		Key:       stringOr(cfg, "key", "category"),
		MaxPerKey: intOr(cfg, "max_per_key", 1),
	}, nil
}

func buildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	n := intOr(cfg, "n", 0)
	if n <= 0 {
		return nil, fmt.Errorf("rerank.topn requires a positive n")
	}
	return &rerank.TopNNode{N: n}, nil
}

func buildFilterNode(cfg map[string]any, lists filter.ListStore) (pipeline.Node, error) {
	raw, ok := cfg["filters"].([]any)
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}

	filters := make([]filter.Filter, 0, len(raw))
	for _, fc := range raw {
		fm, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		switch t := stringOr(fm, "type", ""); t {
		case "blacklist":
			filters = append(filters, filter.NewBlacklistFilter(stringSlice(fm["ids"]), lists, stringOr(fm, "key", "")))
		case "user_block":
			filters = append(filters, filter.NewUserBlockFilter(lists, stringOr(fm, "key_prefix", "")))
		case "expr":
			f, err := filter.NewExprFilter(stringOr(fm, "expr", ""))
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		case "min_similarity":
			filters = append(filters, filter.MinSimilarity{Threshold: conv.FloatOr(fm["threshold"], 0)})
		case "read":
			filters = append(filters, filter.ReadFilter{})
		default:
			return nil, fmt.Errorf("unknown filter type: %q", t)
		}
	}
	failClosed, _ := cfg["fail_closed"].(bool)
	return &filter.FilterNode{Filters: filters, FailClosed: failClosed, Logger: logging.Component("filter")}, nil
}

func stringOr(m map[string]any, key, def string) string {
	if s, ok := conv.ToString(m[key]); ok && s != "" {
		return s
	}
	return def
}

func intOr(m map[string]any, key string, def int) int {
	return conv.IntOr(m[key], def)
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	return conv.ConvertSlice(raw, func(e any) (string, bool) {
		if s, ok := e.(string); ok {
			return s, true
		}
		return "", false
	})
}
