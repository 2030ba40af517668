// Package dsl 是候选过滤表达式的解释器，基于 CEL (Common Expression Language)。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/utils"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译好的表达式，可并发复用。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：item.similarity > 0.5 / item.popularity >= 10
//   - 元信息：item.meta.category != "politics"
//   - 标签：label.recall_source == "similar"
//   - 存在性："category" in item.meta
//   - 逻辑：item.author_id != rctx.user_id && item.similarity > 0.3
//
// item.created_at 是 Unix 秒，发布时间未知时为 0。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；表达式必须返回布尔值。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (p *Program) String() string { return p.expr }

// Match 对单个候选求值。
// 访问不存在的 key 时 CEL 会报错，需要先用 in 判断存在性。
func (p *Program) Match(item *core.ScoredArticle, rctx *core.RecommendContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: expression must return bool, got %T", p.expr, out.Value())
	}
	return result, nil
}

// Eval 编译并执行一次表达式，空表达式视为 true。需要反复执行时用 Compile。
func Eval(expr string, item *core.ScoredArticle, rctx *core.RecommendContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Match(item, rctx)
}

func buildInput(item *core.ScoredArticle, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any, len(item.Labels))
	labelValues := make(map[string]any, len(item.Labels))
	for k, v := range item.Labels {
		labels[k] = map[string]any{"value": v.Value, "source": v.Source}
		labelValues[k] = v.Value
	}

	var createdAt int64
	if !item.CreatedAt.IsZero() {
		createdAt = item.CreatedAt.Unix()
	}
	meta := item.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	in := map[string]any{
		"item": map[string]any{
			"id":              item.ArticleID,
			"similarity":      item.Similarity,
			"composite_score": item.CompositeScore,
			"author_id":       item.AuthorID,
			"created_at":      createdAt,
			"popularity":      int64(item.Popularity),
			"meta":            meta,
			"labels":          labels,
		},
		"label": labelValues,
	}

	r := map[string]any{
		"user_id": int64(0),
		"params":  map[string]any{},
		"labels":  map[string]any{},
	}
	if rctx != nil {
		r["user_id"] = rctx.UserID
		if rctx.Params != nil {
			r["params"] = rctx.Params
		}
		r["labels"] = toAnyMap(utils.LabelValues(rctx.Labels))
	}
	in["rctx"] = r
	return in
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
