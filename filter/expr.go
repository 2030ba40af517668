package filter

import (
	"context"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/dsl"
)

// ExprFilter 用 CEL 表达式筛选候选：表达式为 true 的候选保留，false 的过滤掉。
//
//	f, _ := filter.NewExprFilter(`item.meta.category != "politics"`)
type ExprFilter struct {
	prg *dsl.Program
}

// NewExprFilter 编译表达式
func NewExprFilter(expr string) (*ExprFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, core.ErrInvalidInput(core.ModuleRank, "filter expression: "+err.Error())
	}
	return &ExprFilter{prg: prg}, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.ScoredArticle) (bool, error) {
	keep, err := f.prg.Match(item, rctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
