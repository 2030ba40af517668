// Package persona 根据用户交互（点赞、收藏、阅读、搜索）维护兴趣向量，并用它做个性化文章排序。
//
// 设计要点：
// - 画像：交互按类型与时效加权，文章向量与搜索向量取加权质心，一个用户一条，整体覆盖
// - Pipeline-first: 推荐与搜索都是 Node 串联（Recall → Filter → ReRank），后置节点可由配置追加
// - Labels-first: 每个候选带上召回来源、综合分构成等 label，便于解释与观测
// - 存储可替换：语料/交互走 memory、sqlite 或 mongo，画像可独立放在 redis 或 badger
//
// 入口：app.New 装配组件，cmd/persona 提供 serve / aggregate / similar / recommend / search / ingest 子命令。
package persona

import (
	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pipeline"
)

// 轻量 facade：便于直接 import "persona" 使用核心抽象。
type (
	Pipeline      = pipeline.Pipeline
	Node          = pipeline.Node
	Kind          = pipeline.Kind
	ScoredArticle = core.ScoredArticle
)

const (
	KindRecall = pipeline.KindRecall
	KindFilter = pipeline.KindFilter
	KindReRank = pipeline.KindReRank
)
