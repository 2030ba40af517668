package core

import (
	"time"

	"github.com/rushteam/persona/pkg/utils"
)

// RecommendContext 承载用户/场景信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID int64

	// Profile 是用户画像向量；召回节点在为空时自行加载
	Profile *UserProfileEmbedding

	// ReadIDs 是用户已读文章集合，供已读过滤使用
	ReadIDs map[string]struct{}

	// Now 是本次请求的参考时间（时间窗口过滤、新鲜度计算）
	Now time.Time

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	Labels map[string]utils.Label

	// Params 请求级上下文参数
	Params map[string]any
}

// NewRecommendContext 创建请求上下文
func NewRecommendContext(userID int64, now time.Time) *RecommendContext {
	return &RecommendContext{
		UserID: userID,
		Now:    now,
		Labels: make(map[string]utils.Label),
		Params: make(map[string]any),
	}
}

// HasRead 判断用户是否读过该文章
func (rctx *RecommendContext) HasRead(articleID string) bool {
	if rctx == nil || rctx.ReadIDs == nil {
		return false
	}
	_, ok := rctx.ReadIDs[articleID]
	return ok
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
