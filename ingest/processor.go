// Package ingest 是文章入库：正文转纯文本，生成标题/正文向量，归一化后写回文章。
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pkg/logging"
	"github.com/rushteam/persona/pkg/vecmath"
)

// RawArticle 是待入库的文章：Text 可以是 Quill Delta JSON、HTML 或纯文本
type RawArticle struct {
	ID    string `json:"id" validate:"required"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// BatchResult 批量入库结果
type BatchResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    []string `json:"failed,omitempty"`
}

// shortEmbedder 由支持强制短超时的客户端实现（service.EmbeddingClient）
type shortEmbedder interface {
	EmbedShort(ctx context.Context, text string) ([]float32, error)
}

// Processor 生成并写入文章向量。
// 单篇文章向量化失败只跳过该篇，不影响批次里的其他文章。
type Processor struct {
	embedder    core.EmbeddingService
	writer      core.ArticleWriter
	concurrency int
	logger      zerolog.Logger
}

// Option Processor 配置选项
type Option func(*Processor)

// WithConcurrency 设置批量入库的并发数
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		p.concurrency = n
	}
}

// WithLogger 设置 logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// NewProcessor 创建入库处理器
func NewProcessor(embedder core.EmbeddingService, writer core.ArticleWriter, opts ...Option) *Processor {
	p := &Processor{
		embedder:    embedder,
		writer:      writer,
		concurrency: 4,
		logger:      logging.Component("ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency <= 0 {
		p.concurrency = 1
	}
	return p
}

// Process 处理单篇文章
func (p *Processor) Process(ctx context.Context, a RawArticle) error {
	if strings.TrimSpace(a.ID) == "" {
		return core.ErrInvalidInput(core.ModuleService, "ingest: article id is required")
	}
	text := PlainText(a.Text)
	title := strings.TrimSpace(a.Title)
	if title == "" && text == "" {
		return core.ErrInvalidInput(core.ModuleService, "ingest: article "+a.ID+" has no title or text")
	}

	// 缺标题或缺正文时只调用一次，另一半复用同一向量，不向服务发送空字符串
	var titleVec, textVec []float32
	var err error
	if title != "" {
		if titleVec, err = p.embedShort(ctx, title); err != nil {
			return fmt.Errorf("embed title of %s: %w", a.ID, err)
		}
	}
	if text != "" {
		if textVec, err = p.embedder.EmbedLong(ctx, text); err != nil {
			return fmt.Errorf("embed text of %s: %w", a.ID, err)
		}
	}
	switch {
	case title == "":
		titleVec = textVec
	case text == "":
		textVec = titleVec
	}
	if len(titleVec) == 0 || len(titleVec) != len(textVec) {
		return fmt.Errorf("%w: article %s title/text dimensions %d/%d", core.ErrEmbeddingUnavailable, a.ID, len(titleVec), len(textVec))
	}

	emb := &core.ArticleEmbedding{
		ArticleID:      a.ID,
		TitleEmbedding: vecmath.Normalize(titleVec),
		TextEmbedding:  vecmath.Normalize(textVec),
	}
	if err := p.writer.PutArticleEmbedding(ctx, emb); err != nil {
		return fmt.Errorf("store embedding of %s: %w", a.ID, err)
	}
	return nil
}

func (p *Processor) embedShort(ctx context.Context, text string) ([]float32, error) {
	if s, ok := p.embedder.(shortEmbedder); ok {
		return s.EmbedShort(ctx, text)
	}
	return p.embedder.Embed(ctx, text)
}

// ProcessBatch 并发处理一批文章，失败的文章计入 Skipped
func (p *Processor) ProcessBatch(ctx context.Context, articles []RawArticle) (*BatchResult, error) {
	res := &BatchResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, a := range articles {
		a := a
		g.Go(func() error {
			err := p.Process(gctx, a)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Skipped++
				res.Failed = append(res.Failed, a.ID)
				metrics.IngestTotal.WithLabelValues("skipped").Inc()
				p.logger.Warn().Err(err).Str("article_id", a.ID).Msg("article skipped")
				return nil
			}
			res.Processed++
			metrics.IngestTotal.WithLabelValues("processed").Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	p.logger.Info().Int("processed", res.Processed).Int("skipped", res.Skipped).Msg("article batch processed")
	return res, nil
}
