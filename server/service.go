package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
)

// HTTPServer 与 *http.Server 的生命周期方法一致，便于测试替换
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Service 把 HTTP 服务包装成 suture.Service：ctx 取消时在 shutdownTimeout 内优雅关闭。
type Service struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewService 创建服务；shutdownTimeout<=0 时为 10s
func NewService(server HTTPServer, shutdownTimeout time.Duration) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Service{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve 实现 suture.Service
func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Service) String() string { return "http-server" }

var _ suture.Service = (*Service)(nil)
