package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rushteam/persona/metrics"
	"github.com/rushteam/persona/pkg/logging"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// requestID 透传或生成请求 ID，写入 ctx 与响应头
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = logging.NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// instrument 记录请求耗时；route 取 chi 路由模板，避免查询参数撑爆标签基数
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		l := logging.Ctx(r.Context(), s.logger)
		l.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}
