package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/persona/core"
)

// errorBody 错误响应
type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, logger zerolog.Logger, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Debug().Err(err).Msg("failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, logger zerolog.Logger, status int, msg string) {
	respondJSON(w, logger, status, errorBody{Error: msg})
}

// statusFor 把领域错误映射成 HTTP 状态码
func statusFor(err error) int {
	switch {
	case core.IsInvalidInput(err), core.IsEmptyInput(err):
		return http.StatusBadRequest
	case core.IsNoProfile(err), core.IsStoreNotFound(err):
		return http.StatusNotFound
	case core.IsUnavailable(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError 按错误类型返回；5xx 记录日志，内部错误不回显细节
func respondDomainError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		logger.Error().Err(err).Msg("request failed")
		msg = "internal server error"
	case status >= 500:
		logger.Warn().Err(err).Msg("upstream failure")
		msg = "embedding service unavailable"
	default:
		var de *core.DomainError
		if errors.As(err, &de) {
			msg = de.Message
		}
	}
	respondError(w, logger, status, msg)
}

// decodeJSON 读取并校验请求体
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		respondJSON(w, s.logger, http.StatusBadRequest, errorBody{Error: "Invalid input data", Details: err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		respondJSON(w, s.logger, http.StatusBadRequest, errorBody{Error: "Invalid input data", Details: validationDetails(err)})
		return false
	}
	return true
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"request": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out[fe.Field()] = fe.Tag() + "=" + fe.Param()
		} else {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}

// userIDParam 解析 userId 查询参数；required 为 false 时缺省返回 0
func userIDParam(r *http.Request, required bool) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("userId"))
	if raw == "" {
		if required {
			return 0, core.ErrInvalidInput(core.ModuleRank, "userId is required")
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrInvalidInput(core.ModuleRank, "userId must be a positive integer")
	}
	return id, nil
}
