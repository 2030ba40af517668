package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），可穿透 fmt.Errorf("%w") 包装
//
// 使用场景：
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
//   - Profile 错误：NO_PROFILE
//   - Vector 错误：EMPTY_INPUT, INVALID_INPUT
//   - Service 错误：UNAVAILABLE（Embedding 服务不可达/超时）
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "NO_PROFILE"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "vector", "service"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 让 errors.Is 按 Module + Code 比较，消息不同的同类错误视为相等。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Module == t.Module
}

// IsDomainError 检查错误链中是否有 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
	ErrorCodeNoProfile     = "NO_PROFILE"     // 用户没有画像向量
	ErrorCodeEmptyInput    = "EMPTY_INPUT"    // 向量为空或总权重为 0
)

// 模块名称常量
const (
	ModuleStore   = "store"   // 存储模块
	ModuleVector  = "vector"  // 向量模块
	ModuleService = "service" // 服务模块
	ModuleProfile = "profile" // 用户画像模块
	ModuleRank    = "rank"    // 排序模块
	ModuleSearch  = "search"  // 搜索模块
)

var (
	// ErrNoProfile 表示用户还没有聚合出画像向量
	ErrNoProfile = NewDomainError(ModuleProfile, ErrorCodeNoProfile, "profile: user embedding not found")

	// ErrEmptyInput 表示加权质心的输入为空或总权重为 0
	ErrEmptyInput = NewDomainError(ModuleVector, ErrorCodeEmptyInput, "vector: empty input or zero total weight")

	// ErrEmbeddingUnavailable 表示 Embedding 服务调用失败（不可达、超时、非 2xx、空结果）
	ErrEmbeddingUnavailable = NewDomainError(ModuleService, ErrorCodeUnavailable, "service: embedding unavailable")
)

// ErrInvalidInput 创建一个 INVALID_INPUT 错误
func ErrInvalidInput(module, message string) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidInput, message)
}

// 通用错误检查函数

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsNoProfile 检查错误是否为 NO_PROFILE
func IsNoProfile(err error) bool { return hasCode(err, ErrorCodeNoProfile) }

// IsEmptyInput 检查错误是否为 EMPTY_INPUT
func IsEmptyInput(err error) bool { return hasCode(err, ErrorCodeEmptyInput) }
