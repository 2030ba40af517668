// Package conv 提供容错的类型转换，用于处理存储层读到的松散类型字段。
package conv

import (
	"math"
	"strconv"
	"strings"
)

// ToFloat64 将 any 转为 float64。
// 支持各类整数/浮点、数字字符串；bool 视为 1.0/0.0。NaN/Inf 视为失败。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case int16:
		f = float64(val)
	case int8:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint64:
		f = float64(val)
	case uint32:
		f = float64(val)
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToInt 将 any 转为 int，浮点向零截断。
// 字符串只接受整数字面量（"3" 可以，"3.5" 不行）。
func ToInt(v any) (int, bool) {
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	f, ok := ToFloat64(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// ToInt64 将 any 转为 int64，规则同 ToInt。
func ToInt64(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	f, ok := ToFloat64(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// FloatOr 转换失败时返回 def
func FloatOr(v any, def float64) float64 {
	if f, ok := ToFloat64(v); ok {
		return f
	}
	return def
}

// IntOr 转换失败时返回 def
func IntOr(v any, def int) int {
	if n, ok := ToInt(v); ok {
		return n
	}
	return def
}

// ToString 将 any 转为 string。
// 仅支持 string 类型，否则返回 ("", false)。
func ToString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ConvertSlice 将 []T 按 convert 转为 []U，convert 返回 false 的元素被跳过。
func ConvertSlice[T, U any](s []T, convert func(T) (U, bool)) []U {
	if s == nil {
		return nil
	}
	out := make([]U, 0, len(s))
	for _, v := range s {
		if u, ok := convert(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// ToFloat32Slice 把 []any / []float64 / []float32 转为 []float32。
// 任一元素不是数值时返回 (nil, false)，避免向量错位。
func ToFloat32Slice(v any) ([]float32, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case []float32:
		return val, true
	case []float64:
		out := make([]float32, len(val))
		for i, f := range val {
			out[i] = float32(f)
		}
		return out, true
	case []any:
		out := ConvertSlice(val, func(e any) (float32, bool) {
			f, ok := ToFloat64(e)
			return float32(f), ok
		})
		if len(out) != len(val) {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}
