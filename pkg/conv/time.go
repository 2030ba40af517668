package conv

import (
	"strings"
	"time"
)

// 无时区的时间按 UTC 解释
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// epochMillisThreshold 以上的数字按毫秒解释，否则按秒
const epochMillisThreshold = 1e11

// ParseTime 把存储层的原始时间值解析为绝对时间。
//
// 支持：
//   - time.Time / *time.Time
//   - ISO-8601 字符串（带 Z、带偏移、无时区、仅日期）
//   - Unix 时间戳（秒或毫秒，整数/浮点/数字字符串）
//   - 扩展 JSON：{"$date": ...}、{"$numberLong": "..."}
//
// 零值时间视为无法解析。
func ParseTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return *v, true
	case string:
		return parseTimeString(v)
	case map[string]any:
		if d, ok := v["$date"]; ok {
			return ParseTime(d)
		}
		if n, ok := v["$numberLong"]; ok {
			return ParseTime(n)
		}
		return time.Time{}, false
	default:
		f, ok := ToFloat64(raw)
		if !ok {
			return time.Time{}, false
		}
		return fromEpoch(f), true
	}
}

// ParseTimeOrDefault 解析失败时返回 fallback。
// 所有读交互时间戳的地方都应走这里，不要各自实现容错。
func ParseTimeOrDefault(raw any, fallback time.Time) time.Time {
	if t, ok := ParseTime(raw); ok {
		return t
	}
	return fallback
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// 小写 z 在部分客户端里出现过
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, ok := ToFloat64(s); ok {
		return fromEpoch(f), true
	}
	return time.Time{}, false
}

func fromEpoch(f float64) time.Time {
	if f > epochMillisThreshold || f < -epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
