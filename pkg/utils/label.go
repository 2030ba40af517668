package utils

// Label 是排序链路中的解释信息：记录候选从哪来、被谁调过分。
// 例如 recall_source=similar、follow_boost=true、time_window=fallback。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / filter / rerank / search ...
}

// MergeLabel 合并同名 Label，保留历史：
//   - Value 以 '|' 累积
//   - Source 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	case existing.Source == incoming.Source:
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}

// LabelValues 把标签压平成 key -> value，便于序列化到 API 响应或 CEL 输入。
func LabelValues(labels map[string]Label) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v.Value
	}
	return out
}
