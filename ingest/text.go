package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
)

// PlainText 把文章正文转换成纯文本：
//   - Quill Delta JSON（{"ops": [...]} 或直接是 ops 数组），拼接所有字符串 insert
//   - 否则按 HTML 处理，去标签、反转义实体
//
// 纯文本输入按 HTML 解析后原样返回。
func PlainText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if s[0] == '{' || s[0] == '[' {
		var delta any
		if err := json.Unmarshal([]byte(s), &delta); err == nil {
			return strings.TrimSpace(DeltaToText(delta))
		}
	}
	return StripHTML(s)
}

// DeltaToText 拼接 Quill Delta 中的文本 insert，图片等对象 insert 忽略
func DeltaToText(delta any) string {
	var ops []any
	switch d := delta.(type) {
	case map[string]any:
		ops, _ = d["ops"].([]any)
	case []any:
		ops = d
	}

	var b strings.Builder
	for _, op := range ops {
		m, ok := op.(map[string]any)
		if !ok {
			continue
		}
		if insert, ok := m["insert"].(string); ok {
			b.WriteString(insert)
		}
	}
	return b.String()
}

// StripHTML 去掉 HTML 标签并反转义实体；解析失败时返回原文
func StripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
