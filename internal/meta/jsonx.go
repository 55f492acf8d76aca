package meta

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// compactJSON 输出紧凑 JSON：map key 有序，不转义 <>&（提示词里很常见）。
func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}

// scalar 把 JSON 标量转成展示用字符串：数字保留原文（6.0 不变成 6），null/对象/数组返回空。
func scalar(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number, gjson.True, gjson.False:
		return strings.TrimSpace(r.Raw)
	default:
		return ""
	}
}

// firstScalar 依次尝试多个 gjson 路径（可以是 "model.model_name"），返回第一个非空标量。
func firstScalar(obj gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := scalar(obj.Get(p)); s != "" && s != "null" {
			return s
		}
	}
	return ""
}

// objectDetail 把 JSON 对象转为 props 用的 map，跳过 drop 中的 key；值保持原始 JSON。
func objectDetail(obj gjson.Result, drop ...string) map[string]any {
	skip := make(map[string]struct{}, len(drop))
	for _, k := range drop {
		skip[k] = struct{}{}
	}
	out := make(map[string]any)
	obj.ForEach(func(k, v gjson.Result) bool {
		if _, ok := skip[k.String()]; ok {
			return true
		}
		out[k.String()] = json.RawMessage(v.Raw)
		return true
	})
	return out
}

// isJSONObject 判断文本是否为合法 JSON 对象。
func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && gjson.Valid(s)
}
