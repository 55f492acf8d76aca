package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ImageData 是元数据解析器的结果（只读字段集合）。
//
// 约束：
// - Width/Height 保留解析器给出的原始字符串，是否能转成整数由 Fixture 构建阶段决定
// - map 字段允许为 nil；构建 Fixture 时统一补成空 map
type ImageData struct {
	Status string
	Tool   string
	Format string
	Width  string
	Height string

	IsSDXL       bool
	Positive     string
	Negative     string
	PositiveSDXL map[string]string
	NegativeSDXL map[string]string

	Setting   string
	Parameter map[string]string
	Raw       string
	Props     string
}

const (
	StatusReadSuccess  = "READ_SUCCESS"
	StatusFormatError  = "FORMAT_ERROR"
	StatusComfyUIError = "COMFYUI_ERROR"
)

// Fixture 是单个源文件的解析结果快照（不含原图字节）。
//
// 字段按 JSON key 的字典序声明：encoding/json 按声明顺序输出结构体字段，
// 这样顶层 key 天然有序，嵌套 map 的 key 由 encoding/json 负责排序。
//
// 不变量：
// - 所有字段都会出现在 JSON 中；Width/Height 缺失时为 null
// - map 字段永不为 nil（输出 {} 而不是 null）
type Fixture struct {
	Format       string            `json:"format"`
	Height       *int              `json:"height"`
	IsSDXL       bool              `json:"is_sdxl"`
	Negative     string            `json:"negative"`
	NegativeSDXL map[string]string `json:"negative_sdxl"`
	Parameter    map[string]string `json:"parameter"`
	Positive     string            `json:"positive"`
	PositiveSDXL map[string]string `json:"positive_sdxl"`
	Props        string            `json:"props"`
	Raw          string            `json:"raw"`
	Setting      string            `json:"setting"`
	Source       string            `json:"source"`
	Status       string            `json:"status"`
	Tool         string            `json:"tool"`
	Width        *int              `json:"width"`
}

// FixtureFields 是 Fixture JSON 的全部 key（已排序）。
var FixtureFields = []string{
	"format", "height", "is_sdxl", "negative", "negative_sdxl", "parameter",
	"positive", "positive_sdxl", "props", "raw", "setting", "source",
	"status", "tool", "width",
}

// FailureEntry 记录一次抽取失败：(source, message)。
// JSON 形态固定为二元数组 [path, message]。
type FailureEntry struct {
	Source  string
	Message string
}

func (e FailureEntry) MarshalJSON() ([]byte, error) {
	// 路径与异常消息里的 <>& 原样输出
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([2]string{e.Source, e.Message}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (e *FailureEntry) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("failure entry 需要 2 个元素，实际 %d", len(pair))
	}
	e.Source, e.Message = pair[0], pair[1]
	return nil
}

// ExtractResult 是单文件抽取的结果：要么是 Fixture，要么是 FailureEntry。
// 用结果类型代替 panic/错误冒泡，保证“单文件失败不影响整批”。
type ExtractResult struct {
	Fixture *Fixture
	Failure *FailureEntry
}

func (r ExtractResult) OK() bool { return r.Fixture != nil && r.Failure == nil }
