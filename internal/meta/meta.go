package meta

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/John-Robertt/sdfixture/internal/domain"
)

// Error 的 Stage 取值。
const (
	StageRead      = "read"
	StageContainer = "container"
	StageParse     = "parse"
)

// Error 是解析阶段的可追溯错误：哪个 dialect、在哪一步失败。
// 只有“无法产出快照”的情况（读失败 / 容器无法识别）才会作为 error 返回；
// dialect 解析失败会落成 FORMAT_ERROR / COMFYUI_ERROR 状态而不是 error。
type Error struct {
	Dialect string // dialect name（小写）；容器阶段为空
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	if e.Dialect == "" {
		return fmt.Sprintf("stage=%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("dialect=%s stage=%s: %v", e.Dialect, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Entry 是一条有序的设置项（"Steps" -> "28"）。
type Entry struct {
	Key   string
	Value string
}

// Result 是 dialect 的解析结果；Reader 负责补上格式、尺寸与派生字段。
type Result struct {
	Tool string
	// Status 只在 Parse 返回 error 时使用；为空表示 FORMAT_ERROR。
	Status string

	Positive string
	Negative string

	IsSDXL       bool
	PositiveSDXL map[string]string
	NegativeSDXL map[string]string

	// Setting 为空时由 Entries 拼出 "K: V, K: V"。
	Setting string
	Entries []Entry
	// Detail 序列化为 props；为空时由 Entries 生成。
	Detail map[string]any

	Raw string
}

// 设置项名 -> parameter 字段名
var parameterKeys = map[string]string{
	"Model":     "model",
	"Sampler":   "sampler",
	"Seed":      "seed",
	"CFG scale": "cfg",
	"Steps":     "steps",
	"Size":      "size",
}

func (r Result) setting() string {
	if r.Setting != "" {
		return r.Setting
	}
	return joinEntries(r.Entries)
}

func (r Result) parameters() map[string]string {
	out := make(map[string]string)
	for _, e := range r.Entries {
		k, ok := parameterKeys[e.Key]
		if !ok || strings.TrimSpace(e.Value) == "" {
			continue
		}
		if _, seen := out[k]; !seen {
			out[k] = e.Value
		}
	}
	return out
}

func (r Result) props() string {
	detail := r.Detail
	if len(detail) == 0 {
		if len(r.Entries) == 0 {
			return ""
		}
		detail = make(map[string]any, len(r.Entries))
		for _, e := range r.Entries {
			detail[e.Key] = e.Value
		}
	}
	return compactJSON(detail)
}

func (r Result) entry(key string) string {
	for _, e := range r.Entries {
		if e.Key == key {
			return e.Value
		}
	}
	return ""
}

func joinEntries(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Key+": "+e.Value)
	}
	return strings.Join(parts, ", ")
}

// Reader 实现“从字节流得到 ImageData”：先读容器，再按 Registry 顺序选择 dialect。
type Reader struct {
	registry Registry
	logger   *slog.Logger
}

// NewReader 使用内置 dialect；logger 为 nil 时不输出调试日志。
func NewReader(logger *slog.Logger) *Reader {
	return NewReaderWithRegistry(DefaultRegistry(), logger)
}

func NewReaderWithRegistry(reg Registry, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{registry: reg, logger: logger}
}

// Parse 读取整个 src。sidecar=true 时把内容当作 A1111 参数文本。
func (r *Reader) Parse(src io.Reader, sidecar bool) (domain.ImageData, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return domain.ImageData{}, &Error{Stage: StageRead, Err: err}
	}
	if sidecar {
		return r.parseSidecar(b), nil
	}

	md, err := loadImage(b)
	if err != nil {
		return domain.ImageData{}, err
	}

	d, ok := r.registry.Detect(md)
	if !ok {
		r.logger.Debug("未识别的元数据", "format", md.Format, "keys", md.Keys)
		data := baseData(md)
		data.Status = domain.StatusFormatError
		data.Raw = md.describeKeys()
		return data, nil
	}

	res, err := d.Parse(md)
	if err != nil {
		perr := &Error{Dialect: strings.ToLower(d.Name()), Stage: StageParse, Err: err}
		r.logger.Debug("dialect 解析失败", "err", perr)
		data := baseData(md)
		data.Status = domain.StatusFormatError
		if res.Status != "" {
			data.Status = res.Status
		}
		data.Tool = res.Tool
		data.Raw = res.Raw
		return data, nil
	}
	r.logger.Debug("dialect 命中", "dialect", d.Name(), "tool", res.Tool)
	return fillData(baseData(md), res), nil
}

func (r *Reader) parseSidecar(b []byte) domain.ImageData {
	md := &Metadata{}
	md.setText("parameters", strings.ToValidUTF8(string(b), "�"))
	res, _ := A1111{}.Parse(md)

	data := fillData(baseData(md), res)
	if w, h, ok := splitSize(res.entry("Size")); ok {
		data.Width, data.Height = w, h
	}
	return data
}

func baseData(md *Metadata) domain.ImageData {
	data := domain.ImageData{
		Format:       md.Format,
		PositiveSDXL: map[string]string{},
		NegativeSDXL: map[string]string{},
		Parameter:    map[string]string{},
	}
	if md.Width > 0 && md.Height > 0 {
		data.Width = strconv.Itoa(md.Width)
		data.Height = strconv.Itoa(md.Height)
	}
	return data
}

func fillData(data domain.ImageData, res Result) domain.ImageData {
	data.Status = domain.StatusReadSuccess
	data.Tool = res.Tool
	data.Positive = res.Positive
	data.Negative = res.Negative
	if len(res.PositiveSDXL) > 0 {
		data.PositiveSDXL = res.PositiveSDXL
	}
	if len(res.NegativeSDXL) > 0 {
		data.NegativeSDXL = res.NegativeSDXL
	}
	data.IsSDXL = res.IsSDXL || len(res.PositiveSDXL) > 0 || len(res.NegativeSDXL) > 0
	data.Setting = res.setting()
	data.Parameter = res.parameters()
	data.Raw = res.Raw
	data.Props = res.props()
	return data
}

// splitSize 解析 "512x768"。
func splitSize(s string) (string, string, bool) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return "", "", false
	}
	w, h = strings.TrimSpace(w), strings.TrimSpace(h)
	if _, err := strconv.Atoi(w); err != nil {
		return "", "", false
	}
	if _, err := strconv.Atoi(h); err != nil {
		return "", "", false
	}
	return w, h, true
}
