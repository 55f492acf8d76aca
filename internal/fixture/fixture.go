package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/John-Robertt/sdfixture/internal/domain"
	"github.com/John-Robertt/sdfixture/internal/scan"
)

// Parser 是元数据解析器的窄接口：读取整个 r，sidecar=true 表示 .txt 文本模式。
// 返回 error 表示“这个文件无法产出快照”，会被记录为 FailureEntry。
type Parser interface {
	Parse(r io.Reader, sidecar bool) (domain.ImageData, error)
}

// FailurePrefix 是失败消息的固定前缀。
const FailurePrefix = "EXCEPTION: "

// Extract 以 path 作为 source 抽取单个文件。
func Extract(p Parser, path string) domain.ExtractResult {
	return ExtractAs(p, path, path)
}

// ExtractAs 打开 path 交给解析器，并把结果映射为 Fixture（source 字段写 source）。
//
// 约束：
// - 永不返回 error，也不让 panic 逃逸：任何失败都落成 FailureEntry
// - 文件句柄在所有路径上都会关闭（包括解析器 panic）
func ExtractAs(p Parser, path, source string) (res domain.ExtractResult) {
	fail := func(msg string) domain.ExtractResult {
		return domain.ExtractResult{Failure: &domain.FailureEntry{Source: source, Message: FailurePrefix + msg}}
	}

	f, err := os.Open(path)
	if err != nil {
		return fail(err.Error())
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			res = fail(fmt.Sprintf("panic: %v", r))
		}
	}()

	data, err := p.Parse(f, scan.IsSidecar(path))
	if err != nil {
		return fail(err.Error())
	}
	fx := FromImageData(data, source)
	return domain.ExtractResult{Fixture: &fx}
}

// FromImageData 把解析结果一一映射到 Fixture：字符串缺省为 ""，map 缺省为 {}，
// 宽高做尽力而为的整数转换（失败为 null，不报错）。
func FromImageData(d domain.ImageData, source string) domain.Fixture {
	return domain.Fixture{
		Source:       source,
		Status:       d.Status,
		Tool:         d.Tool,
		Format:       d.Format,
		Width:        toInt(d.Width),
		Height:       toInt(d.Height),
		IsSDXL:       d.IsSDXL,
		Positive:     d.Positive,
		Negative:     d.Negative,
		PositiveSDXL: orEmpty(d.PositiveSDXL),
		NegativeSDXL: orEmpty(d.NegativeSDXL),
		Setting:      d.Setting,
		Parameter:    orEmpty(d.Parameter),
		Raw:          d.Raw,
		Props:        d.Props,
	}
}

func toInt(s string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// FileName 由 source 的 basename 得到输出文件名：空格替换为下划线，加固定后缀。
// 不同目录下的同名文件会得到相同的名字（后写覆盖先写）。
func FileName(source string) string {
	return strings.ReplaceAll(filepath.Base(source), " ", "_") + domain.FixtureSuffix
}

// Encode 序列化 Fixture：key 有序，非 ASCII 原样输出；pretty 时 2 空格缩进，否则无多余空白。
func Encode(f domain.Fixture, pretty bool) ([]byte, error) {
	return encodeJSON(f, pretty)
}

// EncodeFailures 序列化失败列表（[[path, message], ...]，2 空格缩进）。
func EncodeFailures(failures []domain.FailureEntry) ([]byte, error) {
	if failures == nil {
		failures = []domain.FailureEntry{}
	}
	return encodeJSON(failures, true)
}

func encodeJSON(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
