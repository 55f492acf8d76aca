package compare

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/John-Robertt/sdfixture/internal/domain"
)

// 差异类型。
const (
	KindMissing  = "missing"  // expected 有、actual 没有
	KindExtra    = "extra"    // actual 有、expected 没有
	KindInvalid  = "invalid"  // 不是合法 JSON，或不满足 fixture schema
	KindMismatch = "mismatch" // 字段值不同（JSON 语义比较）
)

const (
	SideExpected = "expected"
	SideActual   = "actual"
)

//go:embed fixture.schema.json
var schemaJSON []byte

var loadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("fixture.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("加载 fixture schema 失败：%w", err)
	}
	s, err := c.Compile("fixture.schema.json")
	if err != nil {
		return nil, fmt.Errorf("编译 fixture schema 失败：%w", err)
	}
	return s, nil
})

// Difference 是一条差异。Field 为空表示整文件级别（missing/extra/invalid JSON）。
type Difference struct {
	File     string `json:"file"`
	Kind     string `json:"kind"`
	Field    string `json:"field"`
	Side     string `json:"side,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Report 是一次目录比较的结果。
type Report struct {
	Expected    string       `json:"expected"`
	Actual      string       `json:"actual"`
	Compared    int          `json:"compared"`
	Differences []Difference `json:"differences"`
}

// Equal 表示两个目录的 fixture 完全一致（忽略 source）。
func (r Report) Equal() bool { return len(r.Differences) == 0 }

type doc struct {
	fields map[string]json.RawMessage
	values map[string]any
}

// Dirs 比较两个目录下的 *.fixture.json（只看顶层，不递归）。
//
// 约束：
// - source 字段不参与比较（两边的输入路径通常不同）
// - 任一侧不满足 schema 的文件只报告 invalid，不再逐字段比较
// - 差异按 file、field、kind 排序，输出稳定
// - 目录不存在/无法读取属于致命错误
func Dirs(expected, actual string) (Report, error) {
	schema, err := loadSchema()
	if err != nil {
		return Report{}, err
	}

	expNames, err := listFixtures(expected)
	if err != nil {
		return Report{}, err
	}
	actNames, err := listFixtures(actual)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Expected: expected, Actual: actual, Differences: []Difference{}}
	for _, name := range unionSorted(expNames, actNames) {
		_, inExp := expNames[name]
		_, inAct := actNames[name]
		switch {
		case !inAct:
			rep.Differences = append(rep.Differences, Difference{File: name, Kind: KindMissing})
			continue
		case !inExp:
			rep.Differences = append(rep.Differences, Difference{File: name, Kind: KindExtra})
			continue
		}

		e, eDiffs, err := load(schema, filepath.Join(expected, name), name, SideExpected)
		if err != nil {
			return Report{}, err
		}
		a, aDiffs, err := load(schema, filepath.Join(actual, name), name, SideActual)
		if err != nil {
			return Report{}, err
		}
		rep.Differences = append(rep.Differences, eDiffs...)
		rep.Differences = append(rep.Differences, aDiffs...)
		if e == nil || a == nil {
			continue
		}
		rep.Compared++
		rep.Differences = append(rep.Differences, diffFields(name, e, a)...)
	}

	sort.SliceStable(rep.Differences, func(i, j int) bool {
		x, y := rep.Differences[i], rep.Differences[j]
		if x.File != y.File {
			return x.File < y.File
		}
		if x.Field != y.Field {
			return x.Field < y.Field
		}
		return x.Kind < y.Kind
	})
	return rep, nil
}

func listFixtures(dir string) (map[string]struct{}, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取目录失败：%q：%w", dir, err)
	}
	out := make(map[string]struct{}, len(ents))
	for _, e := range ents {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), domain.FixtureSuffix) {
			continue
		}
		out[e.Name()] = struct{}{}
	}
	return out, nil
}

func unionSorted(a, b map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]struct{}{a, b} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// load 读取并校验一个 fixture。返回 nil doc 表示该文件 invalid（差异已放在第二个返回值里）。
func load(schema *jsonschema.Schema, path, name, side string) (*doc, []Difference, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("读取 fixture 失败：%q：%w", path, err)
	}
	invalid := func(field, detail string) (*doc, []Difference, error) {
		return nil, []Difference{{File: name, Kind: KindInvalid, Field: field, Side: side, Detail: detail}}, nil
	}

	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return invalid("", err.Error())
	}
	if err := schema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return invalid("", err.Error())
		}
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return invalid(strings.TrimPrefix(leaf.InstanceLocation, "/"), leaf.Message)
	}

	d := &doc{values: v.(map[string]any)}
	if err := json.Unmarshal(b, &d.fields); err != nil {
		return invalid("", err.Error())
	}
	return d, nil, nil
}

func diffFields(name string, e, a *doc) []Difference {
	var out []Difference
	for _, k := range domain.FixtureFields {
		if k == "source" {
			continue
		}
		if reflect.DeepEqual(e.values[k], a.values[k]) {
			continue
		}
		out = append(out, Difference{
			File:     name,
			Kind:     KindMismatch,
			Field:    k,
			Expected: compactRaw(e.fields[k]),
			Actual:   compactRaw(a.fields[k]),
		})
	}
	return out
}

func compactRaw(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
