package meta

import (
	"fmt"
	"strings"
)

// Dialect 把“某个生成工具的元数据写法”限制在一个实现内部；Reader 只依赖这个接口。
//
// 约束：
// - Match 只做廉价判断（看 key / 前缀），不做完整解析
// - Parse 必须是纯函数：相同 Metadata => 相同 Result
// - Parse 失败时仍应返回带 Tool / Raw 的 Result，便于输出 FORMAT_ERROR 快照
type Dialect interface {
	Name() string
	Match(md *Metadata) bool
	Parse(md *Metadata) (Result, error)
}

// Registry 是 dialect 的只读注册表：既按 name 索引，也保留注册顺序（检测按顺序，先命中者胜）。
type Registry struct {
	order  []Dialect
	byName map[string]Dialect
}

func NewRegistry(dialects ...Dialect) (Registry, error) {
	byName := make(map[string]Dialect, len(dialects))
	order := make([]Dialect, 0, len(dialects))
	for _, d := range dialects {
		if d == nil {
			return Registry{}, fmt.Errorf("dialect 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(d.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("dialect.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 dialect：%q", name)
		}
		byName[name] = d
		order = append(order, d)
	}
	return Registry{order: order, byName: byName}, nil
}

// DefaultRegistry 返回内置 dialect，顺序即检测优先级：
// NovelAI legacy 必须在 Fooocus 之前（两者的 Comment 都是 JSON）；
// ComfyUI 必须在 A1111 之前（ComfyUI 兼容模式同时写 prompt 与 parameters）；
// stealth 需要解码像素，放在最后。
func DefaultRegistry() Registry {
	r, err := NewRegistry(
		SwarmUI{},
		NovelAILegacy{},
		Fooocus{},
		InvokeAI{},
		ComfyUI{},
		DrawThings{},
		A1111{},
		NovelAIStealth{},
	)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Registry) Get(name string) (Dialect, bool) {
	if r.byName == nil {
		return nil, false
	}
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Detect 返回第一个 Match 的 dialect。
func (r Registry) Detect(md *Metadata) (Dialect, bool) {
	for _, d := range r.order {
		if d.Match(md) {
			return d, true
		}
	}
	return nil, false
}

// Names 按检测顺序返回已注册的 dialect 名。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, strings.ToLower(d.Name()))
	}
	return out
}
