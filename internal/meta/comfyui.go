package meta

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/John-Robertt/sdfixture/internal/domain"
)

const (
	ToolComfyUI     = "ComfyUI"
	promptKeyword   = "prompt"
	workflowKeyword = "workflow"
	// 沿 model 链向上查找 ckpt_name 的最大深度
	maxModelChainDepth = 30
	// 沿文本链接向上查找提示词的最大深度（防环）
	maxTextDepth = 30
)

var (
	comfyKSampler = map[string]bool{"KSampler": true, "KSamplerAdvanced": true, "KSampler (Efficient)": true}
	comfySave     = map[string]bool{"SaveImage": true, "Image Save": true, "SDPromptSaver": true}
	comfyCLIP     = map[string]bool{"CLIPTextEncode": true, "CLIPTextEncodeSDXL": true, "CLIPTextEncodeSDXLRefiner": true}

	checkpointFileRe = regexp.MustCompile(`(?i)^.*\.(safetensors|ckpt|pt)$`)
)

// ComfyUI 解析 PNG 里的 prompt（API 格式节点图）与可选的 workflow。
//
// 从每个终点节点（SaveImage / KSampler 系列）向上游遍历，取访问节点最多的那次遍历；
// KSampler 的 positive / negative 链接指向 CLIPTextEncode 系列节点，其余标量输入收集为采样参数。
// 节点按 prompt JSON 的文档顺序处理，保证同一输入总是选中同一个终点。
type ComfyUI struct{}

func (ComfyUI) Name() string { return "comfyui" }

func (ComfyUI) Match(md *Metadata) bool {
	return strings.TrimSpace(md.Get(promptKeyword)) != ""
}

func (ComfyUI) Parse(md *Metadata) (Result, error) {
	promptText := strings.TrimSpace(md.Get(promptKeyword))
	workflow := strings.TrimSpace(md.Get(workflowKeyword))

	fail := func(err error) (Result, error) {
		raw := promptText
		if workflow != "" {
			raw += "\n" + workflow
		}
		return Result{Tool: ToolComfyUI, Status: domain.StatusComfyUIError, Raw: raw}, err
	}
	if !isJSONObject(promptText) {
		return fail(errors.New("prompt 不是合法 JSON 对象"))
	}

	g := newComfyGraph(gjson.Parse(promptText))
	var best *comfyTraversal
	for _, id := range g.order {
		class := g.class(id)
		if !comfySave[class] && !comfyKSampler[class] {
			continue
		}
		t := newComfyTraversal(g)
		t.visit(id)
		if best == nil || len(t.visited) > len(best.visited) {
			best = t
		}
	}
	if best == nil {
		return fail(errors.New("未找到 SaveImage / KSampler 节点"))
	}

	model := g.modelName(best, workflow)
	entries := best.entries(model, md.Size())

	raw := make([]string, 0, 4)
	for _, s := range []string{best.positive, best.negative, promptText, workflow} {
		if strings.TrimSpace(s) != "" {
			raw = append(raw, strings.TrimSpace(s))
		}
	}
	return Result{
		Tool:         ToolComfyUI,
		Positive:     strings.TrimSpace(best.positive),
		Negative:     strings.TrimSpace(best.negative),
		IsSDXL:       len(best.posSDXL) > 0 || len(best.negSDXL) > 0,
		PositiveSDXL: best.posSDXL,
		NegativeSDXL: best.negSDXL,
		Entries:      entries,
		Detail:       best.detail(entries),
		Raw:          strings.Join(raw, "\n"),
	}, nil
}

// comfyGraph 是 prompt JSON 的只读索引（保留文档顺序）。
type comfyGraph struct {
	order []string
	nodes map[string]gjson.Result
}

func newComfyGraph(root gjson.Result) *comfyGraph {
	g := &comfyGraph{nodes: make(map[string]gjson.Result)}
	root.ForEach(func(k, v gjson.Result) bool {
		if v.IsObject() {
			id := k.String()
			g.order = append(g.order, id)
			g.nodes[id] = v
		}
		return true
	})
	return g
}

func (g *comfyGraph) class(id string) string {
	return g.nodes[id].Get("class_type").String()
}

func (g *comfyGraph) inputs(id string) gjson.Result {
	return g.nodes[id].Get("inputs")
}

// modelName：遍历里的 ckpt_name > 遍历里的 checkpoint 类节点 > 遍历里的任意节点 > 全图 > workflow 里像模型文件名的字符串。
func (g *comfyGraph) modelName(t *comfyTraversal, workflow string) string {
	if v, ok := t.flowValue("ckpt_name"); ok {
		if s := normalizeValue(scalar(v)); s != "" {
			return s
		}
	}
	for _, id := range t.visited {
		if strings.Contains(strings.ToLower(g.class(id)), "checkpoint") {
			if s := g.nodeModel(id); s != "" {
				return s
			}
		}
	}
	for _, id := range t.visited {
		if s := g.nodeModel(id); s != "" {
			return s
		}
	}
	for _, id := range g.order {
		if s := g.nodeModel(id); s != "" {
			return s
		}
	}
	if workflow == "" || !gjson.Valid(workflow) {
		return ""
	}
	return normalizeValue(findCheckpointLike(gjson.Parse(workflow)))
}

func (g *comfyGraph) nodeModel(id string) string {
	in := g.inputs(id)
	for _, k := range []string{"ckpt_name", "checkpoint_name", "checkpoint", "model_name"} {
		if s := normalizeValue(scalar(in.Get(k))); s != "" {
			return s
		}
	}
	return ""
}

// ckptInModelChain 沿 model / checkpoint / base_model 链接向上找 ckpt_name（LoRA 等中间节点会被跳过）。
func (g *comfyGraph) ckptInModelChain(id string, depth int) string {
	if depth > maxModelChainDepth {
		return ""
	}
	if _, ok := g.nodes[id]; !ok {
		return ""
	}
	in := g.inputs(id)
	if s := in.Get("ckpt_name"); s.Type == gjson.String && strings.TrimSpace(s.Str) != "" {
		return s.Str
	}
	for _, k := range []string{"model", "checkpoint", "base_model"} {
		if next, ok := firstLink(in.Get(k)); ok {
			return g.ckptInModelChain(next, depth+1)
		}
	}
	return ""
}

func findCheckpointLike(v gjson.Result) string {
	switch {
	case v.IsObject() || v.IsArray():
		found := ""
		v.ForEach(func(_, child gjson.Result) bool {
			found = findCheckpointLike(child)
			return found == ""
		})
		return found
	case v.Type == gjson.String:
		if checkpointFileRe.MatchString(strings.TrimSpace(v.Str)) {
			return v.Str
		}
	}
	return ""
}

type flowItem struct {
	key   string
	value gjson.Result
}

// comfyTraversal 是一次从终点节点出发的上游遍历状态。
type comfyTraversal struct {
	g       *comfyGraph
	visited []string
	seen    map[string]bool

	flow    []flowItem
	flowIdx map[string]int

	positive string
	negative string
	posSDXL  map[string]string
	negSDXL  map[string]string
}

func newComfyTraversal(g *comfyGraph) *comfyTraversal {
	return &comfyTraversal{g: g, seen: make(map[string]bool), flowIdx: make(map[string]int)}
}

// setFlow 覆盖值但保留首次出现的位置。
func (t *comfyTraversal) setFlow(key string, v gjson.Result) {
	if i, ok := t.flowIdx[key]; ok {
		t.flow[i].value = v
		return
	}
	t.flowIdx[key] = len(t.flow)
	t.flow = append(t.flow, flowItem{key: key, value: v})
}

func (t *comfyTraversal) flowValue(key string) (gjson.Result, bool) {
	i, ok := t.flowIdx[key]
	if !ok {
		return gjson.Result{}, false
	}
	return t.flow[i].value, true
}

func (t *comfyTraversal) visit(id string) {
	if t.seen[id] {
		return
	}
	t.seen[id] = true
	t.visited = append(t.visited, id)

	if _, ok := t.g.nodes[id]; !ok {
		return
	}
	class := t.g.class(id)
	in := t.g.inputs(id)

	if c := in.Get("ckpt_name"); c.Type == gjson.String && strings.TrimSpace(c.Str) != "" {
		t.setFlow("ckpt_name", c)
	}

	switch {
	case comfySave[class]:
		if up, ok := firstLink(in.Get("images")); ok {
			t.visit(up)
		}

	case comfyKSampler[class]:
		in.ForEach(func(k, v gjson.Result) bool {
			key := k.String()
			up, isLink := firstLink(v)
			switch key {
			case "positive":
				if isLink {
					if text, sdxl := t.text(up, 0); text != "" {
						t.positive = text
						if len(sdxl) > 0 {
							t.posSDXL = sdxl
						}
					}
				}
			case "negative":
				if isLink {
					if text, sdxl := t.text(up, 0); text != "" {
						t.negative = text
						if len(sdxl) > 0 {
							t.negSDXL = sdxl
						}
					}
				}
			default:
				if isLink {
					t.visit(up)
				} else {
					t.setFlow(key, v)
				}
			}
			return true
		})
		if up, ok := firstLink(in.Get("model")); ok {
			if ckpt := t.g.ckptInModelChain(up, 0); ckpt != "" {
				t.setFlow("ckpt_name", gjson.Result{Type: gjson.String, Str: ckpt})
			}
		}

	case comfyCLIP[class]:
		for _, k := range []string{"text", "text_g", "text_l"} {
			if v := in.Get(k); v.Exists() {
				if up, ok := firstLink(v); ok {
					t.text(up, 0)
				}
				break
			}
		}

	default:
		in.ForEach(func(_, v gjson.Result) bool {
			if up, ok := firstLink(v); ok {
				t.visit(up)
				return false
			}
			return true
		})
	}
}

// text 解析提示词节点；SDXL 编码节点会同时返回分 clip 的文本。
func (t *comfyTraversal) text(id string, depth int) (string, map[string]string) {
	if depth > maxTextDepth {
		return "", nil
	}
	t.visit(id)
	if _, ok := t.g.nodes[id]; !ok {
		return "", nil
	}
	in := t.g.inputs(id)

	switch t.g.class(id) {
	case "CLIPTextEncode":
		return t.stringOrLink(in.Get("text"), depth), nil
	case "CLIPTextEncodeSDXL":
		g := t.stringOrLink(in.Get("text_g"), depth)
		l := t.stringOrLink(in.Get("text_l"), depth)
		return mergeClip(g, l), map[string]string{"Clip G": g, "Clip L": l}
	case "CLIPTextEncodeSDXLRefiner":
		r := t.stringOrLink(in.Get("text"), depth)
		return r, map[string]string{"Refiner": r}
	}

	// 自定义节点常把字符串经链接送进 CLIPTextEncode：先看常见的字符串输入，再顺着第一个链接走。
	for _, k := range []string{"text", "positive", "prompt", "string"} {
		if v := in.Get(k); v.Type == gjson.String {
			return v.Str, nil
		}
	}
	result, sdxl := "", map[string]string(nil)
	in.ForEach(func(_, v gjson.Result) bool {
		if up, ok := firstLink(v); ok {
			result, sdxl = t.text(up, depth+1)
			return false
		}
		return true
	})
	return result, sdxl
}

func (t *comfyTraversal) stringOrLink(v gjson.Result, depth int) string {
	if v.Type == gjson.String {
		return v.Str
	}
	if up, ok := firstLink(v); ok {
		s, _ := t.text(up, depth+1)
		return s
	}
	return ""
}

func (t *comfyTraversal) entries(model, size string) []Entry {
	var out []Entry
	if model != "" {
		out = append(out, Entry{"Model", model})
	}
	if s := t.flowString("steps"); s != "" {
		out = append(out, Entry{"Steps", s})
	}
	if s := t.flowString("sampler_name"); s != "" {
		out = append(out, Entry{"Sampler", s})
	}
	if s := t.flowString("cfg"); s != "" {
		out = append(out, Entry{"CFG scale", s})
	}
	seed := t.flowString("seed")
	if seed == "" {
		seed = t.flowString("noise_seed")
	}
	if seed != "" {
		out = append(out, Entry{"Seed", seed})
	}
	if size != "" {
		out = append(out, Entry{"Size", size})
	}
	return out
}

func (t *comfyTraversal) flowString(key string) string {
	v, ok := t.flowValue(key)
	if !ok {
		return ""
	}
	return normalizeValue(scalar(v))
}

var comfyFlowSkip = map[string]bool{
	"steps": true, "sampler_name": true, "cfg": true, "seed": true, "noise_seed": true,
	"ckpt_name": true, "positive": true, "negative": true,
}

func (t *comfyTraversal) detail(entries []Entry) map[string]any {
	out := make(map[string]any, len(entries)+1)
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	flow := make(map[string]json.RawMessage)
	for _, it := range t.flow {
		if comfyFlowSkip[it.key] || !it.value.Exists() || it.value.Type == gjson.Null {
			continue
		}
		raw := it.value.Raw
		if raw == "" {
			// 由代码合成的值没有 Raw
			b, _ := json.Marshal(it.value.Value())
			raw = string(b)
		}
		flow[it.key] = json.RawMessage(raw)
	}
	if len(flow) > 0 {
		out["flow"] = flow
	}
	return out
}

// firstLink 识别 ComfyUI 链接 ["<nodeId>", <outputIndex>]。
func firstLink(v gjson.Result) (string, bool) {
	if !v.IsArray() {
		return "", false
	}
	first := v.Get("0")
	if !first.Exists() {
		return "", false
	}
	id := scalar(first)
	return id, id != ""
}

func mergeClip(g, l string) string {
	switch {
	case g == l, l == "":
		return g
	case g == "":
		return l
	default:
		return "Clip G: " + g + "\nClip L: " + l
	}
}

// normalizeValue 去掉首尾空白与引号；"null" 视为空。
func normalizeValue(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "null" {
		return ""
	}
	return s
}
