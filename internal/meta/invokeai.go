package meta

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	ToolInvokeAI     = "InvokeAI"
	invokeAIKeyword  = "invokeai_metadata"
	invokeAIGraphKey = "invokeai_graph"
)

// InvokeAI 3.x+ 在 PNG 里写 invokeai_metadata（扁平 JSON）。
type InvokeAI struct{}

func (InvokeAI) Name() string { return "invokeai" }

func (InvokeAI) Match(md *Metadata) bool {
	return strings.TrimSpace(md.Get(invokeAIKeyword)) != ""
}

func (InvokeAI) Parse(md *Metadata) (Result, error) {
	text := md.Get(invokeAIKeyword)
	if !isJSONObject(text) {
		return Result{Tool: ToolInvokeAI, Raw: text}, errors.New("invokeai_metadata 不是合法 JSON")
	}
	obj := gjson.Parse(text)

	positive := strings.TrimSpace(obj.Get("positive_prompt").String())
	negative := strings.TrimSpace(obj.Get("negative_prompt").String())

	var entries []Entry
	model := firstScalar(obj, "model.model_name", "model.name", "model_name")
	if model != "" {
		entries = append(entries, Entry{"Model", model})
	}
	if v := firstScalar(obj, "steps"); v != "" {
		entries = append(entries, Entry{"Steps", v})
	}
	if v := firstScalar(obj, "scheduler", "sampler"); v != "" {
		entries = append(entries, Entry{"Sampler", v})
	}
	if v := firstScalar(obj, "cfg_scale"); v != "" {
		entries = append(entries, Entry{"CFG scale", v})
	}
	if v := firstScalar(obj, "seed"); v != "" {
		entries = append(entries, Entry{"Seed", v})
	}
	w, h := positiveInt(obj, "width"), positiveInt(obj, "height")
	switch {
	case w > 0 && h > 0:
		entries = append(entries, Entry{"Size", strconv.Itoa(w) + "x" + strconv.Itoa(h)})
	case md.Size() != "":
		entries = append(entries, Entry{"Size", md.Size()})
	}

	// SDXL 工作流会额外写 style prompt。
	var posSDXL, negSDXL map[string]string
	if s := strings.TrimSpace(obj.Get("positive_style_prompt").String()); s != "" {
		posSDXL = map[string]string{"Clip G": s, "Clip L": positive}
	}
	if s := strings.TrimSpace(obj.Get("negative_style_prompt").String()); s != "" {
		negSDXL = map[string]string{"Clip G": s, "Clip L": negative}
	}

	raw := []string{text}
	if g := md.Get(invokeAIGraphKey); strings.TrimSpace(g) != "" {
		raw = append(raw, g)
	}
	return Result{
		Tool:         ToolInvokeAI,
		Positive:     positive,
		Negative:     negative,
		PositiveSDXL: posSDXL,
		NegativeSDXL: negSDXL,
		Entries:      entries,
		Detail:       objectDetail(obj, "positive_prompt", "negative_prompt"),
		Raw:          strings.Join(raw, "\n"),
	}, nil
}
