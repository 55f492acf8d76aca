package meta

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

const ToolFooocus = "Fooocus"

// Fooocus 把参数以 JSON 写在 PNG Comment 或 EXIF UserComment。
// 并非所有 JSON 注释都是 Fooocus：必须有 negative_prompt，且有 prompt / styles / performance 之一。
type Fooocus struct{}

func (Fooocus) Name() string { return "fooocus" }

func (Fooocus) Match(md *Metadata) bool {
	return fooocusText(md) != ""
}

func (Fooocus) Parse(md *Metadata) (Result, error) {
	text := fooocusText(md)
	if text == "" {
		return Result{Tool: ToolFooocus}, errors.New("未找到 Fooocus JSON")
	}
	obj := gjson.Parse(text)

	var entries []Entry
	if v := firstScalar(obj, "base_model", "base_model_name"); v != "" {
		entries = append(entries, Entry{"Model", v})
	}
	if v := firstScalar(obj, "steps"); v != "" {
		entries = append(entries, Entry{"Steps", v})
	}
	if v := firstScalar(obj, "sampler", "sampler_name"); v != "" {
		entries = append(entries, Entry{"Sampler", v})
	}
	if v := firstScalar(obj, "guidance_scale", "cfg"); v != "" {
		entries = append(entries, Entry{"CFG scale", v})
	}
	if v := firstScalar(obj, "seed"); v != "" {
		entries = append(entries, Entry{"Seed", v})
	}
	if s := md.Size(); s != "" {
		entries = append(entries, Entry{"Size", s})
	}

	return Result{
		Tool:     ToolFooocus,
		Positive: strings.TrimSpace(obj.Get("prompt").String()),
		Negative: strings.TrimSpace(obj.Get("negative_prompt").String()),
		Entries:  entries,
		Detail:   objectDetail(obj, "prompt", "negative_prompt"),
		Raw:      strings.TrimSpace(text),
	}, nil
}

func fooocusText(md *Metadata) string {
	for _, s := range []string{md.Comment, md.UserComment} {
		if looksLikeFooocus(s) {
			return s
		}
	}
	return ""
}

func looksLikeFooocus(s string) bool {
	if !isJSONObject(s) {
		return false
	}
	obj := gjson.Parse(s)
	if !obj.Get("negative_prompt").Exists() {
		return false
	}
	return obj.Get("prompt").Exists() || obj.Get("styles").Exists() || obj.Get("performance").Exists()
}
