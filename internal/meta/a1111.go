package meta

import (
	"regexp"
	"strings"
)

const (
	ToolA1111         = "A1111 webUI"
	ToolA1111ComfyUI  = "ComfyUI (A1111 compatible)"
	negativeMarker    = "\nNegative prompt:"
	stepsMarker       = "\nSteps:"
	parametersKeyword = "parameters"
)

// "Key: value" 或 `Key: "带, 逗号的值"`，以逗号分隔
var a1111SettingRe = regexp.MustCompile(`\s*([\w ]+):\s*("(?:\\.|[^\\"])+"|[^,]*)(?:,|$)`)

// A1111 解析 stable-diffusion-webui 的 parameters 文本：
//
//	<positive>
//	Negative prompt: <negative>
//	Steps: 20, Sampler: Euler a, ...
type A1111 struct{}

func (A1111) Name() string { return "a1111" }

func (A1111) Match(md *Metadata) bool {
	return strings.TrimSpace(a1111Text(md)) != ""
}

func (A1111) Parse(md *Metadata) (Result, error) {
	raw := a1111Text(md)
	tool := ToolA1111
	if md.Has("prompt") {
		tool = ToolA1111ComfyUI
	}

	positive, negative, setting := splitA1111(raw)
	entries := parseA1111Settings(setting)
	return Result{
		Tool:     tool,
		Positive: positive,
		Negative: negative,
		Setting:  setting,
		Entries:  entries,
		Raw:      strings.TrimSpace(raw),
	}, nil
}

// a1111Text 依次取 PNG parameters、EXIF UserComment、JPEG COM。
func a1111Text(md *Metadata) string {
	if s := md.Get(parametersKeyword); strings.TrimSpace(s) != "" {
		return s
	}
	if strings.TrimSpace(md.UserComment) != "" {
		return md.UserComment
	}
	return md.Comment
}

func splitA1111(raw string) (positive, negative, setting string) {
	if strings.TrimSpace(raw) == "" {
		return "", "", ""
	}
	stepsIdx := strings.Index(raw, stepsMarker)
	if stepsIdx >= 0 {
		positive = strings.TrimSpace(raw[:stepsIdx])
		setting = strings.TrimSpace(raw[stepsIdx+1:])
	} else {
		positive = strings.TrimSpace(raw)
	}

	if negIdx := strings.Index(raw, negativeMarker); negIdx >= 0 {
		positive = strings.TrimSpace(raw[:negIdx])
		end := len(raw)
		if stepsIdx > negIdx {
			end = stepsIdx
		}
		negative = strings.TrimSpace(raw[negIdx+len(negativeMarker) : end])
	}
	return positive, negative, setting
}

func parseA1111Settings(setting string) []Entry {
	if strings.TrimSpace(setting) == "" {
		return nil
	}
	var out []Entry
	for _, m := range a1111SettingRe.FindAllStringSubmatch(setting, -1) {
		k := strings.TrimSpace(m[1])
		v := strings.TrimSpace(m[2])
		if k == "" || v == "" {
			continue
		}
		out = append(out, Entry{Key: k, Value: v})
	}
	return out
}
