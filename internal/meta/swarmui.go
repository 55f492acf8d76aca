package meta

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const ToolSwarmUI = "StableSwarmUI"

// SwarmUI 的参数是 JSON：{"sui_image_params": {...}}，PNG 写在 parameters，JPEG/WEBP 写在 UserComment。
type SwarmUI struct{}

func (SwarmUI) Name() string { return "swarmui" }

func (SwarmUI) Match(md *Metadata) bool {
	return strings.Contains(swarmText(md), "sui_image_params")
}

func (SwarmUI) Parse(md *Metadata) (Result, error) {
	text := swarmText(md)
	if !isJSONObject(text) {
		return Result{Tool: ToolSwarmUI, Raw: text}, errors.New("sui_image_params 不是合法 JSON")
	}
	params := gjson.Get(text, "sui_image_params")
	if !params.IsObject() {
		return Result{Tool: ToolSwarmUI, Raw: text}, errors.New("sui_image_params 不是对象")
	}

	positive := strings.TrimSpace(params.Get("prompt").String())
	negative := strings.TrimSpace(params.Get("negativeprompt").String())
	detail := objectDetail(params, "prompt", "negativeprompt")

	entries := swarmEntries(params)
	setting := joinEntries(entries)
	if setting == "" {
		setting = strings.TrimSpace(strings.ReplaceAll(strings.Trim(compactJSON(detail), "{}"), `"`, ""))
	}

	raw := make([]string, 0, 3)
	for _, s := range []string{positive, negative, params.Raw} {
		if strings.TrimSpace(s) != "" {
			raw = append(raw, s)
		}
	}
	return Result{
		Tool:     ToolSwarmUI,
		Positive: positive,
		Negative: negative,
		Setting:  setting,
		Entries:  entries,
		Detail:   detail,
		Raw:      strings.Join(raw, "\n"),
	}, nil
}

func swarmText(md *Metadata) string {
	if s := md.Get(parametersKeyword); strings.Contains(s, "sui_image_params") {
		return s
	}
	return md.UserComment
}

func swarmEntries(params gjson.Result) []Entry {
	var out []Entry
	if v := firstScalar(params, "model", "model_name", "checkpoint", "ckpt_name", "modelname"); v != "" {
		out = append(out, Entry{"Model", v})
	}
	if v := firstScalar(params, "steps", "stepcount"); v != "" {
		out = append(out, Entry{"Steps", v})
	}
	if v := firstScalar(params, "sampler", "sampler_name", "samplername"); v != "" {
		out = append(out, Entry{"Sampler", v})
	}
	if v := firstScalar(params, "cfgscale", "cfg", "cfg_scale"); v != "" {
		out = append(out, Entry{"CFG scale", v})
	}
	if v := firstScalar(params, "seed", "noise_seed"); v != "" {
		out = append(out, Entry{"Seed", v})
	}
	w := positiveInt(params, "width", "W")
	h := positiveInt(params, "height", "H")
	if w > 0 && h > 0 {
		out = append(out, Entry{"Size", strconv.Itoa(w) + "x" + strconv.Itoa(h)})
	}
	return out
}

func positiveInt(obj gjson.Result, keys ...string) int {
	for _, k := range keys {
		if v := int(obj.Get(k).Int()); v > 0 {
			return v
		}
	}
	return 0
}
