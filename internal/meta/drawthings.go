package meta

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

const ToolDrawThings = "Draw Things"

// DrawThings 把参数以 JSON 写进 XMP 的 exif:UserComment：c 为正向、uc 为负向。
type DrawThings struct{}

func (DrawThings) Name() string { return "drawthings" }

func (DrawThings) Match(md *Metadata) bool {
	return isJSONObject(md.XMPComment) && gjson.Get(md.XMPComment, "c").Exists()
}

func (DrawThings) Parse(md *Metadata) (Result, error) {
	text := md.XMPComment
	if !isJSONObject(text) {
		return Result{Tool: ToolDrawThings, Raw: text}, errors.New("XMP UserComment 不是合法 JSON")
	}
	obj := gjson.Parse(text)

	var entries []Entry
	if v := firstScalar(obj, "model"); v != "" {
		entries = append(entries, Entry{"Model", v})
	}
	if v := firstScalar(obj, "steps"); v != "" {
		entries = append(entries, Entry{"Steps", v})
	}
	if v := firstScalar(obj, "sampler"); v != "" {
		entries = append(entries, Entry{"Sampler", v})
	}
	if v := firstScalar(obj, "scale"); v != "" {
		entries = append(entries, Entry{"CFG scale", v})
	}
	if v := firstScalar(obj, "seed"); v != "" {
		entries = append(entries, Entry{"Seed", v})
	}
	if v := firstScalar(obj, "size"); v != "" {
		entries = append(entries, Entry{"Size", v})
	} else if s := md.Size(); s != "" {
		entries = append(entries, Entry{"Size", s})
	}

	return Result{
		Tool:     ToolDrawThings,
		Positive: strings.TrimSpace(obj.Get("c").String()),
		Negative: strings.TrimSpace(obj.Get("uc").String()),
		Entries:  entries,
		Detail:   objectDetail(obj, "c", "uc"),
		Raw:      strings.TrimSpace(text),
	}, nil
}
