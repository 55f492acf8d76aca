package meta

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const ToolNovelAI = "NovelAI"

// NovelAILegacy 解析 NovelAI 的文本块写法：Software=NovelAI，Description 是正向提示词，
// Comment 是 JSON（uc 为负向提示词，其余为采样参数）。
type NovelAILegacy struct{}

func (NovelAILegacy) Name() string { return "novelai" }

func (NovelAILegacy) Match(md *Metadata) bool {
	if md.Software != "NovelAI" || strings.TrimSpace(md.Description) == "" {
		return false
	}
	// PNG 必须带 Comment；EXIF 写法里 Comment 可能缺失（按空对象处理）。
	if md.Format == FormatPNG {
		return strings.TrimSpace(md.Comment) != ""
	}
	return true
}

func (NovelAILegacy) Parse(md *Metadata) (Result, error) {
	comment := md.Comment
	if md.Format != FormatPNG {
		comment = md.UserComment
	}
	if strings.TrimSpace(comment) == "" {
		comment = "{}"
	}
	return parseNovelAI(md.Description, comment, md)
}

// parseNovelAI 是 legacy 与 stealth 的公共部分。
func parseNovelAI(description, comment string, md *Metadata) (Result, error) {
	positive := strings.TrimSpace(description)
	if !isJSONObject(comment) {
		return Result{Tool: ToolNovelAI, Positive: positive, Raw: strings.TrimSpace(positive + "\n" + comment)},
			errors.New("NovelAI Comment 不是合法 JSON")
	}
	obj := gjson.Parse(comment)
	if positive == "" {
		positive = strings.TrimSpace(obj.Get("prompt").String())
	}
	negative := strings.TrimSpace(obj.Get("uc").String())

	var entries []Entry
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
	w, h := positiveInt(obj, "width"), positiveInt(obj, "height")
	switch {
	case w > 0 && h > 0:
		entries = append(entries, Entry{"Size", strconv.Itoa(w) + "x" + strconv.Itoa(h)})
	case md.Size() != "":
		entries = append(entries, Entry{"Size", md.Size()})
	}

	raw := make([]string, 0, 3)
	for _, s := range []string{positive, negative, strings.TrimSpace(comment)} {
		if s != "" {
			raw = append(raw, s)
		}
	}
	return Result{
		Tool:     ToolNovelAI,
		Positive: positive,
		Negative: negative,
		Entries:  entries,
		Detail:   objectDetail(obj, "prompt", "uc"),
		Raw:      strings.Join(raw, "\n"),
	}, nil
}
