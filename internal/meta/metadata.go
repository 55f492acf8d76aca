package meta

import (
	"fmt"
	"image"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/John-Robertt/sdfixture/internal/infra/imgx"
)

// 图片格式标签（写入 Fixture.format）。
const (
	FormatPNG  = "PNG"
	FormatJPEG = "JPEG"
	FormatWEBP = "WEBP"
)

// Metadata 是容器层读出的原始元数据；dialect 只读它，不再接触字节流。
type Metadata struct {
	Format string // PNG / JPEG / WEBP；sidecar 为空
	Width  int
	Height int

	// Text 是 PNG 文本块（tEXt/zTXt/iTXt），按 keyword 索引；同名 keyword 以先出现的为准。
	Text map[string]string
	// Keys 记录 Text 的出现顺序（用于 raw 里列出“找到了哪些 key”）。
	Keys []string

	// 以下字段对 PNG 来自同名文本块，对 JPEG/WEBP 来自 EXIF / COM。
	UserComment string
	Software    string
	Description string
	Comment     string

	// XMPComment 是 XMP 包里的 exif:UserComment。
	XMPComment string

	pixels    []byte
	img       image.Image
	imgErr    error
	imgLoaded bool
}

// Get 返回文本块的值（不存在时为空串）。
func (m *Metadata) Get(key string) string {
	if m == nil || m.Text == nil {
		return ""
	}
	return m.Text[key]
}

// Has 只判断 key 是否存在（值可以为空）。
func (m *Metadata) Has(key string) bool {
	if m == nil || m.Text == nil {
		return false
	}
	_, ok := m.Text[key]
	return ok
}

func (m *Metadata) setText(key, value string) {
	if m.Text == nil {
		m.Text = make(map[string]string)
	}
	if _, ok := m.Text[key]; ok {
		return
	}
	m.Text[key] = value
	m.Keys = append(m.Keys, key)
}

// Image 懒解码完整像素（只有 NovelAI stealth 需要）；结果会被缓存。
func (m *Metadata) Image() (image.Image, error) {
	if m.imgLoaded {
		return m.img, m.imgErr
	}
	m.imgLoaded = true
	if len(m.pixels) == 0 {
		m.imgErr = fmt.Errorf("没有可解码的像素数据")
		return nil, m.imgErr
	}
	m.img, m.imgErr = imgx.Decode(m.pixels)
	return m.img, m.imgErr
}

// Size 返回 "WxH"；尺寸未知时为空。
func (m *Metadata) Size() string {
	if m.Width <= 0 || m.Height <= 0 {
		return ""
	}
	return strconv.Itoa(m.Width) + "x" + strconv.Itoa(m.Height)
}

// describeKeys 在没有任何 dialect 命中时，给 raw 一个可追溯的摘要。
func (m *Metadata) describeKeys() string {
	parts := append([]string(nil), m.Keys...)
	extra := map[string]string{
		"UserComment": m.UserComment,
		"Software":    m.Software,
		"Description": m.Description,
		"Comment":     m.Comment,
		"XMP":         m.XMPComment,
	}
	names := make([]string, 0, len(extra))
	for k, v := range extra {
		if strings.TrimSpace(v) != "" && !m.Has(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	parts = append(parts, names...)
	if len(parts) == 0 {
		return "未找到元数据"
	}
	return "未识别的元数据：" + strings.Join(parts, ", ")
}

// isType 沿 MIME 层级向上匹配（APNG 是 image/vnd.mozilla.apng，父类型是 image/png）。
func isType(mt *mimetype.MIME, want string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}

// loadImage 按内容（不是扩展名）识别容器类型，读出元数据与尺寸。
func loadImage(b []byte) (*Metadata, error) {
	mt := mimetype.Detect(b)

	md := &Metadata{pixels: b}
	var err error
	switch {
	case isType(mt, "image/png"):
		md.Format = FormatPNG
		err = readPNG(b, md)
	case isType(mt, "image/jpeg"):
		md.Format = FormatJPEG
		err = readJPEG(b, md)
	case isType(mt, "image/webp"):
		md.Format = FormatWEBP
		err = readWEBP(b, md)
	default:
		return nil, &Error{Stage: StageContainer, Err: fmt.Errorf("不支持的文件类型：%s", mt.String())}
	}
	if err != nil {
		return nil, &Error{Stage: StageContainer, Err: err}
	}

	cfg, err := imgx.DecodeConfig(b)
	if err != nil {
		return nil, &Error{Stage: StageContainer, Err: fmt.Errorf("无法解析图片头部：%w", err)}
	}
	md.Width, md.Height = cfg.Width, cfg.Height
	return md, nil
}
