package meta

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/John-Robertt/sdfixture/internal/infra/imgx"
)

const (
	stealthMagic     = "stealth_pnginfo"
	stealthMagicComp = "stealth_pngcomp"
	// 载荷上限（字节）；长度字段损坏时避免分配巨量内存。
	stealthMaxPayload = 16 << 20
)

// NovelAIStealth 读取 NovelAI 藏在 alpha 通道最低位里的元数据。
//
// 位流按列优先（x 外层、y 内层）读取，每个像素贡献 alpha&1：
// 15 字节 magic，32 位载荷长度（单位：bit），然后是载荷（stealth_pngcomp 时为 gzip）。
// Match 需要解码像素并校验 magic，是所有 dialect 里最贵的，所以注册在最后。
type NovelAIStealth struct{}

func (NovelAIStealth) Name() string { return "novelai_stealth" }

func (NovelAIStealth) Match(md *Metadata) bool {
	if md.Format != FormatPNG && md.Format != FormatWEBP {
		return false
	}
	img, err := md.Image()
	if err != nil || !imgx.HasAlpha(img) {
		return false
	}
	_, ok := stealthMagicOf(newAlphaBits(img))
	return ok
}

func (NovelAIStealth) Parse(md *Metadata) (Result, error) {
	img, err := md.Image()
	if err != nil {
		return Result{Tool: ToolNovelAI}, err
	}
	payload, err := decodeStealth(img)
	if err != nil {
		return Result{Tool: ToolNovelAI}, err
	}
	text := string(payload)
	if !isJSONObject(text) {
		return Result{Tool: ToolNovelAI, Raw: text}, errors.New("stealth 载荷不是合法 JSON")
	}

	obj := gjson.Parse(text)
	comment := obj.Get("Comment").String()
	res, err := parseNovelAI(obj.Get("Description").String(), comment, md)
	if err != nil {
		res.Raw = text
		return res, err
	}
	res.Raw = strings.TrimSpace(res.Raw + "\n" + text)
	return res, nil
}

// decodeStealth 返回解压后的载荷字节。
func decodeStealth(img image.Image) ([]byte, error) {
	bits := newAlphaBits(img)
	compressed, ok := stealthMagicOf(bits)
	if !ok {
		return nil, errors.New("未找到 stealth magic")
	}

	n, ok := bits.uint32()
	if !ok {
		return nil, errors.New("stealth 长度字段被截断")
	}
	if n == 0 || n%8 != 0 || n/8 > stealthMaxPayload {
		return nil, fmt.Errorf("stealth 长度非法：%d bit", n)
	}
	data, ok := bits.bytes(int(n / 8))
	if !ok {
		return nil, errors.New("stealth 载荷被截断")
	}
	if !compressed {
		return data, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("stealth gzip 头错误：%w", err)
	}
	defer zr.Close()
	return readAllLimited(zr, stealthMaxPayload)
}

func stealthMagicOf(bits *alphaBits) (compressed bool, ok bool) {
	sig, ok := bits.bytes(len(stealthMagic))
	if !ok {
		return false, false
	}
	switch string(sig) {
	case stealthMagic:
		return false, true
	case stealthMagicComp:
		return true, true
	default:
		return false, false
	}
}

// alphaBits 是按列优先顺序遍历像素 alpha 最低位的游标。
type alphaBits struct {
	img    image.Image
	nrgba  *image.NRGBA
	bounds image.Rectangle
	pos    int
	total  int
}

func newAlphaBits(img image.Image) *alphaBits {
	b := img.Bounds()
	nrgba, _ := img.(*image.NRGBA)
	return &alphaBits{img: img, nrgba: nrgba, bounds: b, total: b.Dx() * b.Dy()}
}

func (a *alphaBits) next() (byte, bool) {
	if a.pos >= a.total {
		return 0, false
	}
	h := a.bounds.Dy()
	x := a.bounds.Min.X + a.pos/h
	y := a.bounds.Min.Y + a.pos%h
	a.pos++

	if a.nrgba != nil {
		return a.nrgba.Pix[a.nrgba.PixOffset(x, y)+3] & 1, true
	}
	c := color.NRGBAModel.Convert(a.img.At(x, y)).(color.NRGBA)
	return c.A & 1, true
}

func (a *alphaBits) bytes(n int) ([]byte, bool) {
	if a.total-a.pos < n*8 {
		return nil, false
	}
	out := make([]byte, n)
	for i := range out {
		var v byte
		for j := 0; j < 8; j++ {
			bit, _ := a.next()
			v = v<<1 | bit
		}
		out[i] = v
	}
	return out, true
}

func (a *alphaBits) uint32() (uint32, bool) {
	b, ok := a.bytes(4)
	if !ok {
		return 0, false
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}
