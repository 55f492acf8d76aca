package imgx

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器

	_ "golang.org/x/image/webp" // 注册 WEBP 解码器（标准库没有）
)

// Config 是只读头部得到的图片尺寸与格式名（"png" / "jpeg" / "webp"）。
type Config struct {
	Width  int
	Height int
	Format string
}

// DecodeConfig 只解析图片头部，不解码像素。
func DecodeConfig(b []byte) (Config, error) {
	if len(b) == 0 {
		return Config{}, errors.New("图片为空")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return Config{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Config{}, errors.New("图片尺寸无效")
	}
	return Config{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Decode 解码完整像素（仅在需要读 alpha 通道等像素级信息时使用，开销较大）。
func Decode(b []byte) (image.Image, error) {
	if len(b) == 0 {
		return nil, errors.New("图片为空")
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	r := img.Bounds()
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	return img, nil
}

// HasAlpha 粗略判断图片类型是否携带 alpha 通道（不逐像素检查）。
func HasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Alpha, *image.Alpha16:
		return true
	default:
		// webp 有损 + alpha 解码为 *image.NYCbCrA。
		_, ok := img.(*image.NYCbCrA)
		return ok
	}
}
