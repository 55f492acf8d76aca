package imgx

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfig_PNGAndJPEG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	src.Set(1, 1, color.NRGBA{R: 255, A: 255})

	var pb bytes.Buffer
	require.NoError(t, png.Encode(&pb, src))
	cfg, err := DecodeConfig(pb.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Config{Width: 40, Height: 30, Format: "png"}, cfg)

	var jb bytes.Buffer
	require.NoError(t, jpeg.Encode(&jb, src, &jpeg.Options{Quality: 90}))
	cfg, err = DecodeConfig(jb.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", cfg.Format)
	assert.Equal(t, 40, cfg.Width)
}

func TestDecodeConfig_Garbage(t *testing.T) {
	_, err := DecodeConfig([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = DecodeConfig(nil)
	assert.Error(t, err)
}

func TestDecode_AlphaDetection(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	var pb bytes.Buffer
	require.NoError(t, png.Encode(&pb, src))

	img, err := Decode(pb.Bytes())
	require.NoError(t, err)
	assert.True(t, HasAlpha(img))

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	assert.False(t, HasAlpha(gray))
}
