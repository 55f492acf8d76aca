package meta

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// pngChunk 编码一个完整 chunk（长度 + 类型 + 数据 + CRC）。
func pngChunk(typ string, data []byte) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, uint32(len(data)))
	b.WriteString(typ)
	b.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	_ = binary.Write(&b, binary.BigEndian, crc.Sum32())
	return b.Bytes()
}

func tEXt(key, value string) []byte {
	return pngChunk("tEXt", append(append([]byte(key), 0), value...))
}

func zTXt(t *testing.T, key, value string) []byte {
	t.Helper()
	data := append([]byte(key), 0, 0)
	return pngChunk("zTXt", append(data, deflate(t, []byte(value))...))
}

func iTXt(t *testing.T, key, value string, compressed bool) []byte {
	t.Helper()
	data := append([]byte(key), 0)
	if compressed {
		data = append(data, 1, 0)
	} else {
		data = append(data, 0, 0)
	}
	data = append(data, "en"...)
	data = append(data, 0)
	data = append(data, 0) // 空 translated keyword
	if compressed {
		return pngChunk("iTXt", append(data, deflate(t, []byte(value))...))
	}
	return pngChunk("iTXt", append(data, value...))
}

func deflate(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(b)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// encodePNG 编码 img，并把额外 chunk 插在 IHDR 之后。
func encodePNG(t *testing.T, img image.Image, chunks ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	b := buf.Bytes()

	// 8 字节签名 + IHDR（4 长度 + 4 类型 + 13 数据 + 4 CRC）
	const ihdrEnd = 8 + 25
	out := append([]byte(nil), b[:ihdrEnd]...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return append(out, b[ihdrEnd:]...)
}

// pngWithText 生成 w×h 的不透明 PNG，并写入若干 tEXt。
func pngWithText(t *testing.T, w, h int, kv ...string) []byte {
	t.Helper()
	require.True(t, len(kv)%2 == 0)
	var chunks [][]byte
	for i := 0; i < len(kv); i += 2 {
		chunks = append(chunks, tEXt(kv[i], kv[i+1]))
	}
	return encodePNG(t, opaque(w, h), chunks...)
}

func opaque(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	return img
}

// jpegWithSegments 编码一张 JPEG，并在 SOI 之后插入给定的 marker 段。
func jpegWithSegments(t *testing.T, w, h int, segs ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, opaque(w, h), &jpeg.Options{Quality: 80}))
	b := buf.Bytes()
	out := append([]byte(nil), b[:2]...)
	for _, s := range segs {
		out = append(out, s...)
	}
	return append(out, b[2:]...)
}

func jpegSegment(marker byte, payload []byte) []byte {
	out := []byte{0xff, marker}
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	return append(out, payload...)
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiEntry(tag uint16, s string) tiffEntry {
	d := append([]byte(s), 0)
	return tiffEntry{tag: tag, typ: 2, count: uint32(len(d)), data: d}
}

func encodeIFD(start int, entries []tiffEntry) []byte {
	le := binary.LittleEndian
	dataOff := start + 2 + 12*len(entries) + 4
	var ifd, data []byte
	ifd = le.AppendUint16(ifd, uint16(len(entries)))
	for _, e := range entries {
		ifd = le.AppendUint16(ifd, e.tag)
		ifd = le.AppendUint16(ifd, e.typ)
		ifd = le.AppendUint32(ifd, e.count)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			ifd = append(ifd, v...)
			continue
		}
		ifd = le.AppendUint32(ifd, uint32(dataOff+len(data)))
		data = append(data, e.data...)
		if len(data)%2 == 1 {
			data = append(data, 0)
		}
	}
	ifd = le.AppendUint32(ifd, 0)
	return append(ifd, data...)
}

// tiffEXIF 生成小端 TIFF：IFD0（ImageDescription / Software）+ Exif 子 IFD（UserComment）。
func tiffEXIF(description, software string, userComment []byte) []byte {
	var ifd0 []tiffEntry
	if description != "" {
		ifd0 = append(ifd0, asciiEntry(0x010e, description))
	}
	if software != "" {
		ifd0 = append(ifd0, asciiEntry(0x0131, software))
	}
	hasExif := userComment != nil
	if hasExif {
		ifd0 = append(ifd0, tiffEntry{tag: 0x8769, typ: 4, count: 1, data: make([]byte, 4)})
	}

	head := []byte{'I', 'I', 0x2a, 0}
	head = binary.LittleEndian.AppendUint32(head, 8)
	first := encodeIFD(8, ifd0)
	if !hasExif {
		return append(head, first...)
	}

	exifOff := 8 + len(first)
	ifd0[len(ifd0)-1].data = binary.LittleEndian.AppendUint32(nil, uint32(exifOff))
	first = encodeIFD(8, ifd0)
	sub := encodeIFD(exifOff, []tiffEntry{{tag: 0x9286, typ: 7, count: uint32(len(userComment)), data: userComment}})

	out := append(head, first...)
	return append(out, sub...)
}

func asciiComment(s string) []byte {
	return append(append([]byte(nil), prefixASCII...), s...)
}

// 1×1 无损 VP8L 位流（含 13 字节载荷 + 1 字节对齐）。
var vp8lPixel = []byte{0x2f, 0x00, 0x00, 0x00, 0x10, 0x07, 0x10, 0x11, 0x11, 0x88, 0x88, 0xfe, 0x07}

func riffChunk(fourcc string, data []byte) []byte {
	out := []byte(fourcc)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	if len(data)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

// webpExtended 生成 VP8X 扩展格式的 1×1 WEBP，附带可选的 EXIF / XMP 块。
func webpExtended(exifBlock, xmpPacket []byte) []byte {
	flags := byte(0)
	if exifBlock != nil {
		flags |= 1 << 3
	}
	if xmpPacket != nil {
		flags |= 1 << 2
	}
	vp8x := []byte{flags, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	body := []byte("WEBP")
	body = append(body, riffChunk("VP8X", vp8x)...)
	body = append(body, riffChunk("VP8L", vp8lPixel)...)
	if exifBlock != nil {
		body = append(body, riffChunk("EXIF", exifBlock)...)
	}
	if xmpPacket != nil {
		body = append(body, riffChunk("XMP ", xmpPacket)...)
	}
	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func xmpPacket(userComment string) []byte {
	return []byte(`<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="" xmlns:exif="http://ns.adobe.com/exif/1.0/">
   <exif:UserComment>
    <rdf:Alt>
     <rdf:li xml:lang="x-default">` + escapeXML(userComment) + `</rdf:li>
    </rdf:Alt>
   </exif:UserComment>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="r"?>`)
}

func escapeXML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stealthImage 把载荷按列优先写进 alpha 最低位（alpha=254|bit）。
func stealthImage(w, h int, magic string, payload []byte) *image.NRGBA {
	img := opaque(w, h)
	var bits []byte
	push := func(bs []byte) {
		for _, c := range bs {
			for i := 7; i >= 0; i-- {
				bits = append(bits, (c>>uint(i))&1)
			}
		}
	}
	push([]byte(magic))
	push(binary.BigEndian.AppendUint32(nil, uint32(len(payload)*8)))
	push(payload)

	for i, bit := range bits {
		x, y := i/h, i%h
		if x >= w {
			break
		}
		img.Pix[img.PixOffset(x, y)+3] = 254 | bit
	}
	return img
}

func readAll(t *testing.T, b []byte) *Metadata {
	t.Helper()
	md, err := loadImage(b)
	require.NoError(t, err)
	return md
}
