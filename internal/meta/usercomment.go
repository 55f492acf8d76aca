package meta

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// EXIF UserComment 的 8 字节字符集前缀。
var (
	prefixASCII     = []byte("ASCII\x00\x00\x00")
	prefixUnicode   = []byte("UNICODE\x00")
	prefixJIS       = []byte("JIS\x00\x00\x00\x00\x00")
	prefixUndefined = []byte("\x00\x00\x00\x00\x00\x00\x00\x00")
)

// decodeUserComment 按前缀选择解码方式；无前缀时按 UTF-8 原样读取。
func decodeUserComment(v []byte) string {
	var s string
	switch {
	case bytes.HasPrefix(v, prefixUnicode):
		s = decodeWith(utf16Decoder(v[len(prefixUnicode):]), v[len(prefixUnicode):])
	case bytes.HasPrefix(v, prefixASCII):
		s = string(v[len(prefixASCII):])
	case bytes.HasPrefix(v, prefixJIS):
		s = decodeWith(japanese.ShiftJIS, v[len(prefixJIS):])
	case bytes.HasPrefix(v, prefixUndefined):
		s = string(v[len(prefixUndefined):])
	default:
		s = string(v)
	}
	s = strings.TrimRight(s, "\x00")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.TrimSpace(s)
}

// utf16Decoder 判断字节序：有 BOM 用 BOM；否则看 ASCII 字符的 0 字节落在偶数位（BE）还是奇数位（LE）。
// piexif（A1111 使用）写 BE；不少工具按 TIFF 字节序写 LE。
func utf16Decoder(b []byte) encoding.Encoding {
	even, odd := 0, 0
	for i := 0; i+1 < len(b) && i < 256; i += 2 {
		if b[i] == 0 && b[i+1] != 0 {
			even++
		}
		if b[i] != 0 && b[i+1] == 0 {
			odd++
		}
	}
	if odd > even {
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	}
	return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
}

func decodeWith(enc encoding.Encoding, b []byte) string {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
