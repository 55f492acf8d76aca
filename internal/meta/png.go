package meta

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const xmpKeyword = "XML:com.adobe.xmp"

// maxInflated 是单个压缩文本块解压后的上限（字节）。
const maxInflated = 16 << 20

// readPNG 遍历 PNG chunk，收集 tEXt / zTXt / iTXt 文本块。
// 不校验 CRC；遇到 IEND 或数据截断即停止（截断视为错误）。
func readPNG(b []byte, md *Metadata) error {
	if !bytes.HasPrefix(b, pngSignature) {
		return errors.New("PNG 签名不匹配")
	}
	off := len(pngSignature)
	for off+8 <= len(b) {
		n := int(binary.BigEndian.Uint32(b[off : off+4]))
		typ := string(b[off+4 : off+8])
		start := off + 8
		end := start + n
		if n < 0 || end+4 > len(b) {
			return fmt.Errorf("PNG chunk %q 长度越界", typ)
		}
		data := b[start:end]

		switch typ {
		case "tEXt":
			if k, v, ok := parseTEXt(data); ok {
				md.setText(k, v)
			}
		case "zTXt":
			if k, v, err := parseZTXt(data); err == nil {
				md.setText(k, v)
			}
		case "iTXt":
			if k, v, err := parseITXt(data); err == nil {
				md.setText(k, v)
			}
		case "IEND":
			off = len(b)
			continue
		}
		off = end + 4
	}

	md.Software = md.Get("Software")
	md.Description = md.Get("Description")
	md.Comment = md.Get("Comment")
	if x := md.Get(xmpKeyword); x != "" {
		md.XMPComment = xmpUserComment([]byte(x))
	}
	return nil
}

func parseTEXt(data []byte) (string, string, bool) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 {
		return "", "", false
	}
	return latin1(data[:i]), latin1(data[i+1:]), true
}

// latin1 按 ISO-8859-1 解码 tEXt / zTXt 的 keyword 与文本（iTXt 才是 UTF-8）。
func latin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func parseZTXt(data []byte) (string, string, error) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 || i+2 > len(data) {
		return "", "", errors.New("zTXt 格式错误")
	}
	if data[i+1] != 0 {
		return "", "", fmt.Errorf("zTXt 压缩方法不支持：%d", data[i+1])
	}
	text, err := inflate(data[i+2:])
	if err != nil {
		return "", "", err
	}
	return latin1(data[:i]), latin1(text), nil
}

// iTXt: keyword\0 flag method lang\0 translated\0 text
func parseITXt(data []byte) (string, string, error) {
	i := bytes.IndexByte(data, 0)
	if i <= 0 || i+3 > len(data) {
		return "", "", errors.New("iTXt 格式错误")
	}
	key := string(data[:i])
	compressed := data[i+1] == 1
	rest := data[i+3:]

	j := bytes.IndexByte(rest, 0)
	if j < 0 {
		return "", "", errors.New("iTXt 缺少 language tag")
	}
	rest = rest[j+1:]
	j = bytes.IndexByte(rest, 0)
	if j < 0 {
		return "", "", errors.New("iTXt 缺少 translated keyword")
	}
	rest = rest[j+1:]

	if compressed {
		text, err := inflate(rest)
		if err != nil {
			return "", "", err
		}
		return key, string(text), nil
	}
	return key, string(rest), nil
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readAllLimited(zr, maxInflated)
}

// readAllLimited 读取 r 的全部内容，超过 max 字节即报错（防止压缩炸弹拖垮整批）。
func readAllLimited(r io.Reader, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, fmt.Errorf("解压后数据超过上限 %d 字节", max)
	}
	return b, nil
}
