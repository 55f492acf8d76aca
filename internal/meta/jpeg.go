package meta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

const (
	markerSOI  = 0xd8
	markerSOS  = 0xda
	markerEOI  = 0xd9
	markerAPP1 = 0xe1
	markerCOM  = 0xfe
)

var (
	exifHeader = []byte("Exif\x00\x00")
	xmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
)

// readJPEG 遍历 SOS 之前的 marker 段：APP1 里的 EXIF / XMP，以及 COM 注释。
func readJPEG(b []byte, md *Metadata) error {
	if len(b) < 4 || b[0] != 0xff || b[1] != markerSOI {
		return errors.New("JPEG SOI 缺失")
	}
	off := 2
	for off+4 <= len(b) {
		if b[off] != 0xff {
			return errors.New("JPEG marker 错位")
		}
		marker := b[off+1]
		// 填充字节 0xFF 0xFF...
		if marker == 0xff {
			off++
			continue
		}
		if marker == markerSOS || marker == markerEOI {
			break
		}
		// RSTn / TEM 没有长度字段
		if (marker >= 0xd0 && marker <= 0xd7) || marker == 0x01 {
			off += 2
			continue
		}
		n := int(binary.BigEndian.Uint16(b[off+2 : off+4]))
		if n < 2 || off+2+n > len(b) {
			return errors.New("JPEG 段长度越界")
		}
		seg := b[off+4 : off+2+n]

		switch marker {
		case markerAPP1:
			switch {
			case bytes.HasPrefix(seg, exifHeader):
				readEXIF(seg, md)
			case bytes.HasPrefix(seg, xmpHeader):
				if md.XMPComment == "" {
					md.XMPComment = xmpUserComment(seg[len(xmpHeader):])
				}
			}
		case markerCOM:
			if md.Comment == "" {
				md.Comment = strings.TrimRight(string(seg), "\x00")
			}
		}
		off += 2 + n
	}
	return nil
}

// readEXIF 用 goexif 解析 EXIF 块（TIFF 或 "Exif\0\0"+TIFF），提取 UserComment / Software / ImageDescription。
// EXIF 损坏不算致命：图片本身仍然可以输出 FORMAT_ERROR 或由其它容器字段命中。
func readEXIF(block []byte, md *Metadata) {
	// goexif 在非关键错误（例如某个子 IFD 损坏）时仍会返回可用的 x。
	x, _ := exif.Decode(bytes.NewReader(block))
	if x == nil {
		return
	}
	if t, err := x.Get(exif.UserComment); err == nil && t != nil && md.UserComment == "" {
		md.UserComment = decodeUserComment(t.Val)
	}
	if t, err := x.Get(exif.Software); err == nil && t != nil && md.Software == "" {
		if s, err := t.StringVal(); err == nil {
			md.Software = strings.TrimSpace(s)
		}
	}
	if t, err := x.Get(exif.ImageDescription); err == nil && t != nil && md.Description == "" {
		if s, err := t.StringVal(); err == nil {
			md.Description = s
		}
	}
}
