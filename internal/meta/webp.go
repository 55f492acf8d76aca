package meta

import (
	"encoding/binary"
	"errors"
)

// readWEBP 遍历 RIFF chunk，读取扩展格式（VP8X）下的 "EXIF" 与 "XMP " 块。
func readWEBP(b []byte, md *Metadata) error {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WEBP" {
		return errors.New("WEBP RIFF 头缺失")
	}
	end := 8 + int(binary.LittleEndian.Uint32(b[4:8]))
	if end > len(b) {
		end = len(b)
	}
	off := 12
	for off+8 <= end {
		fourcc := string(b[off : off+4])
		n := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		start := off + 8
		if n < 0 || start+n > end {
			return errors.New("WEBP chunk 长度越界")
		}
		data := b[start : start+n]

		switch fourcc {
		case "EXIF":
			readEXIF(data, md)
		case "XMP ":
			if md.XMPComment == "" {
				md.XMPComment = xmpUserComment(data)
			}
		}
		// chunk 按偶数字节对齐
		off = start + n + n&1
	}
	return nil
}
