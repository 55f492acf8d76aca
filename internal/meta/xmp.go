package meta

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// xmpUserComment 从 XMP 包里取 exif:UserComment。
//
// goquery 按 HTML 规则解析，标签名/属性名会被转成小写，且冒号不能直接写进选择器，
// 所以这里遍历节点并比较 NodeName。两种写法都支持：
//   - <exif:UserComment><rdf:Alt><rdf:li>...</rdf:li></rdf:Alt></exif:UserComment>
//   - <rdf:Description exif:UserComment="..."/>
func xmpUserComment(packet []byte) string {
	if len(bytes.TrimSpace(packet)) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(packet))
	if err != nil {
		return ""
	}

	out := ""
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "exif:usercomment" {
			li := s.Find("*").FilterFunction(func(_ int, c *goquery.Selection) bool {
				return goquery.NodeName(c) == "rdf:li"
			})
			if li.Length() > 0 {
				out = li.First().Text()
			} else {
				out = s.Text()
			}
			return false
		}
		if v, ok := s.Attr("exif:usercomment"); ok {
			out = v
			return false
		}
		return true
	})
	return strings.TrimSpace(out)
}
