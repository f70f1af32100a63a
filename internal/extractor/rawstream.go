package extractor

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// passthroughTypes 是 OCR 服务可以直接识别、无需解码的图片流编码。
var passthroughTypes = map[string]string{
	"DCTDecode": "image/jpeg",
	"JPXDecode": "image/jp2",
}

var (
	streamKeyword = []byte("stream")
	objKeyword    = []byte(" obj")
	widthPattern  = regexp.MustCompile(`/Width\s+(\d+)(\s+\d+\s+R)?`)
	heightPattern = regexp.MustCompile(`/Height\s+(\d+)(\s+\d+\s+R)?`)
	lengthPattern = regexp.MustCompile(`/Length\s+(\d+)(\s+\d+\s+R)?`)
)

// encodedStream 是文件中一个 JPEG / JPEG 2000 图片流的位置。
type encodedStream struct {
	filter string
	dict   []byte
	start  int
}

// streamIndex 在原始文件字节中定位图片流。
// ledongthuc/pdf 只能通过 Reader() 读取流，而它不支持 DCTDecode / JPXDecode 并会 panic，
// 所以这类图片按字典中的 Length 直接从文件中截取原始字节。加密文件中的流无法直接使用，会被跳过。
type streamIndex struct {
	data    []byte
	streams []encodedStream
}

func newStreamIndex(data []byte) *streamIndex {
	idx := &streamIndex{data: data}
	for pos := 0; ; {
		i := bytes.Index(data[pos:], streamKeyword)
		if i < 0 {
			break
		}
		at := pos + i
		pos = at + len(streamKeyword)
		if at >= 3 && string(data[at-3:at]) == "end" {
			continue
		}
		start, ok := streamStart(data, pos)
		if !ok {
			continue
		}
		objAt := bytes.LastIndex(data[:at], objKeyword)
		if objAt < 0 {
			continue
		}
		dict := data[objAt:at]
		if !bytes.Contains(dict, []byte("/Image")) {
			continue
		}
		for filter := range passthroughTypes {
			if bytes.Contains(dict, []byte("/"+filter)) {
				idx.streams = append(idx.streams, encodedStream{filter: filter, dict: dict, start: start})
				break
			}
		}
	}
	return idx
}

// streamStart 跳过 stream 关键字后的换行，返回数据起始位置。
func streamStart(data []byte, pos int) (int, bool) {
	switch {
	case pos+1 < len(data) && data[pos] == '\r' && data[pos+1] == '\n':
		return pos + 2, true
	case pos < len(data) && (data[pos] == '\n' || data[pos] == '\r'):
		return pos + 1, true
	}
	return 0, false
}

// lookup 返回图片 XObject x 的原始编码字节和 MIME 类型。
// 只处理单一 DCTDecode / JPXDecode 过滤器；按过滤器、宽高和长度匹配文件中的流。
func (idx *streamIndex) lookup(x pdf.Value) ([]byte, string, bool) {
	if idx == nil {
		return nil, "", false
	}
	filter := singleFilter(x.Key("Filter"))
	contentType, ok := passthroughTypes[filter]
	if !ok {
		return nil, "", false
	}
	length := int(x.Key("Length").Int64())
	w, h := x.Key("Width").Int64(), x.Key("Height").Int64()
	if length <= 0 {
		return nil, "", false
	}

	for _, s := range idx.streams {
		if s.filter != filter || s.start+length > len(idx.data) {
			continue
		}
		if !dictMatches(s.dict, widthPattern, w) || !dictMatches(s.dict, heightPattern, h) ||
			!dictMatches(s.dict, lengthPattern, int64(length)) {
			continue
		}
		raw := idx.data[s.start : s.start+length]
		if filter == "DCTDecode" && !bytes.HasPrefix(raw, []byte{0xFF, 0xD8}) {
			continue
		}
		return raw, contentType, true
	}
	return nil, "", false
}

func singleFilter(f pdf.Value) string {
	switch f.Kind() {
	case pdf.Name:
		return f.Name()
	case pdf.Array:
		if f.Len() == 1 {
			return f.Index(0).Name()
		}
	}
	return ""
}

// dictMatches 比较字典中的直接数值。值为间接引用（n 0 R）时无法在原文中比较，视为匹配。
func dictMatches(dict []byte, pattern *regexp.Regexp, want int64) bool {
	m := pattern.FindSubmatch(dict)
	if m == nil {
		return true
	}
	if len(m) > 2 && len(m[2]) > 0 {
		return true
	}
	got, err := strconv.ParseInt(string(m[1]), 10, 64)
	return err == nil && got == want
}
