package extractor

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
)

// minImageSide 以下的图片视为装饰（图标、分隔线），不参与抽取。
const minImageSide = 32

// PDFLayoutParser 使用 ledongthuc/pdf 读取字形位置与字号，并定位页面上的图片。
type PDFLayoutParser struct{}

func NewPDFLayoutParser() *PDFLayoutParser { return &PDFLayoutParser{} }

func (p *PDFLayoutParser) Parse(ctx context.Context, data []byte) ([]PageContent, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}

	streams := newStreamIndex(data)
	pages := make([]PageContent, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pc, err := parsePage(page, i, streams)
		if err != nil {
			return nil, fmt.Errorf("parse page %d: %w", i, err)
		}
		pages = append(pages, pc)
	}
	return pages, nil
}

// parsePage 解析单页。库在遇到损坏的内容流时会 panic，这里统一转换为错误。
func parsePage(page pdf.Page, number int, streams *streamIndex) (pc PageContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf content panic: %v", r)
		}
	}()

	pc.Number = number
	pc.Lines = buildLines(page.Content().Text)
	pc.Images = pageImages(page, number, streams)
	return pc, nil
}

// buildLines 把字形按基线聚合为行，行内按水平间距切分单词和列。
func buildLines(glyphs []pdf.Text) []Line {
	filtered := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S == "" || g.S == "\n" || g.FontSize <= 0 {
			continue
		}
		if g.W <= 0 {
			g.W = g.FontSize * 0.5
		}
		filtered = append(filtered, g)
	}
	if len(filtered) == 0 {
		return nil
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Y > filtered[j].Y })

	var (
		lines []Line
		cur   []pdf.Text
		curY  float64
	)
	flush := func() {
		if l, ok := assembleLine(cur); ok {
			lines = append(lines, l)
		}
		cur = cur[:0]
	}
	for _, g := range filtered {
		if len(cur) > 0 && math.Abs(g.Y-curY) > g.FontSize*0.35 {
			flush()
		}
		if len(cur) == 0 {
			curY = g.Y
		}
		cur = append(cur, g)
	}
	flush()
	return lines
}

func assembleLine(glyphs []pdf.Text) (Line, bool) {
	if len(glyphs) == 0 {
		return Line{}, false
	}
	line := make([]pdf.Text, len(glyphs))
	copy(line, glyphs)

	rtl := isRTL(line)
	sort.SliceStable(line, func(i, j int) bool {
		if rtl {
			return line[i].X > line[j].X
		}
		return line[i].X < line[j].X
	})

	var (
		cells    []string
		cell     strings.Builder
		sumFont  float64
		x0, x1   = math.MaxFloat64, -math.MaxFloat64
		prevEdge float64
	)
	for i, g := range line {
		sumFont += g.FontSize
		x0 = math.Min(x0, g.X)
		x1 = math.Max(x1, g.X+g.W)

		if i > 0 {
			gap := g.X - prevEdge
			if rtl {
				gap = prevEdge - (g.X + g.W)
			}
			switch {
			case gap > g.FontSize*2:
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			case gap > g.FontSize*0.2:
				cell.WriteByte(' ')
			}
		}
		cell.WriteString(g.S)
		if rtl {
			prevEdge = g.X
		} else {
			prevEdge = g.X + g.W
		}
	}
	cells = append(cells, strings.TrimSpace(cell.String()))

	nonEmpty := cells[:0]
	for _, c := range cells {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 0 {
		return Line{}, false
	}
	return Line{
		Text:     collapseSpaces(strings.Join(nonEmpty, " ")),
		Cells:    nonEmpty,
		Y:        glyphs[0].Y,
		X0:       x0,
		X1:       x1,
		FontSize: sumFont / float64(len(line)),
	}, true
}

// isRTL 判断一行是否以阿拉伯字母（含波斯语）为主。
func isRTL(glyphs []pdf.Text) bool {
	var rtl, ltr int
	for _, g := range glyphs {
		for _, r := range g.S {
			switch {
			case unicode.In(r, unicode.Arabic, unicode.Hebrew):
				rtl++
			case unicode.IsLetter(r):
				ltr++
			}
		}
	}
	return rtl > ltr
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// pageImages 解释内容流中的 cm/q/Q/Do 操作符，得到每张图片的绘制位置并取出图片字节。
// JPEG / JPEG 2000 原样交给 OCR，其余编码解码为 PNG。
func pageImages(page pdf.Page, number int, streams *streamIndex) []RawImage {
	xobjects := page.Resources().Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return nil
	}
	contents := page.V.Key("Contents")
	if contents.Kind() == pdf.Null {
		return nil
	}

	type placement struct {
		name string
		ctm  [6]float64
	}
	var (
		placed []placement
		ctm    = [6]float64{1, 0, 0, 1, 0, 0}
		stack  [][6]float64
	)
	pdf.Interpret(contents, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "q":
			stack = append(stack, ctm)
		case "Q":
			if len(stack) > 0 {
				ctm = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
		case "cm":
			if len(args) == 6 {
				var m [6]float64
				for i := range m {
					m[i] = args[i].Float64()
				}
				ctm = multiply(m, ctm)
			}
		case "Do":
			if len(args) == 1 {
				placed = append(placed, placement{name: args[0].Name(), ctm: ctm})
			}
		}
	})

	var images []RawImage
	for _, p := range placed {
		x := xobjects.Key(p.name)
		if x.Key("Subtype").Name() != "Image" {
			continue
		}
		if x.Key("Width").Int64() < minImageSide || x.Key("Height").Int64() < minImageSide {
			continue
		}
		bbox := &model.BBox{
			X0: p.ctm[4],
			Y0: p.ctm[5],
			X1: p.ctm[4] + p.ctm[0],
			Y1: p.ctm[5] + p.ctm[3],
		}
		img := RawImage{Name: p.name, BBox: bbox}
		if raw, contentType, ok := streams.lookup(x); ok {
			img.Data = raw
			img.ContentType = contentType
			images = append(images, img)
			continue
		}
		data, err := decodeImage(x)
		if err != nil {
			log.Warnf("[Extractor] 第 %d 页图片 %s 无法解码, 仅保留位置: %v", number, p.name, err)
		} else {
			img.Data = data
			img.ContentType = "image/png"
		}
		images = append(images, img)
	}
	return images
}

// multiply 计算 PDF 仿射矩阵乘积 m × n，矩阵以 [a b c d e f] 表示。
func multiply(m, n [6]float64) [6]float64 {
	return [6]float64{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}
