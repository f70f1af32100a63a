// Package extractor 把 PDF 解析为按阅读顺序排列的文本块、表格和图片元素。
package extractor

import (
	"context"
	"errors"

	"pdf-vectorize-go/internal/model"
)

var (
	// ErrNoElements 表示文件可以打开但没有抽取到任何内容。
	ErrNoElements = errors.New("no extractable elements")
	// ErrNotPDF 表示字节流不是可解析的 PDF。
	ErrNotPDF = errors.New("not a parseable pdf")
)

// Line 是页面上的一行文字。Cells 是按较大水平间距切开的列，只有一列时与 Text 相同。
type Line struct {
	Text     string
	Cells    []string
	Y        float64
	X0, X1   float64
	FontSize float64
}

// RawImage 是页面上绘制的一张图片。Data 为空表示图片编码不受支持，只保留位置。
type RawImage struct {
	Name        string
	Data        []byte
	ContentType string
	BBox        *model.BBox
}

// PageContent 是单页的解析结果，页码从 1 开始。
type PageContent struct {
	Number int
	Lines  []Line
	Images []RawImage
}

// LayoutParser 把 PDF 字节解析为逐页的行和图片。
type LayoutParser interface {
	Parse(ctx context.Context, data []byte) ([]PageContent, error)
}

// OCR 识别图片中的文字。
type OCR interface {
	Recognize(ctx context.Context, image []byte, contentType string) (string, error)
}
