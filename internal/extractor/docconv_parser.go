package extractor

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"code.sajari.com/docconv"
)

var columnGap = regexp.MustCompile(`\t+|\s{2,}`)

// DocconvFallbackParser 是只抽取文本的快速策略，依赖系统中的 pdftotext。
// 输出中存在换页符时按页切分，否则全部归入第 1 页。
type DocconvFallbackParser struct{}

func NewDocconvFallbackParser() *DocconvFallbackParser { return &DocconvFallbackParser{} }

func (p *DocconvFallbackParser) Parse(ctx context.Context, data []byte) ([]PageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, _, err := docconv.ConvertPDF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("docconv: %w", err)
	}
	return splitPlainText(body), nil
}

// splitPlainText 把纯文本转换为逐页的行。空行在纵坐标上留出额外间距，供段落切分使用。
func splitPlainText(body string) []PageContent {
	var pages []PageContent
	for i, raw := range strings.Split(body, "\f") {
		pc := PageContent{Number: i + 1}
		y := 0.0
		for _, l := range strings.Split(raw, "\n") {
			trimmed := strings.TrimSpace(l)
			if trimmed == "" {
				y -= 2
				continue
			}
			y--
			var cells []string
			for _, c := range columnGap.Split(trimmed, -1) {
				if c = strings.TrimSpace(c); c != "" {
					cells = append(cells, c)
				}
			}
			pc.Lines = append(pc.Lines, Line{
				Text:  collapseSpaces(trimmed),
				Cells: cells,
				Y:     y,
			})
		}
		if len(pc.Lines) > 0 {
			pages = append(pages, pc)
		}
	}
	return pages
}
