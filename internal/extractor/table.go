package extractor

import (
	"math"
	"strings"
)

// segment 是一页中连续的若干行，要么整体是一张表，要么是一段文本。
type segment struct {
	table bool
	lines []Line
}

// minTableRows 是判定为表格所需的最少连续行数。
const minTableRows = 2

// segmentLines 把一页的行切分为表格与文本段。
// 表格判定：至少两行连续、每行不少于两列且列数相同。
func segmentLines(lines []Line) []segment {
	var (
		out  []segment
		text []Line
	)
	flushText := func() {
		out = append(out, splitBlocks(text)...)
		text = nil
	}

	for i := 0; i < len(lines); {
		cols := len(lines[i].Cells)
		j := i + 1
		if cols >= 2 {
			for j < len(lines) && len(lines[j].Cells) == cols {
				j++
			}
		}
		if cols >= 2 && j-i >= minTableRows {
			flushText()
			out = append(out, segment{table: true, lines: lines[i:j]})
			i = j
			continue
		}
		text = append(text, lines[i])
		i++
	}
	flushText()
	return out
}

// splitBlocks 在字号变化或纵向间距明显变大的位置切分段落。
func splitBlocks(lines []Line) []segment {
	var (
		out []segment
		cur []Line
	)
	for _, l := range lines {
		if len(cur) > 0 && blockBreak(cur[len(cur)-1], l) {
			out = append(out, segment{lines: cur})
			cur = nil
		}
		cur = append(cur, l)
	}
	if len(cur) > 0 {
		out = append(out, segment{lines: cur})
	}
	return out
}

func blockBreak(prev, next Line) bool {
	if prev.FontSize > 0 && next.FontSize > 0 && math.Abs(prev.FontSize-next.FontSize) > 0.5 {
		return true
	}
	size := math.Max(prev.FontSize, next.FontSize)
	limit := 1.5
	if size > 0 {
		limit = size * 2
	}
	return prev.Y-next.Y > limit
}

// tableMarkdown 把表格行序列化为 markdown，第一行作为表头。
func tableMarkdown(lines []Line) string {
	var b strings.Builder
	for i, l := range lines {
		b.WriteString("|")
		for _, c := range l.Cells {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(c, "|", `\|`))
			b.WriteString(" |")
		}
		b.WriteString("\n")
		if i == 0 {
			b.WriteString("|")
			for range l.Cells {
				b.WriteString(" --- |")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func blockText(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}
