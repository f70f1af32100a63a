package pipeline

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"pdf-vectorize-go/internal/model"
)

// SectionClassifier 为元素序列划分逻辑章节。返回的章节互不重叠且覆盖全部元素。
type SectionClassifier interface {
	Classify(elements []model.Element) []model.Section
}

var (
	// 罗马数字必须带 . 或 )，否则 "I think ..." 这类句子会被当成标题
	numberedHeading = regexp.MustCompile(`^(\d+(\.\d+)*[.)]?|[IVXLC]+[.)])\s+\S`)
	headingNumber   = regexp.MustCompile(`^(\d+(\.\d+)*[.)]?|[IVXLC]+[.)])\s+`)
)

// HeuristicClassifier 通过版面和文字特征识别标题：短行且字号明显偏大、全大写或带编号，
// 或者首行与候选标题词完全匹配。
type HeuristicClassifier struct {
	keywords        map[string]struct{}
	MaxHeadingChars int
	FontRatio       float64
}

func NewHeuristicClassifier(keywords []string) *HeuristicClassifier {
	kw := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		kw[normalizeHeading(k)] = struct{}{}
	}
	return &HeuristicClassifier{keywords: kw, MaxHeadingChars: 80, FontRatio: 1.2}
}

func (c *HeuristicClassifier) Classify(elements []model.Element) []model.Section {
	if len(elements) == 0 {
		return nil
	}
	median := medianFontSize(elements)

	var sections []model.Section
	cur := model.Section{Label: model.DefaultSectionLabel, StartOrderIndex: elements[0].OrderIndex}
	for i, el := range elements {
		label, ok := c.heading(el, median)
		if !ok {
			continue
		}
		if i > 0 {
			cur.EndOrderIndex = elements[i-1].OrderIndex
			sections = append(sections, cur)
		}
		cur = model.Section{Label: label, StartOrderIndex: el.OrderIndex}
	}
	cur.EndOrderIndex = elements[len(elements)-1].OrderIndex
	return append(sections, cur)
}

func (c *HeuristicClassifier) heading(el model.Element, median float64) (string, bool) {
	if el.Kind != model.KindText {
		return "", false
	}
	first, _, multiline := strings.Cut(strings.TrimSpace(el.Text), "\n")
	first = strings.TrimSpace(first)
	if first == "" || utf8.RuneCountInString(first) > c.MaxHeadingChars {
		return "", false
	}

	if _, ok := c.keywords[normalizeHeading(first)]; ok {
		return strings.TrimRight(first, ":."), true
	}
	if multiline || endsSentence(first) {
		return "", false
	}
	switch {
	case median > 0 && el.FontSize >= median*c.FontRatio:
		return first, true
	case isAllCaps(first):
		return first, true
	case numberedHeading.MatchString(first) && utf8.RuneCountInString(first) <= 60:
		return first, true
	}
	return "", false
}

// normalizeHeading 去掉编号与结尾标点并转为小写，用于关键词比较。
func normalizeHeading(s string) string {
	s = headingNumber.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.TrimRight(s, ":.")
	return strings.ToLower(strings.TrimSpace(s))
}

func endsSentence(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '.' || r == '!' || r == '?' || r == '؟' || r == ','
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 3
}

func medianFontSize(elements []model.Element) float64 {
	var sizes []float64
	for _, el := range elements {
		if el.Kind == model.KindText && el.FontSize > 0 {
			sizes = append(sizes, el.FontSize)
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	sort.Float64s(sizes)
	return sizes[len(sizes)/2]
}

// sectionLabels 返回 OrderIndex 到章节名的映射，未覆盖的元素归入默认章节。
func sectionLabels(sections []model.Section) func(orderIndex int) string {
	return func(orderIndex int) string {
		i := sort.Search(len(sections), func(i int) bool { return sections[i].EndOrderIndex >= orderIndex })
		if i < len(sections) && sections[i].StartOrderIndex <= orderIndex {
			return sections[i].Label
		}
		return model.DefaultSectionLabel
	}
}
