package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
)

// ImageCaption 是 OCR 没有得到文字的独立图片分块的文本。
func ImageCaption(page int) string {
	return fmt.Sprintf("Image detected on page %d", page)
}

// ChunkBuilder 把元素组合为待向量化的分块。
// 文本分块不跨页、不跨章节；表格总是单独成块且不会被拆分；
// 图片挂到同页最近的文本分块上，同页没有文本分块时单独成块。
type ChunkBuilder struct {
	// MaxChars 是文本分块的软上限（按字符计）。
	MaxChars int
	// HardMaxChars 是 embedding 输入上限，超过的分块被跳过。
	HardMaxChars int
}

func NewChunkBuilder(maxChars, hardMaxChars int) *ChunkBuilder {
	return &ChunkBuilder{MaxChars: maxChars, HardMaxChars: hardMaxChars}
}

// draft 是构建过程中的分块，firstOrder 用于最终排序。
type draft struct {
	kind       model.ElementKind
	page       int
	section    string
	parts      []string
	chars      int
	images     []string
	firstOrder int
	lastOrder  int
	elements   int
}

func (d *draft) add(text string, orderIndex int) {
	if d.elements == 0 {
		d.firstOrder = orderIndex
	} else {
		d.chars++ // 换行分隔符
	}
	d.parts = append(d.parts, text)
	d.chars += utf8.RuneCountInString(text)
	d.lastOrder = orderIndex
	d.elements++
}

// Build 返回有序的分块，以及因超过硬上限而被跳过的分块错误。
func (b *ChunkBuilder) Build(elements []model.Element, sections []model.Section) ([]model.Chunk, []*ChunkTooLargeError) {
	label := sectionLabels(sections)

	var (
		drafts []*draft
		cur    *draft
		images []model.Element
	)
	flush := func() {
		if cur != nil && cur.elements > 0 {
			drafts = append(drafts, cur)
		}
		cur = nil
	}

	for _, el := range elements {
		section := label(el.OrderIndex)
		switch el.Kind {
		case model.KindImage:
			images = append(images, el)
			continue
		case model.KindTable:
			flush()
			t := &draft{kind: model.KindTable, page: el.Page, section: section}
			t.add(el.Text, el.OrderIndex)
			drafts = append(drafts, t)
			continue
		}

		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}
		n := utf8.RuneCountInString(text)
		if cur != nil && (cur.page != el.Page || cur.section != section || cur.chars+1+n > b.MaxChars) {
			flush()
		}
		if cur == nil {
			cur = &draft{kind: model.KindText, page: el.Page, section: section}
		}
		cur.add(text, el.OrderIndex)
	}
	flush()

	drafts = b.attachImages(drafts, images, label)
	sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].firstOrder < drafts[j].firstOrder })

	var (
		chunks    []model.Chunk
		oversized []*ChunkTooLargeError
	)
	for _, d := range drafts {
		text := strings.Join(d.parts, "\n")
		chars := utf8.RuneCountInString(text)
		if b.HardMaxChars > 0 && chars > b.HardMaxChars {
			e := &ChunkTooLargeError{Page: d.page, Chars: chars, Limit: b.HardMaxChars}
			log.Warnf("[ChunkBuilder] 跳过分块: %v", e)
			oversized = append(oversized, e)
			continue
		}
		related := d.images
		if related == nil {
			related = []string{}
		}
		chunks = append(chunks, model.Chunk{
			ID:              uuid.NewString(),
			Text:            text,
			Page:            d.page,
			Section:         d.section,
			ContentType:     d.kind,
			RelatedImageIDs: related,
			Metadata: map[string]interface{}{
				"char_count":    chars,
				"element_count": d.elements,
				"order_start":   d.firstOrder,
				"order_end":     d.lastOrder,
			},
			Index: len(chunks),
		})
	}
	return chunks, oversized
}

// attachImages 把图片挂到同页之前最近的文本分块；没有则挂到同页之后最近的文本分块；
// 仍然没有则生成独立的图片分块，文本为 OCR 结果或占位说明。
// OCR 文本并入宿主后会超过硬上限时，宿主只记录图片 ID，OCR 文本另成图片分块。
func (b *ChunkBuilder) attachImages(drafts []*draft, images []model.Element, label func(int) string) []*draft {
	for _, img := range images {
		host := nearestTextDraft(drafts, img)
		ocr := strings.TrimSpace(img.Text)
		if host != nil {
			host.images = append(host.images, img.ID)
			if ocr == "" {
				continue
			}
			n := utf8.RuneCountInString(ocr)
			if b.HardMaxChars <= 0 || host.chars+1+n <= b.HardMaxChars {
				host.parts = append(host.parts, ocr)
				host.chars += 1 + n
				continue
			}
			d := &draft{kind: model.KindImage, page: img.Page, section: label(img.OrderIndex), images: []string{img.ID}}
			d.add(ocr, img.OrderIndex)
			drafts = append(drafts, d)
			continue
		}

		d := &draft{kind: model.KindImage, page: img.Page, section: label(img.OrderIndex), images: []string{img.ID}}
		if ocr == "" {
			ocr = ImageCaption(img.Page)
		}
		d.add(ocr, img.OrderIndex)
		drafts = append(drafts, d)
	}
	return drafts
}

func nearestTextDraft(drafts []*draft, img model.Element) *draft {
	var before, after *draft
	for _, d := range drafts {
		if d.kind != model.KindText || d.page != img.Page {
			continue
		}
		if d.firstOrder < img.OrderIndex {
			if before == nil || d.firstOrder > before.firstOrder {
				before = d
			}
		} else if after == nil || d.firstOrder < after.firstOrder {
			after = d
		}
	}
	if before != nil {
		return before
	}
	return after
}
