package extractor

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
)

// Extractor 组合版面解析、降级解析和 OCR。
type Extractor struct {
	primary  LayoutParser
	fallback LayoutParser
	ocr      OCR
	// slots 限制整个进程内同时进行的 CPU 密集型解析数量
	slots    *semaphore.Weighted
	ocrLimit int
}

// New 创建 Extractor。fallback 与 ocr 可以为 nil；workers 限制并发解析数。
func New(primary, fallback LayoutParser, ocr OCR, workers int) *Extractor {
	if workers <= 0 {
		workers = 1
	}
	return &Extractor{
		primary:  primary,
		fallback: fallback,
		ocr:      ocr,
		slots:    semaphore.NewWeighted(int64(workers)),
		ocrLimit: 4,
	}
}

// Extract 把 PDF 字节解析为按阅读顺序排列的元素。
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]model.Element, error) {
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	pages, err := e.parse(ctx, data)
	e.slots.Release(1)
	if err != nil {
		return nil, err
	}

	elements, contentTypes := buildElements(pages)
	if len(elements) == 0 {
		return nil, ErrNoElements
	}
	if err := e.recognize(ctx, elements, contentTypes); err != nil {
		return nil, err
	}
	return elements, nil
}

func (e *Extractor) parse(ctx context.Context, data []byte) ([]PageContent, error) {
	pages, err := e.primary.Parse(ctx, data)
	if err == nil && hasContent(pages) {
		return pages, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if e.fallback == nil {
		if err != nil {
			return nil, err
		}
		return pages, nil
	}

	if err != nil {
		log.Warnf("[Extractor] 版面解析失败, 改用纯文本策略: %v", err)
	} else {
		log.Warnf("[Extractor] 版面解析未得到内容, 改用纯文本策略")
	}
	fallbackPages, ferr := e.fallback.Parse(ctx, data)
	if ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("%w (fallback: %v)", err, ferr)
		}
		return nil, fmt.Errorf("%w: fallback: %v", ErrNoElements, ferr)
	}
	return fallbackPages, nil
}

func hasContent(pages []PageContent) bool {
	for _, p := range pages {
		if len(p.Lines) > 0 || len(p.Images) > 0 {
			return true
		}
	}
	return false
}

type placed struct {
	top float64
	el  model.Element
}

// buildElements 在每页内按自上而下的位置排序，然后连续编号。
// 第二个返回值记录图片元素 ID 到图片 content type 的映射。
func buildElements(pages []PageContent) ([]model.Element, map[string]string) {
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })

	var out []model.Element
	contentTypes := make(map[string]string)
	for _, page := range pages {
		var items []placed
		for _, seg := range segmentLines(page.Lines) {
			el := model.Element{
				ID:       uuid.NewString(),
				Kind:     model.KindText,
				Page:     page.Number,
				BBox:     linesBBox(seg.lines),
				FontSize: avgFont(seg.lines),
			}
			if seg.table {
				el.Kind = model.KindTable
				el.Text = tableMarkdown(seg.lines)
			} else {
				el.Text = blockText(seg.lines)
			}
			items = append(items, placed{top: seg.lines[0].Y + seg.lines[0].FontSize, el: el})
		}
		for _, img := range page.Images {
			top := -math.MaxFloat64
			if img.BBox != nil {
				top = math.Max(img.BBox.Y0, img.BBox.Y1)
			}
			id := uuid.NewString()
			contentTypes[id] = img.ContentType
			items = append(items, placed{top: top, el: model.Element{
				ID:   id,
				Kind: model.KindImage,
				Page: page.Number,
				BBox: img.BBox,
				Data: img.Data,
			}})
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].top > items[j].top })
		for _, it := range items {
			it.el.OrderIndex = len(out)
			out = append(out, it.el)
		}
	}
	return out, contentTypes
}

func linesBBox(lines []Line) *model.BBox {
	if len(lines) == 0 || (lines[0].X0 == 0 && lines[0].X1 == 0) {
		return nil
	}
	b := &model.BBox{X0: math.MaxFloat64, Y0: math.MaxFloat64, X1: -math.MaxFloat64, Y1: -math.MaxFloat64}
	for _, l := range lines {
		b.X0 = math.Min(b.X0, l.X0)
		b.X1 = math.Max(b.X1, l.X1)
		b.Y0 = math.Min(b.Y0, l.Y)
		b.Y1 = math.Max(b.Y1, l.Y+l.FontSize)
	}
	return b
}

func avgFont(lines []Line) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.FontSize
	}
	return sum / float64(len(lines))
}

// recognize 对图片元素并发执行 OCR。单张图片失败只记录日志，文本留空。
func (e *Extractor) recognize(ctx context.Context, elements []model.Element, contentTypes map[string]string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.ocrLimit)

	for i := range elements {
		el := &elements[i]
		if el.Kind != model.KindImage {
			continue
		}
		contentType := contentTypes[el.ID]
		if e.ocr == nil || len(el.Data) == 0 {
			continue
		}
		g.Go(func() error {
			text, err := e.ocr.Recognize(gctx, el.Data, contentType)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warnf("[Extractor] 第 %d 页图片 OCR 失败, 按空文本处理: %v", el.Page, err)
				return nil
			}
			el.Text = text
			return nil
		})
	}
	return g.Wait()
}
