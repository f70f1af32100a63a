package pipeline

import (
	"strings"
	"testing"

	"pdf-vectorize-go/internal/model"
)

func TestChunkBuilder_TableNeverSplit(t *testing.T) {
	table := "| k | v |\n| --- | --- |\n" + strings.Repeat("| key | value |\n", 20)
	els := []model.Element{
		{Kind: model.KindText, Page: 1, Text: "before", OrderIndex: 0},
		{Kind: model.KindTable, Page: 1, Text: table, OrderIndex: 1},
		{Kind: model.KindText, Page: 1, Text: "after", OrderIndex: 2},
	}
	chunks, oversized := NewChunkBuilder(50, 0).Build(els, nil)
	if len(oversized) != 0 {
		t.Fatalf("unexpected oversized: %v", oversized)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	tables := 0
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		if c.ContentType == model.KindTable {
			tables++
			if c.Text != table {
				t.Fatalf("table text changed: %q", c.Text)
			}
		}
	}
	if tables != 1 || chunks[1].ContentType != model.KindTable {
		t.Fatalf("table chunk misplaced: %+v", chunks)
	}
}

func TestChunkBuilder_SoftLimitPagesAndSections(t *testing.T) {
	a := strings.Repeat("a", 30)
	els := []model.Element{
		{Kind: model.KindText, Page: 1, Text: a, OrderIndex: 0},
		{Kind: model.KindText, Page: 1, Text: a, OrderIndex: 1},
		{Kind: model.KindText, Page: 1, Text: a, OrderIndex: 2},
		{Kind: model.KindText, Page: 2, Text: "next page", OrderIndex: 3},
		{Kind: model.KindText, Page: 2, Text: "Methods", OrderIndex: 4},
		{Kind: model.KindText, Page: 2, Text: "method body", OrderIndex: 5},
	}
	sections := []model.Section{
		{Label: model.DefaultSectionLabel, StartOrderIndex: 0, EndOrderIndex: 3},
		{Label: "Methods", StartOrderIndex: 4, EndOrderIndex: 5},
	}
	chunks, _ := NewChunkBuilder(70, 0).Build(els, sections)

	want := []struct {
		text    string
		page    int
		section string
	}{
		{a + "\n" + a, 1, model.DefaultSectionLabel},
		{a, 1, model.DefaultSectionLabel},
		{"next page", 2, model.DefaultSectionLabel},
		{"Methods\nmethod body", 2, "Methods"},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	for i, w := range want {
		c := chunks[i]
		if c.Text != w.text || c.Page != w.page || c.Section != w.section {
			t.Fatalf("chunk %d = %+v, want %+v", i, c, w)
		}
		if c.RelatedImageIDs == nil {
			t.Fatalf("chunk %d has nil related images", i)
		}
	}
}

func TestChunkBuilder_ImageAttachment(t *testing.T) {
	els := []model.Element{
		{ID: "t1", Kind: model.KindText, Page: 1, Text: "figure discussion", OrderIndex: 0},
		{ID: "img1", Kind: model.KindImage, Page: 1, Text: "chart label", OrderIndex: 1},
		{ID: "img2", Kind: model.KindImage, Page: 2, OrderIndex: 2},
	}
	chunks, _ := NewChunkBuilder(1500, 0).Build(els, nil)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}

	host := chunks[0]
	if host.ContentType != model.KindText || len(host.RelatedImageIDs) != 1 || host.RelatedImageIDs[0] != "img1" {
		t.Fatalf("host chunk = %+v", host)
	}
	if !strings.Contains(host.Text, "chart label") {
		t.Fatalf("OCR text not attached: %q", host.Text)
	}

	standalone := chunks[1]
	if standalone.ContentType != model.KindImage || standalone.Page != 2 || standalone.Text != ImageCaption(2) {
		t.Fatalf("standalone chunk = %+v", standalone)
	}
	if len(standalone.RelatedImageIDs) != 1 || standalone.RelatedImageIDs[0] != "img2" {
		t.Fatalf("standalone related = %v", standalone.RelatedImageIDs)
	}
}

func TestChunkBuilder_ImageBeforeTextAttachesToNext(t *testing.T) {
	els := []model.Element{
		{ID: "img", Kind: model.KindImage, Page: 1, OrderIndex: 0},
		{Kind: model.KindText, Page: 1, Text: "caption below", OrderIndex: 1},
	}
	chunks, _ := NewChunkBuilder(1500, 0).Build(els, nil)
	if len(chunks) != 1 || len(chunks[0].RelatedImageIDs) != 1 {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestChunkBuilder_HardLimitSkips(t *testing.T) {
	els := []model.Element{
		{Kind: model.KindTable, Page: 3, Text: strings.Repeat("x", 200), OrderIndex: 0},
		{Kind: model.KindText, Page: 3, Text: "small", OrderIndex: 1},
	}
	chunks, oversized := NewChunkBuilder(50, 100).Build(els, nil)
	if len(oversized) != 1 || oversized[0].Page != 3 || oversized[0].Chars != 200 {
		t.Fatalf("oversized = %v", oversized)
	}
	if len(chunks) != 1 || chunks[0].Text != "small" || chunks[0].Index != 0 {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestChunkBuilder_LongOCRDoesNotDropHostText(t *testing.T) {
	paragraph := "Quarterly revenue grew in the north"
	ocr := strings.Repeat("متن تصویر ", 8)
	els := []model.Element{
		{Kind: model.KindText, Page: 1, Text: paragraph, OrderIndex: 0},
		{ID: "img-1", Kind: model.KindImage, Page: 1, Text: ocr, OrderIndex: 1},
	}
	chunks, oversized := NewChunkBuilder(1500, 100).Build(els, nil)
	if len(oversized) != 0 {
		t.Fatalf("unexpected oversized: %v", oversized)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	host, image := chunks[0], chunks[1]
	if host.Text != paragraph || len(host.RelatedImageIDs) != 1 || host.RelatedImageIDs[0] != "img-1" {
		t.Fatalf("host chunk = %+v", host)
	}
	if image.ContentType != model.KindImage || image.Text != strings.TrimSpace(ocr) || image.Page != 1 {
		t.Fatalf("image chunk = %+v", image)
	}
}
