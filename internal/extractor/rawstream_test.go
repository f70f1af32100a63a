package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"

	"pdf-vectorize-go/internal/model"
)

func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// buildImagePDF 生成一页只绘制一张 DCTDecode 图片的 PDF。
func buildImagePDF(jpg []byte) []byte {
	content := "q 200 0 0 150 72 500 cm /Im1 Do Q"
	objects := [][]byte{
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte("<< /Type /Pages /Kids [3 0 R] /Count 1 >>"),
		[]byte("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 5 0 R >> >> /Contents 4 0 R >>"),
		[]byte(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content)+1, content)),
		append(append([]byte(fmt.Sprintf(
			"<< /Type /XObject /Subtype /Image /Width 64 /Height 64 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n",
			len(jpg))), jpg...), []byte("\nendstream")...),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(obj)
		buf.WriteString("\nendobj\n")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

type recordingOCR struct {
	mu    sync.Mutex
	calls []string
	data  [][]byte
}

func (r *recordingOCR) Recognize(_ context.Context, img []byte, contentType string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, contentType)
	r.data = append(r.data, img)
	return "گزارش فروش", nil
}

func TestPDFLayoutParser_JPEGImageKeepsRawBytes(t *testing.T) {
	jpg := sampleJPEG(t)
	pages, err := NewPDFLayoutParser().Parse(context.Background(), buildImagePDF(jpg))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pages) != 1 || len(pages[0].Images) != 1 {
		t.Fatalf("pages = %+v", pages)
	}
	img := pages[0].Images[0]
	if img.ContentType != "image/jpeg" || !bytes.Equal(img.Data, jpg) {
		t.Fatalf("content type %q, %d bytes (want %d)", img.ContentType, len(img.Data), len(jpg))
	}
	if img.BBox == nil || img.BBox.X0 != 72 || img.BBox.Y1 != 650 {
		t.Fatalf("bbox = %+v", img.BBox)
	}
}

func TestExtract_JPEGImageIsRecognized(t *testing.T) {
	ocr := &recordingOCR{}
	els, err := New(NewPDFLayoutParser(), nil, ocr, 1).Extract(context.Background(), buildImagePDF(sampleJPEG(t)))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(ocr.calls) != 1 || ocr.calls[0] != "image/jpeg" {
		t.Fatalf("ocr calls = %v", ocr.calls)
	}
	if _, err := jpeg.Decode(bytes.NewReader(ocr.data[0])); err != nil {
		t.Fatalf("bytes sent to OCR are not a JPEG: %v", err)
	}
	if len(els) != 1 || els[0].Kind != model.KindImage || els[0].Text != "گزارش فروش" {
		t.Fatalf("elements = %+v", els)
	}
}

func TestStreamIndex_DictionaryMatching(t *testing.T) {
	data := []byte("5 0 obj\n<< /Subtype /Image /Width 64 /Height 64 /Filter [/FlateDecode /DCTDecode] /Length 4 >>\nstream\nabcd\nendstream\nendobj\n")
	idx := newStreamIndex(data)
	if len(idx.streams) != 1 {
		t.Fatalf("streams = %d", len(idx.streams))
	}
	if !dictMatches(idx.streams[0].dict, lengthPattern, 4) || dictMatches(idx.streams[0].dict, widthPattern, 32) {
		t.Fatal("dictionary matching by direct values is wrong")
	}
	if !dictMatches([]byte("/Length 9 0 R"), lengthPattern, 1234) {
		t.Fatal("indirect length should not reject a stream")
	}
}
