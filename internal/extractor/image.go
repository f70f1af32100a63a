package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/ledongthuc/pdf"
)

var errUnsupportedImage = errors.New("unsupported image encoding")

// decodeImage 把 FlateDecode（或未压缩）的 8 位灰度/RGB/CMYK 图片转为 PNG。
// JPEG / JPEG 2000 由 streamIndex 原样取出；CCITT、JBIG2 等编码返回 errUnsupportedImage。
func decodeImage(v pdf.Value) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errUnsupportedImage, r)
		}
	}()

	if f := lastFilter(v.Key("Filter")); f != "" && f != "FlateDecode" {
		return nil, fmt.Errorf("%w: filter %s", errUnsupportedImage, f)
	}
	if bpc := v.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("%w: %d bits per component", errUnsupportedImage, bpc)
	}
	comps := colorComponents(v.Key("ColorSpace"))
	if comps == 0 {
		return nil, fmt.Errorf("%w: color space %v", errUnsupportedImage, v.Key("ColorSpace"))
	}

	w, h := int(v.Key("Width").Int64()), int(v.Key("Height").Int64())
	rd := v.Reader()
	defer rd.Close()
	raw, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	return encodePNG(raw, w, h, comps)
}

func lastFilter(f pdf.Value) string {
	switch f.Kind() {
	case pdf.Name:
		return f.Name()
	case pdf.Array:
		if f.Len() > 0 {
			return f.Index(f.Len() - 1).Name()
		}
	}
	return ""
}

func colorComponents(cs pdf.Value) int {
	name := cs.Name()
	if cs.Kind() == pdf.Array && cs.Len() > 0 {
		name = cs.Index(0).Name()
		if name == "ICCBased" && cs.Len() > 1 {
			return int(cs.Index(1).Key("N").Int64())
		}
	}
	switch name {
	case "DeviceGray", "CalGray":
		return 1
	case "DeviceRGB", "CalRGB":
		return 3
	case "DeviceCMYK":
		return 4
	}
	return 0
}

// encodePNG 按分量数把原始像素写成 PNG。
func encodePNG(raw []byte, w, h, comps int) ([]byte, error) {
	if w <= 0 || h <= 0 || len(raw) < w*h*comps {
		return nil, fmt.Errorf("%w: %d bytes for %dx%dx%d", errUnsupportedImage, len(raw), w, h, comps)
	}

	var img image.Image
	rect := image.Rect(0, 0, w, h)
	switch comps {
	case 1:
		g := image.NewGray(rect)
		copy(g.Pix, raw[:w*h])
		img = g
	case 3:
		rgba := image.NewRGBA(rect)
		for i := 0; i < w*h; i++ {
			rgba.Pix[i*4] = raw[i*3]
			rgba.Pix[i*4+1] = raw[i*3+1]
			rgba.Pix[i*4+2] = raw[i*3+2]
			rgba.Pix[i*4+3] = 0xff
		}
		img = rgba
	case 4:
		cmyk := image.NewCMYK(rect)
		copy(cmyk.Pix, raw[:w*h*4])
		img = cmyk
	default:
		return nil, errUnsupportedImage
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
