// Package model 包含了应用的数据模型定义。
package model

// ElementKind 表示抽取出的内容单元类型。
type ElementKind string

const (
	KindText  ElementKind = "text"
	KindTable ElementKind = "table"
	KindImage ElementKind = "image"
)

// BBox 是页面坐标系中的矩形（PDF 坐标，原点在左下角）。
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Element 是从 PDF 中抽取出的一个内容单元，抽取完成后不可再修改。
// OrderIndex 反映阅读顺序。
type Element struct {
	ID   string      `json:"id"`
	Kind ElementKind `json:"kind"`
	Page int         `json:"page"`
	BBox *BBox       `json:"bbox,omitempty"`
	// Text 对文本块是原文，对表格是按行列序列化后的 markdown，对图片是 OCR 结果。
	Text string `json:"text"`
	// Data 仅图片使用，保存图片的原始字节。
	Data       []byte  `json:"-"`
	OrderIndex int     `json:"order_index"`
	FontSize   float64 `json:"font_size,omitempty"`
}

// Section 是由分类器推导出的逻辑章节，闭区间 [StartOrderIndex, EndOrderIndex]。
type Section struct {
	Label           string `json:"label"`
	StartOrderIndex int    `json:"start_order_index"`
	EndOrderIndex   int    `json:"end_order_index"`
}

// DefaultSectionLabel 用于第一个标题出现之前的元素。
const DefaultSectionLabel = "Body"
