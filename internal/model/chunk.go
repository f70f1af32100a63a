package model

// Chunk 是向量化与存储的最小单元，由一个或多个连续元素派生。
type Chunk struct {
	ID              string                 `json:"id"`
	Text            string                 `json:"text"`
	Page            int                    `json:"page"`
	Section         string                 `json:"section"`
	ContentType     ElementKind            `json:"content_type"`
	RelatedImageIDs []string               `json:"related_image_ids"`
	Metadata        map[string]interface{} `json:"metadata"`
	// Index 是分块在文档中的顺序。
	Index int `json:"chunk_index"`
}
