package model

// SearchRequest 是搜索接口的请求体。
type SearchRequest struct {
	Query    string `json:"query" binding:"required"`
	Limit    int    `json:"limit"`
	FileHash string `json:"file_hash"`
}

// SearchResponseDTO 定义了返回给调用方的搜索结果结构。
type SearchResponseDTO struct {
	ID              string   `json:"id"`
	Score           float64  `json:"score"`
	Text            string   `json:"text"`
	Page            int      `json:"page"`
	Section         string   `json:"section"`
	ContentType     string   `json:"content_type"`
	FileHash        string   `json:"file_hash"`
	FileKey         string   `json:"file_key"`
	RelatedImageIDs []string `json:"related_image_ids"`
}

// VectorizeRequest 是向量化接口的请求体。
type VectorizeRequest struct {
	Key         string `json:"key" binding:"required"`
	ForceReload bool   `json:"force_reload"`
}

// VectorizeResponse 是向量化接口的返回结果。
type VectorizeResponse struct {
	DocumentIDs []string `json:"document_ids"`
	FileHash    string   `json:"file_hash"`
	// Skipped 为 true 表示文档此前已处理，本次未重新向量化。
	Skipped        bool `json:"skipped"`
	SkippedChunks  int  `json:"skipped_chunks,omitempty"`
	DeletedRecords int  `json:"deleted_records,omitempty"`
}
