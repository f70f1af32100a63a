package model

import "time"

// Payload 是随向量一起写入向量库的元数据。
type Payload struct {
	ChunkID         string                 `json:"chunk_id"`
	Fingerprint     string                 `json:"fingerprint"`
	FileKey         string                 `json:"file_key"`
	FileName        string                 `json:"file_name,omitempty"`
	Generation      string                 `json:"generation"`
	ChunkIndex      int                    `json:"chunk_index"`
	Text            string                 `json:"text"`
	Page            int                    `json:"page"`
	Section         string                 `json:"section"`
	ContentType     string                 `json:"content_type"`
	RelatedImageIDs []string               `json:"related_image_ids"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	ModelVersion    string                 `json:"model_version"`
	CreatedAt       time.Time              `json:"created_at"`
}

// VectorRecord 是向量库中的一条记录，ID 与 Chunk.ID 相同。
type VectorRecord struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Filter 字段名到取值的等值过滤条件。
type Filter map[string]string

// FieldFingerprint 是指纹在 payload 中的字段名。
const FieldFingerprint = "fingerprint"

// ScoredRecord 是一次向量查询的命中结果。
type ScoredRecord struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}
