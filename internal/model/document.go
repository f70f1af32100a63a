package model

import "time"

// 文档登记状态。
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// FileRecord 对应于数据库中的 file_records 表，记录每个上传文件的元数据和处理状态。
// 它只用于展示，是否需要重新处理始终以向量库为准。
type FileRecord struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileKey     string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"fileKey"`
	FileName    string     `gorm:"type:varchar(255)" json:"fileName"`
	ContentType string     `gorm:"type:varchar(100)" json:"contentType"`
	Size        int64      `gorm:"not null" json:"size"`
	FileHash    string     `gorm:"type:varchar(64);index" json:"fileHash"`
	Status      string     `gorm:"type:varchar(20);not null;default:uploaded" json:"status"`
	ChunkCount  int        `gorm:"not null;default:0" json:"chunkCount"`
	LastError   string     `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	ProcessedAt *time.Time `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "file_records"
}
