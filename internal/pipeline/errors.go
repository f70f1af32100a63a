package pipeline

import (
	"errors"
	"fmt"
)

// ErrProcessingInProgress 表示同一指纹的文档正在被另一个请求处理。
var ErrProcessingInProgress = errors.New("document with the same fingerprint is being processed")

// ExtractionError 表示文件不是可解析的 PDF，或者没有抽取到任何元素。
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ChunkTooLargeError 表示分块超过了 embedding 输入上限，该分块会被跳过。
type ChunkTooLargeError struct {
	Page  int
	Chars int
	Limit int
}

func (e *ChunkTooLargeError) Error() string {
	return fmt.Sprintf("chunk on page %d has %d chars, exceeds hard limit %d", e.Page, e.Chars, e.Limit)
}

// EmbeddingError 表示模型供应商在重试耗尽后仍然失败。
type EmbeddingError struct {
	Batch    int
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding batch %d failed after %d attempts: %v", e.Batch, e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreError 表示向量库或对象存储不可用。
type StoreError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NotFoundError 表示文件键不存在。
type NotFoundError struct {
	Key string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %q not found", e.Key)
}

func (e *NotFoundError) Unwrap() error { return e.Err }
