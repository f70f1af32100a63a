// Package storage 提供按键存取原始文件的对象存储抽象，以及 MinIO、S3 和内存实现。
package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound 表示对象键不存在。
var ErrNotFound = errors.New("object not found")

// BlobStore 是对象存储需要提供的能力，键由存储层生成且不透明。
type BlobStore interface {
	Put(ctx context.Context, data []byte, fileName, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey 生成形如 prefix/<uuid>.pdf 的对象键，扩展名取自原始文件名。
func NewKey(prefix, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = ".pdf"
	}
	name := uuid.NewString() + ext
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
