// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/internal/pipeline"
	"pdf-vectorize-go/internal/repository"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/storage"
)

// ErrEmptyFile 表示上传的文件内容为空。
var ErrEmptyFile = errors.New("uploaded file is empty")

// FileService 接口定义了原始文件的存取操作。
type FileService interface {
	Upload(ctx context.Context, fileName, contentType string, data []byte) (*model.FileRecord, error)
	Get(ctx context.Context, key string) (*model.FileRecord, error)
	Delete(ctx context.Context, key string) error
}

type fileService struct {
	blobs storage.BlobStore
	repo  repository.DocumentRepository
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(blobs storage.BlobStore, repo repository.DocumentRepository) FileService {
	return &fileService{blobs: blobs, repo: repo}
}

// Upload 保存文件并登记，返回的记录中 FileKey 即后续向量化使用的键。
func (s *fileService) Upload(ctx context.Context, fileName, contentType string, data []byte) (*model.FileRecord, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	key, err := s.blobs.Put(ctx, data, fileName, contentType)
	if err != nil {
		return nil, &pipeline.StoreError{Op: "upload", Transient: true, Err: err}
	}
	log.Infof("[FileService] 文件已保存, Key: %s, FileName: %s, Size: %d", key, fileName, len(data))

	record := &model.FileRecord{
		FileKey:     key,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Status:      model.StatusUploaded,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// 登记失败不影响文件本身可用
		log.Warnf("[FileService] 登记文件失败, Key: %s: %v", key, err)
	}
	return record, nil
}

// Get 返回文件的登记记录。
func (s *fileService) Get(ctx context.Context, key string) (*model.FileRecord, error) {
	record, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &pipeline.NotFoundError{Key: key, Err: err}
		}
		return nil, err
	}
	return record, nil
}

// Delete 删除原始文件及其登记记录，向量记录需要通过指纹单独删除。
func (s *fileService) Delete(ctx context.Context, key string) error {
	if err := s.blobs.Delete(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &pipeline.NotFoundError{Key: key, Err: err}
		}
		return &pipeline.StoreError{Op: "delete blob", Transient: true, Err: err}
	}
	if err := s.repo.DeleteByKey(ctx, key); err != nil {
		log.Warnf("[FileService] 删除登记记录失败, Key: %s: %v", key, err)
	}
	log.Infof("[FileService] 文件已删除, Key: %s", key)
	return nil
}
