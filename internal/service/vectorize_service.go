package service

import (
	"context"
	"errors"
	"time"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/internal/pipeline"
	"pdf-vectorize-go/internal/repository"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/tasks"
)

// ErrAsyncDisabled 表示未配置 Kafka，异步接口不可用。
var ErrAsyncDisabled = errors.New("async vectorize is disabled")

// Vectorizer 由向量化流水线实现。
type Vectorizer interface {
	Vectorize(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	DeleteDocument(ctx context.Context, fingerprint string) (int, error)
}

// TaskProducer 把异步任务写入消息队列。
type TaskProducer interface {
	ProduceVectorizeTask(ctx context.Context, task tasks.VectorizeTask) error
}

// VectorizeService 接口定义了向量化相关的业务操作。
type VectorizeService interface {
	Vectorize(ctx context.Context, req model.VectorizeRequest) (*model.VectorizeResponse, error)
	VectorizeAsync(ctx context.Context, req model.VectorizeRequest) error
	DeleteDocument(ctx context.Context, fileHash string) (int, error)
}

type vectorizeService struct {
	vectorizer Vectorizer
	repo       repository.DocumentRepository
	producer   TaskProducer
}

// NewVectorizeService 创建一个新的 VectorizeService 实例。producer 为空时异步接口不可用。
func NewVectorizeService(vectorizer Vectorizer, repo repository.DocumentRepository, producer TaskProducer) VectorizeService {
	return &vectorizeService{vectorizer: vectorizer, repo: repo, producer: producer}
}

func (s *vectorizeService) Vectorize(ctx context.Context, req model.VectorizeRequest) (*model.VectorizeResponse, error) {
	res, err := s.vectorizer.Vectorize(ctx, pipeline.Request{
		Key:         req.Key,
		FileName:    s.fileName(ctx, req.Key),
		ForceReload: req.ForceReload,
	})
	if err != nil {
		return nil, err
	}
	return &model.VectorizeResponse{
		DocumentIDs:    res.DocumentIDs,
		FileHash:       res.FileHash,
		Skipped:        res.Skipped,
		SkippedChunks:  res.SkippedChunks,
		DeletedRecords: res.DeletedRecords,
	}, nil
}

func (s *vectorizeService) VectorizeAsync(ctx context.Context, req model.VectorizeRequest) error {
	if s.producer == nil {
		return ErrAsyncDisabled
	}
	task := tasks.VectorizeTask{
		Key:         req.Key,
		FileName:    s.fileName(ctx, req.Key),
		ForceReload: req.ForceReload,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.producer.ProduceVectorizeTask(ctx, task); err != nil {
		return &pipeline.StoreError{Op: "enqueue", Transient: true, Err: err}
	}
	log.Infof("[VectorizeService] 已提交异步向量化任务, Key: %s", req.Key)
	return nil
}

func (s *vectorizeService) DeleteDocument(ctx context.Context, fileHash string) (int, error) {
	return s.vectorizer.DeleteDocument(ctx, fileHash)
}

// fileName 从登记表取原始文件名，取不到时留空。
func (s *vectorizeService) fileName(ctx context.Context, key string) string {
	if s.repo == nil {
		return ""
	}
	record, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return ""
	}
	return record.FileName
}
