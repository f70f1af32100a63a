// Package app 根据配置组装存储、向量库、embedding 客户端和向量化流水线，
// HTTP 服务和命令行工具共用这一套装配逻辑。
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"pdf-vectorize-go/internal/config"
	"pdf-vectorize-go/internal/extractor"
	"pdf-vectorize-go/internal/pipeline"
	"pdf-vectorize-go/internal/repository"
	"pdf-vectorize-go/pkg/database"
	"pdf-vectorize-go/pkg/embedding"
	"pdf-vectorize-go/pkg/es"
	"pdf-vectorize-go/pkg/lock"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/pgvector"
	"pdf-vectorize-go/pkg/storage"
	"pdf-vectorize-go/pkg/tika"
	"pdf-vectorize-go/pkg/vectorstore"
)

// App 持有装配好的组件。
type App struct {
	Config    config.Config
	Blobs     storage.BlobStore
	Store     vectorstore.Store
	Embedder  *pipeline.EmbeddingCoordinator
	Processor *pipeline.Processor
	Repo      repository.DocumentRepository
	Redis     *redis.Client

	closers []func() error
}

// New 按配置装配全部组件。任何一个后端初始化失败都会返回错误并释放已打开的资源。
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.init(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg config.Config) (err error) {
	if cfg.Database.MySQL.DSN != "" {
		db, err := database.InitMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			return err
		}
		a.Repo = repository.NewDocumentRepository(db)
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
	} else {
		log.Warnf("[App] 未配置 MySQL, 文件登记表使用内存实现")
		a.Repo = repository.NewMemoryDocumentRepository()
	}

	var locker lock.Locker
	if cfg.Database.Redis.Addr != "" {
		rdb, err := database.InitRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
		locker = lock.NewRedisLocker(rdb)
	} else {
		log.Warnf("[App] 未配置 Redis, 指纹锁只在本进程内生效")
		locker = lock.NewLocalLocker()
	}

	if a.Blobs, err = newBlobStore(ctx, cfg); err != nil {
		return err
	}

	client, err := embedding.NewClient(ctx, cfg.Embedding)
	if err != nil {
		return err
	}
	a.Embedder = pipeline.NewEmbeddingCoordinator(client, cfg.Embedding.BatchSize, cfg.Embedding.Concurrency,
		cfg.Embedding.MaxAttempts, cfg.Embedding.InitialBackoff)

	if a.Store, err = a.newVectorStore(ctx, cfg); err != nil {
		return err
	}

	var ocr extractor.OCR
	if cfg.Tika.ServerURL != "" {
		ocr = tika.NewClient(cfg.Tika, cfg.Pipeline.OCRLanguages)
	}
	ext := extractor.New(extractor.NewPDFLayoutParser(), extractor.NewDocconvFallbackParser(), ocr, cfg.Pipeline.ExtractWorkers)

	a.Processor = pipeline.NewProcessor(pipeline.Dependencies{
		Blobs:      a.Blobs,
		Store:      a.Store,
		Extractor:  ext,
		Classifier: pipeline.NewHeuristicClassifier(cfg.Pipeline.SectionKeywords),
		Chunker:    pipeline.NewChunkBuilder(cfg.Pipeline.MaxChunkChars, cfg.Pipeline.HardMaxChars),
		Embedder:   a.Embedder,
		Locker:     locker,
		Registry:   a.Repo,
		LockTTL:    cfg.Pipeline.LockTTL,
		Timeout:    cfg.Pipeline.VectorizeTimeout,
	})
	log.Infof("[App] 组件装配完成, storage: %s, vectorstore: %s, embedding: %s/%s",
		cfg.Storage.Backend, cfg.VectorStore.Backend, cfg.Embedding.Provider, a.Embedder.Model())
	return nil
}

func newBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "", "minio":
		return storage.NewMinioStore(ctx, cfg.MinIO, cfg.Storage.Prefix)
	case "s3":
		return storage.NewS3Store(ctx, cfg.S3, cfg.Storage.Prefix)
	case "memory":
		return storage.NewMemoryStore(cfg.Storage.Prefix), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func (a *App) newVectorStore(ctx context.Context, cfg config.Config) (vectorstore.Store, error) {
	dims := cfg.Embedding.Dimensions
	var store vectorstore.Store
	switch cfg.VectorStore.Backend {
	case "", "elasticsearch":
		s, err := es.NewStore(ctx, cfg.Elasticsearch, dims)
		if err != nil {
			return nil, err
		}
		store = s
	case "pgvector":
		s, err := pgvector.NewStore(ctx, cfg.PGVector, dims)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		store = s
	case "memory":
		store = vectorstore.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
	return vectorstore.NewRetrying(store, cfg.VectorStore.MaxAttempts, cfg.VectorStore.InitialBackoff), nil
}

// Close 释放数据库和 Redis 连接。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("[App] 关闭资源失败: %v", err)
		}
	}
	a.closers = nil
}
