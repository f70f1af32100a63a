// Package pipeline 定义了 PDF 向量化的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pdf-vectorize-go/internal/extractor"
	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/lock"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/storage"
	"pdf-vectorize-go/pkg/tasks"
	"pdf-vectorize-go/pkg/vectorstore"
)

var tracer = otel.Tracer("pdf-vectorize-go/pipeline")

// ContentExtractor 把 PDF 字节解析为按阅读顺序排列的元素。
type ContentExtractor interface {
	Extract(ctx context.Context, data []byte) ([]model.Element, error)
}

// Registry 记录文件的处理状态，仅用于展示，不参与去重判定。
type Registry interface {
	MarkProcessing(ctx context.Context, key, fileHash string) error
	MarkCompleted(ctx context.Context, key string, chunkCount int) error
	MarkFailed(ctx context.Context, key string, cause error) error
}

// Dependencies 汇总 Processor 需要的协作者。Registry 可以为空。
type Dependencies struct {
	Blobs      storage.BlobStore
	Store      vectorstore.Store
	Extractor  ContentExtractor
	Classifier SectionClassifier
	Chunker    *ChunkBuilder
	Embedder   *EmbeddingCoordinator
	Locker     lock.Locker
	Registry   Registry
	LockTTL    time.Duration
	Timeout    time.Duration
}

// Request 是一次向量化请求。
type Request struct {
	Key         string
	FileName    string
	ForceReload bool
}

// Result 是一次向量化的结果。
type Result struct {
	DocumentIDs    []string
	FileHash       string
	Skipped        bool
	SkippedChunks  int
	DeletedRecords int
}

// Processor 串联各个阶段：下载、指纹、加锁、判定、抽取、分章节、分块、向量化、写入。
type Processor struct {
	blobs      storage.BlobStore
	store      vectorstore.Store
	extractor  ContentExtractor
	classifier SectionClassifier
	chunker    *ChunkBuilder
	gate       *HashGate
	embedder   *EmbeddingCoordinator
	upserter   *UpsertCoordinator
	locker     lock.Locker
	registry   Registry
	lockTTL    time.Duration
	timeout    time.Duration
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(d Dependencies) *Processor {
	if d.LockTTL <= 0 {
		d.LockTTL = 10 * time.Minute
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	return &Processor{
		blobs:      d.Blobs,
		store:      d.Store,
		extractor:  d.Extractor,
		classifier: d.Classifier,
		chunker:    d.Chunker,
		gate:       NewHashGate(d.Store),
		embedder:   d.Embedder,
		upserter:   NewUpsertCoordinator(d.Store),
		locker:     d.Locker,
		registry:   d.Registry,
		lockTTL:    d.LockTTL,
		timeout:    d.Timeout,
	}
}

// Vectorize 按文件键执行完整的向量化流程。
func (p *Processor) Vectorize(ctx context.Context, req Request) (*Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "pipeline.vectorize", trace.WithAttributes(
		attribute.String("file.key", req.Key),
		attribute.Bool("force_reload", req.ForceReload),
	))
	defer span.End()

	log.Infof("[Processor] 开始处理文件, Key: %s, ForceReload: %t", req.Key, req.ForceReload)
	res, err := p.vectorize(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("[Processor] 文件处理失败, Key: %s, Error: %v", req.Key, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("file.hash", res.FileHash),
		attribute.Int("records", len(res.DocumentIDs)),
		attribute.Bool("skipped", res.Skipped),
	)
	log.Infof("[Processor] 文件处理完成, Key: %s, FileHash: %s, 记录数: %d, Skipped: %t",
		req.Key, res.FileHash, len(res.DocumentIDs), res.Skipped)
	return res, nil
}

func (p *Processor) vectorize(ctx context.Context, req Request) (*Result, error) {
	data, err := p.download(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	fingerprint := Fingerprint(data)

	release, err := p.locker.TryLock(ctx, fingerprint, p.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, ErrProcessingInProgress
		}
		return nil, &StoreError{Op: "lock", Transient: true, Err: err}
	}
	defer func() {
		// 使用独立上下文，请求超时后锁依然能被释放
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			log.Warnf("[Processor] 释放锁失败, FileHash: %s: %v", fingerprint, err)
		}
	}()

	gate, err := p.gate.Check(ctx, fingerprint, req.ForceReload)
	if err != nil {
		return nil, err
	}
	if gate.Decision == DecisionSkip {
		p.markCompleted(req.Key, len(gate.ExistingIDs))
		return &Result{DocumentIDs: gate.ExistingIDs, FileHash: fingerprint, Skipped: true}, nil
	}

	p.markProcessing(req.Key, fingerprint)
	res, err := p.process(ctx, req, data, fingerprint, gate.Decision == DecisionReplace)
	if err != nil {
		p.markFailed(req.Key, err)
		return nil, err
	}
	p.markCompleted(req.Key, len(res.DocumentIDs))
	return res, nil
}

func (p *Processor) download(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "pipeline.download")
	defer span.End()

	data, err := p.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Key: key, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &StoreError{Op: "download", Transient: true, Err: err}
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, Key: %s, 大小: %d 字节", key, len(data))
	if len(data) == 0 {
		return nil, &ExtractionError{Reason: "empty file"}
	}
	return data, nil
}

func (p *Processor) process(ctx context.Context, req Request, data []byte, fingerprint string, replace bool) (*Result, error) {
	elements, err := p.extract(ctx, data)
	if err != nil {
		return nil, err
	}

	sections := p.classifier.Classify(elements)
	log.Infof("[Processor] 步骤3: 章节划分完成, 共 %d 个章节", len(sections))

	chunks, oversized := p.chunker.Build(elements, sections)
	log.Infof("[Processor] 步骤4: 分块完成, 共 %d 个分块, 跳过超长分块 %d 个", len(chunks), len(oversized))
	if len(chunks) == 0 {
		return nil, &ExtractionError{Reason: "no chunks produced"}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	ectx, span := tracer.Start(ctx, "pipeline.embed", trace.WithAttributes(attribute.Int("chunks", len(texts))))
	vectors, err := p.embedder.Embed(ectx, texts)
	span.End()
	if err != nil {
		return nil, err
	}
	log.Infof("[Processor] 步骤5: 向量化完成, 共 %d 个向量", len(vectors))

	// 超时或取消之后不再写入任何记录
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := BuildRecords(chunks, vectors, DocumentMeta{
		Fingerprint:  fingerprint,
		FileKey:      req.Key,
		FileName:     req.FileName,
		Generation:   uuid.NewString(),
		ModelVersion: p.embedder.Model(),
		CreatedAt:    time.Now().UTC(),
	})
	uctx, span := tracer.Start(ctx, "pipeline.upsert", trace.WithAttributes(attribute.Bool("replace", replace)))
	ids, deleted, err := p.upserter.Write(uctx, fingerprint, records, replace)
	span.End()
	if err != nil {
		return nil, err
	}
	log.Infof("[Processor] 步骤6: 写入向量库完成, 新记录 %d 条, 删除旧记录 %d 条", len(ids), deleted)

	return &Result{
		DocumentIDs:    ids,
		FileHash:       fingerprint,
		SkippedChunks:  len(oversized),
		DeletedRecords: deleted,
	}, nil
}

func (p *Processor) extract(ctx context.Context, data []byte) ([]model.Element, error) {
	ctx, span := tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	elements, err := p.extractor.Extract(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := "parse failed"
		switch {
		case errors.Is(err, extractor.ErrNotPDF):
			reason = "not a parseable PDF"
		case errors.Is(err, extractor.ErrNoElements):
			reason = "no extractable elements"
		}
		return nil, &ExtractionError{Reason: reason, Err: err}
	}
	span.SetAttributes(attribute.Int("elements", len(elements)))
	log.Infof("[Processor] 步骤2: 内容抽取完成, 共 %d 个元素", len(elements))
	return elements, nil
}

// DeleteDocument 删除某个指纹下的全部向量记录，与向量化共用同一把锁。
func (p *Processor) DeleteDocument(ctx context.Context, fingerprint string) (int, error) {
	release, err := p.locker.TryLock(ctx, fingerprint, p.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return 0, ErrProcessingInProgress
		}
		return 0, &StoreError{Op: "lock", Transient: true, Err: err}
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			log.Warnf("[Processor] 释放锁失败, FileHash: %s: %v", fingerprint, err)
		}
	}()

	n, err := p.store.DeleteByFilter(ctx, model.Filter{model.FieldFingerprint: fingerprint})
	if err != nil {
		return 0, storeErr("delete", err)
	}
	log.Infof("[Processor] 已删除指纹 %s 的记录 %d 条", fingerprint, n)
	return n, nil
}

// Process 供 Kafka 消费者调用，执行与同步接口相同的向量化流程。
func (p *Processor) Process(ctx context.Context, task tasks.VectorizeTask) error {
	_, err := p.Vectorize(ctx, Request{Key: task.Key, FileName: task.FileName, ForceReload: task.ForceReload})
	if err != nil {
		return fmt.Errorf("vectorize %s: %w", task.Key, err)
	}
	return nil
}

func (p *Processor) markProcessing(key, fingerprint string) {
	if p.registry == nil {
		return
	}
	if err := p.registry.MarkProcessing(context.Background(), key, fingerprint); err != nil {
		log.Warnf("[Processor] 更新文件状态失败, Key: %s: %v", key, err)
	}
}

func (p *Processor) markCompleted(key string, chunks int) {
	if p.registry == nil {
		return
	}
	if err := p.registry.MarkCompleted(context.Background(), key, chunks); err != nil {
		log.Warnf("[Processor] 更新文件状态失败, Key: %s: %v", key, err)
	}
}

func (p *Processor) markFailed(key string, cause error) {
	if p.registry == nil {
		return
	}
	if err := p.registry.MarkFailed(context.Background(), key, cause); err != nil {
		log.Warnf("[Processor] 更新文件状态失败, Key: %s: %v", key, err)
	}
}
