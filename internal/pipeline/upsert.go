package pipeline

import (
	"context"
	"time"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/vectorstore"
)

// upsertBatchSize 是非事务写入时单次请求的记录数。
const upsertBatchSize = 256

// DocumentMeta 是写入每条记录的文档级元数据。
type DocumentMeta struct {
	Fingerprint  string
	FileKey      string
	FileName     string
	Generation   string
	ModelVersion string
	CreatedAt    time.Time
}

// BuildRecords 由分块、向量与文档元数据组装向量记录，记录 ID 等于分块 ID。
func BuildRecords(chunks []model.Chunk, vectors [][]float32, meta DocumentMeta) []model.VectorRecord {
	records := make([]model.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = model.VectorRecord{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: model.Payload{
				ChunkID:         c.ID,
				Fingerprint:     meta.Fingerprint,
				FileKey:         meta.FileKey,
				FileName:        meta.FileName,
				Generation:      meta.Generation,
				ChunkIndex:      c.Index,
				Text:            c.Text,
				Page:            c.Page,
				Section:         c.Section,
				ContentType:     string(c.ContentType),
				RelatedImageIDs: c.RelatedImageIDs,
				Metadata:        c.Metadata,
				ModelVersion:    meta.ModelVersion,
				CreatedAt:       meta.CreatedAt,
			},
		}
	}
	return records
}

// UpsertCoordinator 负责把一代记录写入向量库，并在替换时移除同一指纹的旧记录。
type UpsertCoordinator struct {
	store vectorstore.Store
}

func NewUpsertCoordinator(store vectorstore.Store) *UpsertCoordinator {
	return &UpsertCoordinator{store: store}
}

// Write 写入记录并返回新记录 ID 与删除的旧记录数。
// replace 为 true 时：后端支持事务则在一个事务内删旧写新；
// 否则先删除再写入，写入失败时该指纹下没有任何记录，下次请求会完整重新处理。
func (u *UpsertCoordinator) Write(ctx context.Context, fingerprint string, records []model.VectorRecord, replace bool) ([]string, int, error) {
	filter := model.Filter{model.FieldFingerprint: fingerprint}
	deleted := 0

	if replace {
		if rep, ok := vectorstore.AsReplacer(u.store); ok {
			n, err := rep.Replace(ctx, filter, records)
			if err != nil {
				return nil, 0, storeErr("replace", err)
			}
			return recordIDs(records), n, nil
		}

		n, err := u.store.DeleteByFilter(ctx, filter)
		if err != nil {
			return nil, 0, storeErr("delete", err)
		}
		deleted = n
		log.Infof("[UpsertCoordinator] 已删除指纹 %s 的旧记录 %d 条", fingerprint, n)
	}

	if err := u.upsertAll(ctx, records); err != nil {
		if replace {
			log.Errorf("[UpsertCoordinator] 旧记录已删除但写入失败, 指纹 %s 当前没有记录, 重新提交即可恢复: %v", fingerprint, err)
		}
		u.discardGeneration(fingerprint, records)
		return nil, deleted, storeErr("upsert", err)
	}
	return recordIDs(records), deleted, nil
}

func (u *UpsertCoordinator) upsertAll(ctx context.Context, records []model.VectorRecord) error {
	for start := 0; start < len(records); start += upsertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+upsertBatchSize, len(records))
		if err := u.store.Upsert(ctx, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// discardGeneration 清理部分写入的本代记录，避免下次请求把不完整的文档当作已处理。
func (u *UpsertCoordinator) discardGeneration(fingerprint string, records []model.VectorRecord) {
	if len(records) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	filter := model.Filter{
		model.FieldFingerprint: fingerprint,
		"generation":           records[0].Payload.Generation,
	}
	if n, err := u.store.DeleteByFilter(ctx, filter); err != nil {
		log.Errorf("[UpsertCoordinator] 清理部分写入的记录失败, 指纹 %s: %v", fingerprint, err)
	} else if n > 0 {
		log.Warnf("[UpsertCoordinator] 已清理部分写入的记录 %d 条, 指纹 %s", n, fingerprint)
	}
}

func recordIDs(records []model.VectorRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func storeErr(op string, err error) error {
	if _, ok := err.(*StoreError); ok {
		return err
	}
	return &StoreError{Op: op, Transient: vectorstore.IsTransient(err), Err: err}
}
