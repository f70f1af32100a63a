package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/vectorstore"
)

// Decision 是 HashGate 的判定结果。
type Decision int

const (
	// DecisionProceed 表示没有已有记录，直接向量化并写入。
	DecisionProceed Decision = iota
	// DecisionSkip 表示已处理过且未强制重载，直接返回已有记录 ID。
	DecisionSkip
	// DecisionReplace 表示已处理过但要求强制重载，替换已有记录。
	DecisionReplace
)

func (d Decision) String() string {
	switch d {
	case DecisionSkip:
		return "skip"
	case DecisionReplace:
		return "replace"
	}
	return "proceed"
}

// Fingerprint 返回原始文件字节的 SHA-256 十六进制摘要。
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GateResult 携带判定以及向量库中已有的记录 ID（按 chunk_index 排序）。
type GateResult struct {
	Decision    Decision
	ExistingIDs []string
}

// HashGate 是去重的唯一依据：每次请求都实时查询向量库，不做进程内缓存。
type HashGate struct {
	store vectorstore.Store
}

func NewHashGate(store vectorstore.Store) *HashGate {
	return &HashGate{store: store}
}

func (g *HashGate) Check(ctx context.Context, fingerprint string, force bool) (GateResult, error) {
	ids, err := g.store.IDsByFilter(ctx, model.Filter{model.FieldFingerprint: fingerprint})
	if err != nil {
		return GateResult{}, &StoreError{Op: "lookup", Transient: vectorstore.IsTransient(err), Err: err}
	}

	res := GateResult{ExistingIDs: ids}
	switch {
	case len(ids) == 0:
		res.Decision = DecisionProceed
	case force:
		res.Decision = DecisionReplace
	default:
		res.Decision = DecisionSkip
	}
	log.Infof("[HashGate] fingerprint: %s, 已有记录: %d, force: %t, 判定: %s", fingerprint, len(ids), force, res.Decision)
	return res, nil
}
