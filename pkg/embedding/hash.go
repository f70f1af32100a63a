package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashClient 是本地的特征哈希向量化器：按词散列到固定维度并做 L2 归一化。
// 相同文本总是得到相同向量，词重叠越多余弦相似度越高。用于离线运行和测试。
type HashClient struct {
	dims int
}

func NewHashClient(dims int) *HashClient {
	if dims <= 0 {
		dims = 256
	}
	return &HashClient{dims: dims}
}

func (h *HashClient) Model() string { return "feature-hash" }

func (h *HashClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.Vector(t)
	}
	return out, nil
}

// Vector 计算单条文本的向量。
func (h *HashClient) Vector(text string) []float32 {
	v := make([]float32, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// 空文本落在固定方向上，保证向量非零
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
