package vectorstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/pkg/log"
)

// Retrying 为底层 Store 增加有限次数的指数退避重试，只重试瞬时网络错误。
type Retrying struct {
	inner       Store
	maxAttempts uint
	initial     time.Duration
}

// NewRetrying 包装一个 Store。maxAttempts 为总尝试次数（含第一次）。
func NewRetrying(inner Store, maxAttempts uint, initial time.Duration) *Retrying {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	return &Retrying{inner: inner, maxAttempts: maxAttempts, initial: initial}
}

// Unwrap 返回被包装的 Store。
func (r *Retrying) Unwrap() Store { return r.inner }

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = 10 * r.initial

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnf("[VectorStore] %s 遇到瞬时错误, %s 后重试: %v", op, next, err)
		}),
	)
}

func (r *Retrying) Upsert(ctx context.Context, records []model.VectorRecord) error {
	_, err := retry(ctx, r, "upsert", func() (struct{}, error) {
		return struct{}{}, r.inner.Upsert(ctx, records)
	})
	return err
}

func (r *Retrying) Query(ctx context.Context, req QueryRequest) ([]model.ScoredRecord, error) {
	return retry(ctx, r, "query", func() ([]model.ScoredRecord, error) {
		return r.inner.Query(ctx, req)
	})
}

func (r *Retrying) DeleteByFilter(ctx context.Context, filter model.Filter) (int, error) {
	return retry(ctx, r, "delete_by_filter", func() (int, error) {
		return r.inner.DeleteByFilter(ctx, filter)
	})
}

func (r *Retrying) IDsByFilter(ctx context.Context, filter model.Filter) ([]string, error) {
	return retry(ctx, r, "ids_by_filter", func() ([]string, error) {
		return r.inner.IDsByFilter(ctx, filter)
	})
}

// Replace 仅在底层支持事务替换时可用。
func (r *Retrying) Replace(ctx context.Context, filter model.Filter, records []model.VectorRecord) (int, error) {
	rep, ok := r.inner.(Replacer)
	if !ok {
		return 0, errNoReplace
	}
	return retry(ctx, r, "replace", func() (int, error) {
		return rep.Replace(ctx, filter, records)
	})
}

// AsReplacer 返回 s 的事务替换能力；对 Retrying 会检查被包装的 Store。
func AsReplacer(s Store) (Replacer, bool) {
	if r, ok := s.(*Retrying); ok {
		if _, ok := r.inner.(Replacer); !ok {
			return nil, false
		}
		return r, true
	}
	rep, ok := s.(Replacer)
	return rep, ok
}
