package embedding

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"pdf-vectorize-go/pkg/log"
)

// Resilient 在客户端外层加上限流与熔断。重试由调用方负责。
type Resilient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewResilient 包装 inner。rps <= 0 表示不限流。
func NewResilient(inner Client, rps float64) *Resilient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingAPI",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// 取消和超时不是供应商的问题，不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[EmbeddingClient] 熔断器 %s: %s -> %s", name, from, to)
		},
	})

	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Resilient{inner: inner, breaker: breaker, limiter: rate.NewLimiter(limit, burst)}
}

func (r *Resilient) Model() string { return r.inner.Model() }

func (r *Resilient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.CreateEmbeddings(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

// IsPermanent 判断错误是否不值得重试：熔断器打开，或者供应商返回了请求类错误。
func IsPermanent(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return isClientError(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return isClientError(reqErr.HTTPStatusCode)
	}
	return false
}

func isClientError(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}
