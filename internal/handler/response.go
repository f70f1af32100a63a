// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-vectorize-go/internal/pipeline"
	"pdf-vectorize-go/internal/service"
	"pdf-vectorize-go/pkg/log"
)

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": "success", "data": data})
}

func fail(c *gin.Context, status int, errorCode, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "error_code": errorCode})
}

// statusOf 把错误映射为 HTTP 状态码和错误码。
func statusOf(err error) (int, string) {
	var (
		extractionErr *pipeline.ExtractionError
		notFoundErr   *pipeline.NotFoundError
		embeddingErr  *pipeline.EmbeddingError
		storeErr      *pipeline.StoreError
	)
	switch {
	case errors.As(err, &extractionErr):
		return http.StatusUnprocessableEntity, "extraction_failed"
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pipeline.ErrProcessingInProgress):
		return http.StatusConflict, "processing_in_progress"
	case errors.As(err, &embeddingErr):
		return http.StatusBadGateway, "embedding_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &storeErr), errors.Is(err, service.ErrAsyncDisabled):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, service.ErrEmptyFile), errors.Is(err, service.ErrEmptyQuery):
		return http.StatusBadRequest, "invalid_request"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError 记录错误并返回结构化的错误响应，不暴露内部堆栈。
func writeError(c *gin.Context, component string, err error) {
	status, code := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "服务器内部错误"
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] 请求失败, path: %s, status: %d, error: %v", component, c.Request.URL.Path, status, err)
	} else {
		log.Warnf("[%s] 请求失败, path: %s, status: %d, error: %v", component, c.Request.URL.Path, status, err)
	}
	fail(c, status, code, message)
}
