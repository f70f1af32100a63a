package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/internal/service"
	"pdf-vectorize-go/pkg/log"
)

// VectorizeHandler 负责向量化和删除文档向量的 API。
type VectorizeHandler struct {
	vectorizeService service.VectorizeService
}

// NewVectorizeHandler 创建一个新的 VectorizeHandler 实例。
func NewVectorizeHandler(vectorizeService service.VectorizeService) *VectorizeHandler {
	return &VectorizeHandler{vectorizeService: vectorizeService}
}

// Vectorize 同步执行向量化，返回记录 ID 和文件指纹。
func (h *VectorizeHandler) Vectorize(c *gin.Context) {
	var req model.VectorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", "无效的请求负载")
		return
	}
	log.Infof("[VectorizeHandler] 收到向量化请求, Key: %s, ForceReload: %t", req.Key, req.ForceReload)

	resp, err := h.vectorizeService.Vectorize(c.Request.Context(), req)
	if err != nil {
		writeError(c, "VectorizeHandler", err)
		return
	}
	success(c, http.StatusOK, resp)
}

// VectorizeAsync 把向量化任务投递到 Kafka 后立即返回。
func (h *VectorizeHandler) VectorizeAsync(c *gin.Context) {
	var req model.VectorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", "无效的请求负载")
		return
	}
	if err := h.vectorizeService.VectorizeAsync(c.Request.Context(), req); err != nil {
		writeError(c, "VectorizeHandler", err)
		return
	}
	success(c, http.StatusAccepted, gin.H{"key": req.Key})
}

// DeleteDocument 删除某个文件指纹下的全部向量记录。
func (h *VectorizeHandler) DeleteDocument(c *gin.Context) {
	fileHash := c.Param("fileHash")
	deleted, err := h.vectorizeService.DeleteDocument(c.Request.Context(), fileHash)
	if err != nil {
		writeError(c, "VectorizeHandler", err)
		return
	}
	success(c, http.StatusOK, gin.H{"file_hash": fileHash, "deleted": deleted})
}
