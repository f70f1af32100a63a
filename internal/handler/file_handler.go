package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdf-vectorize-go/internal/service"
	"pdf-vectorize-go/pkg/log"
)

// multipartOverhead 是 multipart 边界和表单头允许占用的额外字节。
const multipartOverhead = 64 << 10

// FileHandler 负责原始文件的上传、查询和删除。
type FileHandler struct {
	fileService service.FileService
	maxBytes    int64
}

// NewFileHandler 创建一个新的 FileHandler 实例，maxBytes <= 0 表示不限制大小。
func NewFileHandler(fileService service.FileService, maxBytes int64) *FileHandler {
	return &FileHandler{fileService: fileService, maxBytes: maxBytes}
}

// Upload 处理 multipart 上传，表单字段名为 file，返回文件键。
func (h *FileHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "file_too_large", "文件超过大小限制")
			return
		}
		fail(c, http.StatusBadRequest, "invalid_request", "缺少 file 字段")
		return
	}
	if h.maxBytes > 0 && fileHeader.Size > h.maxBytes {
		fail(c, http.StatusRequestEntityTooLarge, "file_too_large", "文件超过大小限制")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", "无法读取上传文件")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", "无法读取上传文件")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	record, err := h.fileService.Upload(c.Request.Context(), fileHeader.Filename, contentType, data)
	if err != nil {
		writeError(c, "FileHandler", err)
		return
	}
	log.Infof("[FileHandler] 上传成功, Key: %s", record.FileKey)
	success(c, http.StatusCreated, gin.H{"key": record.FileKey, "record": record})
}

// Get 返回文件的登记记录和处理状态。
func (h *FileHandler) Get(c *gin.Context) {
	record, err := h.fileService.Get(c.Request.Context(), fileKey(c))
	if err != nil {
		writeError(c, "FileHandler", err)
		return
	}
	success(c, http.StatusOK, record)
}

// Delete 删除原始文件。
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.fileService.Delete(c.Request.Context(), fileKey(c)); err != nil {
		writeError(c, "FileHandler", err)
		return
	}
	success(c, http.StatusOK, nil)
}

// fileKey 读取通配路由参数，文件键本身可能包含斜杠。
func fileKey(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}
