package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-vectorize-go/internal/model"
	"pdf-vectorize-go/internal/service"
	"pdf-vectorize-go/pkg/log"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 处理检索请求。
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_request", "无效的查询参数")
		return
	}
	log.Infof("[SearchHandler] 收到搜索请求, query: %s, limit: %d, file_hash: %s", req.Query, req.Limit, req.FileHash)

	results, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		writeError(c, "SearchHandler", err)
		return
	}
	success(c, http.StatusOK, results)
}
