// Package tika 提供了一个与 Apache Tika 服务器交互的客户端，用于图片 OCR。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pdf-vectorize-go/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	languages  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。languages 对应 tesseract 的语言包，例如 fas、eng。
func NewClient(cfg config.TikaConfig, languages []string) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		serverURL:  strings.TrimSuffix(cfg.ServerURL, "/"),
		languages:  strings.Join(languages, "+"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Recognize 把图片字节发送给 Tika，返回识别出的纯文本。
func (c *Client) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)
	if c.languages != "" {
		req.Header.Set("X-Tika-OCRLanguage", c.languages)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return strings.TrimSpace(string(text)), nil
}
