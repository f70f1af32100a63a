// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdf-vectorize-go/pkg/log"
	"pdf-vectorize-go/pkg/token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于服务令牌认证。
// 它会从请求头中提取 token，验证其有效性，并把 claims 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "error_code": "unauthorized"})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "error_code": "unauthorized"})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			log.Warnf("[Auth] 令牌校验失败, path: %s: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "error_code": "unauthorized"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// RequireScope 要求令牌带有指定权限，需放在 AuthMiddleware 之后。
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get("claims")
		claims, _ := v.(*token.ServiceClaims)
		if !ok || claims == nil || !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "令牌没有权限: " + scope, "error_code": "forbidden"})
			return
		}
		c.Next()
	}
}
