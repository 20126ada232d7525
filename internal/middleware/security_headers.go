package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders 添加安全相关的 HTTP 响应头
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止浏览器猜测内容类型
		c.Header("X-Content-Type-Options", "nosniff")

		// 防止点击劫持 (Clickjacking)
		c.Header("X-Frame-Options", "DENY")

		// 接口只返回 JSON，不允许加载任何资源
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// 登录链接中的令牌不能通过 Referer 泄露
		c.Header("Referrer-Policy", "no-referrer")

		// 认证响应不允许被缓存
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}
