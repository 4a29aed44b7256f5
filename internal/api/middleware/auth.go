package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims JWT载荷
type Claims struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// validateToken 验证JWT Token
func validateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// AuthMiddleware JWT认证中间件
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 支持从 Header 或 query 参数获取 token，便于录像回放请求
		authHeader := c.GetHeader("Authorization")
		tokenString := ""
		if authHeader != "" {
			// 移除 "Bearer " 前缀
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				c.JSON(http.StatusUnauthorized, model.Error(401, "Token格式错误：Authorization header 必须以 'Bearer ' 开头"))
				c.Abort()
				return
			}
		} else {
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, model.Error(401, "缺少Authorization Header或token参数"))
				c.Abort()
				return
			}
		}

		claims, err := validateToken(tokenString, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, model.Error(401, "Token无效或已过期: "+err.Error()))
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists || role != "admin" {
			c.JSON(http.StatusForbidden, model.Error(403, "需要管理员权限"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ProxyAuthMiddleware 代理端静态Token认证
// 终端代理通过 X-Proxy-Token 上报命令和会话事件
func ProxyAuthMiddleware(proxyToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Proxy-Token")
		if token == "" {
			// WebSocket 升级请求允许通过 query 参数传递
			token = c.Query("proxy_token")
		}
		if proxyToken == "" || token != proxyToken {
			c.JSON(http.StatusUnauthorized, model.Error(401, "代理Token无效"))
			c.Abort()
			return
		}
		c.Next()
	}
}
