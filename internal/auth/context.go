// Package auth extracts the administrator identity placed on each request
// by the external authentication layer. Credential and session issuance
// live outside this service; by the time a request arrives here the
// upstream proxy has already authenticated it and stamped these headers.
package auth

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fieldworks/dispatch/pkg/types"
)

const (
	headerAdminID    = "X-Admin-ID"
	headerSuperadmin = "X-Admin-Superadmin"

	contextKey = "auth_context"
)

// Context identifies the administrator performing a request
type Context struct {
	AdminID    int64
	Superadmin bool
}

// Middleware returns Gin middleware that requires a valid admin identity
// on every request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerAdminID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
				Error:   "unauthenticated",
				Message: "missing admin identity",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		adminID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || adminID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
				Error:   "unauthenticated",
				Message: "invalid admin identity",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		superadmin, _ := strconv.ParseBool(c.GetHeader(headerSuperadmin))
		c.Set(contextKey, Context{AdminID: adminID, Superadmin: superadmin})
		c.Next()
	}
}

// FromGin returns the identity stored by Middleware. The zero Context is
// returned on routes that skipped the middleware.
func FromGin(c *gin.Context) Context {
	if v, ok := c.Get(contextKey); ok {
		if actx, ok := v.(Context); ok {
			return actx
		}
	}
	return Context{}
}
