package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"ragpool/internal/transport/http/middleware"
)

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	v, ok := c.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := v.(uint)
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	s := c.Param(key)
	u, err := strconv.ParseUint(s, 10, 64)
	return uint(u), err
}

func parseUintQuery(c *gin.Context, key string) uint {
	s := c.Query(key)
	if s == "" {
		return 0
	}
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
