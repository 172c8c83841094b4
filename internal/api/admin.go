package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"datahub/internal/apperr"
)

// AdminReseedHandler повторно применяет seed-файл (только ADMIN).
// Повторный запуск идемпотентен: существующие пользователи и непустое дерево не трогаются.
func AdminReseedHandler(reseed func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if reseed == nil {
			writeError(c, apperr.NotFound("", "seed is not configured"))
			return
		}
		start := time.Now()
		if err := reseed(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"elapsed": time.Since(start).String(),
		})
	}
}
