package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"datahub/internal/apperr"
	"datahub/internal/catalog"
)

const headerTotalCount = "X-Total-Count"

// ==== Парсинг path/query-параметров ====

// pathID читает положительный int64 из path-параметра; при ошибке отвечает 400.
func pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(c, apperr.Invalid(apperr.ReasonValidation, "invalid %s", name).WithDetail(name, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// optionalID: пустой параметр даёт nil.
func optionalID(c *gin.Context, name string) (*int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(c, apperr.Invalid(apperr.ReasonValidation, "invalid %s", name).WithDetail(name, "must be a positive integer"))
		return nil, false
	}
	return &id, true
}

// queryInt: целое из query с дефолтом.
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, apperr.Invalid(apperr.ReasonValidation, "invalid %s", name).WithDetail(name, "must be an integer"))
		return 0, false
	}
	return n, true
}

// writePage отдаёт страницу и дублирует total в X-Total-Count.
func writePage[T any](c *gin.Context, p catalog.Page[T]) {
	c.Header(headerTotalCount, strconv.FormatInt(p.TotalElements, 10))
	c.JSON(http.StatusOK, p)
}
