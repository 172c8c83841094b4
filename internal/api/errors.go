package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"datahub/internal/apperr"
)

// ErrorResponse: единый формат ошибок API.
type ErrorResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Reason    string            `json:"reason,omitempty"`
	Message   string            `json:"message"`
	Path      string            `json:"path"`
	Details   map[string]string `json:"details,omitempty"`
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError: единственное место, где ошибки сервисов превращаются в HTTP.
func writeError(c *gin.Context, err error) {
	e := apperr.As(err)
	status := statusFor(e.Kind)
	msg := e.Message
	if e.Kind == apperr.KindInternal {
		logger(c).ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.Request.URL.Path, "request_id", requestID(c), "err", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     string(e.Kind),
		Reason:    e.Reason,
		Message:   msg,
		Path:      c.Request.URL.Path,
		Details:   e.Details,
	})
}

// bindJSON читает тело в dst; ошибки валидатора раскладываются по полям.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		e := apperr.Invalid(apperr.ReasonValidation, "validation failed")
		for _, fe := range verrs {
			e.WithDetail(jsonField(fe), describe(fe))
		}
		writeError(c, e)
	case errors.Is(err, io.EOF):
		writeError(c, apperr.Invalid(apperr.ReasonValidation, "request body is required"))
	default:
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			writeError(c, apperr.Invalid(apperr.ReasonValidation, "Invalid JSON").WithDetail(typeErr.Field, "expected "+typeErr.Type.String()))
			return false
		}
		writeError(c, apperr.Invalid(apperr.ReasonValidation, "Invalid JSON"))
	}
	return false
}

// jsonField: "CreateRequest.OrganizationNodeID" -> "organizationNodeId"
func jsonField(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.Namespace()
	}
	if strings.HasSuffix(name, "ID") {
		name = strings.TrimSuffix(name, "ID") + "Id"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email"
	}
	return "failed " + fe.Tag() + " validation"
}

func logger(c *gin.Context) *slog.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if lg, ok := l.(*slog.Logger); ok {
			return lg
		}
	}
	return slog.Default()
}
