package api

import (
	"github.com/gin-gonic/gin"

	"datahub/internal/apperr"
	"datahub/internal/auth"
)

// POST /auth/login
func LoginHandler(s *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := s.Login(c.Request.Context(), req)
		respond(c, out, err)
	}
}

// POST /auth/register
func RegisterHandler(s *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.RegisterRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := s.Register(c.Request.Context(), req)
		respondCreated(c, out, err)
	}
}

// POST /auth/refresh: текущий токен в Authorization.
func RefreshHandler(s *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.Refresh(c.Request.Context(), c.GetHeader("Authorization"))
		respond(c, out, err)
	}
}

// GET /auth/validate
func ValidateTokenHandler(s *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, s.Validate(c.Request.Context(), c.GetHeader("Authorization")), nil)
	}
}

// GET /auth/me
func MeHandler(s *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.Me(c.Request.Context())
		respond(c, out, err)
	}
}

type availability struct {
	Available bool `json:"available"`
}

// GET /auth/check-username?username=
func CheckUsernameHandler(s *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Query("username")
		if name == "" {
			writeError(c, apperr.Invalid(apperr.ReasonValidation, "username is required").WithDetail("username", "is required"))
			return
		}
		free, err := s.UsernameAvailable(c.Request.Context(), name)
		respond(c, availability{Available: free}, err)
	}
}

// GET /auth/check-email?email=
func CheckEmailHandler(s *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Query("email")
		if email == "" {
			writeError(c, apperr.Invalid(apperr.ReasonValidation, "email is required").WithDetail("email", "is required"))
			return
		}
		free, err := s.EmailAvailable(c.Request.Context(), email)
		respond(c, availability{Available: free}, err)
	}
}
