// Package auth handles registration, password login and bearer tokens.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"datahub/internal/apperr"
	"datahub/internal/identity"
	"datahub/internal/model"
	"datahub/internal/store"
)

const tokenType = "Bearer"

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username        string `json:"username" binding:"required,min=3,max=50"`
	Password        string `json:"password" binding:"required,min=6,max=100"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	Email           string `json:"email" binding:"required,email,max=100"`
	FullName        string `json:"fullName" binding:"required,min=2,max=100"`
}

type UserInfo struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	Role        model.Role `json:"role"`
	Enabled     bool       `json:"enabled"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type LoginResponse struct {
	AccessToken string   `json:"accessToken"`
	TokenType   string   `json:"tokenType"`
	ExpiresIn   int64    `json:"expiresIn"` // миллисекунды
	User        UserInfo `json:"user"`
}

type Validation struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
}

func userInfo(u *model.User) UserInfo {
	return UserInfo{
		ID: u.ID, Username: u.Username, Email: u.Email, FullName: u.FullName,
		Role: u.Role, Enabled: u.Enabled, LastLoginAt: u.LastLoginAt, CreatedAt: u.CreatedAt,
	}
}

type Service struct {
	store  store.Store
	tokens *Tokens
	log    *slog.Logger
}

func NewService(st store.Store, tokens *Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, tokens: tokens, log: log}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*UserInfo, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" {
		return nil, apperr.Invalid(apperr.ReasonValidation, "username is required").WithDetail("username", "must not be blank")
	}
	if len(req.Password) < 6 {
		return nil, apperr.Invalid(apperr.ReasonValidation, "password is too short").WithDetail("password", "must be at least 6 characters")
	}
	if req.Password != req.ConfirmPassword {
		return nil, apperr.Invalid(apperr.ReasonValidation, "passwords do not match").WithDetail("confirmPassword", "does not match password")
	}
	u := &model.User{
		Username: username,
		Email:    email,
		FullName: strings.TrimSpace(req.FullName),
		Role:     model.RoleUser,
		Enabled:  true,
	}
	if err := s.create(ctx, u, req.Password); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "username", u.Username)
	info := userInfo(u)
	return &info, nil
}

// EnsureUser создаёт пользователя, если username ещё свободен. Используется при сидировании.
func (s *Service) EnsureUser(ctx context.Context, u *model.User, password string) (created bool, err error) {
	if !u.Role.Valid() {
		u.Role = model.RoleUser
	}
	free, err := s.UsernameAvailable(ctx, u.Username)
	if err != nil || !free {
		return false, err
	}
	if err := s.create(ctx, u, password); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) create(ctx context.Context, u *model.User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return apperr.Internal(err)
	}
	u.PasswordHash = hash
	u.CreatedBy, u.UpdatedBy = "SYSTEM", "SYSTEM"
	err = s.store.WriteTx(ctx, func(tx store.Tx) error {
		if taken, err := tx.Users().ExistsUsername(ctx, u.Username); err != nil {
			return err
		} else if taken {
			return apperr.Conflict(apperr.ReasonUsername, "username %q is already taken", u.Username)
		}
		if u.Email != "" {
			if taken, err := tx.Users().ExistsEmail(ctx, u.Email); err != nil {
				return err
			} else if taken {
				return apperr.Conflict(apperr.ReasonEmail, "email %q is already registered", u.Email)
			}
		}
		return tx.Users().Insert(ctx, u)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return apperr.Conflict(apperr.ReasonUsername, "username or email already registered")
	}
	return err
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var u *model.User
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.Users().FindByUsername(ctx, strings.TrimSpace(req.Username))
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, badCredentials()
	}
	if err != nil {
		return nil, err
	}
	ok, err := CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		s.log.WarnContext(ctx, "password check failed", "username", u.Username, "err", err)
	}
	if !ok {
		return nil, badCredentials()
	}
	if !u.Enabled {
		return nil, &apperr.Error{Kind: apperr.KindForbidden, Reason: apperr.ReasonDisabled, Message: "account is disabled"}
	}

	now := time.Now().UTC()
	u.LastLoginAt = &now
	if err := s.store.WriteTx(ctx, func(tx store.Tx) error { return tx.Users().Update(ctx, u) }); err != nil {
		// вход не должен падать из-за отметки времени
		s.log.WarnContext(ctx, "update last login failed", "user_id", u.ID, "err", err)
	}
	s.log.InfoContext(ctx, "user logged in", "user_id", u.ID, "username", u.Username)
	return s.issue(u)
}

// Refresh выпускает новый токен по ещё действующему.
func (s *Service) Refresh(ctx context.Context, raw string) (*LoginResponse, error) {
	u, err := s.userForToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *Service) Validate(ctx context.Context, raw string) Validation {
	u, err := s.userForToken(ctx, raw)
	if err != nil {
		return Validation{Valid: false}
	}
	return Validation{Valid: true, Username: u.Username}
}

// Authenticate: principal по bearer-токену; для middleware.
func (s *Service) Authenticate(ctx context.Context, raw string) (identity.Principal, error) {
	u, err := s.userForToken(ctx, raw)
	if err != nil {
		return identity.Principal{}, err
	}
	return identity.FromUser(u), nil
}

func (s *Service) Me(ctx context.Context) (*UserInfo, error) {
	p, err := identity.Current(ctx)
	if err != nil {
		return nil, err
	}
	var u *model.User
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.Users().FindByID(ctx, p.ID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthenticated("", "user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	info := userInfo(u)
	return &info, nil
}

func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		taken, err = tx.Users().ExistsUsername(ctx, strings.TrimSpace(username))
		return err
	})
	return !taken, err
}

func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		taken, err = tx.Users().ExistsEmail(ctx, strings.TrimSpace(email))
		return err
	})
	return !taken, err
}

func (s *Service) userForToken(ctx context.Context, raw string) (*model.User, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), tokenType+" "))
	if raw == "" {
		return nil, apperr.Unauthenticated(apperr.ReasonToken, "missing token")
	}
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, apperr.Unauthenticated(apperr.ReasonToken, "invalid or expired token")
	}
	var u *model.User
	err = s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.Users().FindByUsername(ctx, claims.Subject)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthenticated(apperr.ReasonToken, "unknown user")
	}
	if err != nil {
		return nil, err
	}
	if !u.Enabled {
		return nil, apperr.Unauthenticated(apperr.ReasonDisabled, "account is disabled")
	}
	return u, nil
}

func (s *Service) issue(u *model.User) (*LoginResponse, error) {
	tok, err := s.tokens.Issue(u)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &LoginResponse{
		AccessToken: tok,
		TokenType:   tokenType,
		ExpiresIn:   s.tokens.TTL().Milliseconds(),
		User:        userInfo(u),
	}, nil
}

func badCredentials() error {
	return apperr.Unauthenticated("", "invalid username or password")
}
