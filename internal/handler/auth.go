package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/config"
	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/repository"
	"github.com/iliyamo/theatre-booking/internal/utils"
)

// UserStore is the account persistence used by AuthHandler.
type UserStore interface {
	Create(ctx context.Context, nu repository.NewUser, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdateProfile(ctx context.Context, id uint64, upd repository.ProfileUpdate, cost int) (model.User, error)
}

// TokenStore keeps hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Rotate(ctx context.Context, oldHash, newHash string, exp time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for the /user endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
	Log    *zap.Logger
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=5"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}
type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
type verifyReq struct {
	Token string `json:"token" validate:"required"`
}

// profileReq is shared by PUT and PATCH; PUT additionally requires
// email to be present.
type profileReq struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	Password  *string `json:"password" validate:"omitempty,min=5"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
	Role      string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, IsStaff: u.IsStaff, Role: u.Role()}
}

// issue signs a new access token and stores a fresh refresh token.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role(), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, repository.NewUser{
		Email: req.Email, Password: req.Password, FirstName: req.FirstName, LastName: req.LastName,
	}, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"email": err.Error()}})
		}
		return respond(c, h.Log, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return respond(c, h.Log, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Token: verify credentials and return a new pair.
func (h *AuthHandler) Token(c echo.Context) error {
	var req loginReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh: exchange a refresh token for a new pair.  The old token is
// revoked in the same transaction, so it works exactly once.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	newRef, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return respond(c, h.Log, err)
	}
	oldHash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))
	userID, err := h.Tokens.Rotate(ctx, oldHash, utils.HashRefreshRaw(newRef.Raw), newRef.Exp)
	if errors.Is(err, repository.ErrTokenInvalid) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role(), h.Cfg.AccessTTLMin)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: newRef.Raw, Expires: newRef.Exp},
	})
}

// Verify reports whether an access token is valid.
func (h *AuthHandler) Verify(c echo.Context) error {
	var req verifyReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	if _, err := utils.ParseAccessToken(h.Cfg.JWTSecret, req.Token); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token is invalid or expired"})
	}
	return c.JSON(http.StatusOK, echo.Map{})
}

// Logout revokes the given refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every refresh token of the current user (protected).
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me GET /user/me
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

// UpdateMe PUT /user/me
func (h *AuthHandler) UpdateMe(c echo.Context) error { return h.updateMe(c, true) }

// PatchMe PATCH /user/me
func (h *AuthHandler) PatchMe(c echo.Context) error { return h.updateMe(c, false) }

func (h *AuthHandler) updateMe(c echo.Context, full bool) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req profileReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	if full && req.Email == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"email": "this field is required"}})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Users.UpdateProfile(ctx, uid, repository.ProfileUpdate{
		Email: req.Email, Password: req.Password, FirstName: req.FirstName, LastName: req.LastName,
	}, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"email": err.Error()}})
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}
