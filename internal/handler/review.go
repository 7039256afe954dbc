package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/repository"
)

// ReviewStore is the persistence used by ReviewHandler.
type ReviewStore interface {
	List(ctx context.Context, playID uint64) ([]model.Review, error)
	Create(ctx context.Context, rv *model.Review) error
	DeleteForUser(ctx context.Context, id, userID uint64) (uint64, error)
}

// RatingUpdater refreshes a play's rating after its reviews changed.
type RatingUpdater interface {
	RefreshQuietly(ctx context.Context, playID uint64)
}

// ReviewHandler serves /theatre/reviews.
type ReviewHandler struct {
	Reviews ReviewStore
	Ratings RatingUpdater
	Log     *zap.Logger
}

func NewReviewHandler(reviews ReviewStore, ratings RatingUpdater, log *zap.Logger) *ReviewHandler {
	return &ReviewHandler{Reviews: reviews, Ratings: ratings, Log: log}
}

type reviewReq struct {
	Play    uint64  `json:"play" validate:"required"`
	Rating  uint8   `json:"rating" validate:"gte=1,lte=5"`
	Comment *string `json:"comment"`
}

type reviewResp struct {
	ID        uint64    `json:"id"`
	Play      uint64    `json:"play"`
	User      uint64    `json:"user"`
	UserName  string    `json:"user_name"`
	Rating    uint8     `json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func toReviewResp(rv model.Review) reviewResp {
	return reviewResp{
		ID: rv.ID, Play: rv.PlayID, User: rv.UserID, UserName: rv.UserName,
		Rating: rv.Rating, Comment: rv.Comment, CreatedAt: rv.CreatedAt,
	}
}

// List GET /theatre/reviews?play=
func (h *ReviewHandler) List(c echo.Context) error {
	var playID uint64
	if s := c.QueryParam("play"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"play": "expected an id"}})
		}
		playID = id
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	reviews, err := h.Reviews.List(ctx, playID)
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := make([]reviewResp, len(reviews))
	for i, rv := range reviews {
		out[i] = toReviewResp(rv)
	}
	return c.JSON(http.StatusOK, out)
}

// Create POST /theatre/reviews.  The author is the authenticated user.
func (h *ReviewHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req reviewReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	rv := model.Review{PlayID: req.Play, UserID: uid, Rating: req.Rating}
	if req.Comment != nil {
		if s := strings.TrimSpace(*req.Comment); s != "" {
			rv.Comment = &s
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Reviews.Create(ctx, &rv); err != nil {
		if errors.Is(err, repository.ErrUnknownReference) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"play": "play does not exist"}})
		}
		return respond(c, h.Log, err)
	}
	h.Ratings.RefreshQuietly(ctx, rv.PlayID)
	return c.JSON(http.StatusCreated, toReviewResp(rv))
}

// Delete DELETE /theatre/reviews/:id removes one of the caller's reviews.
func (h *ReviewHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "review")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	playID, err := h.Reviews.DeleteForUser(ctx, id, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "review")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	h.Ratings.RefreshQuietly(ctx, playID)
	return c.NoContent(http.StatusNoContent)
}
