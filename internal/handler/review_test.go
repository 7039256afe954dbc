package handler

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/middleware"
	"github.com/iliyamo/theatre-booking/internal/model"
)

func newReviewEcho() (*echo.Echo, *fakeReviews, *fakeRatings) {
	e := newEcho()
	reviews := &fakeReviews{plays: map[uint64]bool{1: true, 2: true}}
	ratings := &fakeRatings{}
	h := NewReviewHandler(reviews, ratings, zap.NewNop())
	g := e.Group("/reviews", middleware.ReadOnlyOr(auth()))
	g.GET("", h.List)
	g.POST("", h.Create)
	g.DELETE("/:id", h.Delete)
	return e, reviews, ratings
}

func TestReviewCreateRefreshesRating(t *testing.T) {
	e, reviews, ratings := newReviewEcho()
	tok := bearer(t, 7, model.RoleUser)

	rec := call(e, http.MethodPost, "/reviews", tok, echo.Map{"play": 1, "rating": 4, "comment": "  great  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out reviewResp
	decode(t, rec, &out)
	assert.Equal(t, uint64(7), out.User)
	require.NotNil(t, out.Comment)
	assert.Equal(t, "great", *out.Comment)
	assert.Equal(t, []uint64{1}, ratings.refreshed)
	assert.Len(t, reviews.rows, 1)
}

func TestReviewCreateValidation(t *testing.T) {
	e, _, ratings := newReviewEcho()
	tok := bearer(t, 7, model.RoleUser)

	rec := call(e, http.MethodPost, "/reviews", tok, echo.Map{"play": 1, "rating": 6})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldsOf(t, rec), "rating")

	rec = call(e, http.MethodPost, "/reviews", tok, echo.Map{"play": 99, "rating": 3})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldsOf(t, rec), "play")

	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodPost, "/reviews", "", echo.Map{"play": 1, "rating": 3}).Code)
	assert.Empty(t, ratings.refreshed)
}

func TestReviewListFiltersByPlay(t *testing.T) {
	e, reviews, _ := newReviewEcho()
	reviews.rows = []model.Review{{ID: 1, PlayID: 1, Rating: 3}, {ID: 2, PlayID: 2, Rating: 5}}

	rec := call(e, http.MethodGet, "/reviews?play=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []reviewResp
	decode(t, rec, &out)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(2), out[0].ID)

	decode(t, call(e, http.MethodGet, "/reviews", "", nil), &out)
	assert.Len(t, out, 2)

	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodGet, "/reviews?play=x", "", nil).Code)
}

func TestReviewDeleteOwnOnly(t *testing.T) {
	e, reviews, ratings := newReviewEcho()
	reviews.rows = []model.Review{{ID: 1, PlayID: 2, UserID: 7, Rating: 3}}

	assert.Equal(t, http.StatusForbidden, call(e, http.MethodDelete, "/reviews/1", bearer(t, 8, model.RoleUser), nil).Code)
	assert.Empty(t, ratings.refreshed)

	assert.Equal(t, http.StatusNoContent, call(e, http.MethodDelete, "/reviews/1", bearer(t, 7, model.RoleUser), nil).Code)
	assert.Equal(t, []uint64{2}, ratings.refreshed)
	assert.Equal(t, http.StatusNotFound, call(e, http.MethodDelete, "/reviews/1", bearer(t, 7, model.RoleUser), nil).Code)
}
