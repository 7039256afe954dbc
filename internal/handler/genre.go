package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/repository"
)

// GenreStore is the persistence used by GenreHandler.
type GenreStore interface {
	List(ctx context.Context) ([]model.Genre, error)
	GetByID(ctx context.Context, id uint64) (*model.Genre, error)
	Create(ctx context.Context, g *model.Genre) error
	Update(ctx context.Context, g *model.Genre) error
	Delete(ctx context.Context, id uint64) error
}

// GenreHandler serves /theatre/genres.
type GenreHandler struct {
	Genres GenreStore
	Log    *zap.Logger
}

func NewGenreHandler(genres GenreStore, log *zap.Logger) *GenreHandler {
	return &GenreHandler{Genres: genres, Log: log}
}

type genreReq struct {
	Name string `json:"name" validate:"required,max=64"`
}

func (h *GenreHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	genres, err := h.Genres.List(ctx)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, genres)
}

func (h *GenreHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "genre")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	g, err := h.Genres.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "genre")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *GenreHandler) Create(c echo.Context) error {
	var req genreReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	g := model.Genre{Name: strings.TrimSpace(req.Name)}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Genres.Create(ctx, &g); err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *GenreHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "genre")
	}
	var req genreReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	g := model.Genre{ID: id, Name: strings.TrimSpace(req.Name)}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Genres.Update(ctx, &g)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "genre")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *GenreHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "genre")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Genres.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "genre")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
