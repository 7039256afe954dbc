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

// HallStore is the persistence used by TheatreHallHandler.
type HallStore interface {
	List(ctx context.Context, name string) ([]model.TheatreHall, error)
	GetByID(ctx context.Context, id uint64) (*model.TheatreHall, error)
	GetOrCreate(ctx context.Context, h model.TheatreHall) (*model.TheatreHall, bool, error)
	Delete(ctx context.Context, id uint64) error
}

// TheatreHallHandler serves /theatre/theatre-halls.
type TheatreHallHandler struct {
	Halls HallStore
	Log   *zap.Logger
}

func NewTheatreHallHandler(halls HallStore, log *zap.Logger) *TheatreHallHandler {
	return &TheatreHallHandler{Halls: halls, Log: log}
}

type hallReq struct {
	Name       string `json:"name" validate:"required,max=64"`
	Rows       uint32 `json:"rows" validate:"gte=1"`
	SeatsInRow uint32 `json:"seats_in_row" validate:"gte=1"`
}

// List GET /theatre/theatre-halls?name=
func (h *TheatreHallHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	halls, err := h.Halls.List(ctx, c.QueryParam("name"))
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := make([]hallResp, len(halls))
	for i, hl := range halls {
		out[i] = toHallResp(hl)
	}
	return c.JSON(http.StatusOK, out)
}

// Get GET /theatre/theatre-halls/:id
func (h *TheatreHallHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "theatre hall")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	hl, err := h.Halls.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "theatre hall")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toHallResp(*hl))
}

// Create POST /theatre/theatre-halls.  Re-submitting an identical hall
// returns the stored one with 200; the same name with a different
// layout is a conflict.
func (h *TheatreHallHandler) Create(c echo.Context) error {
	var req hallReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	hl, created, err := h.Halls.GetOrCreate(ctx, model.TheatreHall{
		Name: strings.TrimSpace(req.Name), Rows: req.Rows, SeatsInRow: req.SeatsInRow,
	})
	if err != nil {
		return respond(c, h.Log, err)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, toHallResp(*hl))
}

// Delete DELETE /theatre/theatre-halls/:id
func (h *TheatreHallHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "theatre hall")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Halls.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "theatre hall")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
