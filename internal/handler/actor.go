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

// ActorStore is the persistence used by ActorHandler.
type ActorStore interface {
	List(ctx context.Context) ([]model.Actor, error)
	GetByID(ctx context.Context, id uint64) (*model.Actor, error)
	Create(ctx context.Context, a *model.Actor) error
	Update(ctx context.Context, a *model.Actor) error
	Delete(ctx context.Context, id uint64) error
}

// ActorHandler serves /theatre/actors.
type ActorHandler struct {
	Actors ActorStore
	Log    *zap.Logger
}

func NewActorHandler(actors ActorStore, log *zap.Logger) *ActorHandler {
	return &ActorHandler{Actors: actors, Log: log}
}

type actorReq struct {
	FirstName string `json:"first_name" validate:"required,max=64"`
	LastName  string `json:"last_name" validate:"required,max=64"`
}

func (r actorReq) model() model.Actor {
	return model.Actor{FirstName: strings.TrimSpace(r.FirstName), LastName: strings.TrimSpace(r.LastName)}
}

// List GET /theatre/actors
func (h *ActorHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	actors, err := h.Actors.List(ctx)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, actors)
}

// Get GET /theatre/actors/:id
func (h *ActorHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "actor")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Actors.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "actor")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Create POST /theatre/actors
func (h *ActorHandler) Create(c echo.Context) error {
	var req actorReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	a := req.model()
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Actors.Create(ctx, &a); err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// Update PUT /theatre/actors/:id
func (h *ActorHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "actor")
	}
	var req actorReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	a := req.model()
	a.ID = id
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Actors.Update(ctx, &a)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "actor")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Delete DELETE /theatre/actors/:id
func (h *ActorHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "actor")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Actors.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "actor")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
