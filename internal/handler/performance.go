package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/repository"
)

// PerformanceStore is the persistence used by PerformanceHandler.
type PerformanceStore interface {
	List(ctx context.Context, f repository.PerformanceFilter) ([]model.Performance, error)
	GetByID(ctx context.Context, id uint64) (*model.Performance, error)
	Create(ctx context.Context, pf *model.Performance) error
	Delete(ctx context.Context, id uint64) error
	TakenPlaces(ctx context.Context, id uint64) ([]model.SeatKey, error)
}

// PerformanceHandler serves /theatre/performances.
type PerformanceHandler struct {
	Performances PerformanceStore
	Log          *zap.Logger
}

func NewPerformanceHandler(performances PerformanceStore, log *zap.Logger) *PerformanceHandler {
	return &PerformanceHandler{Performances: performances, Log: log}
}

type performanceReq struct {
	Play        uint64    `json:"play" validate:"required"`
	TheatreHall uint64    `json:"theatre_hall" validate:"required"`
	ShowTime    time.Time `json:"show_time" validate:"required"`
}

type performanceItem struct {
	ID               uint64    `json:"id"`
	Play             uint64    `json:"play"`
	PlayTitle        string    `json:"play_title"`
	TheatreHall      uint64    `json:"theatre_hall"`
	TheatreHallName  string    `json:"theatre_hall_name"`
	ShowTime         time.Time `json:"show_time"`
	TicketsAvailable int       `json:"tickets_available"`
}

type hallResp struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Rows       uint32 `json:"rows"`
	SeatsInRow uint32 `json:"seats_in_row"`
	Capacity   uint32 `json:"capacity"`
}

type place struct {
	Row  uint32 `json:"row"`
	Seat uint32 `json:"seat"`
}

type performanceDetail struct {
	performanceItem
	Hall        hallResp `json:"hall"`
	TakenPlaces []place  `json:"taken_places"`
}

func toHallResp(h model.TheatreHall) hallResp {
	return hallResp{ID: h.ID, Name: h.Name, Rows: h.Rows, SeatsInRow: h.SeatsInRow, Capacity: h.Capacity()}
}

func toPerformanceItem(pf *model.Performance) performanceItem {
	return performanceItem{
		ID:               pf.ID,
		Play:             pf.PlayID,
		PlayTitle:        pf.PlayTitle,
		TheatreHall:      pf.TheatreHallID,
		TheatreHallName:  pf.Hall.Name,
		ShowTime:         pf.ShowTime,
		TicketsAvailable: pf.TicketsAvailable(),
	}
}

// List GET /theatre/performances?title=&genres=&date=YYYY-MM-DD&ordering=show_time|-show_time
func (h *PerformanceHandler) List(c echo.Context) error {
	fields := echo.Map{}
	genres, err := parseIDList(c.QueryParam("genres"))
	if err != nil {
		fields["genres"] = "expected comma separated ids"
	}
	f := repository.PerformanceFilter{Title: c.QueryParam("title"), GenreIDs: genres}
	if d := c.QueryParam("date"); d != "" {
		day, err := time.Parse("2006-01-02", d)
		if err != nil {
			fields["date"] = "expected YYYY-MM-DD"
		} else {
			f.Date = &day
		}
	}
	switch c.QueryParam("ordering") {
	case "", "-show_time":
	case "show_time":
		f.Ascending = true
	default:
		fields["ordering"] = "must be one of: show_time, -show_time"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": fields})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Performances.List(ctx, f)
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := make([]performanceItem, len(list))
	for i := range list {
		out[i] = toPerformanceItem(&list[i])
	}
	return c.JSON(http.StatusOK, out)
}

// Get GET /theatre/performances/:id
func (h *PerformanceHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "performance")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	return h.detail(ctx, c, id, http.StatusOK)
}

func (h *PerformanceHandler) detail(ctx context.Context, c echo.Context, id uint64, status int) error {
	pf, err := h.Performances.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "performance")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	taken, err := h.Performances.TakenPlaces(ctx, id)
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := performanceDetail{
		performanceItem: toPerformanceItem(pf),
		Hall:            toHallResp(pf.Hall),
		TakenPlaces:     make([]place, len(taken)),
	}
	for i, k := range taken {
		out.TakenPlaces[i] = place{Row: k.Row, Seat: k.Seat}
	}
	return c.JSON(status, out)
}

// Create POST /theatre/performances
func (h *PerformanceHandler) Create(c echo.Context) error {
	var req performanceReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	pf := model.Performance{PlayID: req.Play, TheatreHallID: req.TheatreHall, ShowTime: req.ShowTime.UTC()}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Performances.Create(ctx, &pf); err != nil {
		return respond(c, h.Log, err)
	}
	return h.detail(ctx, c, pf.ID, http.StatusCreated)
}

// Delete DELETE /theatre/performances/:id
func (h *PerformanceHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "performance")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Performances.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "performance")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
