package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/repository"
	"github.com/iliyamo/theatre-booking/internal/service"
	"github.com/iliyamo/theatre-booking/internal/utils"
)

// ReservationReader reads the caller's reservations.
type ReservationReader interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Reservation, error)
	DeleteForUser(ctx context.Context, id, userID uint64) error
}

// Booker creates reservations.
type Booker interface {
	Book(ctx context.Context, userID uint64, reqs []service.TicketRequest) (*model.Reservation, error)
}

// ReservationHandler serves /theatre/reservations.  Every endpoint is
// scoped to the authenticated user.
type ReservationHandler struct {
	Reservations ReservationReader
	Booking      Booker
	Log          *zap.Logger
}

func NewReservationHandler(reservations ReservationReader, booking Booker, log *zap.Logger) *ReservationHandler {
	return &ReservationHandler{Reservations: reservations, Booking: booking, Log: log}
}

// ----- DTOs -----

type ticketReq struct {
	Row         uint32 `json:"row" validate:"gte=1"`
	Seat        uint32 `json:"seat" validate:"gte=1"`
	Performance uint64 `json:"performance" validate:"required"`
}

type reservationReq struct {
	Tickets []ticketReq `json:"tickets" validate:"required,min=1,dive"`
}

type ticketResp struct {
	ID          uint64    `json:"id"`
	Row         uint32    `json:"row"`
	Seat        uint32    `json:"seat"`
	Performance uint64    `json:"performance"`
	PlayTitle   string    `json:"play_title"`
	HallName    string    `json:"theatre_hall_name"`
	ShowTime    time.Time `json:"show_time"`
}

type reservationResp struct {
	ID        uint64       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Tickets   []ticketResp `json:"tickets"`
}

func toReservationResp(r *model.Reservation) reservationResp {
	out := reservationResp{ID: r.ID, CreatedAt: r.CreatedAt, Tickets: make([]ticketResp, len(r.Tickets))}
	for i, t := range r.Tickets {
		out.Tickets[i] = ticketResp{
			ID: t.ID, Row: t.Row, Seat: t.Seat, Performance: t.PerformanceID,
			PlayTitle: t.PlayTitle, HallName: t.HallName, ShowTime: t.ShowTime,
		}
	}
	return out
}

// ----- handlers -----

// List GET /theatre/reservations
func (h *ReservationHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Reservations.ListByUser(ctx, uid)
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := make([]reservationResp, len(list))
	for i := range list {
		out[i] = toReservationResp(&list[i])
	}
	return c.JSON(http.StatusOK, out)
}

// Create POST /theatre/reservations books every ticket or none.
func (h *ReservationHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req reservationReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	reqs := make([]service.TicketRequest, len(req.Tickets))
	for i, t := range req.Tickets {
		reqs[i] = service.TicketRequest{Performance: t.Performance, Row: t.Row, Seat: t.Seat}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Booking.Book(ctx, uid, reqs)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

func (h *ReservationHandler) load(c echo.Context) (*model.Reservation, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil, notFound(c, "reservation")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Reservations.GetByIDForUser(ctx, id, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound(c, "reservation")
	}
	if err != nil {
		return nil, respond(c, h.Log, err)
	}
	return res, nil
}

// Get GET /theatre/reservations/:id
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.load(c)
	if res == nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// QR GET /theatre/reservations/:id/qr renders a PNG QR code that
// identifies the reservation and its places.
func (h *ReservationHandler) QR(c echo.Context) error {
	res, err := h.load(c)
	if res == nil {
		return err
	}
	png, err := utils.GenerateQRCode(qrPayload(res), utils.DefaultQRSize)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func qrPayload(r *model.Reservation) string {
	s := fmt.Sprintf("reservation:%d;user:%d", r.ID, r.UserID)
	for _, t := range r.Tickets {
		s += fmt.Sprintf(";ticket:%d:%d:%d:%d", t.ID, t.PerformanceID, t.Row, t.Seat)
	}
	return s
}

// Delete DELETE /theatre/reservations/:id cancels the reservation and
// frees its places.
func (h *ReservationHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "reservation")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err = h.Reservations.DeleteForUser(ctx, id, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "reservation")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
