package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/queue"
	"github.com/iliyamo/theatre-booking/internal/repository"
	"github.com/iliyamo/theatre-booking/internal/validate"
)

// ReservationStore persists reservations atomically with their tickets.
type ReservationStore interface {
	CreateWithTickets(ctx context.Context, userID uint64, tickets []model.Ticket) (*model.Reservation, error)
}

// PerformanceFinder looks up performances with their hall.
type PerformanceFinder interface {
	GetByID(ctx context.Context, id uint64) (*model.Performance, error)
}

// TicketRequest asks for one place at one performance.
type TicketRequest struct {
	Performance uint64
	Row         uint32
	Seat        uint32
}

// BookingService turns a list of requested places into one reservation.
type BookingService struct {
	reservations   ReservationStore
	performances   PerformanceFinder
	events         EventPublisher
	log            *zap.Logger
	publishTimeout time.Duration
}

// NewBookingService wires the booking workflow.
func NewBookingService(rs ReservationStore, pf PerformanceFinder, ev EventPublisher, log *zap.Logger) *BookingService {
	if ev == nil {
		ev = NopPublisher{}
	}
	return &BookingService{
		reservations:   rs,
		performances:   pf,
		events:         ev,
		log:            log.Named("booking"),
		publishTimeout: 5 * time.Second,
	}
}

// Book reserves every requested place for userID or none of them.
//
// Errors:
//   - validate.FieldErrors when the list is empty or a place lies
//     outside the hall;
//   - repository.ErrSeatTaken when a place is requested twice or is
//     already taken;
//   - ErrPerformanceNotFound when a performance does not exist.
func (s *BookingService) Book(ctx context.Context, userID uint64, reqs []TicketRequest) (*model.Reservation, error) {
	if len(reqs) == 0 {
		return nil, validate.FieldErrors{"tickets": "this list may not be empty"}
	}

	seen := make(map[model.SeatKey]struct{}, len(reqs))
	for _, r := range reqs {
		k := model.SeatKey{PerformanceID: r.Performance, Row: r.Row, Seat: r.Seat}
		if _, dup := seen[k]; dup {
			return nil, repository.ErrSeatTaken
		}
		seen[k] = struct{}{}
	}

	perfs := make(map[uint64]*model.Performance)
	fields := validate.FieldErrors{}
	tickets := make([]model.Ticket, len(reqs))
	for i, r := range reqs {
		pf, ok := perfs[r.Performance]
		if !ok {
			var err error
			pf, err = s.performances.GetByID(ctx, r.Performance)
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrPerformanceNotFound
			}
			if err != nil {
				return nil, err
			}
			perfs[r.Performance] = pf
		}
		if r.Row < 1 || r.Row > pf.Hall.Rows {
			fields[fmt.Sprintf("tickets[%d].row", i)] = fmt.Sprintf("row number must be in available range: (1, rows): (1, %d)", pf.Hall.Rows)
		}
		if r.Seat < 1 || r.Seat > pf.Hall.SeatsInRow {
			fields[fmt.Sprintf("tickets[%d].seat", i)] = fmt.Sprintf("seat number must be in available range: (1, seats_in_row): (1, %d)", pf.Hall.SeatsInRow)
		}
		tickets[i] = model.Ticket{PerformanceID: r.Performance, Row: r.Row, Seat: r.Seat}
	}
	if len(fields) > 0 {
		return nil, fields
	}

	res, err := s.reservations.CreateWithTickets(ctx, userID, tickets)
	if errors.Is(err, repository.ErrUnknownReference) {
		// The performance was deleted after the lookup above.
		return nil, ErrPerformanceNotFound
	}
	if err != nil {
		return nil, err
	}
	for i := range res.Tickets {
		pf := perfs[res.Tickets[i].PerformanceID]
		res.Tickets[i].PlayTitle = pf.PlayTitle
		res.Tickets[i].HallName = pf.Hall.Name
		res.Tickets[i].ShowTime = pf.ShowTime
	}

	s.log.Info("reservation created",
		zap.Uint64("reservation_id", res.ID),
		zap.Uint64("user_id", userID),
		zap.Int("tickets", len(res.Tickets)))
	s.publish(ctx, res)
	return res, nil
}

// publish sends the reservation.created event.  The reservation is
// already committed, so failures are only logged.
func (s *BookingService) publish(ctx context.Context, res *model.Reservation) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.events.PublishReservationCreated(pctx, queue.NewReservationCreatedEvent(res)); err != nil {
		s.log.Warn("publish reservation.created failed", zap.Uint64("reservation_id", res.ID), zap.Error(err))
	}
}
