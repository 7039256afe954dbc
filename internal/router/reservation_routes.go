package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-booking/internal/handler"
	"github.com/iliyamo/theatre-booking/internal/middleware"
)

// RegisterReservations registers the caller's reservation endpoints.
// All routes require a valid access token.  Reservation responses are
// per user and never cached, but booking or cancelling changes seat
// availability, so successful writes purge the catalog cache.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, cache *middleware.Cache) {
	g := e.Group(
		"/api/theatre/reservations",
		middleware.JWTAuth(jwtSecret),
		cache.PurgeOnWrite(CatalogGroup),
	)
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.GET("/:id/qr", h.QR)
	g.DELETE("/:id", h.Delete)
}
