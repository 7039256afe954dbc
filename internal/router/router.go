// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-booking/internal/handler"
	"github.com/iliyamo/theatre-booking/internal/middleware"
)

// RegisterRoutes registers routes that do not belong to any API group.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the /api/user endpoints.  Registration and the
// token endpoints are public; /me requires an access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/api/user")
	g.POST("/register", a.Register)
	g.POST("/token", a.Token)
	g.POST("/token/refresh", a.Refresh)
	g.POST("/token/verify", a.Verify)
	g.POST("/logout", a.Logout)

	me := g.Group("", middleware.JWTAuth(jwtSecret))
	me.GET("/me", a.Me)
	me.PUT("/me", a.UpdateMe)
	me.PATCH("/me", a.PatchMe)
	me.POST("/logout-all", a.LogoutAll)
}
