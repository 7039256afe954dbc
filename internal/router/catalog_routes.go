package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-booking/internal/handler"
	"github.com/iliyamo/theatre-booking/internal/middleware"
	"github.com/iliyamo/theatre-booking/internal/model"
)

// CatalogGroup is the cache group shared by every catalog response.  A
// write anywhere in the catalog can change other listings (play detail
// embeds reviews, performances embed play titles), so all of it is
// purged together.
const CatalogGroup = "catalog"

// Catalog bundles the handlers mounted under /api/theatre.
type Catalog struct {
	Actors       *handler.ActorHandler
	Genres       *handler.GenreHandler
	Plays        *handler.PlayHandler
	Performances *handler.PerformanceHandler
	Halls        *handler.TheatreHallHandler
	Reviews      *handler.ReviewHandler
}

// RegisterCatalog registers the catalog.  Reads are public; mutations
// require the ADMIN role, except reviews which any authenticated user
// may write.
func RegisterCatalog(e *echo.Echo, h Catalog, jwtSecret string, cache *middleware.Cache) {
	admin := middleware.ReadOnlyOr(middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g := e.Group("/api/theatre", cache.Group(CatalogGroup))

	// ---- Actors ----
	actors := g.Group("/actors", admin)
	actors.GET("", h.Actors.List)
	actors.POST("", h.Actors.Create)
	actors.GET("/:id", h.Actors.Get)
	actors.PUT("/:id", h.Actors.Update)
	actors.DELETE("/:id", h.Actors.Delete)

	// ---- Genres ----
	genres := g.Group("/genres", admin)
	genres.GET("", h.Genres.List)
	genres.POST("", h.Genres.Create)
	genres.GET("/:id", h.Genres.Get)
	genres.PUT("/:id", h.Genres.Update)
	genres.DELETE("/:id", h.Genres.Delete)

	// ---- Plays ----
	plays := g.Group("/plays", admin)
	plays.GET("", h.Plays.List)
	plays.POST("", h.Plays.Create)
	plays.GET("/:id", h.Plays.Get)
	plays.PUT("/:id", h.Plays.Update)
	plays.PATCH("/:id", h.Plays.Patch)
	plays.DELETE("/:id", h.Plays.Delete)
	plays.POST("/:id/image", h.Plays.UploadImage)
	plays.POST("/:id/rating/refresh", h.Plays.RefreshRating)

	// ---- Performances ----
	perfs := g.Group("/performances", admin)
	perfs.GET("", h.Performances.List)
	perfs.POST("", h.Performances.Create)
	perfs.GET("/:id", h.Performances.Get)
	perfs.DELETE("/:id", h.Performances.Delete)

	// ---- Theatre halls ----
	halls := g.Group("/theatre-halls", admin)
	halls.GET("", h.Halls.List)
	halls.POST("", h.Halls.Create)
	halls.GET("/:id", h.Halls.Get)
	halls.DELETE("/:id", h.Halls.Delete)

	// ---- Reviews ----
	reviews := g.Group("/reviews", middleware.ReadOnlyOr(middleware.JWTAuth(jwtSecret)))
	reviews.GET("", h.Reviews.List)
	reviews.POST("", h.Reviews.Create)
	reviews.DELETE("/:id", h.Reviews.Delete)
}
