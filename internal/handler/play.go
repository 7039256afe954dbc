package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/repository"
	"github.com/iliyamo/theatre-booking/internal/utils"
)

// PlayStore is the persistence used by PlayHandler.
type PlayStore interface {
	List(ctx context.Context, f repository.PlayFilter) ([]model.Play, error)
	GetByID(ctx context.Context, id uint64) (*model.Play, error)
	Create(ctx context.Context, p *model.Play, actorIDs, genreIDs []uint64) error
	Update(ctx context.Context, p *model.Play, actorIDs, genreIDs *[]uint64) error
	Delete(ctx context.Context, id uint64) error
	SetImage(ctx context.Context, id uint64, path string) error
}

// PlayReviews lists the reviews shown on the play detail page.
type PlayReviews interface {
	List(ctx context.Context, playID uint64) ([]model.Review, error)
}

// RatingRefresher recomputes a play's rating from its reviews.
type RatingRefresher interface {
	Refresh(ctx context.Context, playID uint64) (*float64, error)
}

// MediaConfig tells PlayHandler where uploaded images go.
type MediaConfig struct {
	Dir            string // filesystem directory
	URL            string // URL prefix the directory is served under
	MaxUploadBytes int64
}

// PlayHandler serves /theatre/plays.
type PlayHandler struct {
	Plays   PlayStore
	Reviews PlayReviews
	Ratings RatingRefresher
	Media   MediaConfig
	Log     *zap.Logger
}

func NewPlayHandler(plays PlayStore, reviews PlayReviews, ratings RatingRefresher, media MediaConfig, log *zap.Logger) *PlayHandler {
	return &PlayHandler{Plays: plays, Reviews: reviews, Ratings: ratings, Media: media, Log: log}
}

// ----- DTOs -----

type playReq struct {
	Title       string   `json:"title" validate:"required,max=64"`
	Description string   `json:"description"`
	Actors      []uint64 `json:"actors"`
	Genres      []uint64 `json:"genres"`
}

type playPatchReq struct {
	Title       *string   `json:"title" validate:"omitempty,min=1,max=64"`
	Description *string   `json:"description"`
	Actors      *[]uint64 `json:"actors"`
	Genres      *[]uint64 `json:"genres"`
}

type playWriteResp struct {
	ID          uint64   `json:"id"`
	Title       string   `json:"title"`
	Rating      *float64 `json:"rating"`
	Description string   `json:"description"`
	Actors      []uint64 `json:"actors"`
	Genres      []uint64 `json:"genres"`
}

type playListItem struct {
	ID          uint64        `json:"id"`
	Title       string        `json:"title"`
	Rating      *float64      `json:"rating"`
	Description string        `json:"description"`
	Actors      []string      `json:"actors"`
	Genres      []model.Genre `json:"genres"`
	Reviews     int           `json:"reviews"`
	Image       *string       `json:"image"`
}

type reviewItem struct {
	ID        uint64    `json:"id"`
	User      uint64    `json:"user"`
	UserName  string    `json:"user_name"`
	Rating    uint8     `json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

type playDetail struct {
	ID          uint64        `json:"id"`
	Title       string        `json:"title"`
	Rating      *float64      `json:"rating"`
	Description string        `json:"description"`
	Actors      []string      `json:"actors"`
	Genres      []model.Genre `json:"genres"`
	Reviews     []reviewItem  `json:"reviews"`
	Image       *string       `json:"image"`
}

// descriptionPreviewLen is the number of characters kept in list views.
const descriptionPreviewLen = 50

func previewDescription(s string) string {
	if s == "" {
		return ""
	}
	if utf8.RuneCountInString(s) > descriptionPreviewLen {
		s = string([]rune(s)[:descriptionPreviewLen])
	}
	return s + "..."
}

func actorNames(actors []model.Actor) []string {
	out := make([]string, len(actors))
	for i, a := range actors {
		out[i] = a.FullName()
	}
	return out
}

func genresOrEmpty(g []model.Genre) []model.Genre {
	if g == nil {
		return []model.Genre{}
	}
	return g
}

func (h *PlayHandler) imageURL(p *model.Play) *string {
	if p.Image == nil || *p.Image == "" {
		return nil
	}
	u := strings.TrimRight(h.Media.URL, "/") + "/" + *p.Image
	return &u
}

func toWriteResp(p *model.Play) playWriteResp {
	resp := playWriteResp{
		ID: p.ID, Title: p.Title, Rating: p.Rating, Description: p.Description,
		Actors: make([]uint64, len(p.Actors)), Genres: make([]uint64, len(p.Genres)),
	}
	for i, a := range p.Actors {
		resp.Actors[i] = a.ID
	}
	for i, g := range p.Genres {
		resp.Genres[i] = g.ID
	}
	return resp
}

// ----- handlers -----

// List GET /theatre/plays?title=&genres=1,2
func (h *PlayHandler) List(c echo.Context) error {
	genres, err := parseIDList(c.QueryParam("genres"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"genres": "expected comma separated ids"}})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	plays, err := h.Plays.List(ctx, repository.PlayFilter{Title: c.QueryParam("title"), GenreIDs: genres})
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := make([]playListItem, len(plays))
	for i := range plays {
		p := &plays[i]
		out[i] = playListItem{
			ID: p.ID, Title: p.Title, Rating: p.Rating,
			Description: previewDescription(p.Description),
			Actors:      actorNames(p.Actors),
			Genres:      genresOrEmpty(p.Genres),
			Reviews:     p.ReviewCount,
			Image:       h.imageURL(p),
		}
	}
	return c.JSON(http.StatusOK, out)
}

// Get GET /theatre/plays/:id
func (h *PlayHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "play")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Plays.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "play")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	reviews, err := h.Reviews.List(ctx, id)
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := playDetail{
		ID: p.ID, Title: p.Title, Rating: p.Rating, Description: p.Description,
		Actors:  actorNames(p.Actors),
		Genres:  genresOrEmpty(p.Genres),
		Reviews: make([]reviewItem, len(reviews)),
		Image:   h.imageURL(p),
	}
	for i, rv := range reviews {
		out.Reviews[i] = reviewItem{ID: rv.ID, User: rv.UserID, UserName: rv.UserName, Rating: rv.Rating, Comment: rv.Comment, CreatedAt: rv.CreatedAt}
	}
	return c.JSON(http.StatusOK, out)
}

// Create POST /theatre/plays
func (h *PlayHandler) Create(c echo.Context) error {
	var req playReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	p := model.Play{Title: strings.TrimSpace(req.Title), Description: req.Description}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Plays.Create(ctx, &p, req.Actors, req.Genres); err != nil {
		return respond(c, h.Log, err)
	}
	stored, err := h.Plays.GetByID(ctx, p.ID)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toWriteResp(stored))
}

// Update PUT /theatre/plays/:id replaces every writable field.
func (h *PlayHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "play")
	}
	var req playReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	actors, genres := req.Actors, req.Genres
	if actors == nil {
		actors = []uint64{}
	}
	if genres == nil {
		genres = []uint64{}
	}
	p := model.Play{ID: id, Title: strings.TrimSpace(req.Title), Description: req.Description}
	return h.save(c, &p, &actors, &genres)
}

// Patch PATCH /theatre/plays/:id changes only the supplied fields.
func (h *PlayHandler) Patch(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "play")
	}
	var req playPatchReq
	if resp := bindValid(c, &req); resp != nil {
		return resp
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Plays.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "play")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	return h.save(c, p, req.Actors, req.Genres)
}

func (h *PlayHandler) save(c echo.Context, p *model.Play, actors, genres *[]uint64) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Plays.Update(ctx, p, actors, genres)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "play")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	stored, err := h.Plays.GetByID(ctx, p.ID)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toWriteResp(stored))
}

// Delete DELETE /theatre/plays/:id
func (h *PlayHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "play")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	err := h.Plays.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "play")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadImage POST /theatre/plays/:id/image (multipart field "image").
func (h *PlayHandler) UploadImage(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "play")
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"image": "no file was submitted"}})
	}
	ext, ok := utils.ImageExt(fh.Filename)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"image": "upload a valid image"}})
	}
	if h.Media.MaxUploadBytes > 0 && fh.Size > h.Media.MaxUploadBytes {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input", "fields": echo.Map{"image": "file is too large"}})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.Plays.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "play")
	}
	if err != nil {
		return respond(c, h.Log, err)
	}

	name := utils.ImageFileName(p.Title, ext)
	if err := h.storeUpload(fh.Open, name); err != nil {
		return respond(c, h.Log, err)
	}
	if err := h.Plays.SetImage(ctx, id, name); err != nil {
		_ = os.Remove(filepath.Join(h.Media.Dir, name))
		return respond(c, h.Log, err)
	}
	if p.Image != nil && *p.Image != "" {
		if err := os.Remove(filepath.Join(h.Media.Dir, filepath.Base(*p.Image))); err != nil && !os.IsNotExist(err) {
			h.Log.Warn("remove old image failed", zap.String("image", *p.Image), zap.Error(err))
		}
	}
	p.Image = &name
	return c.JSON(http.StatusOK, echo.Map{"id": p.ID, "image": h.imageURL(p)})
}

func (h *PlayHandler) storeUpload(open func() (multipart.File, error), name string) error {
	src, err := open()
	if err != nil {
		return err
	}
	defer src.Close()
	if err := os.MkdirAll(h.Media.Dir, 0o755); err != nil {
		return err
	}
	dst, err := os.OpenFile(filepath.Join(h.Media.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(dst.Name())
		return err
	}
	return dst.Close()
}

// RefreshRating POST /theatre/plays/:id/rating/refresh
func (h *PlayHandler) RefreshRating(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return notFound(c, "play")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rating, err := h.Ratings.Refresh(ctx, id)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "rating": rating})
}
