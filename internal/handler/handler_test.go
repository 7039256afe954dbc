package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/theatre-booking/internal/middleware"
	"github.com/iliyamo/theatre-booking/internal/model"
	"github.com/iliyamo/theatre-booking/internal/repository"
	"github.com/iliyamo/theatre-booking/internal/service"
	"github.com/iliyamo/theatre-booking/internal/utils"
	"github.com/iliyamo/theatre-booking/internal/validate"
)

const testSecret = "handler-secret"

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validate.Echo{}
	return e
}

func bearer(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, uid, role, 5)
	require.NoError(t, err)
	return tok.Token
}

// call sends body (marshalled to JSON unless it is a string) and returns
// the recorder.
func call(e *echo.Echo, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var payload string
	switch b := body.(type) {
	case nil:
	case string:
		payload = b
	default:
		bs, _ := json.Marshal(b)
		payload = string(bs)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if payload != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func fieldsOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, rec, &body)
	return body.Fields
}

func auth() echo.MiddlewareFunc { return middleware.JWTAuth(testSecret) }

// ----- fakes -----

type fakeActors struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.Actor
}

func newFakeActors() *fakeActors { return &fakeActors{rows: map[uint64]model.Actor{}} }

func (f *fakeActors) List(context.Context) ([]model.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Actor, 0, len(f.rows))
	for _, a := range f.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeActors) GetByID(_ context.Context, id uint64) (*model.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f *fakeActors) Create(_ context.Context, a *model.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	f.rows[a.ID] = *a
	return nil
}

func (f *fakeActors) Update(_ context.Context, a *model.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[a.ID]; !ok {
		return repository.ErrNotFound
	}
	f.rows[a.ID] = *a
	return nil
}

func (f *fakeActors) Delete(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeHalls struct {
	halls []model.TheatreHall
}

func (f *fakeHalls) List(_ context.Context, name string) ([]model.TheatreHall, error) {
	var out []model.TheatreHall
	for _, h := range f.halls {
		if strings.Contains(strings.ToLower(h.Name), strings.ToLower(name)) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeHalls) GetByID(_ context.Context, id uint64) (*model.TheatreHall, error) {
	for _, h := range f.halls {
		if h.ID == id {
			return &h, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeHalls) GetOrCreate(_ context.Context, want model.TheatreHall) (*model.TheatreHall, bool, error) {
	for _, h := range f.halls {
		if h.Name == want.Name {
			if !h.SameShape(want) {
				return nil, false, repository.ErrHallShapeConflict
			}
			return &h, false, nil
		}
	}
	want.ID = uint64(len(f.halls) + 1)
	f.halls = append(f.halls, want)
	return &want, true, nil
}

func (f *fakeHalls) Delete(context.Context, uint64) error { return nil }

type fakePerformances struct {
	lastFilter repository.PerformanceFilter
	rows       map[uint64]model.Performance
	taken      map[uint64][]model.SeatKey
}

func (f *fakePerformances) List(_ context.Context, flt repository.PerformanceFilter) ([]model.Performance, error) {
	f.lastFilter = flt
	var out []model.Performance
	for _, p := range f.rows {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePerformances) GetByID(_ context.Context, id uint64) (*model.Performance, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakePerformances) Create(_ context.Context, pf *model.Performance) error {
	if pf.PlayID != 1 {
		return repository.ErrUnknownReference
	}
	pf.ID = uint64(len(f.rows) + 1)
	pf.PlayTitle = "Hamlet"
	pf.Hall = model.TheatreHall{ID: pf.TheatreHallID, Name: "Main", Rows: 2, SeatsInRow: 2}
	f.rows[pf.ID] = *pf
	return nil
}

func (f *fakePerformances) Delete(context.Context, uint64) error { return nil }

func (f *fakePerformances) TakenPlaces(_ context.Context, id uint64) ([]model.SeatKey, error) {
	return f.taken[id], nil
}

type fakePlays struct {
	rows       map[uint64]model.Play
	lastFilter repository.PlayFilter
	images     map[uint64]string
}

func newFakePlays() *fakePlays {
	return &fakePlays{rows: map[uint64]model.Play{}, images: map[uint64]string{}}
}

func (f *fakePlays) List(_ context.Context, flt repository.PlayFilter) ([]model.Play, error) {
	f.lastFilter = flt
	var out []model.Play
	for _, p := range f.rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePlays) GetByID(_ context.Context, id uint64) (*model.Play, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func links(ids []uint64) ([]model.Actor, []model.Genre) {
	actors := make([]model.Actor, len(ids))
	genres := make([]model.Genre, len(ids))
	for i, id := range ids {
		actors[i] = model.Actor{ID: id}
		genres[i] = model.Genre{ID: id}
	}
	return actors, genres
}

func (f *fakePlays) Create(_ context.Context, p *model.Play, actorIDs, genreIDs []uint64) error {
	p.ID = uint64(len(f.rows) + 1)
	p.Actors, _ = links(actorIDs)
	_, p.Genres = links(genreIDs)
	f.rows[p.ID] = *p
	return nil
}

func (f *fakePlays) Update(_ context.Context, p *model.Play, actorIDs, genreIDs *[]uint64) error {
	old, ok := f.rows[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Actors, p.Genres, p.Rating, p.Image = old.Actors, old.Genres, old.Rating, old.Image
	if actorIDs != nil {
		p.Actors, _ = links(*actorIDs)
	}
	if genreIDs != nil {
		_, p.Genres = links(*genreIDs)
	}
	f.rows[p.ID] = *p
	return nil
}

func (f *fakePlays) Delete(context.Context, uint64) error { return nil }

func (f *fakePlays) SetImage(_ context.Context, id uint64, path string) error {
	p := f.rows[id]
	p.Image = &path
	f.rows[id] = p
	f.images[id] = path
	return nil
}

type fakeReviews struct {
	mu     sync.Mutex
	rows   []model.Review
	plays  map[uint64]bool
	nextID uint64
}

func (f *fakeReviews) List(_ context.Context, playID uint64) ([]model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Review
	for _, rv := range f.rows {
		if playID == 0 || rv.PlayID == playID {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (f *fakeReviews) Create(_ context.Context, rv *model.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.plays[rv.PlayID] {
		return repository.ErrUnknownReference
	}
	f.nextID++
	rv.ID = f.nextID
	rv.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.rows = append(f.rows, *rv)
	return nil
}

func (f *fakeReviews) DeleteForUser(_ context.Context, id, userID uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rv := range f.rows {
		if rv.ID != id {
			continue
		}
		if rv.UserID != userID {
			return 0, repository.ErrForbidden
		}
		f.rows = append(f.rows[:i], f.rows[i+1:]...)
		return rv.PlayID, nil
	}
	return 0, repository.ErrNotFound
}

type fakeRatings struct {
	mu        sync.Mutex
	refreshed []uint64
}

func (f *fakeRatings) RefreshQuietly(_ context.Context, playID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, playID)
}

func (f *fakeRatings) Refresh(_ context.Context, playID uint64) (*float64, error) {
	if playID == 404 {
		return nil, service.ErrPlayNotFound
	}
	f.RefreshQuietly(context.Background(), playID)
	r := 4.5
	return &r, nil
}
