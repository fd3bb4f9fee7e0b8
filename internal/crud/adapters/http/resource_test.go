package crudhttp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crudhttp "github.com/Apurer/go-gin-crud-server/internal/crud/adapters/http"
	"github.com/Apurer/go-gin-crud-server/internal/domains/catalog/adapters/http/mapper"
	catalogapp "github.com/Apurer/go-gin-crud-server/internal/domains/catalog/application"
	"github.com/Apurer/go-gin-crud-server/internal/domains/catalog/domain"
	"github.com/Apurer/go-gin-crud-server/internal/platform/pagination"
	apierrors "github.com/Apurer/go-gin-crud-server/internal/shared/errors"
)

type problemBody struct {
	Type       string `json:"type"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Extensions struct {
		Fields map[string]string `json:"fields"`
	} `json:"extensions"`
}

func newRouter(t *testing.T, services catalogapp.Services) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	crudhttp.NewResource[domain.Band, domain.BandCreate, domain.BandUpdate, mapper.Band](services.Bands, mapper.PresentBands).Register(router)
	crudhttp.NewResource[domain.Song, domain.SongCreate, domain.SongUpdate, mapper.Song](services.Songs, mapper.SongPresenter(services.Bands)).Register(router)
	return router
}

func newCatalog(t *testing.T) *gin.Engine {
	t.Helper()
	return newRouter(t, catalogapp.NewServices(catalogapp.NewMemoryStores(), catalogapp.Decorator{}))
}

func send(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[V any](t *testing.T, w *httptest.ResponseRecorder) V {
	t.Helper()
	var v V
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createBand(t *testing.T, router http.Handler, name string) mapper.Band {
	t.Helper()
	w := send(t, router, http.MethodPost, "/bands", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[mapper.Band](t, w)
}

func TestList_EmptyCollection(t *testing.T) {
	router := newCatalog(t)

	for _, path := range []string{"/songs", "/songs/"} {
		w := send(t, router, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"items":[],"total":0,"limit":50,"offset":0}`, w.Body.String(), path)
	}
}

func TestBands_Lifecycle(t *testing.T) {
	router := newCatalog(t)

	created := createBand(t, router, "Nirvana")
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "Nirvana", created.Name)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Nil(t, created.UpdatedAt)

	path := "/bands/" + created.ID.String()
	w := send(t, router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created, decode[mapper.Band](t, w))

	w = send(t, router, http.MethodPut, path, `{}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Nirvana", decode[mapper.Band](t, w).Name)

	w = send(t, router, http.MethodPut, path, `{"name":"Foo Fighters"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[mapper.Band](t, w)
	assert.Equal(t, "Foo Fighters", updated.Name)
	assert.Equal(t, created.ID, updated.ID)
	assert.NotNil(t, updated.UpdatedAt)

	w = send(t, router, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = send(t, router, http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	problem := decode[problemBody](t, w)
	assert.Equal(t, apierrors.TypeNotFound, problem.Type)
	assert.Contains(t, problem.Detail, created.ID.String())
	assert.Equal(t, apierrors.ContentTypeProblemJSON, w.Header().Get("Content-Type"))
}

func TestSongs_CreateResolvesBand(t *testing.T) {
	router := newCatalog(t)
	band := createBand(t, router, "Pixies")

	w := send(t, router, http.MethodPost, "/songs",
		`{"name":"Debaser","artist":"Pixies","year":1989,"band_id":"`+band.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	song := decode[mapper.Song](t, w)
	require.NotNil(t, song.Year)
	assert.Equal(t, 1989, *song.Year)
	assert.Equal(t, band.ID, song.BandID)
	require.NotNil(t, song.Band)
	assert.Equal(t, "Pixies", song.Band.Name)

	w = send(t, router, http.MethodGet, "/songs?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[pagination.Page[mapper.Song]](t, w)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].Band)
	assert.Equal(t, band.ID, page.Items[0].Band.ID)
}

func TestSongs_UnknownBandConflicts(t *testing.T) {
	router := newCatalog(t)

	w := send(t, router, http.MethodPost, "/songs",
		`{"name":"Lithium","artist":"Nirvana","band_id":"`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, apierrors.TypeConflict, decode[problemBody](t, w).Type)

	w = send(t, router, http.MethodGet, "/songs", "")
	assert.EqualValues(t, 0, decode[pagination.Page[mapper.Song]](t, w).Total)
}

func TestSongs_UpdateMergesAndClears(t *testing.T) {
	router := newCatalog(t)
	band := createBand(t, router, "Nirvana")
	w := send(t, router, http.MethodPost, "/songs",
		`{"name":"Lithium","artist":"Nirvana","year":1991,"band_id":"`+band.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	song := decode[mapper.Song](t, w)
	path := "/songs/" + song.ID.String()

	w = send(t, router, http.MethodPut, path, `{"artist":"Kurt Cobain"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[mapper.Song](t, w)
	assert.Equal(t, "Lithium", updated.Name)
	assert.Equal(t, "Kurt Cobain", updated.Artist)
	require.NotNil(t, updated.Year)
	assert.Equal(t, 1991, *updated.Year)

	w = send(t, router, http.MethodPut, path, `{"year":null}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, decode[mapper.Song](t, w).Year)

	w = send(t, router, http.MethodPut, path, `{"name":"  "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[problemBody](t, w).Extensions.Fields, "name")

	w = send(t, router, http.MethodPut, "/songs/"+uuid.NewString(), `{"name":"Polly"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSongs_RemoveHidesSong(t *testing.T) {
	router := newCatalog(t)
	band := createBand(t, router, "Hole")
	w := send(t, router, http.MethodPost, "/songs",
		`{"name":"Celebrity Skin","artist":"Hole","band_id":"`+band.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	path := "/songs/" + decode[mapper.Song](t, w).ID.String()

	require.Equal(t, http.StatusNoContent, send(t, router, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, send(t, router, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, send(t, router, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, send(t, router, http.MethodPut, path, `{"name":"x"}`).Code)

	w = send(t, router, http.MethodGet, "/songs", "")
	assert.EqualValues(t, 0, decode[pagination.Page[mapper.Song]](t, w).Total)
}

func TestMalformedID_IsNotFound(t *testing.T) {
	router := newCatalog(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := send(t, router, method, "/songs/not-a-uuid", `{}`)
		require.Equal(t, http.StatusNotFound, w.Code, method)
		assert.Contains(t, decode[problemBody](t, w).Detail, "not-a-uuid", method)
	}
}

func TestList_Window(t *testing.T) {
	router := newCatalog(t)
	for _, name := range []string{"A", "B", "C"} {
		createBand(t, router, name)
	}

	w := send(t, router, http.MethodGet, "/bands?limit=2&offset=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[pagination.Page[mapper.Band]](t, w)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.Offset)
	assert.Len(t, page.Items, 1)

	w = send(t, router, http.MethodGet, "/bands?offset=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[pagination.Page[mapper.Band]](t, w)
	assert.EqualValues(t, 3, page.Total)
	assert.Empty(t, page.Items)
}

func TestList_RejectsBadWindow(t *testing.T) {
	router := newCatalog(t)
	cases := map[string]string{
		"/bands?limit=0":    "limit",
		"/bands?limit=101":  "limit",
		"/bands?limit=ten":  "limit",
		"/bands?offset=-1":  "offset",
		"/bands?offset=1.5": "offset",
	}
	for path, field := range cases {
		w := send(t, router, http.MethodGet, path, "")
		require.Equal(t, http.StatusBadRequest, w.Code, path)
		problem := decode[problemBody](t, w)
		assert.Equal(t, apierrors.TypeValidation, problem.Type, path)
		assert.Contains(t, problem.Extensions.Fields, field, path)
	}
}

func TestCreate_RejectsInvalidBody(t *testing.T) {
	router := newCatalog(t)
	band := createBand(t, router, "Nirvana")

	cases := []struct {
		name   string
		path   string
		body   string
		field  string
		reason string
	}{
		{name: "missing name", path: "/bands", body: `{}`, field: "name", reason: "is required"},
		{name: "wrong type", path: "/bands", body: `{"name":5}`, field: "name", reason: "must be of type string"},
		{name: "not json", path: "/bands", body: `{"name":`, field: "body", reason: "must be a JSON object"},
		{name: "too long", path: "/bands", body: `{"name":"` + strings.Repeat("x", 256) + `"}`, field: "name", reason: "must be at most 255 characters"},
		{name: "year range", path: "/songs", body: `{"name":"a","artist":"b","year":10000,"band_id":"` + band.ID.String() + `"}`, field: "year", reason: "must be less than or equal to 9999"},
		{name: "missing band", path: "/songs", body: `{"name":"a","artist":"b"}`, field: "band_id", reason: "is required"},
		{name: "band not a uuid", path: "/songs", body: `{"name":"a","artist":"b","band_id":"abc"}`, field: "band_id", reason: "must be a UUID"},
		{name: "band wrong type", path: "/songs", body: `{"name":"a","artist":"b","band_id":7}`, field: "band_id", reason: "must be of type string"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := send(t, router, http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tc.reason, decode[problemBody](t, w).Extensions.Fields[tc.field])
		})
	}
}

type failingBands struct {
	catalogapp.BandService
}

func (failingBands) Paginate(context.Context, pagination.Window) (pagination.Page[*domain.Band], error) {
	return pagination.Page[*domain.Band]{}, errors.New("connection reset by peer at 10.0.0.7")
}

func TestList_UnexpectedFailureIsHidden(t *testing.T) {
	services := catalogapp.NewServices(catalogapp.NewMemoryStores(), catalogapp.Decorator{
		Bands: func(s catalogapp.BandService) catalogapp.BandService { return failingBands{s} },
	})
	router := newRouter(t, services)

	w := send(t, router, http.MethodGet, "/bands", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	problem := decode[problemBody](t, w)
	assert.Equal(t, apierrors.GenericInternalDetail, problem.Detail)
	assert.NotContains(t, w.Body.String(), "10.0.0.7")
}

func TestNewResource_Prefix(t *testing.T) {
	services := catalogapp.NewServices(catalogapp.NewMemoryStores(), catalogapp.Decorator{})

	songs := crudhttp.NewResource[domain.Song, domain.SongCreate, domain.SongUpdate, mapper.Song](services.Songs, mapper.SongPresenter(services.Bands))
	assert.Equal(t, "/songs", songs.Prefix())

	bands := crudhttp.NewResource[domain.Band, domain.BandCreate, domain.BandUpdate, mapper.Band](services.Bands, mapper.PresentBands, crudhttp.WithPrefix("/v1/bands"))
	assert.Equal(t, "/v1/bands", bands.Prefix())

	router := gin.New()
	bands.Register(router)
	assert.Equal(t, http.StatusOK, send(t, router, http.MethodGet, "/v1/bands", "").Code)
}

func TestBands_RemoveReferencedBandConflicts(t *testing.T) {
	router := newCatalog(t)
	band := createBand(t, router, "Low")
	w := send(t, router, http.MethodPost, "/songs",
		`{"name":"Words","artist":"Low","band_id":"`+band.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	songPath := "/songs/" + decode[mapper.Song](t, w).ID.String()
	bandPath := "/bands/" + band.ID.String()

	w = send(t, router, http.MethodDelete, bandPath, "")
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, apierrors.TypeConflict, decode[problemBody](t, w).Type)

	w = send(t, router, http.MethodPut, songPath, `{"name":"D"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	song := decode[mapper.Song](t, w)
	assert.Equal(t, "D", song.Name)
	require.NotNil(t, song.Band)
	assert.Equal(t, band.ID, song.Band.ID)

	require.Equal(t, http.StatusNoContent, send(t, router, http.MethodDelete, songPath, "").Code)
	w = send(t, router, http.MethodDelete, bandPath, "")
	assert.Equal(t, http.StatusConflict, w.Code, "a soft-deleted song still references the band")
	assert.Equal(t, http.StatusOK, send(t, router, http.MethodGet, bandPath, "").Code)
}

func TestSongs_ConcurrentWriters(t *testing.T) {
	router := newCatalog(t)
	band := createBand(t, router, "Swans")
	w := send(t, router, http.MethodPost, "/songs",
		`{"name":"Failure","artist":"Swans","band_id":"`+band.ID.String()+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	shared := "/songs/" + decode[mapper.Song](t, w).ID.String()

	const writers = 50
	codes := make(chan int, 3*writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("take %d", i)
			codes <- send(t, router, http.MethodPost, "/songs",
				`{"name":"`+name+`","artist":"Swans","band_id":"`+band.ID.String()+`"}`).Code
			codes <- send(t, router, http.MethodPut, shared, `{"name":"`+name+`"}`).Code
			codes <- send(t, router, http.MethodGet, shared, "").Code
		}(i)
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Contains(t, []int{http.StatusCreated, http.StatusOK}, code)
	}

	w = send(t, router, http.MethodGet, "/songs?limit=100", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[pagination.Page[mapper.Song]](t, w)
	assert.EqualValues(t, writers+1, page.Total)
	require.Len(t, page.Items, writers+1)
	ids := make(map[uuid.UUID]struct{}, len(page.Items))
	for _, item := range page.Items {
		ids[item.ID] = struct{}{}
	}
	assert.Len(t, ids, writers+1)

	w = send(t, router, http.MethodGet, shared, "")
	require.Equal(t, http.StatusOK, w.Code)
	final := decode[mapper.Song](t, w)
	assert.True(t, strings.HasPrefix(final.Name, "take "), final.Name)
	assert.NotNil(t, final.UpdatedAt)
}
