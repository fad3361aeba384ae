package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flamegen/internal/repository"
	"github.com/flamegen/internal/storage"
	"github.com/flamegen/pkg/utils"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	srv := NewServer(8080, repository.NewGormGraphRepository(db), store, nil, db, &utils.NullLogger{})
	return srv, srv.Handler()
}

func renderRaw(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/render", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHandleRender_RawBody(t *testing.T) {
	_, handler := newTestServer(t)

	rec := renderRaw(t, handler, "main;run 10\nmain;gc 5\n")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp renderResponse
	decodeJSON(t, rec, &resp)
	assert.NotEmpty(t, resp.UUID)
	assert.Equal(t, "single", resp.Kind)
	assert.Equal(t, int64(15), resp.TotalBefore)
	assert.Equal(t, 2, resp.MaxDepth)
	assert.Equal(t, "/api/graphs/"+resp.UUID+".svg", resp.URL)
}

func TestHandleRender_RawBodyQueryParams(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/render?title=Custom+Title&width=800",
		strings.NewReader("main;work 100\n"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp renderResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "Custom Title", resp.Title)

	docReq := httptest.NewRequest(http.MethodGet, resp.URL, nil)
	docRec := httptest.NewRecorder()
	handler.ServeHTTP(docRec, docReq)
	require.Equal(t, http.StatusOK, docRec.Code)
	assert.Contains(t, docRec.Body.String(), ">Custom Title</text>")
	assert.Contains(t, docRec.Body.String(), `width="800"`)
}

func TestHandleRender_RawBodyBadQueryWidth(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/render?width=zero",
		strings.NewReader("main;work 100\n"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid width")
}

func TestHandleRender_Multipart(t *testing.T) {
	_, handler := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("profile", "cpu.folded")
	require.NoError(t, err)
	_, err = fw.Write([]byte("main;work 100\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("title", "CPU Profile"))
	require.NoError(t, mw.WriteField("width", "800"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/render", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp renderResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "CPU Profile", resp.Title)
	assert.Equal(t, int64(100), resp.TotalBefore)
}

func TestHandleRender_Differential(t *testing.T) {
	_, handler := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	bw, err := mw.CreateFormFile("before", "before.folded")
	require.NoError(t, err)
	_, err = bw.Write([]byte("main;work 100\n"))
	require.NoError(t, err)
	aw, err := mw.CreateFormFile("after", "after.folded")
	require.NoError(t, err)
	_, err = aw.Write([]byte("main;work 80\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/render", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp renderResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "diff", resp.Kind)
	assert.Equal(t, int64(100), resp.TotalBefore)
	assert.Equal(t, int64(80), resp.TotalAfter)
}

func TestHandleRender_MissingAfterFile(t *testing.T) {
	_, handler := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	bw, err := mw.CreateFormFile("before", "before.folded")
	require.NoError(t, err)
	_, err = bw.Write([]byte("main;work 100\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/render", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "before and after")
}

func TestHandleRender_EmptyProfile(t *testing.T) {
	_, handler := newTestServer(t)

	rec := renderRaw(t, handler, "# only a comment\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no samples")
}

func TestHandleRender_InvalidWidth(t *testing.T) {
	_, handler := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("profile", "cpu.folded")
	require.NoError(t, err)
	_, err = fw.Write([]byte("main;work 100\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("width", "-5"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/render", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid width")
}

func TestHandleRender_MethodNotAllowed(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/render", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleGetGraph(t *testing.T) {
	_, handler := newTestServer(t)

	rec := renderRaw(t, handler, "main;work 100\n")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created renderResponse
	decodeJSON(t, rec, &created)

	t.Run("Metadata", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/graphs/"+created.UUID, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp graphResponse
		decodeJSON(t, rec, &resp)
		assert.Equal(t, created.UUID, resp.UUID)
		assert.Equal(t, "single", resp.Kind)
		assert.False(t, resp.CreatedAt.IsZero())
	})

	t.Run("Document", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/graphs/"+created.UUID+".svg", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "<svg")
		assert.Contains(t, rec.Body.String(), "work (100 samples")
	})

	t.Run("NotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/graphs/nonexistent", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleListGraphs(t *testing.T) {
	_, handler := newTestServer(t)

	t.Run("Empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/graphs", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp []*graphResponse
		decodeJSON(t, rec, &resp)
		assert.Empty(t, resp)
	})

	t.Run("WithGraphs", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, renderRaw(t, handler, "a;b 1\n").Code)
		require.Equal(t, http.StatusCreated, renderRaw(t, handler, "c;d 2\n").Code)

		req := httptest.NewRequest(http.MethodGet, "/api/graphs?limit=1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp []*graphResponse
		decodeJSON(t, rec, &resp)
		require.Len(t, resp, 1)
		assert.Equal(t, int64(2), resp[0].TotalBefore)
	})

	t.Run("BadLimit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/graphs?limit=zero", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
