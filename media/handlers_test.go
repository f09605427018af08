package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passThrough(next echo.HandlerFunc) echo.HandlerFunc {
	return next
}

func setupTestHandler(t *testing.T) (*echo.Echo, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir(), nil, 0, nil)
	require.NoError(t, err)
	e := echo.New()
	NewHandler(store, nil).RegisterRoutes(e.Group("/api/upload"), passThrough)
	return e, store
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

// multipartBody builds a multipart form with n copies of data under field.
func multipartBody(t *testing.T, field, contentType string, data []byte, n int) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for i := 0; i < n; i++ {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename="photo-%d.png"`, field, i))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestUploadSingle(t *testing.T) {
	e, _ := setupTestHandler(t)

	body, contentType := multipartBody(t, "photo", "image/png", encodePNG(t), 1)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/single", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Host = "api.example.com"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info FileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "photo-0.png", info.OriginalName)
	assert.Equal(t, "image/png", info.Mimetype)
	assert.Equal(t, "http://api.example.com/uploads/"+info.Filename, info.URL)
}

func TestUploadSingleMissingFile(t *testing.T) {
	e, _ := setupTestHandler(t)

	body, contentType := multipartBody(t, "wrongfield", "image/png", encodePNG(t), 1)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/single", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file uploaded")
}

func TestUploadMultiple(t *testing.T) {
	e, store := setupTestHandler(t)

	body, contentType := multipartBody(t, "photos", "image/png", encodePNG(t), 3)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/multiple", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var infos []FileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Len(t, infos, 3)

	stored, err := store.List()
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestUploadMultipleTooManyPersistsNothing(t *testing.T) {
	e, store := setupTestHandler(t)

	body, contentType := multipartBody(t, "photos", "image/png", encodePNG(t), 11)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/multiple", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many files")

	stored, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestUploadMultipleInvalidTypePersistsNothing(t *testing.T) {
	e, store := setupTestHandler(t)

	body, contentType := multipartBody(t, "photos", "application/pdf", []byte("%PDF-1.4"), 2)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/multiple", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGetAndDeleteEndpoints(t *testing.T) {
	e, store := setupTestHandler(t)

	data := encodePNG(t)
	info, err := store.StoreOne("x.png", "image/png", int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/upload/"+info.Filename, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/upload/"+info.Filename, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/upload/"+info.Filename, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "File not found")
}
