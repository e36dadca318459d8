package httpserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/catalog/repo"
	"github.com/Skotchmaster/bookstore/internal/catalog/service"
	"github.com/Skotchmaster/bookstore/internal/dbtest"
	authmw "github.com/Skotchmaster/bookstore/internal/middleware/auth"
	"github.com/Skotchmaster/bookstore/internal/models"
	"github.com/Skotchmaster/bookstore/internal/mykafka"
	"github.com/Skotchmaster/bookstore/internal/storage"
)

var seller = authz.Identity{UserID: 7, Username: "seller", Role: authz.RoleSeller}

func newHandler(t *testing.T) *BookHTTP {
	t.Helper()
	images, err := storage.NewImageStore(t.TempDir())
	require.NoError(t, err)
	return &BookHTTP{Svc: &service.CatalogService{
		Repo:        &repo.GormRepo{DB: dbtest.Open(t)},
		Images:      images,
		Events:      mykafka.NewProducer(nil),
		MaxPageSize: 100,
	}}
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	return he.Code
}

func TestCreateBook_Multipart(t *testing.T) {
	h := newHandler(t)
	e := echo.New()

	body, ct := multipartBody(t, map[string]string{
		"title": "Go", "author": "Pike", "price": "19.90", "stock": "4", "category": "计算机",
	}, "image", "cover.png")
	req := httptest.NewRequest(http.MethodPost, "/api/books", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	authmw.SetIdentity(c, seller)

	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var book models.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.Equal(t, "Go", book.Title)
	require.Equal(t, 4, book.Stock)
	require.Equal(t, seller.UserID, book.SellerID)
	require.NotNil(t, book.ImageURL)
	require.True(t, strings.HasPrefix(*book.ImageURL, "/uploads/"))
}

func TestCreateBook_InvalidPrice(t *testing.T) {
	h := newHandler(t)
	e := echo.New()

	body, ct := multipartBody(t, map[string]string{"title": "Go", "author": "Pike", "price": "abc"}, "", "")
	req := httptest.NewRequest(http.MethodPost, "/api/books", body)
	req.Header.Set(echo.HeaderContentType, ct)
	c := e.NewContext(req, httptest.NewRecorder())
	authmw.SetIdentity(c, seller)

	require.Equal(t, http.StatusBadRequest, httpCode(t, h.Create(c)))
}

func TestCreateBook_JSON(t *testing.T) {
	h := newHandler(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/books",
		strings.NewReader(`{"title":"Go","author":"Pike","price":12.5,"stock":2}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	authmw.SetIdentity(c, seller)

	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetBook(t *testing.T) {
	h := newHandler(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/books/42", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("42")
	require.Equal(t, http.StatusNotFound, httpCode(t, h.Get(c)))

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/books/x", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("x")
	require.Equal(t, http.StatusBadRequest, httpCode(t, h.Get(c)))
}

func TestListBooks_QueryCoercion(t *testing.T) {
	h := newHandler(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/books?page=abc&limit=-3", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.List(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 1, resp["page"])
	require.EqualValues(t, 10, resp["limit"])
	require.EqualValues(t, 0, resp["total"])
	require.Equal(t, []any{}, resp["books"])
}

func TestCategories(t *testing.T) {
	h := newHandler(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	require.NoError(t, h.Categories(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/books/categories", nil), rec)))

	var resp struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, service.DefaultCategories, resp.Categories)
}

func TestUpload_RequiresFile(t *testing.T) {
	h := newHandler(t)
	e := echo.New()

	body, ct := multipartBody(t, nil, "", "")
	req := httptest.NewRequest(http.MethodPost, "/api/books/upload", body)
	req.Header.Set(echo.HeaderContentType, ct)
	c := e.NewContext(req, httptest.NewRecorder())
	authmw.SetIdentity(c, seller)
	require.Equal(t, http.StatusBadRequest, httpCode(t, h.Upload(c)))

	body, ct = multipartBody(t, nil, "file", "a.jpg")
	req = httptest.NewRequest(http.MethodPost, "/api/books/upload", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	authmw.SetIdentity(c, seller)
	require.NoError(t, h.Upload(c))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp["path"], "/uploads/"))
}
