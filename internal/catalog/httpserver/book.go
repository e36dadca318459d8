package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/bookstore/internal/apperr"
	"github.com/Skotchmaster/bookstore/internal/catalog/service"
	"github.com/Skotchmaster/bookstore/internal/catalog/transport"
	"github.com/Skotchmaster/bookstore/internal/httperr"
	"github.com/Skotchmaster/bookstore/internal/logging"
	authmw "github.com/Skotchmaster/bookstore/internal/middleware/auth"
	"github.com/Skotchmaster/bookstore/internal/util"
)

type BookHTTP struct {
	Svc *service.CatalogService
}

func bookID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid book id")
	}
	return uint(id), nil
}

func listQuery(c echo.Context) service.ListQuery {
	return service.ListQuery{
		Search:   c.QueryParam("search"),
		Category: c.QueryParam("category"),
		Sort:     c.QueryParam("sort"),
		Page:     util.ParseIntDefault(c.QueryParam("page"), util.DefaultPage),
		Limit:    util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize),
	}
}

func toInput(f transport.BookForm) (service.BookInput, error) {
	price, err := decimal.NewFromString(f.Price.String())
	if err != nil {
		return service.BookInput{}, fmt.Errorf("%w: invalid price", apperr.ErrValidation)
	}
	stock := 0
	if f.Stock != "" {
		v, err := strconv.Atoi(f.Stock.String())
		if err != nil {
			return service.BookInput{}, fmt.Errorf("%w: invalid stock", apperr.ErrValidation)
		}
		stock = v
	}

	in := service.BookInput{
		Title:       f.Title,
		Author:      f.Author,
		Price:       price,
		Stock:       stock,
		Description: f.Description,
	}
	if f.Category != "" {
		cat := f.Category
		in.Category = &cat
	}
	return in, nil
}

// formImage returns the optional uploaded file under field. The caller
// closes the returned upload.
func formImage(c echo.Context, field string) (*service.Upload, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, nil, fmt.Errorf("%w: invalid file upload", apperr.ErrValidation)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	return &service.Upload{Reader: f, Filename: fh.Filename}, func() { _ = f.Close() }, nil
}

func (h *BookHTTP) ListPublic(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.list_public")

	total, books, err := h.Svc.ListPublic(ctx, listQuery(c))
	if err != nil {
		return httperr.Fail(l, "list_books_error", err)
	}
	return c.JSON(http.StatusOK, transport.PublicListResponse{Books: books, Total: total})
}

func (h *BookHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.list")

	res, err := h.Svc.List(ctx, listQuery(c))
	if err != nil {
		return httperr.Fail(l, "list_books_error", err)
	}
	return c.JSON(http.StatusOK, listResponse(res))
}

func (h *BookHTTP) Categories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.categories")

	cats, err := h.Svc.Categories(ctx)
	if err != nil {
		return httperr.Fail(l, "categories_error", err)
	}
	return c.JSON(http.StatusOK, transport.CategoriesResponse{Categories: cats})
}

func (h *BookHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.search")

	page := util.ParseIntDefault(c.QueryParam("page"), util.DefaultPage)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	res, err := h.Svc.Search(ctx, c.QueryParam("q"), page, size)
	if err != nil {
		return httperr.Fail(l, "search_error", err)
	}
	return c.JSON(http.StatusOK, listResponse(res))
}

func (h *BookHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.get")

	id, err := bookID(c)
	if err != nil {
		return err
	}
	book, err := h.Svc.Get(ctx, id)
	if err != nil {
		return httperr.Fail(l, "get_book_error", err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *BookHTTP) ListMine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.list_mine")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	books, err := h.Svc.ListMine(ctx, who)
	if err != nil {
		return httperr.Fail(l, "list_mine_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"books": books})
}

func (h *BookHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.create")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	var form transport.BookForm
	if err := c.Bind(&form); err != nil {
		l.Warn("create_book_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	in, err := toInput(form)
	if err != nil {
		return httperr.Fail(l, "create_book_error", err)
	}

	img, closeImg, err := formImage(c, "image")
	if err != nil {
		return httperr.Fail(l, "create_book_error", err)
	}
	defer closeImg()

	book, err := h.Svc.Create(ctx, who, in, img)
	if err != nil {
		return httperr.Fail(l, "create_book_error", err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *BookHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.update")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	id, err := bookID(c)
	if err != nil {
		return err
	}

	var form transport.BookForm
	if err := c.Bind(&form); err != nil {
		l.Warn("update_book_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	in, err := toInput(form)
	if err != nil {
		return httperr.Fail(l, "update_book_error", err)
	}

	img, closeImg, err := formImage(c, "image")
	if err != nil {
		return httperr.Fail(l, "update_book_error", err)
	}
	defer closeImg()

	book, err := h.Svc.Update(ctx, who, id, in, img)
	if err != nil {
		return httperr.Fail(l, "update_book_error", err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *BookHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.delete")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	id, err := bookID(c)
	if err != nil {
		return err
	}

	if err := h.Svc.Delete(ctx, who, id); err != nil {
		return httperr.Fail(l, "delete_book_error", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "book deleted"})
}

func (h *BookHTTP) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "books.upload")

	who, err := authmw.IdentityFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	img, closeImg, err := formImage(c, "file")
	if err != nil {
		return httperr.Fail(l, "upload_error", err)
	}
	defer closeImg()
	if img == nil {
		l.Warn("upload_error", "status", 400, "reason", "no file")
		return echo.NewHTTPError(http.StatusBadRequest, "no file uploaded")
	}

	url, err := h.Svc.UploadImage(ctx, who, *img)
	if err != nil {
		return httperr.Fail(l, "upload_error", err)
	}
	return c.JSON(http.StatusOK, transport.UploadResponse{Message: "file uploaded", Path: url})
}

func listResponse(res *service.ListResult) transport.ListResponse {
	return transport.ListResponse{
		Books: res.Books,
		Total: res.Total,
		Page:  res.Page,
		Limit: res.Limit,
		Pages: res.Pages,
	}
}
