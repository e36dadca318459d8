package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/bookstore/internal/apperr"
	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/catalog/repo"
	"github.com/Skotchmaster/bookstore/internal/logging"
	"github.com/Skotchmaster/bookstore/internal/models"
	"github.com/Skotchmaster/bookstore/internal/mykafka"
	"github.com/Skotchmaster/bookstore/internal/search"
	"github.com/Skotchmaster/bookstore/internal/util"
)

const indexTimeout = 5 * time.Second

// DefaultCategories are always offered, after the ones already in use.
var DefaultCategories = []string{"小说", "文学", "历史", "科技", "经济", "艺术", "教育", "生活", "计算机", "外语"}

type ImageStore interface {
	Save(src io.Reader, filename string) (string, error)
	Delete(url string) error
}

type CatalogService struct {
	Repo        *repo.GormRepo
	Images      ImageStore
	Index       *search.BookIndex
	Events      mykafka.Publisher
	MaxPageSize int
}

type BookInput struct {
	Title       string
	Author      string
	Price       decimal.Decimal
	Stock       int
	Description string
	Category    *string
}

type Upload struct {
	Reader   io.Reader
	Filename string
}

type ListQuery struct {
	Search   string
	Category string
	Sort     string
	Page     int
	Limit    int
}

type ListResult struct {
	Books []models.Book
	Total int64
	Page  int
	Limit int
	Pages int64
}

func (in *BookInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	if in.Category != nil {
		c := strings.TrimSpace(*in.Category)
		if c == "" {
			in.Category = nil
		} else {
			in.Category = &c
		}
	}

	switch {
	case in.Title == "" || in.Author == "":
		return fmt.Errorf("%w: title and author are required", apperr.ErrValidation)
	case !in.Price.IsPositive():
		return fmt.Errorf("%w: price must be greater than 0", apperr.ErrValidation)
	case in.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", apperr.ErrValidation)
	}
	in.Price = in.Price.Round(2)
	return nil
}

func notFound(id uint) error {
	return fmt.Errorf("%w: book %d not found", apperr.ErrNotFound, id)
}

// ListPublic returns every in-stock book matching the filters, unpaginated.
func (s *CatalogService) ListPublic(ctx context.Context, q ListQuery) (int64, []models.Book, error) {
	return s.Repo.ListBooks(ctx, repo.Filter{
		Search:      strings.TrimSpace(q.Search),
		Category:    q.Category,
		Sort:        q.Sort,
		InStockOnly: true,
	})
}

func (s *CatalogService) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	p := util.Calculate(q.Page, q.Limit, s.MaxPageSize)

	total, books, err := s.Repo.ListBooks(ctx, repo.Filter{
		Search:      strings.TrimSpace(q.Search),
		Category:    q.Category,
		Sort:        q.Sort,
		InStockOnly: true,
		Offset:      p.Offset,
		Limit:       p.Limit,
	})
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Books: books,
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
		Pages: util.Pages(total, p.Limit),
	}, nil
}

func (s *CatalogService) Get(ctx context.Context, id uint) (*models.Book, error) {
	book, err := s.Repo.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, err
	}
	return book, nil
}

func (s *CatalogService) Create(ctx context.Context, who authz.Identity, in BookInput, img *Upload) (*models.Book, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create", "seller_id", who.UserID)

	if err := authz.Authorize(who, authz.BookCreate, nil); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	book := models.Book{
		Title:       in.Title,
		Author:      in.Author,
		Price:       in.Price,
		Stock:       in.Stock,
		SellerID:    who.UserID,
		Description: in.Description,
		Category:    in.Category,
	}

	if img != nil {
		url, err := s.Images.Save(img.Reader, img.Filename)
		if err != nil {
			return nil, err
		}
		book.ImageURL = &url
	}

	if err := s.Repo.CreateBook(ctx, &book); err != nil {
		s.dropImage(ctx, book.ImageURL)
		return nil, err
	}

	l.Info("book_created", "book_id", book.ID)
	s.reindex(ctx, &book)
	s.publish(ctx, "book_created", &book)
	return &book, nil
}

// Update replaces every mutable field of the book. A new image replaces
// the stored one, which is removed from disk.
func (s *CatalogService) Update(ctx context.Context, who authz.Identity, id uint, in BookInput, img *Upload) (*models.Book, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.update", "seller_id", who.UserID, "book_id", id)

	if err := authz.Authorize(who, authz.BookUpdate, nil); err != nil {
		return nil, err
	}
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(who, authz.BookUpdate, &authz.Resource{OwnerID: book.SellerID}); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	previous := book.ImageURL
	if img != nil {
		url, err := s.Images.Save(img.Reader, img.Filename)
		if err != nil {
			return nil, err
		}
		book.ImageURL = &url
	}

	book.Title = in.Title
	book.Author = in.Author
	book.Price = in.Price
	book.Stock = in.Stock
	book.Description = in.Description
	book.Category = in.Category

	if err := s.Repo.UpdateBook(ctx, book); err != nil {
		if img != nil {
			s.dropImage(ctx, book.ImageURL)
		}
		return nil, err
	}
	if img != nil {
		s.dropImage(ctx, previous)
	}

	l.Info("book_updated")
	s.reindex(ctx, book)
	s.publish(ctx, "book_updated", book)
	return book, nil
}

func (s *CatalogService) Delete(ctx context.Context, who authz.Identity, id uint) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete", "seller_id", who.UserID, "book_id", id)

	if err := authz.Authorize(who, authz.BookDelete, nil); err != nil {
		return err
	}
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.Authorize(who, authz.BookDelete, &authz.Resource{OwnerID: book.SellerID}); err != nil {
		return err
	}

	ordered, err := s.Repo.HasOrders(ctx, id)
	if err != nil {
		return err
	}
	if ordered {
		return fmt.Errorf("%w: book %d has orders and cannot be deleted", apperr.ErrConflict, id)
	}

	if err := s.Repo.DeleteBook(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(id)
		}
		return err
	}
	s.dropImage(ctx, book.ImageURL)

	l.Info("book_deleted")
	s.unindex(ctx, id)
	s.publish(ctx, "book_deleted", book)
	return nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	used, err := s.Repo.Categories(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(used)+len(DefaultCategories))
	out := make([]string, 0, len(used)+len(DefaultCategories))
	for _, group := range [][]string{used, DefaultCategories} {
		for _, c := range group {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out, nil
}

// ListMine returns all of the seller's books, including sold-out ones.
func (s *CatalogService) ListMine(ctx context.Context, who authz.Identity) ([]models.Book, error) {
	if err := authz.Authorize(who, authz.BookListOwn, nil); err != nil {
		return nil, err
	}
	_, books, err := s.Repo.ListBooks(ctx, repo.Filter{SellerID: who.UserID, Sort: repo.SortNewest})
	return books, err
}

// Search ranks books through the search index when one is configured. An
// unavailable index falls back to the database substring match.
func (s *CatalogService) Search(ctx context.Context, q string, page, size int) (*ListResult, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.search")

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: query is required", apperr.ErrValidation)
	}
	p := util.Calculate(page, size, s.MaxPageSize)

	if s.Index.Enabled() {
		total, ids, err := s.Index.Search(ctx, q, p.Offset, p.Limit)
		if err == nil {
			books, err := s.Repo.BooksByIDs(ctx, ids)
			if err != nil {
				return nil, err
			}
			return &ListResult{Books: books, Total: total, Page: p.Page, Limit: p.Limit, Pages: util.Pages(total, p.Limit)}, nil
		}
		l.Warn("search_index_unavailable", "error", err)
	}

	total, books, err := s.Repo.ListBooks(ctx, repo.Filter{Search: q, Offset: p.Offset, Limit: p.Limit})
	if err != nil {
		return nil, err
	}
	return &ListResult{Books: books, Total: total, Page: p.Page, Limit: p.Limit, Pages: util.Pages(total, p.Limit)}, nil
}

// UploadImage stores a standalone image for a seller and returns its URL.
func (s *CatalogService) UploadImage(ctx context.Context, who authz.Identity, img Upload) (string, error) {
	if err := authz.Authorize(who, authz.BookCreate, nil); err != nil {
		return "", err
	}
	url, err := s.Images.Save(img.Reader, img.Filename)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Info("image_uploaded", "seller_id", who.UserID, "url", url)
	return url, nil
}

func (s *CatalogService) dropImage(ctx context.Context, url *string) {
	if url == nil || *url == "" || s.Images == nil {
		return
	}
	if err := s.Images.Delete(*url); err != nil {
		logging.FromContext(ctx).Warn("image_delete_error", "url", *url, "error", err)
	}
}

func (s *CatalogService) reindex(ctx context.Context, book *models.Book) {
	if !s.Index.Enabled() {
		return
	}
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
	defer cancel()
	if err := s.Index.IndexBook(ictx, book); err != nil {
		logging.FromContext(ctx).Error("search_index_error", "book_id", book.ID, "error", err)
	}
}

func (s *CatalogService) unindex(ctx context.Context, id uint) {
	if !s.Index.Enabled() {
		return
	}
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
	defer cancel()
	if err := s.Index.DeleteBook(ictx, id); err != nil {
		logging.FromContext(ctx).Error("search_unindex_error", "book_id", id, "error", err)
	}
}

func (s *CatalogService) publish(ctx context.Context, typ string, book *models.Book) {
	mykafka.Publish(ctx, s.Events, mykafka.TopicBookEvents, strconv.FormatUint(uint64(book.ID), 10),
		mykafka.NewEvent(typ, map[string]any{
			"bookID":   book.ID,
			"sellerID": book.SellerID,
			"title":    book.Title,
			"stock":    book.Stock,
		}))
}
