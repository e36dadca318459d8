package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/bookstore/internal/models"
)

const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
)

type GormRepo struct {
	DB *gorm.DB
}

type Filter struct {
	Search      string
	Category    string
	Sort        string
	InStockOnly bool
	SellerID    uint
	Offset      int
	Limit       int // 0 means no limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func orderBy(sort string) string {
	switch sort {
	case SortPriceAsc:
		return "price ASC, id ASC"
	case SortPriceDesc:
		return "price DESC, id ASC"
	default:
		return "created_at DESC, id DESC"
	}
}

func (r *GormRepo) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := r.DB.WithContext(ctx).Model(&models.Book{})
	if f.InStockOnly {
		q = q.Where("stock > 0")
	}
	if f.SellerID != 0 {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if f.Search != "" {
		p := containsPattern(f.Search)
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\')`, p, p)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	return q
}

func (r *GormRepo) ListBooks(ctx context.Context, f Filter) (int64, []models.Book, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	q := r.filtered(ctx, f).Order(orderBy(f.Sort)).Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	items := make([]models.Book, 0)
	if err := q.Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) GetBook(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// BooksByIDs loads the given books and returns them in the order of ids.
// Ids with no row are skipped.
func (r *GormRepo) BooksByIDs(ctx context.Context, ids []uint) ([]models.Book, error) {
	if len(ids) == 0 {
		return []models.Book{}, nil
	}
	var rows []models.Book
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]models.Book, len(rows))
	for _, b := range rows {
		byID[b.ID] = b
	}
	out := make([]models.Book, 0, len(rows))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *GormRepo) CreateBook(ctx context.Context, book *models.Book) error {
	return r.DB.WithContext(ctx).Create(book).Error
}

// UpdateBook writes the mutable columns only. seller_id and created_at are
// never touched.
func (r *GormRepo) UpdateBook(ctx context.Context, book *models.Book) error {
	return r.DB.WithContext(ctx).Model(book).
		Select("title", "author", "price", "stock", "description", "category", "image_url").
		Updates(book).Error
}

func (r *GormRepo) DeleteBook(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Delete(&models.Book{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) HasOrders(ctx context.Context, bookID uint) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Order{}).Where("book_id = ?", bookID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormRepo) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	if err := r.DB.WithContext(ctx).Model(&models.Book{}).
		Where("category IS NOT NULL AND category <> ''").
		Distinct().
		Order("category").
		Pluck("category", &cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}
