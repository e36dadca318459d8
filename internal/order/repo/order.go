package repo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/bookstore/internal/models"
)

var ErrStockChanged = errors.New("stock changed during checkout")

type GormRepo struct {
	DB *gorm.DB
}

type BookSeller struct {
	BookID     uint
	SellerID   uint
	SellerName string
}

type BuyerOrder struct {
	ID            uint            `json:"id"`
	Quantity      int             `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	PaymentMethod string          `json:"payment_method"`
	BookTitle     string          `json:"book_title"`
	BookAuthor    string          `json:"book_author"`
	BookImage     *string         `json:"book_image"`
	SellerName    string          `json:"seller_name"`
}

type SellerOrder struct {
	ID            uint            `json:"id"`
	Quantity      int             `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	PaymentMethod string          `json:"payment_method"`
	BookTitle     string          `json:"book_title"`
	BookID        uint            `json:"book_id"`
	BuyerName     string          `json:"buyer_name"`
}

// Transaction runs fn against a repo bound to a single transaction.
func (r *GormRepo) Transaction(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

func (r *GormRepo) BookSellers(ctx context.Context, bookIDs []uint) ([]BookSeller, error) {
	var rows []BookSeller
	err := r.DB.WithContext(ctx).
		Table("books").
		Select("books.id AS book_id, books.seller_id AS seller_id, users.username AS seller_name").
		Joins("JOIN users ON users.id = books.seller_id").
		Where("books.id IN ?", bookIDs).
		Order("books.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LockBook reads the book row with FOR UPDATE. It must run inside Transaction.
func (r *GormRepo) LockBook(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *GormRepo) CreateOrder(ctx context.Context, o *models.Order) error {
	return r.DB.WithContext(ctx).Create(o).Error
}

// DecrementStock never lets stock go below zero; it reports ErrStockChanged
// when the row no longer holds qty units.
func (r *GormRepo) DecrementStock(ctx context.Context, bookID uint, qty int) error {
	res := r.DB.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND stock >= ?", bookID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStockChanged
	}
	return nil
}

// LockOrder reads the order with FOR UPDATE together with the seller of its
// book. It must run inside Transaction.
func (r *GormRepo) LockOrder(ctx context.Context, id uint) (*models.Order, uint, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&o).Error
	if err != nil {
		return nil, 0, err
	}

	var book models.Book
	err = r.DB.WithContext(ctx).Select("id", "seller_id").Where("id = ?", o.BookID).Take(&book).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, err
	}
	return &o, book.SellerID, nil
}

func (r *GormRepo) SetOrderStatus(ctx context.Context, id uint, status string) error {
	return r.DB.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Update("status", status).Error
}

func (r *GormRepo) BuyerHistory(ctx context.Context, buyerID uint) ([]BuyerOrder, error) {
	rows := make([]BuyerOrder, 0)
	err := r.DB.WithContext(ctx).
		Table("orders").
		Select(`orders.id, orders.quantity, orders.total_price, orders.status, orders.created_at, orders.payment_method,
			books.title AS book_title, books.author AS book_author, books.image_url AS book_image,
			users.username AS seller_name`).
		Joins("JOIN books ON books.id = orders.book_id").
		Joins("JOIN users ON users.id = books.seller_id").
		Where("orders.buyer_id = ?", buyerID).
		Order("orders.created_at DESC, orders.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GormRepo) SellerHistory(ctx context.Context, sellerID uint) ([]SellerOrder, error) {
	rows := make([]SellerOrder, 0)
	err := r.DB.WithContext(ctx).
		Table("orders").
		Select(`orders.id, orders.quantity, orders.total_price, orders.status, orders.created_at, orders.payment_method,
			books.title AS book_title, books.id AS book_id,
			users.username AS buyer_name`).
		Joins("JOIN books ON books.id = orders.book_id").
		Joins("JOIN users ON users.id = orders.buyer_id").
		Where("books.seller_id = ?", sellerID).
		Order("orders.created_at DESC, orders.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GormRepo) PaymentCodes(ctx context.Context, sellerID uint) ([]models.PaymentCode, error) {
	codes := make([]models.PaymentCode, 0)
	if err := r.DB.WithContext(ctx).Where("seller_id = ?", sellerID).Order("type").Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// UpsertPaymentCode stores code for its (seller, type) pair and returns the
// image URL it replaced, if any.
func (r *GormRepo) UpsertPaymentCode(ctx context.Context, code *models.PaymentCode) (string, error) {
	var previous string
	err := r.Transaction(ctx, func(tx *GormRepo) error {
		var existing models.PaymentCode
		err := tx.DB.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("seller_id = ? AND type = ?", code.SellerID, code.Type).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.DB.WithContext(ctx).Create(code).Error
		case err != nil:
			return err
		}

		previous = existing.ImageURL
		if err := tx.DB.WithContext(ctx).Model(&existing).Update("image_url", code.ImageURL).Error; err != nil {
			return err
		}
		existing.ImageURL = code.ImageURL
		*code = existing
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (r *GormRepo) DeletePaymentCode(ctx context.Context, sellerID uint, typ string) (*models.PaymentCode, error) {
	var code models.PaymentCode
	err := r.Transaction(ctx, func(tx *GormRepo) error {
		if err := tx.DB.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("seller_id = ? AND type = ?", sellerID, typ).
			First(&code).Error; err != nil {
			return err
		}
		return tx.DB.WithContext(ctx).Delete(&code).Error
	})
	if err != nil {
		return nil, err
	}
	return &code, nil
}
