package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/bookstore/internal/apperr"
	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/logging"
	"github.com/Skotchmaster/bookstore/internal/models"
	"github.com/Skotchmaster/bookstore/internal/mykafka"
	"github.com/Skotchmaster/bookstore/internal/order/repo"
)

type OrderService struct {
	Repo   *repo.GormRepo
	Images ImageStore
	Events mykafka.Publisher
}

type SellerInfo struct {
	ID   uint
	Name string
}

type PrepareResult struct {
	Seller       SellerInfo
	PaymentCodes map[string]string
}

type LineItem struct {
	BookID   uint
	Quantity int
	// Price is what the client saw. The stored total always uses the
	// current price of the locked book row.
	Price decimal.NullDecimal
}

type ConfirmInput struct {
	PaymentMethod string
	SellerID      uint
	Items         []LineItem
}

// Prepare checks that every book in the batch exists and belongs to one
// seller, and returns that seller with their payment codes.
func (s *OrderService) Prepare(ctx context.Context, who authz.Identity, bookIDs []uint) (*PrepareResult, error) {
	if err := authz.Authorize(who, authz.OrderPrepare, nil); err != nil {
		return nil, err
	}
	if len(bookIDs) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", apperr.ErrValidation)
	}

	wanted := make(map[uint]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		wanted[id] = struct{}{}
	}
	ids := make([]uint, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}

	rows, err := s.Repo.BookSellers(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(ids) {
		found := make(map[uint]bool, len(rows))
		for _, r := range rows {
			found[r.BookID] = true
		}
		for _, id := range bookIDs {
			if !found[id] {
				return nil, fmt.Errorf("%w: book id %d not found", apperr.ErrNotFound, id)
			}
		}
	}

	seller := SellerInfo{ID: rows[0].SellerID, Name: rows[0].SellerName}
	for _, r := range rows[1:] {
		if r.SellerID != seller.ID {
			return nil, fmt.Errorf("%w: books from only one seller can be bought at a time", apperr.ErrValidation)
		}
	}

	codes, err := s.Repo.PaymentCodes(ctx, seller.ID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]string, len(codes))
	for _, c := range codes {
		byType[c.Type] = c.ImageURL
	}

	return &PrepareResult{Seller: seller, PaymentCodes: byType}, nil
}

func (in ConfirmInput) validate() error {
	if strings.TrimSpace(in.PaymentMethod) == "" || in.SellerID == 0 || len(in.Items) == 0 {
		return fmt.Errorf("%w: paymentMethod, selectedSeller and cartItems are required", apperr.ErrValidation)
	}
	for _, it := range in.Items {
		if it.BookID == 0 {
			return fmt.Errorf("%w: cart item without book id", apperr.ErrValidation)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for book %d must be positive", apperr.ErrValidation, it.BookID)
		}
	}
	return nil
}

// Confirm places one paid order per line item and decrements stock. Items
// are applied in the submitted order inside one transaction; any failure
// leaves stock and orders untouched.
func (s *OrderService) Confirm(ctx context.Context, who authz.Identity, in ConfirmInput) ([]models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.confirm", "buyer_id", who.UserID)

	if err := authz.Authorize(who, authz.OrderConfirm, nil); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	method := strings.TrimSpace(in.PaymentMethod)

	var placed []models.Order
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		placed = make([]models.Order, 0, len(in.Items))
		for _, it := range in.Items {
			book, err := tx.LockBook(ctx, it.BookID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: book id %d not found", apperr.ErrNotFound, it.BookID)
				}
				return err
			}
			if book.SellerID != in.SellerID {
				return fmt.Errorf("%w: book %q is not sold by the selected seller", apperr.ErrValidation, book.Title)
			}
			if it.Quantity > book.Stock {
				return fmt.Errorf("%w: book %q has only %d in stock", apperr.ErrInsufficientStock, book.Title, book.Stock)
			}
			if it.Price.Valid && !it.Price.Decimal.Equal(book.Price) {
				l.Warn("price_mismatch", "book_id", book.ID, "submitted", it.Price.Decimal.String(), "current", book.Price.StringFixed(2))
			}

			o := models.Order{
				BuyerID:       who.UserID,
				BookID:        book.ID,
				Quantity:      it.Quantity,
				TotalPrice:    book.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
				Status:        models.OrderStatusPaid,
				PaymentMethod: method,
			}
			if err := tx.CreateOrder(ctx, &o); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, book.ID, it.Quantity); err != nil {
				if errors.Is(err, repo.ErrStockChanged) {
					return fmt.Errorf("%w: book %q is out of stock", apperr.ErrInsufficientStock, book.Title)
				}
				return err
			}
			placed = append(placed, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(placed))
	for _, o := range placed {
		ids = append(ids, o.ID)
	}
	l.Info("orders_confirmed", "seller_id", in.SellerID, "orders", len(placed))
	mykafka.Publish(ctx, s.Events, mykafka.TopicOrderEvents, strconv.FormatUint(uint64(who.UserID), 10),
		mykafka.NewEvent("order_confirmed", map[string]any{
			"buyerID":       who.UserID,
			"sellerID":      in.SellerID,
			"orderIDs":      ids,
			"paymentMethod": method,
		}))

	return placed, nil
}

func (s *OrderService) HistoryForBuyer(ctx context.Context, who authz.Identity) ([]repo.BuyerOrder, error) {
	if err := authz.Authorize(who, authz.OrderHistory, nil); err != nil {
		return nil, err
	}
	return s.Repo.BuyerHistory(ctx, who.UserID)
}

func (s *OrderService) HistoryForSeller(ctx context.Context, who authz.Identity) ([]repo.SellerOrder, error) {
	if err := authz.Authorize(who, authz.OrderSales, nil); err != nil {
		return nil, err
	}
	return s.Repo.SellerHistory(ctx, who.UserID)
}

// UpdateStatus moves an order along paid -> shipped -> completed or
// paid -> cancelled. Only the seller of the ordered book may do so.
func (s *OrderService) UpdateStatus(ctx context.Context, who authz.Identity, orderID uint, status string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.update_status", "seller_id", who.UserID, "order_id", orderID)

	if err := authz.Authorize(who, authz.OrderStatus, nil); err != nil {
		return nil, err
	}
	if !models.ValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: invalid order status %q", apperr.ErrValidation, status)
	}

	var updated *models.Order
	var from string
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		o, sellerID, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d not found", apperr.ErrNotFound, orderID)
			}
			return err
		}
		if err := authz.Authorize(who, authz.OrderStatus, &authz.Resource{OwnerID: sellerID}); err != nil {
			return err
		}
		if !canTransition(o.Status, status) {
			return fmt.Errorf("%w: cannot change order from %s to %s", apperr.ErrConflict, o.Status, status)
		}
		if err := tx.SetOrderStatus(ctx, o.ID, status); err != nil {
			return err
		}
		from = o.Status
		o.Status = status
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Info("order_status_updated", "from", from, "to", status)
	mykafka.Publish(ctx, s.Events, mykafka.TopicOrderEvents, strconv.FormatUint(uint64(updated.BuyerID), 10),
		mykafka.NewEvent("order_status_updated", map[string]any{
			"orderID": updated.ID,
			"from":    from,
			"to":      status,
		}))
	return updated, nil
}

func canTransition(from, to string) bool {
	for _, next := range models.OrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
