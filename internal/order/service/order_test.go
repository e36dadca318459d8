package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/bookstore/internal/apperr"
	"github.com/Skotchmaster/bookstore/internal/authz"
	"github.com/Skotchmaster/bookstore/internal/dbtest"
	"github.com/Skotchmaster/bookstore/internal/models"
	"github.com/Skotchmaster/bookstore/internal/mykafka"
	"github.com/Skotchmaster/bookstore/internal/order/repo"
	"github.com/Skotchmaster/bookstore/internal/storage"
)

type fakePublisher struct {
	mu    sync.Mutex
	types []string
}

func (f *fakePublisher) PublishEvent(_ context.Context, _, _ string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := event.(mykafka.Event); ok {
		f.types = append(f.types, ev.Type)
	}
	return nil
}

func (f *fakePublisher) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.types...)
}

type fixture struct {
	svc     *OrderService
	pub     *fakePublisher
	db      *gorm.DB
	dir     string
	buyer   authz.Identity
	seller  authz.Identity
	seller2 authz.Identity
}

func newFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	mk := func(name, role string) authz.Identity {
		u := models.User{Username: name, PasswordHash: "x", Role: role, Email: name + "@example.com"}
		require.NoError(t, db.Create(&u).Error)
		return authz.Identity{UserID: u.ID, Username: name, Role: role}
	}

	dir := t.TempDir()
	images, err := storage.NewImageStore(dir)
	require.NoError(t, err)

	pub := &fakePublisher{}
	return &fixture{
		svc:     &OrderService{Repo: &repo.GormRepo{DB: db}, Images: images, Events: pub},
		pub:     pub,
		db:      db,
		dir:     dir,
		buyer:   mk("buyer", authz.RoleBuyer),
		seller:  mk("seller", authz.RoleSeller),
		seller2: mk("seller2", authz.RoleSeller),
	}
}

func (f *fixture) book(t *testing.T, seller authz.Identity, title, price string, stock int) models.Book {
	t.Helper()
	b := models.Book{Title: title, Author: "A", Price: decimal.RequireFromString(price), Stock: stock, SellerID: seller.UserID}
	require.NoError(t, f.db.Create(&b).Error)
	return b
}

func (f *fixture) stock(t *testing.T, id uint) int {
	t.Helper()
	var b models.Book
	require.NoError(t, f.db.First(&b, id).Error)
	return b.Stock
}

func (f *fixture) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&n).Error)
	return n
}

func line(id uint, qty int) LineItem {
	return LineItem{BookID: id, Quantity: qty}
}

func TestConfirm_DecrementsStockAndPricesFromBook(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()
	b := f.book(t, f.seller, "Go", "20.00", 10)

	submitted := line(b.ID, 3)
	submitted.Price = decimal.NewNullDecimal(decimal.RequireFromString("1"))

	orders, err := f.svc.Confirm(ctx, f.buyer, ConfirmInput{PaymentMethod: "alipay", SellerID: f.seller.UserID, Items: []LineItem{submitted}})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.Equal(t, "60.00", o.TotalPrice.StringFixed(2))
	assert.Equal(t, f.buyer.UserID, o.BuyerID)
	assert.Equal(t, "alipay", o.PaymentMethod)
	assert.Equal(t, 7, f.stock(t, b.ID))
	assert.Equal(t, []string{"order_confirmed"}, f.pub.Types())
}

func TestConfirm_InsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()
	b := f.book(t, f.seller, "Rare", "5", 2)

	_, err := f.svc.Confirm(ctx, f.buyer, ConfirmInput{PaymentMethod: "wechat", SellerID: f.seller.UserID, Items: []LineItem{line(b.ID, 5)}})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Rare")
	assert.Contains(t, err.Error(), "2")

	assert.Equal(t, 2, f.stock(t, b.ID))
	assert.Zero(t, f.orderCount(t))
	assert.Empty(t, f.pub.Types())
}

func TestConfirm_FailedBatchRollsBack(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()
	a := f.book(t, f.seller, "A", "5", 10)
	b := f.book(t, f.seller, "B", "5", 1)

	_, err := f.svc.Confirm(ctx, f.buyer, ConfirmInput{
		PaymentMethod: "alipay",
		SellerID:      f.seller.UserID,
		Items:         []LineItem{line(a.ID, 4), line(b.ID, 2)},
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))
	assert.Zero(t, f.orderCount(t))
}

func TestConfirm_Errors(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()
	mine := f.book(t, f.seller, "Mine", "5", 10)
	other := f.book(t, f.seller2, "Other", "5", 10)

	tests := []struct {
		name string
		who  authz.Identity
		in   ConfirmInput
		want error
	}{
		{name: "seller cannot buy", who: f.seller, in: ConfirmInput{PaymentMethod: "x", SellerID: f.seller.UserID, Items: []LineItem{line(mine.ID, 1)}}, want: apperr.ErrForbidden},
		{name: "no payment method", who: f.buyer, in: ConfirmInput{SellerID: f.seller.UserID, Items: []LineItem{line(mine.ID, 1)}}, want: apperr.ErrValidation},
		{name: "no seller", who: f.buyer, in: ConfirmInput{PaymentMethod: "x", Items: []LineItem{line(mine.ID, 1)}}, want: apperr.ErrValidation},
		{name: "empty cart", who: f.buyer, in: ConfirmInput{PaymentMethod: "x", SellerID: f.seller.UserID}, want: apperr.ErrValidation},
		{name: "zero quantity", who: f.buyer, in: ConfirmInput{PaymentMethod: "x", SellerID: f.seller.UserID, Items: []LineItem{line(mine.ID, 0)}}, want: apperr.ErrValidation},
		{name: "missing book", who: f.buyer, in: ConfirmInput{PaymentMethod: "x", SellerID: f.seller.UserID, Items: []LineItem{line(mine.ID, 1), line(9999, 1)}}, want: apperr.ErrNotFound},
		{name: "book of another seller", who: f.buyer, in: ConfirmInput{PaymentMethod: "x", SellerID: f.seller.UserID, Items: []LineItem{line(other.ID, 1)}}, want: apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Confirm(ctx, tt.who, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 10, f.stock(t, mine.ID))
	assert.Zero(t, f.orderCount(t))
}

func TestConfirm_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	runOversellCheck(t, f)
}

func TestConfirm_ConcurrentBuyersNeverOversell_Postgres(t *testing.T) {
	f := newFixture(t, dbtest.OpenPostgres(t))
	runOversellCheck(t, f)
}

func runOversellCheck(t *testing.T, f *fixture) {
	t.Helper()
	const stock, buyers = 5, 12
	b := f.book(t, f.seller, "Hot", "9.99", stock)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		otherErrs []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Confirm(context.Background(), f.buyer, ConfirmInput{
				PaymentMethod: "alipay", SellerID: f.seller.UserID, Items: []LineItem{line(b.ID, 1)},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, apperr.ErrInsufficientStock):
				otherErrs = append(otherErrs, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, otherErrs)
	assert.Equal(t, stock, succeeded)
	assert.Equal(t, 0, f.stock(t, b.ID))
	assert.EqualValues(t, stock, f.orderCount(t))
}

func TestPrepare(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()
	a := f.book(t, f.seller, "A", "5", 1)
	b := f.book(t, f.seller, "B", "5", 0)
	c := f.book(t, f.seller2, "C", "5", 1)
	require.NoError(t, f.db.Create(&models.PaymentCode{SellerID: f.seller.UserID, Type: "alipay", ImageURL: "/uploads/a.png"}).Error)

	res, err := f.svc.Prepare(ctx, f.buyer, []uint{a.ID, b.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, f.seller.UserID, res.Seller.ID)
	assert.Equal(t, "seller", res.Seller.Name)
	assert.Equal(t, map[string]string{"alipay": "/uploads/a.png"}, res.PaymentCodes)

	_, err = f.svc.Prepare(ctx, f.buyer, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Prepare(ctx, f.buyer, []uint{a.ID, c.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Prepare(ctx, f.buyer, []uint{a.ID, 9999})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Prepare(ctx, f.seller, []uint{a.ID})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	res, err = f.svc.Prepare(ctx, f.buyer, []uint{c.ID})
	require.NoError(t, err)
	assert.Empty(t, res.PaymentCodes)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()
	b := f.book(t, f.seller, "Go", "10", 10)

	orders, err := f.svc.Confirm(ctx, f.buyer, ConfirmInput{PaymentMethod: "alipay", SellerID: f.seller.UserID, Items: []LineItem{line(b.ID, 1), line(b.ID, 1)}})
	require.NoError(t, err)
	first, second := orders[0].ID, orders[1].ID

	_, err = f.svc.UpdateStatus(ctx, f.seller, first, "lost")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.UpdateStatus(ctx, f.seller, 9999, models.OrderStatusShipped)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.UpdateStatus(ctx, f.seller2, first, models.OrderStatusShipped)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.UpdateStatus(ctx, f.buyer, first, models.OrderStatusShipped)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	o, err := f.svc.UpdateStatus(ctx, f.seller, first, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, o.Status)

	_, err = f.svc.UpdateStatus(ctx, f.seller, first, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.svc.UpdateStatus(ctx, f.seller, first, models.OrderStatusCompleted)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.seller, first, models.OrderStatusShipped)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.UpdateStatus(ctx, f.seller, second, models.OrderStatusCancelled)
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, first).Error)
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)
}

func TestHistories(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()
	b := f.book(t, f.seller, "Go", "12.50", 10)
	f.book(t, f.seller2, "Elsewhere", "1", 10)

	_, err := f.svc.Confirm(ctx, f.buyer, ConfirmInput{PaymentMethod: "alipay", SellerID: f.seller.UserID, Items: []LineItem{line(b.ID, 2)}})
	require.NoError(t, err)

	bought, err := f.svc.HistoryForBuyer(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, "Go", bought[0].BookTitle)
	assert.Equal(t, "A", bought[0].BookAuthor)
	assert.Equal(t, "seller", bought[0].SellerName)
	assert.Equal(t, "25.00", bought[0].TotalPrice.StringFixed(2))
	assert.Equal(t, models.OrderStatusPaid, bought[0].Status)

	sold, err := f.svc.HistoryForSeller(ctx, f.seller)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, b.ID, sold[0].BookID)
	assert.Equal(t, "buyer", sold[0].BuyerName)
	assert.Equal(t, 2, sold[0].Quantity)

	none, err := f.svc.HistoryForSeller(ctx, f.seller2)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.HistoryForBuyer(ctx, f.seller)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.HistoryForSeller(ctx, f.buyer)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestPaymentCodes(t *testing.T) {
	f := newFixture(t, dbtest.Open(t))
	ctx := context.Background()

	first, err := f.svc.SetPaymentCode(ctx, f.seller, "alipay", strings.NewReader("one"), "a.png")
	require.NoError(t, err)
	oldFile := filepath.Join(f.dir, filepath.Base(first.ImageURL))

	second, err := f.svc.SetPaymentCode(ctx, f.seller, "alipay", strings.NewReader("two"), "b.png")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ImageURL, second.ImageURL)
	_, err = os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))

	_, err = f.svc.SetPaymentCode(ctx, f.seller, "wechat", strings.NewReader("three"), "c.jpg")
	require.NoError(t, err)

	codes, err := f.svc.PaymentCodes(ctx, f.seller)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "alipay", codes[0].Type)

	_, err = f.svc.SetPaymentCode(ctx, f.seller, " ", strings.NewReader("x"), "x.png")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SetPaymentCode(ctx, f.buyer, "alipay", strings.NewReader("x"), "x.png")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, f.svc.DeletePaymentCode(ctx, f.seller, "alipay"))
	assert.ErrorIs(t, f.svc.DeletePaymentCode(ctx, f.seller, "alipay"), apperr.ErrNotFound)

	codes, err = f.svc.PaymentCodes(ctx, f.seller)
	require.NoError(t, err)
	require.Len(t, codes, 1)
}
