package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"     json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:64" json:"username"`
	PasswordHash string    `gorm:"not null"                     json:"-"`
	Role         string    `gorm:"not null;size:16"             json:"role"`
	Email        string    `gorm:"not null"                     json:"email"`
	CreatedAt    time.Time `                                    json:"created_at"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"       json:"id"`
	UserID    uint   `gorm:"index;not null"   json:"user_id"`
	JTI       string `gorm:"uniqueIndex;not null" json:"jti"`
	Token     string `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt int64  `gorm:"not null"         json:"expires_at"`
	Revoked   bool   `gorm:"default:false"    json:"revoked"`
}

type Book struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"          json:"id"`
	Title       string          `gorm:"not null;size:255"                 json:"title"`
	Author      string          `gorm:"not null;size:255"                 json:"author"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null"       json:"price"`
	Stock       int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	SellerID    uint            `gorm:"index;not null"                    json:"seller_id"`
	Description string          `gorm:"type:text"                         json:"description"`
	Category    *string         `gorm:"index;size:64"                     json:"category"`
	ImageURL    *string         `gorm:"size:255"                          json:"image_url"`
	CreatedAt   time.Time       `gorm:"index"                             json:"created_at"`
}

type Order struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"           json:"id"`
	BuyerID       uint            `gorm:"index;not null"                     json:"buyer_id"`
	BookID        uint            `gorm:"index;not null"                     json:"book_id"`
	Quantity      int             `gorm:"not null;check:quantity > 0"        json:"quantity"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(10,2);not null"        json:"total_price"`
	Status        string          `gorm:"not null;size:16"                   json:"status"`
	PaymentMethod string          `gorm:"not null;size:32"                   json:"payment_method"`
	CreatedAt     time.Time       `gorm:"index"                              json:"created_at"`
}

type PaymentCode struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"              json:"id"`
	SellerID  uint      `gorm:"uniqueIndex:idx_seller_type;not null" json:"seller_id"`
	Type      string    `gorm:"uniqueIndex:idx_seller_type;not null;size:32" json:"type"`
	ImageURL  string    `gorm:"not null;size:255"                     json:"image_url"`
	CreatedAt time.Time `                                             json:"created_at"`
}

// OrderTransitions lists the statuses reachable from each status.
var OrderTransitions = map[string][]string{
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusCompleted},
	OrderStatusCompleted: nil,
	OrderStatusCancelled: nil,
}

func ValidOrderStatus(s string) bool {
	_, ok := OrderTransitions[s]
	return ok
}

func All() []any {
	return []any{&User{}, &RefreshToken{}, &Book{}, &Order{}, &PaymentCode{}}
}
