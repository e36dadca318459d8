package apiclient

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
	User         User   `json:"user"`
}

type Book struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	SellerID    uint            `json:"seller_id"`
	Description string          `json:"description"`
	Category    *string         `json:"category"`
	ImageURL    *string         `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
}

type BookQuery struct {
	Search   string
	Category string
	Sort     string
	Page     int
	Limit    int
}

type BookPage struct {
	Books []Book `json:"books"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Pages int64  `json:"pages"`
}

type Seller struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type PrepareResponse struct {
	Seller             Seller            `json:"seller"`
	SellerPaymentCodes map[string]string `json:"sellerPaymentCodes"`
}

type CartItem struct {
	ID       uint            `json:"id"`
	Title    string          `json:"title,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type ConfirmRequest struct {
	PaymentMethod  string     `json:"paymentMethod"`
	SelectedSeller uint       `json:"selectedSeller"`
	CartItems      []CartItem `json:"cartItems"`
}

type Order struct {
	ID            uint            `json:"id"`
	BuyerID       uint            `json:"buyer_id"`
	BookID        uint            `json:"book_id"`
	Quantity      int             `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ConfirmResponse struct {
	Message string  `json:"message"`
	Orders  []Order `json:"orders"`
}

type HistoryEntry struct {
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
