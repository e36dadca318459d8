package transport

import (
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/bookstore/internal/models"
)

type PrepareItem struct {
	ID uint `json:"id"`
}

type PrepareRequest struct {
	Items []PrepareItem `json:"items"`
}

type SellerView struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type PrepareResponse struct {
	Seller             SellerView        `json:"seller"`
	SellerPaymentCodes map[string]string `json:"sellerPaymentCodes"`
}

type CartItem struct {
	ID       uint                `json:"id"`
	Title    string              `json:"title,omitempty"`
	Price    decimal.NullDecimal `json:"price"`
	Quantity int                 `json:"quantity"`
}

type ConfirmRequest struct {
	PaymentMethod  string     `json:"paymentMethod"`
	SelectedSeller uint       `json:"selectedSeller"`
	CartItems      []CartItem `json:"cartItems"`
}

type ConfirmResponse struct {
	Message string         `json:"message"`
	Orders  []models.Order `json:"orders"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	Message string       `json:"message"`
	Order   models.Order `json:"order"`
}
