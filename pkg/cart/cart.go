// Package cart keeps a shopper's line items in a local JSON file between
// runs of a client.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/bookstore/pkg/apiclient"
)

var ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")

type Item struct {
	ID       uint            `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type Store struct {
	path string

	mu    sync.Mutex
	items []Item
}

// Open loads the cart saved at path. A missing file is an empty cart.
func Open(path string) (*Store, error) {
	s := &Store{path: path, items: []Item{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("cart: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		return nil, fmt.Errorf("cart: decode %s: %w", path, err)
	}
	return s, nil
}

// AddItem bumps the quantity of an item already in the cart, otherwise
// appends it with quantity 1.
func (s *Store) AddItem(it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == it.ID {
			s.items[i].Quantity++
			return s.saveLocked()
		}
	}
	it.Quantity = 1
	s.items = append(s.items, it)
	return s.saveLocked()
}

// RemoveItem drops the item at index. Out-of-range indexes are ignored.
func (s *Store) RemoveItem(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.items) {
		return nil
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	return s.saveLocked()
}

// UpdateQuantity sets the quantity at index. Out-of-range indexes are ignored.
func (s *Store) UpdateQuantity(index, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.items) {
		return nil
	}
	s.items[index].Quantity = qty
	return s.saveLocked()
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []Item{}
	return s.saveLocked()
}

func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// TotalPrice is the sum of price times quantity, rounded to cents.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

func (s *Store) CheckoutItems() []apiclient.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]apiclient.CartItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, apiclient.CartItem{ID: it.ID, Title: it.Title, Price: it.Price, Quantity: it.Quantity})
	}
	return out
}

// saveLocked writes through a temp file so a crash never leaves a torn cart.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cart: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cart-*.json")
	if err != nil {
		return fmt.Errorf("cart: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cart: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cart: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("cart: rename: %w", err)
	}
	return nil
}
