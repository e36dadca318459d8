package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/bookstore/internal/models"
)

type BookIndex struct {
	Client *elasticsearch.Client
	Index  string
}

// NewBookIndex returns nil for a nil client; a nil *BookIndex reports
// Enabled() == false and its writes are no-ops.
func NewBookIndex(client *elasticsearch.Client, index string) *BookIndex {
	if client == nil {
		return nil
	}
	return &BookIndex{Client: client, Index: index}
}

func (b *BookIndex) Enabled() bool { return b != nil && b.Client != nil }

type bookDoc struct {
	ID          uint    `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Description string  `json:"description"`
	Category    *string `json:"category,omitempty"`
	SellerID    uint    `json:"seller_id"`
	Price       string  `json:"price"`
}

func (b *BookIndex) IndexBook(ctx context.Context, book *models.Book) error {
	if !b.Enabled() {
		return nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(bookDoc{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		Category:    book.Category,
		SellerID:    book.SellerID,
		Price:       book.Price.StringFixed(2),
	}); err != nil {
		return fmt.Errorf("es: encode book: %w", err)
	}

	res, err := b.Client.Index(
		b.Index,
		&buf,
		b.Client.Index.WithContext(ctx),
		b.Client.Index.WithDocumentID(strconv.FormatUint(uint64(book.ID), 10)),
	)
	if err != nil {
		return fmt.Errorf("es: index book %d: %w", book.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index", res.Status(), res.Body)
	}
	return nil
}

func (b *BookIndex) DeleteBook(ctx context.Context, id uint) error {
	if !b.Enabled() {
		return nil
	}

	res, err := b.Client.Delete(
		b.Index,
		strconv.FormatUint(uint64(id), 10),
		b.Client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es: delete book %d: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete", res.Status(), res.Body)
	}
	return nil
}

// Search returns the total hit count and the matching book ids in rank
// order. Callers load the rows themselves so stock is never served stale.
func (b *BookIndex) Search(ctx context.Context, query string, from, size int) (int64, []uint, error) {
	if !b.Enabled() {
		return 0, nil, fmt.Errorf("es: search index not configured")
	}

	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"title^2", "author", "description"},
				"fuzziness": "AUTO",
			},
		},
		"from":    from,
		"size":    size,
		"_source": false,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("es: encode query: %w", err)
	}

	res, err := b.Client.Search(
		b.Client.Search.WithContext(ctx),
		b.Client.Search.WithIndex(b.Index),
		b.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("es: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, responseError("search", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("es: decode search: %w", err)
	}

	ids := make([]uint, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return r.Hits.Total.Value, ids, nil
}

func responseError(op, status string, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 1024))
	return fmt.Errorf("es: %s: %s: %s", op, status, b)
}
