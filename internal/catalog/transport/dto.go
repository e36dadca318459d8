package transport

import (
	"encoding/json"

	"github.com/Skotchmaster/bookstore/internal/models"
)

// BookForm is accepted both as multipart form fields and as JSON.
type BookForm struct {
	Title       string      `json:"title"       form:"title"`
	Author      string      `json:"author"      form:"author"`
	Price       json.Number `json:"price"       form:"price"`
	Stock       json.Number `json:"stock"       form:"stock"`
	Description string      `json:"description" form:"description"`
	Category    string      `json:"category"    form:"category"`
}

type PublicListResponse struct {
	Books []models.Book `json:"books"`
	Total int64         `json:"total"`
}

type ListResponse struct {
	Books []models.Book `json:"books"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Pages int64         `json:"pages"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

type UploadResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}
