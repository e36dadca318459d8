package util

import "strconv"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ParseIntDefault returns def for empty, non-numeric or non-positive input.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

type Page struct {
	Page   int
	Limit  int
	Offset int
}

// Calculate normalises page and size and clamps size to maxSize.
func Calculate(page, size, maxSize int) Page {
	if page < 1 {
		page = DefaultPage
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if maxSize < 1 {
		maxSize = MaxPageSize
	}
	if size > maxSize {
		size = maxSize
	}
	return Page{Page: page, Limit: size, Offset: (page - 1) * size}
}

func Pages(total int64, limit int) int64 {
	if limit < 1 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
