package api

import (
	"net/http"
	"strconv"

	"practicespace/internal/model"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// Page describes one page of a list response.
type Page struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// pageParams reads ?page= (zero-based) and ?per_page=.
func pageParams(r *http.Request) (page, perPage int, err error) {
	perPage = defaultPerPage
	if v := r.URL.Query().Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 0 {
			return 0, 0, model.Invalid("page", "must be a non-negative integer")
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if perPage, err = strconv.Atoi(v); err != nil || perPage <= 0 || perPage > maxPerPage {
			return 0, 0, model.Invalid("per_page", "must be between 1 and %d", maxPerPage)
		}
	}
	return page, perPage, nil
}

// paginate slices items to the requested page. A page past the end is empty.
func paginate[T any](items []T, page, perPage int) ([]T, Page) {
	meta := Page{
		Page:       page,
		PerPage:    perPage,
		Total:      len(items),
		TotalPages: (len(items) + perPage - 1) / perPage,
	}
	start := page * perPage
	if start >= len(items) {
		return []T{}, meta
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], meta
}
