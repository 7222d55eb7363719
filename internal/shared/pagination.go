package shared

import "math"

const defaultPerPage = 20

// Pagination carries listing metadata alongside a page of results. The scoped
// count feeding Total is computed above the row filter, so these numbers only
// ever describe rows the caller is allowed to see.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination normalizes the inputs and computes the page count.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
