package response

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int64 `json:"total_pages"`
	TotalItems int64 `json:"total_items"`
	HasMore    bool  `json:"has_more"`
	From       int   `json:"from"`
	To         int   `json:"to"`
}

// NewPagination derives the page metadata for a result window.
func NewPagination(page, pageSize int, totalItems int64, returned int) *Pagination {
	totalPages := (totalItems + int64(pageSize) - 1) / int64(pageSize)
	from := 0
	if returned > 0 {
		from = (page-1)*pageSize + 1
	}
	return &Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		TotalItems: totalItems,
		HasMore:    int64(page) < totalPages,
		From:       from,
		To:         (page-1)*pageSize + returned,
	}
}
