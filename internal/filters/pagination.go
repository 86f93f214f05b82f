package filters

// Pagination represents pagination metadata. Build it with NewPagination so the derived fields stay consistent.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// NewPagination derives totalPages = ceil(totalCount/limit), hasNextPage = page < totalPages
// and hasPrevPage = page > 1. Non-positive page or limit fall back to the defaults.
func NewPagination(page, limit int, totalCount int64) Pagination {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if totalCount < 0 {
		totalCount = 0
	}
	totalPages := int((totalCount + int64(limit) - 1) / int64(limit))
	return Pagination{
		Page:        page,
		Limit:       limit,
		TotalCount:  totalCount,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// Pagination builds the metadata for this filter's page given the total row count.
func (f FilterState) Pagination(totalCount int64) Pagination {
	c := f.Canonical()
	return NewPagination(c.Page, c.Limit, totalCount)
}
