package request

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// PaginatedRequest is a 1-based page of a user's booking history.
type PaginatedRequest struct {
	Page    int `json:"page" validate:"min=1"`
	PerPage int `json:"per_page" validate:"min=1,max=100"`
}

// PageNumber is Page, or 1 when it is out of range.
func (p PaginatedRequest) PageNumber() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// Limit is PerPage clamped to [1, MaxPerPage], DefaultPerPage when unset.
func (p PaginatedRequest) Limit() int {
	if p.PerPage < 1 {
		return DefaultPerPage
	}
	return min(p.PerPage, MaxPerPage)
}

// Offset uses the same page size as Limit.
func (p PaginatedRequest) Offset() int {
	return (p.PageNumber() - 1) * p.Limit()
}
