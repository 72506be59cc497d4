package entity

// DefaultPageSize is the list page size used by the console
const DefaultPageSize = 20

// MaxPageSize is the largest page the store serves
const MaxPageSize = 100

// ListQuery selects one page of conversations for a status filter
type ListQuery struct {
	Page     int
	PageSize int
	Status   Status
}

// Validate checks page bounds and that the status is a list filter
func (q ListQuery) Validate() error {
	if q.Page < 1 || q.PageSize < 1 || q.PageSize > MaxPageSize {
		return ErrInvalidQuery
	}
	if !q.Status.IsListable() {
		return ErrInvalidStatus
	}
	return nil
}

// Offset returns the zero-based row offset of the page
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Page is one page of conversations as reported by the store
type Page struct {
	Data       []Conversation `json:"data"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	Total      int            `json:"total"`
}

// TotalPages computes the page count for a total, 0 when there is nothing
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
