package domain

// PaginatedResults is one page of items from a storage listing or search.
// Page is zero-based.
type PaginatedResults[T any] struct {
	Items   []T `json:"items"`
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// NormalizePage clamps paging arguments to usable values.
func NormalizePage(page, perPage int) (int, int) {
	if page < 0 {
		page = 0
	}
	if perPage <= 0 {
		perPage = 10
	}
	return page, perPage
}

// PageCount returns ceil(total/perPage).
func PageCount(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Paginate slices an ordered list of items into one page.
func Paginate[T any](all []T, page, perPage int) PaginatedResults[T] {
	page, perPage = NormalizePage(page, perPage)
	total := len(all)

	start := page * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	items := make([]T, 0, end-start)
	items = append(items, all[start:end]...)

	return PaginatedResults[T]{
		Items:   items,
		Page:    page,
		Pages:   PageCount(total, perPage),
		PerPage: perPage,
		Total:   total,
	}
}
