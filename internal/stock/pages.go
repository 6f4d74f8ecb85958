package stock

const DefaultPerPage int = 20

// TotalPages is the page count for total results split into pages of perPage.
func TotalPages(total int, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// ClampPerPage keeps perPage inside the bounds an API accepts. Zero or
// negative values fall back to DefaultPerPage first.
func ClampPerPage(perPage int, min int, max int) int {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage < min {
		return min
	}
	if perPage > max {
		return max
	}
	return perPage
}

// NormalizePage turns anything below one into the first page.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
