package model

// PageRequest はオフセット方式のページ指定。
type PageRequest struct {
	Page  int
	Limit int
	Sort  string
	Order string
}

// Offset はSQLのOFFSET値を返す。
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination は一覧レスポンスに付与するページ情報。
type Pagination struct {
	Total   int   `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Pages   int   `json:"pages"`
	HasMore *bool `json:"hasMore,omitempty"`
}

// NewPagination は総件数とページ指定からページ情報を組み立てる。
// pagesはceil(total/limit)。
func NewPagination(total int, p PageRequest) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
		Pages: pages,
	}
}

// WithHasMore は取得件数から続きの有無を設定したコピーを返す。
func (pg Pagination) WithHasMore(offset, fetched int) Pagination {
	more := offset+fetched < pg.Total
	pg.HasMore = &more
	return pg
}
