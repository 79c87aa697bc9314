package domain

type StockRecord struct {
	ProductID string `json:"productId"`
	Available int    `json:"available"`
}

type DecrementResult struct {
	OK        bool
	Remaining int
}

// StockAdjustment sets an absolute available quantity (admin import, warehouse feed).
type StockAdjustment struct {
	ProductID string `json:"id"`
	Stock     int    `json:"stock"`
}

type BulkSetError struct {
	ProductID string `json:"id"`
	Reason    string `json:"reason"`
}

type BulkSetResult struct {
	UpdatedCount int            `json:"updatedCount"`
	Errors       []BulkSetError `json:"errors"`
}
