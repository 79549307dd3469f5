package api

// BulkDeleteResponse reports the number of rows removed per table. Deletes
// run in dependency order without a transaction; a partial failure leaves
// earlier tables empty and later ones intact.
type BulkDeleteResponse struct {
	DeletedCounts map[string]int64 `json:"deletedCounts"`
}
