package models

// BulkFileResult is the per-file outcome of a bulk conversion. One file's
// failure never affects another file's success.
type BulkFileResult struct {
	FileName      string  `json:"fileName"`
	Success       bool    `json:"success"`
	ConversionID  string  `json:"conversionId,omitempty"`
	Error         string  `json:"error,omitempty"`
	Vendor        string  `json:"vendor,omitempty"`
	InvoiceNumber string  `json:"invoiceNumber,omitempty"`
	Total         float64 `json:"total,omitempty"`
	Currency      string  `json:"currency,omitempty"`
}

// BulkSummary aggregates a bulk conversion run. CreditsUsed always equals
// SuccessfulCount because failed files are never persisted or charged.
type BulkSummary struct {
	Results         []BulkFileResult `json:"results"`
	SuccessfulCount int              `json:"successfulCount"`
	FailedCount     int              `json:"failedCount"`
	CreditsUsed     int              `json:"creditsUsed"`
}
