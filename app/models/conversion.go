package models

import "time"

const ConversionCompleted = "completed"

// Conversion is one successful extraction. It belongs to exactly one of a
// registered user (UserID set) or an anonymous session (AnonymousID set).
// No original PDF is retained, only the extracted fields.
type Conversion struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"userId,omitempty"`
	AnonymousID   string    `db:"anonymous_id" json:"-"`
	Vendor        string    `db:"vendor" json:"vendor"`
	InvoiceNumber string    `db:"invoice_number" json:"invoiceNumber"`
	InvoiceDate   string    `db:"invoice_date" json:"invoiceDate"`
	Currency      string    `db:"currency" json:"currency"`
	Subtotal      float64   `db:"subtotal" json:"subtotal"`
	TaxTotal      float64   `db:"tax_total" json:"taxTotal"`
	Shipping      float64   `db:"shipping" json:"shipping"`
	Total         float64   `db:"total" json:"total"`
	ExtractedData string    `db:"extracted_data" json:"-"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}
