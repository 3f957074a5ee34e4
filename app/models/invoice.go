package models

// InvoiceData is the structured result of extracting one PDF invoice.
// Dates are DD-MM-YYYY strings throughout.
type InvoiceData struct {
	Vendor        string     `json:"vendor"`
	InvoiceNumber string     `json:"invoiceNumber"`
	InvoiceDate   string     `json:"invoiceDate"`
	Currency      string     `json:"currency"`
	Subtotal      float64    `json:"subtotal"`
	TaxTotal      float64    `json:"taxTotal"`
	Shipping      float64    `json:"shipping"`
	Total         float64    `json:"total"`
	LineItems     []LineItem `json:"lineItems"`
}

type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}
