package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chriswakefield87/billtosheet-api/app/config"
	"github.com/chriswakefield87/billtosheet-api/app/models"
)

// Extractor is the boundary around the external inference call that turns
// raw PDF bytes into structured invoice fields. It is the one
// nondeterministic, failure-prone dependency, so everything behind it is a
// narrow seam that tests replace with a fake.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (models.InvoiceData, error)
}

// ExtractionError marks a failed or unparseable extraction. Callers treat it
// as "free" for the user: nothing is persisted and no credit is deducted.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

const extractionPrompt = `You are an expert at extracting structured data from invoice PDFs.

CRITICAL RULES:
1. Extract EVERY line item - do not skip any, even if there are 50+ items
2. If a field is missing, use 0 for numbers
3. Calculate missing fields when possible:
   - If subtotal missing: total - tax - shipping
   - If tax missing: total - subtotal - shipping
   - For line items: lineTotal = quantity x unitPrice
4. Infer currency from symbols or context
5. Convert dates to DD-MM-YYYY format (day first, then month, then year)
6. Return ONLY valid JSON with no other text

Extract ALL data and return as JSON with this exact structure:
{
  "vendor": "company name",
  "invoiceNumber": "invoice ID",
  "invoiceDate": "DD-MM-YYYY",
  "currency": "GBP|USD|EUR",
  "subtotal": 0.00,
  "taxTotal": 0.00,
  "shipping": 0.00,
  "total": 0.00,
  "lineItems": [
    {"description": "item", "quantity": 0, "unitPrice": 0.00, "lineTotal": 0.00}
  ]
}

IMPORTANT: Extract EVERY single line item from this invoice. Return ONLY the JSON object.`

const defaultExtractBaseURL = "https://api.openai.com"

// OpenAIExtractor sends the PDF to the OpenAI responses API and parses the
// returned JSON into a typed invoice record.
type OpenAIExtractor struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client
}

var _ Extractor = (*OpenAIExtractor)(nil)

func NewOpenAIExtractor(cfg config.ExtractConfig) *OpenAIExtractor {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultExtractBaseURL
	}
	return &OpenAIExtractor{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
}

type responsesRequest struct {
	Model string          `json:"model"`
	Input []responseInput `json:"input"`
}

type responseInput struct {
	Role    string            `json:"role"`
	Content []responseContent `json:"content"`
}

type responseContent struct {
	Type     string `json:"type"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Text     string `json:"text,omitempty"`
}

type responsesReply struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (x *OpenAIExtractor) Extract(ctx context.Context, pdf []byte) (models.InvoiceData, error) {
	if len(pdf) == 0 {
		return models.InvoiceData{}, &ExtractionError{Reason: "empty file"}
	}

	reqBody := responsesRequest{
		Model: x.model,
		Input: []responseInput{
			{
				Role: "user",
				Content: []responseContent{
					{
						Type:     "input_file",
						Filename: "invoice.pdf",
						FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf),
					},
					{
						Type: "input_text",
						Text: extractionPrompt,
					},
				},
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return models.InvoiceData{}, &ExtractionError{Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/v1/responses", bytes.NewReader(payload))
	if err != nil {
		return models.InvoiceData{}, &ExtractionError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+x.apiKey)

	res, err := x.httpc.Do(req)
	if err != nil {
		return models.InvoiceData{}, &ExtractionError{Reason: "inference call", Err: err}
	}
	defer res.Body.Close()

	var reply responsesReply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return models.InvoiceData{}, &ExtractionError{Reason: "decode response", Err: err}
	}
	if res.StatusCode != http.StatusOK {
		msg := res.Status
		if reply.Error != nil && reply.Error.Message != "" {
			msg = reply.Error.Message
		}
		return models.InvoiceData{}, &ExtractionError{Reason: "inference API: " + msg}
	}

	content := outputText(reply)
	if content == "" {
		return models.InvoiceData{}, &ExtractionError{Reason: "empty model output"}
	}

	data, err := parseInvoiceJSON(content)
	if err != nil {
		return models.InvoiceData{}, &ExtractionError{Reason: "unparseable model output", Err: err}
	}

	normalizeInvoice(&data)
	return data, nil
}

func outputText(reply responsesReply) string {
	var sb strings.Builder
	for _, out := range reply.Output {
		for _, c := range out.Content {
			if c.Type == "output_text" {
				sb.WriteString(c.Text)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// parseInvoiceJSON decodes the model output strictly into the typed invoice
// record. A response that is not the expected JSON object is an error, never
// coerced into defaults.
func parseInvoiceJSON(content string) (models.InvoiceData, error) {
	var data models.InvoiceData
	if err := json.Unmarshal([]byte(content), &data); err == nil {
		return data, nil
	}

	// Models sometimes wrap the object in prose or a code fence; retry on
	// the outermost braces before giving up.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return models.InvoiceData{}, fmt.Errorf("no JSON object in output")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &data); err != nil {
		return models.InvoiceData{}, err
	}
	return data, nil
}

func normalizeInvoice(data *models.InvoiceData) {
	if data.Vendor == "" {
		data.Vendor = "Unknown Vendor"
	}
	if data.Currency == "" {
		data.Currency = "GBP"
	}
	data.InvoiceDate = formatDMY(data.InvoiceDate)
	for i := range data.LineItems {
		item := &data.LineItems[i]
		if item.Description == "" {
			item.Description = "Unknown Item"
		}
		if len(item.Description) > 200 {
			cut := 200
			for cut > 0 && !utf8.RuneStart(item.Description[cut]) {
				cut--
			}
			item.Description = item.Description[:cut]
		}
		if item.Quantity == 0 {
			item.Quantity = 1
		}
	}
}
