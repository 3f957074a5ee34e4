package app

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/chriswakefield87/billtosheet-api/app/models"
)

// BulkFile is one uploaded file in a bulk request.
type BulkFile struct {
	Name string
	Data []byte
}

// BulkConvert fans out one Convert call per file, all running concurrently.
// Each file's outcome is independent: a failed extraction neither aborts nor
// rolls back its siblings, and only successes are persisted and charged.
//
// The caller's balance >= len(files) admission check is advisory; the
// per-file deduction at the ledger is the atomic guard, so total charges can
// never exceed the number of successes.
func (s *ConversionService) BulkConvert(ctx context.Context, id Identity, files []BulkFile) models.BulkSummary {
	results := make([]models.BulkFileResult, len(files))
	var wg sync.WaitGroup

	for i, file := range files {
		wg.Add(1)
		go func(i int, file BulkFile) {
			defer wg.Done()

			conv, err := s.Convert(ctx, id, file.Data)
			if err != nil {
				log.Printf("bulk conversion failed file=%s err=%v", file.Name, err)
				results[i] = models.BulkFileResult{
					FileName: file.Name,
					Success:  false,
					Error:    bulkErrorMessage(err),
				}
				return
			}

			results[i] = models.BulkFileResult{
				FileName:      file.Name,
				Success:       true,
				ConversionID:  conv.ID,
				Vendor:        conv.Vendor,
				InvoiceNumber: conv.InvoiceNumber,
				Total:         conv.Total,
				Currency:      conv.Currency,
			}
		}(i, file)
	}
	wg.Wait()

	summary := models.BulkSummary{Results: results}
	for _, r := range results {
		if r.Success {
			summary.SuccessfulCount++
		} else {
			summary.FailedCount++
		}
	}
	summary.CreditsUsed = summary.SuccessfulCount
	return summary
}

func bulkErrorMessage(err error) string {
	var inel *IneligibleError
	if errors.As(err, &inel) {
		return inel.Reason
	}
	var extr *ExtractionError
	if errors.As(err, &extr) {
		return "Conversion failed"
	}
	return "Conversion failed"
}
