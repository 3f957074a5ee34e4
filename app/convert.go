package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/chriswakefield87/billtosheet-api/app/models"
	"github.com/chriswakefield87/billtosheet-api/app/store"
)

// IneligibleError is returned when the credit ledger refuses a conversion.
type IneligibleError struct {
	Reason           string
	CreditsRemaining *int
	RequiresAuth     bool
}

func (e *IneligibleError) Error() string { return e.Reason }

// ConversionService orchestrates one conversion request:
// eligibility check, extraction, persistence, then credit deduction.
type ConversionService struct {
	store     store.Store
	ledger    *Ledger
	extractor Extractor
}

func NewConversionService(s store.Store, extractor Extractor) *ConversionService {
	return &ConversionService{
		store:     s,
		ledger:    NewLedger(s),
		extractor: extractor,
	}
}

func (s *ConversionService) Ledger() *Ledger { return s.ledger }

// Convert runs the full single-file flow. Extraction failures cost the
// caller nothing: the record is only persisted, and the credit only
// deducted, after the extractor succeeds. Deduction always follows
// persistence, so a deducted credit can never lack its conversion row.
func (s *ConversionService) Convert(ctx context.Context, id Identity, pdf []byte) (models.Conversion, error) {
	var user models.User
	if id.Registered() {
		var err error
		user, err = s.store.UpsertUser(ctx, id.Subject, id.Email, NewUserCredits)
		if err != nil {
			return models.Conversion{}, fmt.Errorf("upsert user: %w", err)
		}
	}

	elig, err := s.ledger.CanConvert(ctx, id)
	if err != nil {
		return models.Conversion{}, fmt.Errorf("check eligibility: %w", err)
	}
	if !elig.Allowed {
		return models.Conversion{}, &IneligibleError{
			Reason:           elig.Reason,
			CreditsRemaining: elig.CreditsRemaining,
			RequiresAuth:     !id.Registered(),
		}
	}

	data, err := s.extractor.Extract(ctx, pdf)
	if err != nil {
		return models.Conversion{}, err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return models.Conversion{}, fmt.Errorf("serialize extraction: %w", err)
	}

	conv := models.Conversion{
		Vendor:        data.Vendor,
		InvoiceNumber: data.InvoiceNumber,
		InvoiceDate:   data.InvoiceDate,
		Currency:      data.Currency,
		Subtotal:      data.Subtotal,
		TaxTotal:      data.TaxTotal,
		Shipping:      data.Shipping,
		Total:         data.Total,
		ExtractedData: string(payload),
		Status:        models.ConversionCompleted,
	}
	if id.Registered() {
		conv.UserID = user.ID
	} else {
		conv.AnonymousID = id.AnonymousID
	}

	conv, err = s.store.CreateConversion(ctx, conv)
	if err != nil {
		return models.Conversion{}, fmt.Errorf("persist conversion: %w", err)
	}

	// Anonymous consumption is the row itself; only registered users are
	// charged a credit.
	if id.Registered() {
		if err := s.ledger.Deduct(ctx, id.Subject); err != nil {
			// The balance moved between CanConvert and here. Remove the
			// record so a refused conversion leaves nothing behind.
			if delErr := s.store.DeleteConversion(ctx, conv.ID); delErr != nil {
				log.Printf("orphaned conversion %s after failed deduct: %v", conv.ID, delErr)
			}
			return models.Conversion{}, fmt.Errorf("deduct credit: %w", err)
		}
	}

	return conv, nil
}
