package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/chriswakefield87/billtosheet-api/app/config"
	"github.com/chriswakefield87/billtosheet-api/app/models"
	"github.com/chriswakefield87/billtosheet-api/app/store"
	"github.com/chriswakefield87/billtosheet-api/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	anonymousCookieName   = "anonymous_id"
	anonymousCookieMaxAge = 30 * 24 * 60 * 60 // seconds
	maxUploadBytes        = 20 << 20
)

// API carries the handler dependencies.
type API struct {
	store   store.Store
	service *ConversionService
	cfg     *config.Config
}

func NewAPI(cfg *config.Config, s store.Store, extractor Extractor) *API {
	return &API{
		store:   s,
		service: NewConversionService(s, extractor),
		cfg:     cfg,
	}
}

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the authenticated user's credit balance.
func (a *API) Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	user, err := UpsertUserFromClaims(c.Request.Context(), a.store, claims)
	if err != nil {
		log.Printf("me upsert failed sub=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":          user.Email,
		"creditsBalance": user.CreditsBalance,
	})
}

// Convert handles a single PDF upload. Anonymous callers are identified by
// the anonymous_id cookie, minted here when absent.
func (a *API) Convert(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	identity := a.callerIdentity(c, true)

	data, err := readUpload(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	conv, err := a.service.Convert(ctx, identity, data)
	if err != nil {
		a.respondConvertError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversionId": conv.ID,
		"success":      true,
	})
}

// BulkConvert handles multiple PDFs for an authenticated caller. The
// balance >= file-count check here is advisory; the ledger's per-file
// deduction is the true guard.
func (a *API) BulkConvert(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	user, err := UpsertUserFromClaims(c.Request.Context(), a.store, claims)
	if err != nil {
		log.Printf("bulk upsert failed sub=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	if user.CreditsBalance <= 0 {
		c.JSON(http.StatusForbidden, gin.H{
			"error":            "Insufficient credits",
			"creditsRemaining": 0,
		})
		return
	}
	if user.CreditsBalance < len(fileHeaders) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": fmt.Sprintf(
				"Insufficient credits. You have %d credits but selected %d files.",
				user.CreditsBalance, len(fileHeaders),
			),
			"creditsRemaining": user.CreditsBalance,
		})
		return
	}

	files := make([]BulkFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		data, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file: " + fh.Filename})
			return
		}
		files = append(files, BulkFile{Name: fh.Filename, Data: data})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	identity := Identity{Subject: claims.Subject, Email: readStringClaim(claims.Raw, "email")}
	summary := a.service.BulkConvert(ctx, identity, files)

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"results":         summary.Results,
		"successfulCount": summary.SuccessfulCount,
		"failedCount":     summary.FailedCount,
		"creditsUsed":     summary.CreditsUsed,
	})
}

// GetConversion returns the extracted fields if the caller owns the record.
func (a *API) GetConversion(c *gin.Context) {
	conv, status, errMsg := a.loadAuthorizedConversion(c)
	if errMsg != "" {
		c.JSON(status, gin.H{"error": errMsg})
		return
	}

	var data models.InvoiceData
	if err := json.Unmarshal([]byte(conv.ExtractedData), &data); err != nil {
		log.Printf("conversion %s has corrupt extracted data: %v", conv.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversion"})
		return
	}

	_, isLoggedIn := auth.ClaimsFromContext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"data":       data,
		"isLoggedIn": isLoggedIn,
	})
}

// Download regenerates the requested artifact and streams it. Nothing is
// cached between downloads.
func (a *API) Download(c *gin.Context) {
	conv, status, errMsg := a.loadAuthorizedConversion(c)
	if errMsg != "" {
		c.JSON(status, gin.H{"error": errMsg})
		return
	}

	var data models.InvoiceData
	if err := json.Unmarshal([]byte(conv.ExtractedData), &data); err != nil {
		log.Printf("conversion %s has corrupt extracted data: %v", conv.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Download failed"})
		return
	}

	switch c.Param("fileType") {
	case "invoice-details":
		serveAttachment(c, "invoice_details.csv", "text/csv", []byte(GenerateInvoiceDetailsCSV(data)))
	case "line-items":
		serveAttachment(c, "line_items.csv", "text/csv", []byte(GenerateLineItemsCSV(data)))
	case "excel":
		content, err := GenerateExcelFile(data)
		if err != nil {
			log.Printf("excel generation failed for conversion %s: %v", conv.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Download failed"})
			return
		}
		serveAttachment(c, "combined.xlsx",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type"})
	}
}

// Cleanup runs the retention sweep. Cron-triggered; when a cron secret is
// configured the bearer token must match.
func (a *API) Cleanup(c *gin.Context) {
	if secret := a.cfg.Cleanup.CronSecret; secret != "" {
		if c.GetHeader("Authorization") != "Bearer "+secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	result, err := SweepExpiredConversions(ctx, a.store, now)
	if err != nil {
		log.Printf("cleanup sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"deleted":   result,
		"timestamp": now.Format(time.RFC3339),
	})
}

// callerIdentity resolves who is converting. mint controls whether a new
// anonymous cookie is set for first-time anonymous callers.
func (a *API) callerIdentity(c *gin.Context, mint bool) Identity {
	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok && claims.Subject != "" {
		return Identity{
			Subject: claims.Subject,
			Email:   readStringClaim(claims.Raw, "email"),
		}
	}

	anonymousID, err := c.Cookie(anonymousCookieName)
	if err != nil || anonymousID == "" {
		if !mint {
			return Identity{}
		}
		anonymousID = uuid.NewString()
	}
	if mint {
		c.SetCookie(anonymousCookieName, anonymousID, anonymousCookieMaxAge, "/", "", false, true)
	}
	return Identity{AnonymousID: anonymousID}
}

// loadAuthorizedConversion fetches the conversion and applies the ownership
// check. Not-found and access-denied stay distinguishable.
func (a *API) loadAuthorizedConversion(c *gin.Context) (models.Conversion, int, string) {
	id := c.Param("id")
	if id == "" {
		return models.Conversion{}, http.StatusBadRequest, "missing conversion id"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	conv, err := a.store.GetConversion(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Conversion{}, http.StatusNotFound, "Conversion not found"
		}
		log.Printf("conversion lookup failed id=%s: %v", id, err)
		return models.Conversion{}, http.StatusInternalServerError, "Failed to fetch conversion"
	}

	callerUserID := ""
	anonymousID := ""
	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok && claims.Subject != "" {
		user, err := a.store.GetUserBySubject(ctx, claims.Subject)
		if err == nil {
			callerUserID = user.ID
		}
	} else {
		anonymousID, _ = c.Cookie(anonymousCookieName)
	}

	if !CanAccess(conv, callerUserID, anonymousID) {
		return models.Conversion{}, http.StatusForbidden, "Access denied"
	}
	return conv, http.StatusOK, ""
}

func (a *API) respondConvertError(c *gin.Context, err error) {
	var inel *IneligibleError
	if errors.As(err, &inel) {
		body := gin.H{
			"error":        inel.Reason,
			"requiresAuth": inel.RequiresAuth,
		}
		if inel.CreditsRemaining != nil {
			body["creditsRemaining"] = *inel.CreditsRemaining
		}
		c.JSON(http.StatusForbidden, body)
		return
	}

	log.Printf("conversion failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Conversion failed. Please try again."})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxUploadBytes {
		return nil, errors.New("file too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}

func serveAttachment(c *gin.Context, name, contentType string, content []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, content)
}
