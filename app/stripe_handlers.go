package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/chriswakefield87/billtosheet-api/app/store"
	"github.com/chriswakefield87/billtosheet-api/auth"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CreateCheckoutSession starts a Stripe Checkout Session for a credit pack.
func (a *API) CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	if _, err := UpsertUserFromClaims(c.Request.Context(), a.store, claims); err != nil {
		log.Printf("checkout upsert failed sub=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	pack, ok := findCreditPack(c.PostForm("packId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pack"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), a.store, claims.Subject)
	if err != nil {
		log.Printf("ensureStripeCustomer failed for sub=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	frontendURL := strings.TrimRight(a.cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:           stripe.String(stripeCustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("gbp"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(pack.Name),
						Description: stripe.String(fmt.Sprintf("%d invoice conversion credits", pack.Credits)),
					},
					UnitAmount: stripe.Int64(pack.Price),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(frontendURL + "/dashboard?success=true"),
		CancelURL:         stripe.String(frontendURL + "/pricing?canceled=true"),
		ClientReferenceID: stripe.String(claims.Subject),
	}
	params.AddMetadata("userId", claims.Subject)
	params.AddMetadata("credits", strconv.Itoa(pack.Credits))
	params.AddMetadata("packId", pack.ID)

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// PaymentWebhook handles Stripe completion events and grants the purchased
// credits. The signature check runs before any ledger mutation.
func (a *API) PaymentWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	endpointSecret := a.cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("stripe session unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
			return
		}

		subject := sess.Metadata["userId"]
		credits, _ := strconv.Atoi(sess.Metadata["credits"])
		paymentRef := ""
		if sess.PaymentIntent != nil {
			paymentRef = sess.PaymentIntent.ID
		}

		if subject == "" || credits <= 0 {
			// Checkout sessions from other products carry no credit
			// metadata; acknowledge and move on.
			break
		}

		if err := a.service.Ledger().Grant(c.Request.Context(), subject, credits, paymentRef); err != nil {
			if errors.Is(err, store.ErrDuplicatePayment) {
				log.Printf("stripe webhook replay ignored payment=%s", paymentRef)
				break
			}
			log.Printf("credit grant failed sub=%s payment=%s err=%v", subject, paymentRef, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add credits"})
			return
		}
		log.Printf("granted %d credits to sub=%s payment=%s", credits, subject, paymentRef)
	default:
		// Intentionally ignore unhandled events.
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
