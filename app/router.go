package app

import (
	"time"

	"github.com/chriswakefield87/billtosheet-api/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(api *API) (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.POST("/webhooks/payment", api.PaymentWebhook)
	router.POST("/cleanup", api.Cleanup)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	// Conversion, fetch, and download accept anonymous cookie holders.
	optional := router.Group("/")
	optional.Use(auth.OptionalMiddleware(verifier))
	optional.POST("/convert", api.Convert)
	optional.GET("/conversion/:id", api.GetConversion)
	optional.GET("/download/:id/:fileType", api.Download)

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{}))
	protected.GET("/me", api.Me)
	protected.POST("/convert/bulk", api.BulkConvert)
	protected.POST("/api/billing/create-checkout-session", api.CreateCheckoutSession)

	return router, nil
}
