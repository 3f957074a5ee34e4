package main

import (
	"context"
	"log"

	"github.com/chriswakefield87/billtosheet-api/app"
	"github.com/chriswakefield87/billtosheet-api/app/config"
	"github.com/chriswakefield87/billtosheet-api/app/store"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pg, err := store.NewPostgres(context.Background(), cfg.DB)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}

	app.InitStripe(cfg)

	api := app.NewAPI(cfg, pg, app.NewOpenAIExtractor(cfg.Extract))
	router, err := app.NewRouter(api)
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}

	// Wrap Gin router with Lambda adapter
	ginLambda = ginadapter.New(router)
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
