package main

import (
	"context"
	"log"
	"os"

	"github.com/chriswakefield87/billtosheet-api/app"
	"github.com/chriswakefield87/billtosheet-api/app/config"
	"github.com/chriswakefield87/billtosheet-api/app/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var st store.Store
	if cfg.DB.URL == "" {
		log.Print("POSTGRES_URL not set, using in-memory store")
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(context.Background(), cfg.DB)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		st = pg
	}

	app.InitStripe(cfg)

	api := app.NewAPI(cfg, st, app.NewOpenAIExtractor(cfg.Extract))
	router, err := app.NewRouter(api)
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}

	addr := "0.0.0.0:8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = "0.0.0.0:" + port
	}
	if err := router.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
