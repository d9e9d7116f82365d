package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/config"
	"github.com/appprecos/scan-gateway/database"
	"github.com/appprecos/scan-gateway/handlers"
	"github.com/appprecos/scan-gateway/jobs"
	"github.com/appprecos/scan-gateway/queue"
	"github.com/appprecos/scan-gateway/services"
	"github.com/appprecos/scan-gateway/shared"
	"github.com/appprecos/scan-gateway/stream"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Connect to local database
	if err := database.Connect(cfg.DatabasePath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Remote clients share one pooled HTTP client factory
	clientFactory := shared.NewHTTPClientFactory(cfg.HTTPRequestTimeout)

	extractorConfig := shared.NewDefaultClientConfig(cfg.ExtractorBaseURL)
	extractorConfig.HTTPRequestTimeout = cfg.HTTPRequestTimeout
	extractorConfig.RequestRateLimit = cfg.PolitenessDelay
	extractorConfig.MaxRetryAttempts = cfg.MaxRetryAttempts
	extractorClient := services.NewExtractorClient(extractorConfig, clientFactory)

	catalogConfig := shared.NewDefaultClientConfig(cfg.ExtractorBaseURL)
	catalogConfig.HTTPRequestTimeout = cfg.HTTPRequestTimeout
	catalogConfig.RequestRateLimit = 0 // catalog reads are cached, no politeness delay
	catalogConfig.MaxRetryAttempts = cfg.MaxRetryAttempts
	catalogService := services.NewCatalogService(catalogConfig, clientFactory, cfg.MarketCacheTTL)

	ncmService, err := services.NewNCMService(cfg.NCMTablePath)
	if err != nil {
		log.Printf("NCM table unavailable, lookups will echo codes: %v", err)
		ncmService = services.NewNCMServiceWithTable(map[string]string{})
	}

	shoppingListService := services.NewShoppingListService(database.DB)

	// Processing queue
	queueConfig := queue.Config{
		DebounceWindow:  cfg.DebounceWindow,
		RecencyHorizon:  cfg.RecencyHorizon,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		RemovalDelay:    cfg.RemovalDelay,
	}
	store := queue.NewStore()
	manager := queue.NewManager(queueConfig, store, extractorClient)
	defer manager.Close()

	// Websocket fan-out of queue mutations
	hub := stream.NewHub(store)
	go hub.Run()

	// Merge extractions that outlived a restart back into the queue
	go func() {
		time.Sleep(2 * time.Second) // Wait for the backend to be reachable
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := manager.Reconcile(ctx); err != nil {
			log.Printf("Startup reconcile failed: %v", err)
		}
	}()

	// Background jobs
	marketJob := jobs.NewMarketRefreshJob(catalogService, cfg.MarketCacheTTL)
	marketJob.Start()
	metricsJob := jobs.NewMetricsReportJob(1*time.Hour, manager.Metrics(), catalogService.Metrics())
	metricsJob.Start()

	// Handlers
	scanHandler := handlers.NewScanHandler(manager)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	listHandler := handlers.NewListHandler(shoppingListService)
	ncmHandler := handlers.NewNCMHandler(ncmService)

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		status := "ok"
		if err := database.HealthCheck(); err != nil {
			status = "degraded"
		}
		dbStats := database.GetConnectionStats()
		return c.JSON(fiber.Map{
			"status":       status,
			"active_scans": manager.ActiveCount(),
			"database": fiber.Map{
				"open_connections": dbStats.OpenConnections,
				"in_use":           dbStats.InUse,
			},
			"timestamp": time.Now().Unix(),
		})
	})

	// Websocket queue feed (gorilla handler bridged through the adaptor)
	app.Get("/ws/queue", adaptor.HTTPHandlerFunc(hub.HandleWebSocket))

	// Routes
	api := app.Group("/api/v1")

	// Scan queue routes
	api.Post("/scan", scanHandler.SubmitScan)
	api.Delete("/scan", scanHandler.DismissScan)
	api.Get("/scan/queue", scanHandler.GetQueue)
	api.Get("/scan/queue/active-count", scanHandler.GetActiveCount)
	api.Get("/scan/metrics", scanHandler.GetMetrics)

	// Catalog routes
	api.Get("/markets", catalogHandler.GetMarkets)
	api.Get("/markets/:market_id/products", catalogHandler.GetMarketProducts)
	api.Get("/products/search", catalogHandler.SearchProducts)
	api.Post("/products/compare", catalogHandler.CompareProducts)

	// Shopping list routes
	api.Post("/shopping-list", listHandler.AddItem)
	api.Get("/shopping-list", listHandler.GetItems)
	api.Delete("/shopping-list/clear", listHandler.ClearItems)
	api.Delete("/shopping-list/:id", listHandler.RemoveItem)

	// NCM routes
	api.Get("/ncm/search", ncmHandler.SearchCodes)
	api.Get("/ncm/:code", ncmHandler.DescribeCode)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
