package main

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"order-service/internal/events"
	"order-service/internal/handler"
	mid "order-service/internal/middleware"
	"order-service/internal/orders"
	"order-service/internal/reports"
	"order-service/pkg/config"
	"order-service/pkg/database"
	"order-service/pkg/jwtutil"
	"order-service/pkg/logger"
	"order-service/prometheus"
)

func main() {
	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	if err := logger.InitLogger(appConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting order-service",
		zap.String("environment", appConfig.Server.Env),
		zap.String("port", appConfig.Server.Port))

	// Initialize JWT utility
	jwtutil.Initialize(&appConfig.JWT)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	// Initialize database and run migrations
	if err := database.InitDB(appConfig); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Event publisher is optional; without a broker URL events are dropped
	var publisher events.Publisher = events.NopPublisher{}
	if appConfig.Events.BrokerURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(appConfig.Events.BrokerURL, appConfig.Events.Exchange, log)
		if err != nil {
			log.Fatal("Failed to connect event publisher", zap.Error(err))
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		log.Info("Event publisher connected",
			zap.String("exchange", appConfig.Events.Exchange))
	}

	// Wire the engines
	orderEngine := orders.NewEngine(database.GetDB(), log, appConfig.Orders.AllowOversell)
	reportEngine := reports.NewEngine(database.GetDB())
	handler.Init(orderEngine, reportEngine, publisher)
	log.Info("Order engine initialized",
		zap.Bool("allow_oversell", appConfig.Orders.AllowOversell))

	// Initialize Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(mid.MetricsMiddleware)

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check endpoint
	e.GET("/health", handler.Health)

	// Authentication routes
	e.POST("/api/auth/register", handler.Register)
	e.POST("/api/auth/login", handler.Login)

	// Product API routes
	productAPI := e.Group("/api/products", mid.AuthMiddleware)
	productAPI.GET("", handler.ListProducts)
	productAPI.GET("/:id", handler.GetProduct)
	productAPI.POST("", handler.CreateProduct)
	productAPI.PUT("/:id", handler.UpdateProduct)
	productAPI.DELETE("/:id", handler.DeleteProduct)

	// Customer API routes
	customerAPI := e.Group("/api/customers", mid.AuthMiddleware)
	customerAPI.GET("", handler.ListCustomers)
	customerAPI.GET("/:id", handler.GetCustomer)
	customerAPI.POST("", handler.CreateCustomer)
	customerAPI.PUT("/:id", handler.UpdateCustomer)
	customerAPI.DELETE("/:id", handler.DeleteCustomer)

	// Agent API routes
	agentAPI := e.Group("/api/agents", mid.AuthMiddleware)
	agentAPI.GET("", handler.ListAgents)
	agentAPI.GET("/:id", handler.GetAgent)
	agentAPI.POST("", handler.CreateAgent)
	agentAPI.PUT("/:id", handler.UpdateAgent)
	agentAPI.DELETE("/:id", handler.DeleteAgent)

	// Order API routes
	orderAPI := e.Group("/api/orders", mid.AuthMiddleware)
	orderAPI.GET("", handler.ListOrders)
	orderAPI.GET("/:id", handler.GetOrder)
	orderAPI.POST("", handler.PlaceOrder)
	orderAPI.DELETE("/:id", handler.CancelOrder)
	orderAPI.PATCH("/:id", handler.UpdateOrderHeader)
	orderAPI.PUT("/:id/lines", handler.ReplaceOrderLines)

	// Report API routes
	reportAPI := e.Group("/api/reports", mid.AuthMiddleware)
	reportAPI.GET("/best-sellers", handler.BestSellers)
	reportAPI.GET("/customer-purchases", handler.CustomerPurchases)
	reportAPI.GET("/product-customers", handler.ProductCustomers)

	// Start server
	if err := e.Start(":" + appConfig.Server.Port); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}
}
