package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"order-fulfillment/internal/config"
	"order-fulfillment/internal/database"
	"order-fulfillment/internal/inventory"
	"order-fulfillment/internal/logger"
	"order-fulfillment/internal/metrics"
	custommiddleware "order-fulfillment/internal/middleware"
	"order-fulfillment/internal/notify"
	"order-fulfillment/internal/repository"
	"order-fulfillment/internal/service"
	"order-fulfillment/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
}

// NewServer wires repositories, services and handlers onto one chi router.
// notifier receives committed order changes; redisClient backs rate limiting
// and the event stream.
func NewServer(cfg *config.Config, log *zap.Logger, db database.Service, redisClient *redis.Client, notifier service.Notifier) *Server {
	router := chi.NewRouter()

	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.ErrorHandlingMiddleware(log))
	router.Use(custommiddleware.LoggingMiddleware(logger.Component(log, "http")))
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.IsDevelopment()))

	router.Get("/health", healthHandler(db, redisClient))
	router.Handle("/metrics", metrics.Handler())

	// Initialize repositories
	dbx := db.DBx()
	userRepo := repository.NewUserRepository(db.DB())
	refreshTokenRepo := repository.NewRefreshTokenRepository(db.DB())
	productRepo := repository.NewProductRepository(dbx)
	orderRepo := repository.NewOrderRepository(dbx)
	uow := repository.NewUnitOfWork(dbx)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT.Secret, service.TokenTTL{
		Access:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		Refresh: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
	})
	productService := service.NewProductService(productRepo)
	cartService := service.NewCartService(uow, logger.Component(log, "cart"))
	orderService := service.NewOrderService(
		uow,
		orderRepo,
		inventory.NewEngine(logger.Component(log, "inventory")),
		notifier,
		logger.Component(log, "orders"),
	)

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, log)

	router.Group(func(r chi.Router) {
		if redisClient != nil && cfg.RateLimit.Requests > 0 {
			r.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
				RequestsPerWindow: cfg.RateLimit.Requests,
				Window:            cfg.RateLimit.Window,
				KeyPrefix:         "rate_limit",
			}, log))
		}

		transport.NewUserHandler(userService, log).RegisterRoutes(r, authMiddleware)
		transport.NewProductHandler(productService, log).RegisterRoutes(r, authMiddleware)
		transport.NewCartHandler(cartService, log).RegisterRoutes(r, authMiddleware)
		transport.NewOrderHandler(orderService, log).RegisterRoutes(r, authMiddleware)
	})

	if redisClient != nil {
		subscribe := func(ctx context.Context, keys ...string) (<-chan []byte, error) {
			return notify.Subscribe(ctx, redisClient, keys...)
		}
		transport.NewEventsHandler(subscribe, log).RegisterRoutes(router, authMiddleware)
	}

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: log,
		db:     db,
	}
}

func healthHandler(db database.Service, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{"status": "ok", "database": db.Health()}

		if body["database"].(map[string]string)["status"] != "up" {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				body["redis"] = "down"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			} else {
				body["redis"] = "up"
			}
		}

		custommiddleware.RespondWithJSON(w, status, body)
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
			return err
		}
	}
	return nil
}
