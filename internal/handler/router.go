package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/warrenlibrary/library-backend/internal/broker"
	"github.com/warrenlibrary/library-backend/internal/middleware"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/service"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	AuthService      *service.AuthService
	BorrowingService *service.BorrowingService
	Broker           broker.Broker
	// AuthLimiter throttles register and login per client IP. Nil disables it.
	AuthLimiter    middleware.Limiter
	AllowedOrigins []string
	IsProduction   bool
}

// NewRouter builds the gin engine with the full middleware chain and every
// API route.
func NewRouter(cfg RouterConfig) *gin.Engine {
	useJSONFieldNames()

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(),
		middleware.SecurityHeadersMiddleware(),
		middleware.HSTSMiddleware(cfg.IsProduction),
		cors.New(corsConfig(cfg.AllowedOrigins)),
	)

	authHandler := NewAuthHandler(cfg.AuthService)
	bookHandler := NewBookHandler(cfg.BorrowingService)
	borrowHandler := NewBorrowHandler(cfg.BorrowingService)
	adminHandler := NewAdminHandler(cfg.BorrowingService)
	wsHandler := NewWebSocketHandler(cfg.AuthService, cfg.Broker, cfg.AllowedOrigins)

	router.GET("/", Root)
	router.NoRoute(NotFound)

	api := router.Group("/api")
	api.GET("", APIInfo)

	// Public routes
	public := api.Group("")
	if cfg.AuthLimiter != nil {
		public.Use(middleware.RateLimit(cfg.AuthLimiter))
	}
	{
		public.POST("/register", authHandler.Register)
		public.POST("/login", authHandler.Login)
	}

	// The feed authenticates itself from the query string.
	api.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes (require JWT)
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(cfg.AuthService))
	{
		protected.GET("/books", bookHandler.ListBooks)
		protected.GET("/borrows", borrowHandler.ListBorrows)
		protected.POST("/return/:borrow_id", borrowHandler.Return)
		protected.POST("/borrow", middleware.RequireRole(models.RoleStudent), borrowHandler.Borrow)
	}

	admin := protected.Group("")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/books", bookHandler.AddBook)
		admin.PUT("/books/:id", bookHandler.UpdateBook)
		admin.DELETE("/books/:id", bookHandler.DeleteBook)
		admin.GET("/admin/activity", adminHandler.Activity)
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cfg
}
