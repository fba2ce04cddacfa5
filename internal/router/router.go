package router

import (
	"log"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pulsefeed/core/internal/handlers"
	"github.com/pulsefeed/core/internal/middleware"
	"github.com/pulsefeed/core/internal/store"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	log.Println("Global middleware configured.")
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, st store.Store, firebaseAuthClient *auth.Client) {
	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Protected routes (require Firebase authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.FirebaseAuthMiddleware(firebaseAuthClient))
	log.Println("Firebase authentication middleware applied to /api/v1 group.")

	// User profile routes
	userHandler := handlers.NewUserHandler(st)
	userHandler.RegisterUserRoutes(api)
	log.Println("User profile routes configured.")

	// Post routes
	postHandler := handlers.NewPostHandler(st)
	postHandler.RegisterPostRoutes(api)
	log.Println("Post routes configured.")

	// Feed routes
	feedHandler := handlers.NewFeedHandler(st)
	feedHandler.RegisterFeedRoutes(api)
	log.Println("Feed routes configured.")

	// Follow routes
	followHandler := handlers.NewFollowHandler(st)
	followHandler.RegisterFollowRoutes(api)
	log.Println("Follow routes configured.")

	// Like routes
	likeHandler := handlers.NewLikeHandler(st)
	likeHandler.RegisterLikeRoutes(api)
	log.Println("Like routes configured.")

	// Group routes
	groupHandler := handlers.NewGroupHandler(st)
	groupHandler.RegisterGroupRoutes(api)
	log.Println("Group routes configured.")

	// Notification routes
	notificationHandler := handlers.NewNotificationHandler(st)
	notificationHandler.RegisterNotificationRoutes(api)
	log.Println("Notification routes configured.")

	log.Println("All routes configured.")
}
