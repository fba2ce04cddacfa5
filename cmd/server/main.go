package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/pulsefeed/core/internal/router"
	"github.com/pulsefeed/core/pkg/config"
	"github.com/pulsefeed/core/pkg/firebase"
	"github.com/pulsefeed/core/validators"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize Firebase
	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}
	defer firebaseApp.Close()

	// Initialize the document store
	storeHandle, err := config.InitStore(ctx, cfg, firebaseApp)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}
	defer storeHandle.Close()

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Setup routes and dependencies
	router.SetupRoutes(e, storeHandle.Store, firebaseApp.AuthClient)

	// Validator
	e.Validator = validators.NewValidator()

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
