package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pulsefeed/core/internal/store"
	"github.com/pulsefeed/core/pkg/firebase"
)

// StoreHandle holds the active document store and its backing connection
type StoreHandle struct {
	Store store.Store
	mongo *mongo.Client
}

// InitStore initializes the document store selected by STORE_BACKEND
func InitStore(ctx context.Context, cfg *Config, fbApp *firebase.App) (*StoreHandle, error) {
	switch cfg.StoreBackend {
	case "firestore":
		if fbApp == nil || fbApp.Firestore == nil {
			return nil, fmt.Errorf("firestore backend selected but Firebase is not initialized")
		}
		log.Println("Using Firestore document store.")
		return &StoreHandle{Store: store.NewFirestoreStore(fbApp.Firestore)}, nil

	case "mongo":
		client, err := initMongo(cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		log.Println("Using MongoDB document store.")
		return &StoreHandle{
			Store: store.NewMongoStore(client.Database(cfg.MongoDatabase)),
			mongo: client,
		}, nil

	case "memory":
		log.Println("Using in-memory document store.")
		return &StoreHandle{Store: store.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// initMongo initializes the MongoDB connection
func initMongo(uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGO_URI environment variable not set")
	}

	clientOptions := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the primary to verify connection
	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	log.Println("Successfully connected to MongoDB!")
	return client, nil
}

// Close closes the backing store connection
func (h *StoreHandle) Close() {
	if h.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.mongo.Disconnect(ctx); err != nil {
			log.Printf("Error closing MongoDB connection: %v\n", err)
		} else {
			log.Println("MongoDB connection closed.")
		}
	}
}
