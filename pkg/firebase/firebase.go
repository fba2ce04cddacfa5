package firebase

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// App holds the initialized Firebase app, auth client and Firestore client
type App struct {
	FirebaseApp *firebase.App
	AuthClient  *auth.Client
	Firestore   *firestore.Client
}

// InitFirebase initializes the Firebase application, authentication client
// and Firestore client
func InitFirebase(ctx context.Context, credentialsPath string) (*App, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("Firebase credentials path not provided")
	}

	// Check if the credentials file exists
	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("Firebase credentials file not found at %s", credentialsPath)
	}

	opt := option.WithCredentialsFile(credentialsPath)

	firebaseApp, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	firestoreClient, err := firebaseApp.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}

	log.Println("Firebase app, auth client and Firestore client initialized successfully!")
	return &App{FirebaseApp: firebaseApp, AuthClient: authClient, Firestore: firestoreClient}, nil
}

// Close releases the Firestore client connection
func (a *App) Close() {
	if a.Firestore != nil {
		if err := a.Firestore.Close(); err != nil {
			log.Printf("Error closing Firestore client: %v\n", err)
		}
	}
}
