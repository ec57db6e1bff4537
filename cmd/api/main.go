package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"letschat/internal/adapter/api"
	"letschat/internal/adapter/api/handler"
	apimiddleware "letschat/internal/adapter/api/middleware"
	"letschat/internal/adapter/api/router"
	"letschat/internal/adapter/repository"
	"letschat/internal/infrastructure/eventbus"
	"letschat/internal/infrastructure/firebase"
	"letschat/internal/infrastructure/websocket"
	"letschat/internal/usecase"
	"letschat/pkg/config"
	"letschat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	conversationRepo := repository.NewFirestoreConversationRepository(firestoreClient)

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient, cfg.FirebaseApiKey)

	// One bus for the whole process, torn down with the server.
	bus := eventbus.New()
	defer bus.Close()

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	conversationUseCase := usecase.NewConversationUseCase(conversationRepo, userRepo, bus)
	messageUseCase := usecase.NewMessageUseCase(conversationRepo, userRepo, bus)
	subscriptionUseCase := usecase.NewSubscriptionUseCase(bus)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	conversationHandler := handler.NewConversationHandler(conversationUseCase)
	messageHandler := handler.NewMessageHandler(messageUseCase)
	subscriptionHandler := handler.NewSubscriptionHandler(wsManager, subscriptionUseCase, firebaseAuthClient)
	devTokenHandler := handler.NewDevTokenHandler(firebaseAuthClient, userRepo)

	router.SetupHealthRouter(e, wsManager)
	router.SetupConversationRouter(e, conversationHandler, messageHandler, authMiddleware)
	router.SetupSubscriptionRouter(e, subscriptionHandler)
	router.SetupDevRouter(e, cfg.Environment, devTokenHandler)

	logger.Info("Starting server on port %s (environment: %s)", cfg.ServerPort, cfg.Environment)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
