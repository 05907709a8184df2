package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/ingestion"
	"nivesh/internal/domain/notification"
	"nivesh/internal/infrastructure/aggregator"
	"nivesh/internal/infrastructure/crypto"
	"nivesh/internal/infrastructure/firebase"
	"nivesh/internal/infrastructure/jws"
	"nivesh/internal/infrastructure/postgres"
	httphandlers "nivesh/internal/interfaces/http"
	"nivesh/internal/shared/auth"
	"nivesh/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	AuthHandler         *httphandlers.AuthHandler
	UserHandler         *httphandlers.UserHandler
	ConsentHandler      *httphandlers.ConsentHandler
	PortfolioHandler    *httphandlers.PortfolioHandler
	NotificationHandler *httphandlers.NotificationHandler
	WebhookHandler      *httphandlers.WebhookHandler

	// Auth
	JWT *auth.JWT

	// Services and repositories the scheduler jobs run against.
	ConsentService   *consent.Service
	IngestionService *ingestion.Service
	BatchRepo        *postgres.BatchRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		return nil, err
	}

	// Repositories
	userRepo := postgres.NewUserRepository(db, encryptor)
	consentRepo := postgres.NewConsentRepository(db)
	eventRepo := postgres.NewConsentEventRepository(db)
	accountRepo := postgres.NewLinkedAccountRepository(db)
	holdingRepo := postgres.NewHoldingRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	batchRepo := postgres.NewBatchRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Push messaging is optional; without Firebase credentials notifications
	// are stored but never pushed.
	var messenger notification.Messenger
	var consentMessenger consent.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, userRepo.ClearFCMToken)
		if err != nil {
			log.Printf("Warning: Firebase init failed, push notifications disabled: %v", err)
		} else {
			messenger = fcm
			consentMessenger = fcm
		}
	}

	// AA provider client: real HTTP client or the in-process mock. The mode
	// is validated at config load, never inferred.
	var provider aggregator.ClientInterface
	switch cfg.AA.Mode {
	case config.ProviderModeReal:
		provider = aggregator.NewClient(cfg.AA)
	case config.ProviderModeMock:
		log.Println("Using mock Account Aggregator client")
		provider = aggregator.NewMockClient()
	default:
		return nil, fmt.Errorf("unsupported AA provider mode %q", cfg.AA.Mode)
	}

	verifier, err := newWebhookVerifier(cfg.AA)
	if err != nil {
		return nil, err
	}

	// Domain services
	consentService := consent.NewService(
		consentRepo, eventRepo, provider, userRepo, consentMessenger,
		consent.Notice{
			Title: "Consent approved",
			Body:  "Your financial accounts are being linked.",
		},
		cfg.AA.CustomerHandleSuffix,
		cfg.AA.ConsentValidityDays,
	)
	ingestionService := ingestion.NewService(batchRepo, consentRepo, accountRepo, holdingRepo, transactionRepo, provider)
	notificationService := notification.NewService(notificationRepo, userRepo, messenger)

	jwt := auth.NewJWT(cfg.JWT.Secret)

	return &Dependencies{
		DB:                  db,
		AuthHandler:         httphandlers.NewAuthHandler(userRepo, jwt),
		UserHandler:         httphandlers.NewUserHandler(userRepo),
		ConsentHandler:      httphandlers.NewConsentHandler(consentService),
		PortfolioHandler:    httphandlers.NewPortfolioHandler(accountRepo, holdingRepo, transactionRepo),
		NotificationHandler: httphandlers.NewNotificationHandler(notificationService),
		WebhookHandler:      httphandlers.NewWebhookHandler(verifier, consentService, batchRepo, ingestionService, notificationService),
		JWT:                 jwt,
		ConsentService:      consentService,
		IngestionService:    ingestionService,
		BatchRepo:           batchRepo,
	}, nil
}

// newWebhookVerifier builds the JWS verifier from the configured public key.
// Verification can only be disabled explicitly, and loudly.
func newWebhookVerifier(cfg config.AAConfig) (*jws.Verifier, error) {
	if cfg.SkipWebhookVerification {
		return jws.NewInsecureVerifier(), nil
	}

	pemData := []byte(cfg.WebhookPublicKeyPEM)
	if len(pemData) == 0 {
		data, err := os.ReadFile(cfg.WebhookPublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read webhook public key from %s: %w", cfg.WebhookPublicKeyPath, err)
		}
		pemData = data
	}

	verifier, err := jws.NewVerifier(pemData)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook public key: %w", err)
	}
	return verifier, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
