package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"nivesh/internal/domain/batch"
	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/ingestion"
	"nivesh/internal/infrastructure/aggregator"
	"nivesh/internal/infrastructure/crypto"
	"nivesh/internal/infrastructure/postgres"
	"nivesh/internal/shared/config"
)

const usage = `Nivesh Admin CLI - Management commands for the Nivesh API

Usage:
  admin <command> [options]

Commands:
  batch-list     List ingestion batches by status
  batch-replay   Reprocess stored ingestion batches
  consent-poll   Poll the provider for pending consent statuses

Examples:
  # List failed batches
  admin batch-list --status=FAILED

  # Replay one batch by provider session id
  admin batch-replay --session-id=abc-123

  # Replay every failed batch
  admin batch-replay --status=FAILED --limit=50

  # Poll one consent
  admin consent-poll --handle=handle-xyz

  # Poll every consent pending for more than 30 minutes
  admin consent-poll --pending-older-than=30m
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "batch-list":
		runBatchList(os.Args[2:])
	case "batch-replay":
		runBatchReplay(os.Args[2:])
	case "consent-poll":
		runConsentPoll(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

// env bundles the shared wiring every admin command needs.
type env struct {
	db       *postgres.DB
	batches  *postgres.BatchRepository
	consents *consent.Service
	ingestor *ingestion.Service
}

func newEnv(ctx context.Context) (*env, func()) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	userRepo := postgres.NewUserRepository(db, encryptor)
	consentRepo := postgres.NewConsentRepository(db)
	eventRepo := postgres.NewConsentEventRepository(db)
	accountRepo := postgres.NewLinkedAccountRepository(db)
	holdingRepo := postgres.NewHoldingRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	batchRepo := postgres.NewBatchRepository(db)

	var provider aggregator.ClientInterface
	if cfg.AA.Mode == config.ProviderModeReal {
		provider = aggregator.NewClient(cfg.AA)
	} else {
		provider = aggregator.NewMockClient()
	}

	// Admin runs never push notifications: messenger stays nil.
	consentService := consent.NewService(
		consentRepo, eventRepo, provider, userRepo, nil,
		consent.Notice{}, cfg.AA.CustomerHandleSuffix, cfg.AA.ConsentValidityDays,
	)
	ingestor := ingestion.NewService(batchRepo, consentRepo, accountRepo, holdingRepo, transactionRepo, provider)

	return &env{
		db:       db,
		batches:  batchRepo,
		consents: consentService,
		ingestor: ingestor,
	}, func() { db.Close() }
}

func runBatchList(args []string) {
	fs := flag.NewFlagSet("batch-list", flag.ExitOnError)
	status := fs.String("status", "FAILED", "Batch status to list (READY, PROCESSING, COMPLETED, FAILED)")
	limit := fs.Int("limit", 50, "Maximum number of batches to list")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	e, closeEnv := newEnv(ctx)
	defer closeEnv()

	batches, err := e.batches.ListByStatus(ctx, batch.Status(*status), *limit)
	if err != nil {
		log.Fatalf("Failed to list batches: %v", err)
	}

	if len(batches) == 0 {
		fmt.Printf("No %s batches\n", *status)
		return
	}

	for _, b := range batches {
		fmt.Printf("%s  session=%s  consent=%s  fetched=%d processed=%d  created=%s\n",
			b.ID, b.SessionID, b.ConsentHandle, b.RecordsFetched, b.RecordsProcessed,
			b.CreatedAt.Format(time.RFC3339))
		if b.ErrorDetail != "" {
			fmt.Printf("    error: %s\n", b.ErrorDetail)
		}
	}
}

func runBatchReplay(args []string) {
	fs := flag.NewFlagSet("batch-replay", flag.ExitOnError)
	sessionID := fs.String("session-id", "", "Provider session id of one batch to replay")
	status := fs.String("status", "", "Replay all batches in this status (READY or FAILED)")
	limit := fs.Int("limit", 50, "Maximum number of batches to replay")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *sessionID == "" && *status == "" {
		fmt.Println("Error: must specify --session-id or --status")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	e, closeEnv := newEnv(ctx)
	defer closeEnv()

	var batches []*batch.Batch
	if *sessionID != "" {
		b, err := e.batches.GetBySessionID(ctx, *sessionID)
		if err != nil {
			log.Fatalf("Failed to load batch for session %s: %v", *sessionID, err)
		}
		batches = append(batches, b)
	} else {
		batches, err = e.batches.ListByStatus(ctx, batch.Status(*status), *limit)
		if err != nil {
			log.Fatalf("Failed to list batches: %v", err)
		}
	}

	if len(batches) == 0 {
		log.Println("No batches to replay")
		return
	}

	log.Printf("Replaying %d batch(es)", len(batches))
	startTime := time.Now()

	var succeeded, failed int
	for _, b := range batches {
		result, err := e.ingestor.ProcessBatch(ctx, b)
		if err != nil {
			failed++
			fmt.Printf("%s  session=%s  FAILED: %v\n", b.ID, b.SessionID, err)
			continue
		}
		succeeded++
		fmt.Printf("%s  session=%s  accounts=%d holdings=%d(+%d dup) transactions=%d(+%d dup) errors=%d\n",
			b.ID, b.SessionID, result.AccountsProcessed,
			result.HoldingsNew, result.HoldingsDuplicate,
			result.TransactionsNew, result.TransactionsDuplicate,
			len(result.Errors))
	}

	log.Printf("Replay completed in %v: %d succeeded, %d failed", time.Since(startTime), succeeded, failed)
}

func runConsentPoll(args []string) {
	fs := flag.NewFlagSet("consent-poll", flag.ExitOnError)
	handle := fs.String("handle", "", "Consent handle to poll")
	pendingOlderThan := fs.Duration("pending-older-than", 0, "Poll every consent pending longer than this (e.g., 30m)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *handle == "" && *pendingOlderThan == 0 {
		fmt.Println("Error: must specify --handle or --pending-older-than")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	e, closeEnv := newEnv(ctx)
	defer closeEnv()

	var handles []string
	if *handle != "" {
		handles = append(handles, *handle)
	} else {
		cutoff := time.Now().UTC().Add(-*pendingOlderThan)
		pending, err := e.consents.ListPendingOlderThan(ctx, cutoff)
		if err != nil {
			log.Fatalf("Failed to list pending consents: %v", err)
		}
		for _, c := range pending {
			handles = append(handles, c.Handle)
		}
	}

	if len(handles) == 0 {
		log.Println("No consents to poll")
		return
	}

	for _, h := range handles {
		c, err := e.consents.PollStatus(ctx, h)
		if err != nil {
			fmt.Printf("%s  poll failed: %v\n", h, err)
			continue
		}
		fmt.Printf("%s  status=%s provider_id=%s\n", c.Handle, c.Status, c.ProviderID)
	}
}
