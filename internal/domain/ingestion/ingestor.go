package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"nivesh/internal/domain/batch"
	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/portfolio"
)

var (
	ingestMeter = otel.Meter("nivesh/ingestion")

	recordsNew, _ = ingestMeter.Int64Counter("ingest.records.new",
		metric.WithDescription("Records inserted by ingestion"))
	recordsDuplicate, _ = ingestMeter.Int64Counter("ingest.records.duplicate",
		metric.WithDescription("Duplicate records suppressed by idempotency key"))
	recordsFailed, _ = ingestMeter.Int64Counter("ingest.records.failed",
		metric.WithDescription("Records skipped due to parse errors"))
)

// ErrRecordParse marks a record that was present but could not be normalized
// (non-numeric amount, unparseable date). One bad record never aborts its
// batch; it is skipped, counted and reported.
var ErrRecordParse = errors.New("record parse error")

// ErrConsentUnresolved means the batch cannot be attributed to a user yet
// because no local consent matches its handle. The batch stays READY and is
// picked up again by the retry job once the consent exists.
var ErrConsentUnresolved = errors.New("batch consent not resolved")

// DataFetcher pulls decrypted FI data from the provider for batches whose
// notification did not embed the payload inline.
type DataFetcher interface {
	FetchFIData(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// RecordError describes one skipped record.
type RecordError struct {
	Scope string // "holding" or "transaction"
	Ref   string // provider account id the record belonged to
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s record for account %s: %v", e.Scope, e.Ref, e.Err)
}

// Result summarizes one ProcessBatch run. New and duplicate counts are kept
// apart: a redelivered batch completing with all-duplicates is a success,
// not a silent failure.
type Result struct {
	BatchID               string
	SessionID             string
	AccountsSeen          int
	AccountsProcessed     int
	HoldingsNew           int
	HoldingsDuplicate     int
	TransactionsNew       int
	TransactionsDuplicate int
	Errors                []RecordError
}

// Success reports whether every record in the batch was ingested or
// recognized as a duplicate.
func (r *Result) Success() bool {
	return len(r.Errors) == 0
}

func (r *Result) recordsFetched() int {
	return r.HoldingsNew + r.HoldingsDuplicate + r.TransactionsNew + r.TransactionsDuplicate + len(r.Errors)
}

func (r *Result) recordsProcessed() int {
	return r.HoldingsNew + r.HoldingsDuplicate + r.TransactionsNew + r.TransactionsDuplicate
}

// Service turns READY batches into linked accounts, holdings and
// transactions. Safe to call repeatedly for the same batch: every write is
// an idempotent upsert.
type Service struct {
	batches      batch.Repository
	consents     consent.Repository
	accounts     portfolio.AccountRepository
	holdings     portfolio.HoldingRepository
	transactions portfolio.TransactionRepository
	fetcher      DataFetcher
}

func NewService(
	batches batch.Repository,
	consents consent.Repository,
	accounts portfolio.AccountRepository,
	holdings portfolio.HoldingRepository,
	transactions portfolio.TransactionRepository,
	fetcher DataFetcher,
) *Service {
	return &Service{
		batches:      batches,
		consents:     consents,
		accounts:     accounts,
		holdings:     holdings,
		transactions: transactions,
		fetcher:      fetcher,
	}
}

// ProcessBatch runs the full ingestion pipeline for one batch: resolve the
// owning consent, obtain the FI payload (inline or fetched by session),
// classify each account, normalize and upsert its records, and move the
// batch to COMPLETED or FAILED.
func (s *Service) ProcessBatch(ctx context.Context, b *batch.Batch) (*Result, error) {
	if b.ConsentHandle == "" {
		return nil, ErrConsentUnresolved
	}
	owner, err := s.consents.GetByHandle(ctx, b.ConsentHandle)
	if err != nil {
		if errors.Is(err, consent.ErrConsentNotFound) {
			return nil, ErrConsentUnresolved
		}
		return nil, fmt.Errorf("failed to resolve consent for batch %s: %w", b.ID, err)
	}

	if err := s.batches.UpdateStatus(ctx, b.ID, batch.StatusProcessing, b.RecordsFetched, b.RecordsProcessed, ""); err != nil {
		return nil, fmt.Errorf("failed to mark batch %s processing: %w", b.ID, err)
	}

	result, err := s.ingest(ctx, b, owner.UserID)
	if err != nil {
		if failErr := s.batches.UpdateStatus(ctx, b.ID, batch.StatusFailed, 0, 0, err.Error()); failErr != nil {
			log.Printf("batch %s: failed to record failure: %v", b.ID, failErr)
		}
		return nil, err
	}

	status := batch.StatusCompleted
	errorDetail := ""
	if !result.Success() {
		status = batch.StatusFailed
		errorDetail = fmt.Sprintf("%d of %d records failed; first: %v",
			len(result.Errors), result.recordsFetched(), result.Errors[0])
	}
	if err := s.batches.UpdateStatus(ctx, b.ID, status, result.recordsFetched(), result.recordsProcessed(), errorDetail); err != nil {
		return result, fmt.Errorf("failed to finalize batch %s: %w", b.ID, err)
	}

	log.Printf("batch %s ingested: %d accounts, %d/%d new holdings, %d/%d new transactions, %d errors",
		b.ID, result.AccountsProcessed,
		result.HoldingsNew, result.HoldingsNew+result.HoldingsDuplicate,
		result.TransactionsNew, result.TransactionsNew+result.TransactionsDuplicate,
		len(result.Errors))
	return result, nil
}

func (s *Service) ingest(ctx context.Context, b *batch.Batch, userID int64) (*Result, error) {
	raw := []byte(b.Payload)
	if !hasFIData(raw) {
		if s.fetcher == nil {
			return nil, fmt.Errorf("batch %s payload has no inline FI data and no fetcher is configured", b.ID)
		}
		fetched, err := s.fetcher.FetchFIData(ctx, b.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch FI data for session %s: %w", b.SessionID, err)
		}
		raw = fetched
	}

	accounts, err := parsePayload(raw)
	if err != nil {
		return nil, err
	}

	result := &Result{BatchID: b.ID, SessionID: b.SessionID, AccountsSeen: len(accounts)}
	fallbackDate := b.CreatedAt
	if fallbackDate.IsZero() {
		fallbackDate = time.Now().UTC()
	}

	for _, acc := range accounts {
		if err := s.ingestAccount(ctx, b, userID, acc, fallbackDate, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ingestAccount upserts one linked account and its records. Record-level
// failures are accumulated on the result; only storage failures propagate.
func (s *Service) ingestAccount(ctx context.Context, b *batch.Batch, userID int64, acc rawAccount, fallbackDate time.Time, result *Result) error {
	providerAccountID, ok := pickString(acc.fields, accountIDKeys...)
	if !ok {
		result.Errors = append(result.Errors, RecordError{
			Scope: "account",
			Err:   fmt.Errorf("%w: account has no identifier", ErrRecordParse),
		})
		recordsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "account")))
		return nil
	}

	explicitTag, _ := pickString(acc.fields, accountFITypeKeys...)
	accountType, _ := pickString(acc.fields, accountTypeKeys...)
	fiType := Classify(explicitTag, accountType, acc.fipID)

	masked, _ := pickString(acc.fields, maskedNumberKeys...)
	var profile, summary json.RawMessage
	if p, ok := pickMap(acc.fields, accountProfileKeys...); ok {
		profile, _ = json.Marshal(p)
	}
	if sm, ok := pickMap(acc.fields, accountSummaryKeys...); ok {
		summary, _ = json.Marshal(sm)
	}

	account, err := s.accounts.Upsert(ctx, portfolio.UpsertAccountParams{
		UserID:            userID,
		ConsentHandle:     b.ConsentHandle,
		FIPID:             acc.fipID,
		ProviderAccountID: providerAccountID,
		MaskedNumber:      masked,
		FIType:            fiType,
		AccountType:       accountType,
		Status:            portfolio.AccountStatusActive,
		Profile:           profile,
		Summary:           summary,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", providerAccountID, err)
	}
	result.AccountsProcessed++

	holdings := acc.holdings
	if len(holdings) == 0 && (fiType == portfolio.FITypeTermDeposit || fiType == portfolio.FITypeRecurringDeposit) {
		synthesized, err := synthesizeDepositHolding(acc, providerAccountID, accountType, fallbackDate)
		if err != nil {
			s.recordFailure(ctx, result, "holding", providerAccountID, err)
		} else {
			if err := s.storeHolding(ctx, account.ID, synthesized, result); err != nil {
				return err
			}
		}
	}

	for _, rec := range holdings {
		h, err := mapHolding(fiType, providerAccountID, rec, fallbackDate)
		if err != nil {
			s.recordFailure(ctx, result, "holding", providerAccountID, err)
			continue
		}
		if err := s.storeHolding(ctx, account.ID, h, result); err != nil {
			return err
		}
	}

	for _, rec := range acc.transactions {
		t, err := mapTransaction(fiType, providerAccountID, rec, fallbackDate)
		if err != nil {
			s.recordFailure(ctx, result, "transaction", providerAccountID, err)
			continue
		}
		t.AccountID = account.ID
		created, err := s.transactions.InsertIfNew(ctx, t)
		if err != nil {
			return fmt.Errorf("failed to store transaction for account %s: %w", providerAccountID, err)
		}
		if created {
			result.TransactionsNew++
			recordsNew.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "transaction")))
		} else {
			result.TransactionsDuplicate++
			recordsDuplicate.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "transaction")))
		}
	}

	return nil
}

func (s *Service) storeHolding(ctx context.Context, accountID int64, h *portfolio.Holding, result *Result) error {
	h.AccountID = accountID
	created, err := s.holdings.InsertIfNew(ctx, h)
	if err != nil {
		return fmt.Errorf("failed to store holding %q: %w", h.InstrumentName, err)
	}
	if created {
		result.HoldingsNew++
		recordsNew.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "holding")))
	} else {
		result.HoldingsDuplicate++
		recordsDuplicate.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "holding")))
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, result *Result, scope, ref string, err error) {
	result.Errors = append(result.Errors, RecordError{Scope: scope, Ref: ref, Err: err})
	recordsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}
