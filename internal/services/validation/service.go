package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
	auditsvc "github.com/thirdweb-example/unity-iap-server/internal/services/audit"
	"github.com/thirdweb-example/unity-iap-server/internal/services/receipts"
	verifysvc "github.com/thirdweb-example/unity-iap-server/internal/services/verify"
)

var (
	ErrMintDispatch     = errors.New("mint dispatch failed")
	ErrDuplicateReceipt = errors.New("receipt already redeemed")
)

type RewardResolver interface {
	Resolve(productID string) (model.Reward, error)
}

type AppleVerifier interface {
	Verify(ctx context.Context, receipt model.AppleReceiptData) error
}

type GoogleVerifier interface {
	Verify(ctx context.Context, receipt model.GooglePlayReceiptData) error
}

type MintDispatcher interface {
	DispatchMint(ctx context.Context, toAddress string, reward model.Reward) ([]byte, error)
}

// ReplayGuard is the short-TTL in-flight marker; MintLedger is the durable
// at-most-once reservation. Both are optional collaborators: without them the
// pipeline has no replay memory and a resubmitted receipt mints again.
type ReplayGuard interface {
	Acquire(ctx context.Context, provider, transactionID string) (bool, error)
}

type MintLedger interface {
	Reserve(ctx context.Context, provider, transactionID string) (bool, error)
}

type ReceiptArchiver interface {
	ArchiveMint(ctx context.Context, record auditsvc.Record) error
}

type Dependencies struct {
	Catalog    RewardResolver
	Apple      AppleVerifier
	Google     GoogleVerifier
	Dispatcher MintDispatcher
}

// Service owns the end-to-end receipt flow: classify, resolve reward, verify
// with the matching storefront, then authorize exactly one mint.
type Service struct {
	catalog    RewardResolver
	apple      AppleVerifier
	google     GoogleVerifier
	dispatcher MintDispatcher
	guard      ReplayGuard
	ledger     MintLedger
	archiver   ReceiptArchiver
	now        func() time.Time
}

type Input struct {
	Receipt   model.ReceiptEnvelope
	ToAddress string
}

type Result struct {
	Provider      receipts.Provider
	ProductID     string
	TransactionID string
	MintResponse  json.RawMessage
}

func NewService(deps Dependencies) *Service {
	return &Service{
		catalog:    deps.Catalog,
		apple:      deps.Apple,
		google:     deps.Google,
		dispatcher: deps.Dispatcher,
		now:        time.Now,
	}
}

func (s *Service) AttachReplayProtection(guard ReplayGuard, ledger MintLedger) {
	s.guard = guard
	s.ledger = ledger
}

func (s *Service) AttachArchiver(archiver ReceiptArchiver) {
	s.archiver = archiver
}

// Handle runs one request through the pipeline. The reward lookup happens
// before any provider call so unknown products never cost a verification
// round trip.
func (s *Service) Handle(ctx context.Context, in Input) (Result, error) {
	if s.catalog == nil || s.dispatcher == nil {
		return Result{}, fmt.Errorf("validation dependencies are not configured")
	}

	classified, err := receipts.Classify(in.Receipt)
	if err != nil {
		return Result{}, err
	}

	reward, err := s.catalog.Resolve(classified.ProductID())
	if err != nil {
		return Result{}, err
	}

	if err := s.verifyReceipt(ctx, classified); err != nil {
		return Result{}, err
	}

	if err := s.reserveMint(ctx, classified); err != nil {
		return Result{}, err
	}

	body, err := s.dispatcher.DispatchMint(ctx, in.ToAddress, reward)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMintDispatch, err)
	}

	if s.archiver != nil {
		// Best effort; the archiver logs its own failures.
		_ = s.archiver.ArchiveMint(ctx, auditsvc.Record{
			Provider:      string(classified.Provider),
			TransactionID: classified.TransactionID(),
			ProductID:     classified.ProductID(),
			ToAddress:     in.ToAddress,
			Contract:      reward.ContractAddress,
			Amount:        reward.Amount,
			MintResponse:  body,
			AcceptedAt:    s.now().UTC(),
		})
	}

	return Result{
		Provider:      classified.Provider,
		ProductID:     classified.ProductID(),
		TransactionID: classified.TransactionID(),
		MintResponse:  body,
	}, nil
}

func (s *Service) verifyReceipt(ctx context.Context, classified receipts.Classified) error {
	switch classified.Provider {
	case receipts.ProviderApple:
		if s.apple == nil {
			return verifysvc.Wrap(verifysvc.ReasonProviderUnavailable,
				fmt.Errorf("apple verifier is not configured"))
		}
		return s.apple.Verify(ctx, *classified.Apple)
	case receipts.ProviderGoogle:
		if s.google == nil {
			return verifysvc.Wrap(verifysvc.ReasonProviderUnavailable,
				fmt.Errorf("google verifier is not configured"))
		}
		return s.google.Verify(ctx, *classified.Google)
	default:
		return receipts.ErrAmbiguousReceipt
	}
}

// reserveMint enforces at-most-once semantics when the replay collaborators
// are configured. Guard errors fail open: the marker is an optimization, the
// ledger is the source of truth.
func (s *Service) reserveMint(ctx context.Context, classified receipts.Classified) error {
	provider := string(classified.Provider)
	transactionID := classified.TransactionID()

	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, provider, transactionID)
		if err == nil && !ok {
			return ErrDuplicateReceipt
		}
	}

	if s.ledger != nil {
		ok, err := s.ledger.Reserve(ctx, provider, transactionID)
		if err != nil {
			return fmt.Errorf("reserve mint: %w", err)
		}
		if !ok {
			return ErrDuplicateReceipt
		}
	}

	return nil
}
