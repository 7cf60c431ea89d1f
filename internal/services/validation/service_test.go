package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
	auditsvc "github.com/thirdweb-example/unity-iap-server/internal/services/audit"
	"github.com/thirdweb-example/unity-iap-server/internal/services/catalog"
	"github.com/thirdweb-example/unity-iap-server/internal/services/receipts"
	verifysvc "github.com/thirdweb-example/unity-iap-server/internal/services/verify"
)

type stubCatalog struct {
	reward model.Reward
	err    error
	calls  int
}

func (s *stubCatalog) Resolve(string) (model.Reward, error) {
	s.calls++
	return s.reward, s.err
}

type stubAppleVerifier struct {
	err   error
	calls int
}

func (s *stubAppleVerifier) Verify(context.Context, model.AppleReceiptData) error {
	s.calls++
	return s.err
}

type stubGoogleVerifier struct {
	err   error
	calls int
}

func (s *stubGoogleVerifier) Verify(context.Context, model.GooglePlayReceiptData) error {
	s.calls++
	return s.err
}

type stubDispatcher struct {
	body []byte
	err  error

	calls      atomic.Int64
	mu         sync.Mutex
	gotAddress string
	gotReward  model.Reward
}

func (s *stubDispatcher) DispatchMint(_ context.Context, toAddress string, reward model.Reward) ([]byte, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.gotAddress = toAddress
	s.gotReward = reward
	s.mu.Unlock()
	return s.body, s.err
}

type stubLedger struct {
	mu       sync.Mutex
	reserved map[string]bool
	err      error
}

func (s *stubLedger) Reserve(_ context.Context, provider, transactionID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved == nil {
		s.reserved = make(map[string]bool)
	}
	key := provider + ":" + transactionID
	if s.reserved[key] {
		return false, nil
	}
	s.reserved[key] = true
	return true, nil
}

type stubGuard struct {
	ok  bool
	err error
}

func (s *stubGuard) Acquire(context.Context, string, string) (bool, error) {
	return s.ok, s.err
}

type stubArchiver struct {
	records []auditsvc.Record
}

func (s *stubArchiver) ArchiveMint(_ context.Context, record auditsvc.Record) error {
	s.records = append(s.records, record)
	return nil
}

func googleInput() Input {
	return Input{
		Receipt: model.ReceiptEnvelope{ReceiptData: json.RawMessage(`{
			"productID": "100_tokens",
			"orderID": "GPA.1234",
			"transactionID": "GPA.1234",
			"packageName": "com.example.game",
			"purchaseToken": "tok-1",
			"purchaseDate": 1700000000000,
			"purchaseState": 0
		}`)},
		ToAddress: "0xABC",
	}
}

func appleInput() Input {
	return Input{
		Receipt: model.ReceiptEnvelope{ReceiptData: json.RawMessage(`{
			"quantity": 1,
			"productID": "100_tokens",
			"transactionID": "2000000123456789",
			"purchaseDate": 1700000000000
		}`)},
		ToAddress: "0xABC",
	}
}

func newPipeline() (*Service, *stubCatalog, *stubGoogleVerifier, *stubDispatcher) {
	cat := &stubCatalog{reward: model.Reward{ContractAddress: "0xContract", Amount: "100"}}
	google := &stubGoogleVerifier{}
	dispatcher := &stubDispatcher{body: []byte(`{"result":"ok"}`)}
	svc := NewService(Dependencies{
		Catalog:    cat,
		Apple:      &stubAppleVerifier{},
		Google:     google,
		Dispatcher: dispatcher,
	})
	return svc, cat, google, dispatcher
}

func TestHandleMintsVerifiedReceipt(t *testing.T) {
	svc, _, google, dispatcher := newPipeline()

	result, err := svc.Handle(context.Background(), googleInput())
	if err != nil {
		t.Fatalf("handle verified receipt: %v", err)
	}

	if google.calls != 1 {
		t.Fatalf("expected one verification, got %d", google.calls)
	}
	if got := dispatcher.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one mint dispatch, got %d", got)
	}
	if dispatcher.gotAddress != "0xABC" {
		t.Fatalf("mint sent to wrong address: %s", dispatcher.gotAddress)
	}
	if dispatcher.gotReward.Amount != "100" || dispatcher.gotReward.ContractAddress != "0xContract" {
		t.Fatalf("mint used wrong reward: %+v", dispatcher.gotReward)
	}

	if result.Provider != receipts.ProviderGoogle {
		t.Fatalf("unexpected provider: %s", result.Provider)
	}
	if result.TransactionID != "GPA.1234" {
		t.Fatalf("unexpected transaction id: %s", result.TransactionID)
	}
	if string(result.MintResponse) != `{"result":"ok"}` {
		t.Fatalf("engine response was not passed through: %s", result.MintResponse)
	}
}

func TestHandleUnknownProductSkipsVerification(t *testing.T) {
	svc, cat, google, dispatcher := newPipeline()
	cat.err = catalog.ErrUnknownProduct

	_, err := svc.Handle(context.Background(), googleInput())
	if !errors.Is(err, catalog.ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
	if google.calls != 0 {
		t.Fatalf("unknown product must not reach the storefront, got %d calls", google.calls)
	}
	if dispatcher.calls.Load() != 0 {
		t.Fatalf("unknown product must not mint")
	}
}

func TestHandleVerificationFailureBlocksMint(t *testing.T) {
	svc, _, google, dispatcher := newPipeline()
	google.err = verifysvc.Fail(verifysvc.ReasonInvalidPurchaseState)

	_, err := svc.Handle(context.Background(), googleInput())

	var verifyErr *verifysvc.Error
	if !errors.As(err, &verifyErr) {
		t.Fatalf("expected verification error, got %v", err)
	}
	if verifyErr.Reason != verifysvc.ReasonInvalidPurchaseState {
		t.Fatalf("unexpected reason: %s", verifyErr.Reason)
	}
	if dispatcher.calls.Load() != 0 {
		t.Fatalf("failed verification must not mint")
	}
}

func TestHandleAmbiguousReceipt(t *testing.T) {
	svc, cat, _, dispatcher := newPipeline()

	_, err := svc.Handle(context.Background(), Input{
		Receipt:   model.ReceiptEnvelope{ReceiptData: json.RawMessage(`{"productID":"100_tokens"}`)},
		ToAddress: "0xABC",
	})
	if !errors.Is(err, receipts.ErrAmbiguousReceipt) {
		t.Fatalf("expected ErrAmbiguousReceipt, got %v", err)
	}
	if cat.calls != 0 || dispatcher.calls.Load() != 0 {
		t.Fatalf("ambiguous receipt must stop before catalog and mint")
	}
}

func TestHandleWrapsDispatchFailure(t *testing.T) {
	svc, _, _, dispatcher := newPipeline()
	dispatcher.err = fmt.Errorf("engine returned status 502")

	_, err := svc.Handle(context.Background(), googleInput())
	if !errors.Is(err, ErrMintDispatch) {
		t.Fatalf("expected ErrMintDispatch, got %v", err)
	}
}

func TestHandleWithoutAppleVerifier(t *testing.T) {
	cat := &stubCatalog{reward: model.Reward{ContractAddress: "0xContract", Amount: "100"}}
	dispatcher := &stubDispatcher{body: []byte(`{}`)}
	svc := NewService(Dependencies{
		Catalog:    cat,
		Google:     &stubGoogleVerifier{},
		Dispatcher: dispatcher,
	})

	_, err := svc.Handle(context.Background(), appleInput())

	var verifyErr *verifysvc.Error
	if !errors.As(err, &verifyErr) {
		t.Fatalf("expected verification error, got %v", err)
	}
	if verifyErr.Reason != verifysvc.ReasonProviderUnavailable {
		t.Fatalf("unexpected reason: %s", verifyErr.Reason)
	}
	if dispatcher.calls.Load() != 0 {
		t.Fatalf("missing verifier must not mint")
	}
}

// Without replay collaborators the pipeline has no memory: the same receipt
// submitted twice concurrently mints twice.
func TestHandleDuplicatesMintWithoutReplayProtection(t *testing.T) {
	svc, _, _, dispatcher := newPipeline()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Handle(context.Background(), googleInput()); err != nil {
				t.Errorf("handle duplicate: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := dispatcher.calls.Load(); got != 2 {
		t.Fatalf("expected both submissions to mint, got %d dispatches", got)
	}
}

func TestHandleLedgerRejectsResubmission(t *testing.T) {
	svc, _, _, dispatcher := newPipeline()
	svc.AttachReplayProtection(nil, &stubLedger{})

	if _, err := svc.Handle(context.Background(), googleInput()); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if _, err := svc.Handle(context.Background(), googleInput()); !errors.Is(err, ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt, got %v", err)
	}
	if got := dispatcher.calls.Load(); got != 1 {
		t.Fatalf("expected a single mint, got %d", got)
	}
}

func TestHandleGuardRejectsInFlightDuplicate(t *testing.T) {
	svc, _, _, dispatcher := newPipeline()
	svc.AttachReplayProtection(&stubGuard{ok: false}, nil)

	if _, err := svc.Handle(context.Background(), googleInput()); !errors.Is(err, ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt, got %v", err)
	}
	if dispatcher.calls.Load() != 0 {
		t.Fatalf("guarded duplicate must not mint")
	}
}

// A broken guard never blocks a mint; the ledger stays authoritative.
func TestHandleGuardErrorFailsOpen(t *testing.T) {
	svc, _, _, dispatcher := newPipeline()
	svc.AttachReplayProtection(&stubGuard{err: fmt.Errorf("redis down")}, &stubLedger{})

	if _, err := svc.Handle(context.Background(), googleInput()); err != nil {
		t.Fatalf("guard fault should fail open: %v", err)
	}
	if dispatcher.calls.Load() != 1 {
		t.Fatalf("expected one mint despite guard fault")
	}
}

func TestHandleArchivesAcceptedMint(t *testing.T) {
	svc, _, _, _ := newPipeline()
	archiver := &stubArchiver{}
	svc.AttachArchiver(archiver)

	if _, err := svc.Handle(context.Background(), googleInput()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(archiver.records) != 1 {
		t.Fatalf("expected one archived record, got %d", len(archiver.records))
	}
	record := archiver.records[0]
	if record.Provider != "google" || record.TransactionID != "GPA.1234" {
		t.Fatalf("unexpected record identity: %+v", record)
	}
	if record.Amount != "100" || record.Contract != "0xContract" {
		t.Fatalf("unexpected record reward: %+v", record)
	}
}
