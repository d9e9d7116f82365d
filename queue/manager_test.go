package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/appprecos/scan-gateway/models"
)

// testConfig shrinks every duration so lifecycle tests complete quickly.
func testConfig() Config {
	return Config{
		DebounceWindow:  50 * time.Millisecond,
		RecencyHorizon:  500 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
		MaxPollAttempts: 10,
		RemovalDelay:    40 * time.Millisecond,
	}
}

type statusStep struct {
	resp *models.NFCeStatusResponse
	err  error
}

// fakeExtractor scripts the remote backend. Status replays statusSeq and
// repeats the last step once exhausted.
type fakeExtractor struct {
	mu             sync.Mutex
	extractErr     error
	extractOnceErr error // returned for the first Extract call only
	extractCalls   int
	recordID       int
	statusSeq      []statusStep
	statusCalls    int
	inflight       []models.NFCeStatusResponse
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (*models.ExtractResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	if f.extractOnceErr != nil && f.extractCalls == 1 {
		return nil, f.extractOnceErr
	}
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return &models.ExtractResponse{Message: "queued", Status: "processing", RecordID: f.recordID}, nil
}

func (f *fakeExtractor) Status(ctx context.Context, recordID int) (*models.NFCeStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if len(f.statusSeq) == 0 {
		return nil, errors.New("no scripted status")
	}
	index := f.statusCalls - 1
	if index >= len(f.statusSeq) {
		index = len(f.statusSeq) - 1
	}
	step := f.statusSeq[index]
	return step.resp, step.err
}

func (f *fakeExtractor) Processing(ctx context.Context) ([]models.NFCeStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight, nil
}

func processingStatus(recordID int) *models.NFCeStatusResponse {
	return &models.NFCeStatusResponse{RecordID: recordID, Status: models.RemoteStatusProcessing}
}

func successStatus(recordID int, marketName string, productsCount int) *models.NFCeStatusResponse {
	return &models.NFCeStatusResponse{
		RecordID:      recordID,
		Status:        models.RemoteStatusSuccess,
		MarketName:    &marketName,
		ProductsCount: productsCount,
	}
}

func errorStatus(recordID int, message string) *models.NFCeStatusResponse {
	return &models.NFCeStatusResponse{
		RecordID:     recordID,
		Status:       models.RemoteStatusError,
		ErrorMessage: &message,
	}
}

func waitFor(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func TestManagerHappyPath(t *testing.T) {
	extractor := &fakeExtractor{
		recordID: 42,
		statusSeq: []statusStep{
			{resp: processingStatus(42)},
			{resp: successStatus(42, "Market A", 7)},
		},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	if !manager.Submit("http://nfce/receipt-1") {
		t.Fatal("submission should be admitted")
	}

	waitFor(t, time.Second, "entry to reach success", func() bool {
		entry, ok := store.Get("http://nfce/receipt-1")
		return ok && entry.Status == models.StatusSuccess
	})

	entry, _ := store.Get("http://nfce/receipt-1")
	if entry.RecordID != 42 {
		t.Errorf("expected record id 42, got %d", entry.RecordID)
	}
	if entry.MarketName != "Market A" {
		t.Errorf("expected market name Market A, got %q", entry.MarketName)
	}
	if entry.ProductsCount != 7 {
		t.Errorf("expected 7 products, got %d", entry.ProductsCount)
	}

	waitFor(t, time.Second, "terminal entry to be removed", func() bool {
		return !store.Contains("http://nfce/receipt-1")
	})
}

func TestManagerDuplicateReceipt(t *testing.T) {
	extractor := &fakeExtractor{
		extractErr: &models.DuplicateReceiptError{
			ErrorText:     "duplicate",
			Message:       "Nota fiscal ja processada",
			ProductsCount: 12,
		},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/dup")

	waitFor(t, time.Second, "entry to reach duplicate", func() bool {
		entry, ok := store.Get("http://nfce/dup")
		return ok && entry.Status == models.StatusDuplicate
	})

	entry, _ := store.Get("http://nfce/dup")
	if entry.ErrorMessage != "Nota fiscal ja processada" {
		t.Errorf("expected backend message, got %q", entry.ErrorMessage)
	}
	if entry.ProductsCount != 12 {
		t.Errorf("expected products count from conflict body, got %d", entry.ProductsCount)
	}
}

func TestManagerDuplicateWithoutBodyUsesFallbackMessage(t *testing.T) {
	extractor := &fakeExtractor{extractErr: &models.DuplicateReceiptError{}}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/dup-empty")

	waitFor(t, time.Second, "entry to reach duplicate", func() bool {
		entry, ok := store.Get("http://nfce/dup-empty")
		return ok && entry.Status == models.StatusDuplicate
	})

	entry, _ := store.Get("http://nfce/dup-empty")
	if entry.ErrorMessage != "Receipt already processed" {
		t.Errorf("expected fallback duplicate message, got %q", entry.ErrorMessage)
	}
}

func TestManagerSubmitFailure(t *testing.T) {
	extractor := &fakeExtractor{extractErr: errors.New("connection refused")}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/unreachable")

	waitFor(t, time.Second, "entry to reach error", func() bool {
		entry, ok := store.Get("http://nfce/unreachable")
		return ok && entry.Status == models.StatusError
	})
}

func TestManagerBackendError(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  7,
		statusSeq: []statusStep{{resp: errorStatus(7, "Invalid NFC-e URL")}},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/bad")

	waitFor(t, time.Second, "entry to reach error", func() bool {
		entry, ok := store.Get("http://nfce/bad")
		return ok && entry.Status == models.StatusError
	})

	entry, _ := store.Get("http://nfce/bad")
	if entry.ErrorMessage != "Invalid NFC-e URL" {
		t.Errorf("expected backend error message, got %q", entry.ErrorMessage)
	}
}

func TestManagerDebounceRejectsRapidResubmission(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  1,
		statusSeq: []statusStep{{resp: processingStatus(1)}},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	if !manager.Submit("http://nfce/a") {
		t.Fatal("first submission should be admitted")
	}
	if manager.Submit("http://nfce/a") {
		t.Error("immediate resubmission should be rejected")
	}
	if len(store.List()) != 1 {
		t.Errorf("expected one entry, got %d", len(store.List()))
	}
}

func TestManagerIndependentURLsAreAllAdmitted(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  1,
		statusSeq: []statusStep{{resp: processingStatus(1)}},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("http://nfce/receipt-%d", i)
		if !manager.Submit(url) {
			t.Errorf("distinct URL %s should be admitted", url)
		}
	}
	if len(store.List()) != 5 {
		t.Errorf("expected 5 entries, got %d", len(store.List()))
	}
}

func TestManagerPollCeilingYieldsTimeout(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  9,
		statusSeq: []statusStep{{resp: processingStatus(9)}},
	}
	cfg := testConfig()
	cfg.MaxPollAttempts = 3
	store := NewStore()
	manager := NewManager(cfg, store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/slow")

	waitFor(t, time.Second, "entry to time out", func() bool {
		entry, ok := store.Get("http://nfce/slow")
		return ok && entry.Status == models.StatusError
	})

	entry, _ := store.Get("http://nfce/slow")
	if entry.ErrorMessage != "Timeout" {
		t.Errorf("expected Timeout message, got %q", entry.ErrorMessage)
	}

	snapshot := manager.Metrics().GetSnapshot()
	if snapshot.SuccessfulRequests != 0 {
		t.Errorf("a timed-out extraction must not count as successful, got %d", snapshot.SuccessfulRequests)
	}
	if snapshot.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", snapshot.FailedRequests)
	}
}

func TestManagerBackendErrorCountsAsFailedRequest(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  7,
		statusSeq: []statusStep{{resp: errorStatus(7, "Invalid NFC-e URL")}},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/bad-metrics")

	waitFor(t, time.Second, "entry to reach error", func() bool {
		entry, ok := store.Get("http://nfce/bad-metrics")
		return ok && entry.Status == models.StatusError
	})

	snapshot := manager.Metrics().GetSnapshot()
	if snapshot.SuccessfulRequests != 0 {
		t.Errorf("a failed extraction must not count as successful, got %d", snapshot.SuccessfulRequests)
	}
	if snapshot.FailedRequests != 1 {
		t.Errorf("expected 1 failed request, got %d", snapshot.FailedRequests)
	}
}

func TestManagerTransientPollFailureIsRetried(t *testing.T) {
	extractor := &fakeExtractor{
		recordID: 5,
		statusSeq: []statusStep{
			{err: errors.New("gateway timeout")},
			{err: errors.New("gateway timeout")},
			{resp: successStatus(5, "Market B", 3)},
		},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/flaky")

	waitFor(t, time.Second, "entry to reach success", func() bool {
		entry, ok := store.Get("http://nfce/flaky")
		return ok && entry.Status == models.StatusSuccess
	})

	extractor.mu.Lock()
	calls := extractor.statusCalls
	extractor.mu.Unlock()
	if calls < 3 {
		t.Errorf("failed polls should consume attempts and continue, got %d calls", calls)
	}
}

func TestManagerDismissStopsRunner(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  11,
		statusSeq: []statusStep{{resp: processingStatus(11)}},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/dismiss-me")

	waitFor(t, time.Second, "entry to start processing", func() bool {
		entry, ok := store.Get("http://nfce/dismiss-me")
		return ok && entry.Status == models.StatusProcessing
	})

	if !manager.Dismiss("http://nfce/dismiss-me") {
		t.Fatal("dismiss of a queued entry should succeed")
	}

	// The runner must notice the missing entry and never resurrect it.
	time.Sleep(5 * testConfig().PollInterval)
	if store.Contains("http://nfce/dismiss-me") {
		t.Error("dismissed entry reappeared in the queue")
	}

	if manager.Dismiss("http://nfce/dismiss-me") {
		t.Error("dismissing an absent entry should be a no-op")
	}
}

func TestManagerDismissByRecordID(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  77,
		statusSeq: []statusStep{{resp: processingStatus(77)}},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/by-record")

	waitFor(t, time.Second, "record id to be assigned", func() bool {
		entry, ok := store.Get("http://nfce/by-record")
		return ok && entry.RecordID == 77
	})

	if !manager.Dismiss("77") {
		t.Error("dismiss by record id should resolve the entry")
	}
	if store.Contains("http://nfce/by-record") {
		t.Error("entry should be removed")
	}
}

func TestManagerStaleRemovalSparesResubmittedEntry(t *testing.T) {
	extractor := &fakeExtractor{
		extractOnceErr: errors.New("backend unavailable"),
		recordID:       8,
		statusSeq:      []statusStep{{resp: processingStatus(8)}},
	}
	cfg := testConfig()
	cfg.RemovalDelay = 150 * time.Millisecond
	cfg.MaxPollAttempts = 1000
	store := NewStore()
	manager := NewManager(cfg, store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/again")
	waitFor(t, time.Second, "first attempt to fail", func() bool {
		entry, ok := store.Get("http://nfce/again")
		return ok && entry.Status == models.StatusError
	})

	// The failed entry now has a removal timer armed. Dismiss it, wait out
	// the debounce window, and resubmit the same URL.
	if !manager.Dismiss("http://nfce/again") {
		t.Fatal("dismiss of the failed entry should succeed")
	}
	time.Sleep(cfg.DebounceWindow + 20*time.Millisecond)
	if !manager.Submit("http://nfce/again") {
		t.Fatal("resubmission after the debounce window should be admitted")
	}

	// Outlive the first entry's removal timer; it must not touch the
	// fresh entry.
	time.Sleep(cfg.RemovalDelay)
	entry, ok := store.Get("http://nfce/again")
	if !ok {
		t.Fatal("removal timer of the dismissed entry deleted the resubmitted one")
	}
	if !entry.Status.IsActive() {
		t.Errorf("resubmitted entry should still be in the pipeline, got %s", entry.Status)
	}
	if entry.RecordID != 8 {
		t.Errorf("resubmitted entry should carry its own record id, got %d", entry.RecordID)
	}
}

func TestManagerReconcileMergesUnknownRecords(t *testing.T) {
	known := "http://nfce/known"
	unknown := "http://nfce/unknown"
	marketName := "Market C"
	extractor := &fakeExtractor{
		recordID:  1,
		statusSeq: []statusStep{{resp: processingStatus(0)}},
		inflight: []models.NFCeStatusResponse{
			{RecordID: 1, Status: models.RemoteStatusProcessing, NFCeURL: known},
			{RecordID: 2, Status: models.RemoteStatusProcessing, NFCeURL: unknown, MarketName: &marketName},
		},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit(known)
	waitFor(t, time.Second, "known entry to get its record id", func() bool {
		entry, ok := store.Get(known)
		return ok && entry.RecordID == 1
	})

	if err := manager.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	entry, ok := store.Get(unknown)
	if !ok {
		t.Fatal("unknown in-flight record should be merged into the queue")
	}
	if entry.Status != models.StatusProcessing {
		t.Errorf("merged entry should start as processing, got %s", entry.Status)
	}
	if entry.RecordID != 2 {
		t.Errorf("merged entry should carry the backend record id, got %d", entry.RecordID)
	}

	// Records already represented locally stay authoritative.
	knownEntries := 0
	for _, e := range store.List() {
		if e.URL == known {
			knownEntries++
		}
	}
	if knownEntries != 1 {
		t.Errorf("reconcile must not duplicate known entries, got %d", knownEntries)
	}
}

func TestManagerActiveCountTracksPipeline(t *testing.T) {
	extractor := &fakeExtractor{
		recordID:  3,
		statusSeq: []statusStep{{resp: processingStatus(3)}},
	}
	store := NewStore()
	manager := NewManager(testConfig(), store, extractor)
	defer manager.Close()

	manager.Submit("http://nfce/count-1")
	if manager.ActiveCount() != 1 {
		t.Errorf("expected 1 active entry, got %d", manager.ActiveCount())
	}
}
