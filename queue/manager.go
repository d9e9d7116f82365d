package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/shared"
)

// Extractor is the slice of the remote NFC-e backend the queue needs.
type Extractor interface {
	// Extract submits a receipt URL for async extraction. A duplicate
	// receipt surfaces as *models.DuplicateReceiptError.
	Extract(ctx context.Context, url string) (*models.ExtractResponse, error)
	// Status polls the state of a previously submitted extraction.
	Status(ctx context.Context, recordID int) (*models.NFCeStatusResponse, error)
	// Processing returns the backend's snapshot of in-flight extractions.
	Processing(ctx context.Context) ([]models.NFCeStatusResponse, error)
}

// Config holds the queue timing knobs. Production uses DefaultConfig;
// tests shrink the durations.
type Config struct {
	DebounceWindow  time.Duration // reject resubmission of a URL within this window
	RecencyHorizon  time.Duration // forget submission timestamps older than this
	PollInterval    time.Duration // delay between status polls
	MaxPollAttempts int           // poll ceiling before giving up with a timeout
	RemovalDelay    time.Duration // how long terminal entries linger before cleanup
}

// DefaultConfig returns the production timing configuration.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:  3 * time.Second,
		RecencyHorizon:  60 * time.Second,
		PollInterval:    2 * time.Second,
		MaxPollAttempts: 60,
		RemovalDelay:    5 * time.Second,
	}
}

// Manager owns the processing queue: it gates submissions, runs one
// goroutine per admitted entry through the extraction lifecycle, and
// cleans up terminal entries after a grace period.
type Manager struct {
	cfg       Config
	store     *Store
	extractor Extractor
	metrics   *shared.ServiceMetrics

	gateMu  sync.Mutex
	recency *recencyTracker

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a queue manager over the given store and extractor.
func NewManager(cfg Config, store *Store, extractor Extractor) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		metrics:   shared.NewServiceMetrics("queue-manager"),
		recency:   newRecencyTracker(cfg.RecencyHorizon),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Store exposes the underlying observable store for read access and
// subscription.
func (m *Manager) Store() *Store {
	return m.store
}

// Metrics exposes the manager's metrics tracker.
func (m *Manager) Metrics() *shared.ServiceMetrics {
	return m.metrics
}

// Close stops all runner goroutines at their next wait point. Entries
// already in the store are left as-is.
func (m *Manager) Close() {
	m.cancel()
}

// Submit admits a scanned receipt URL into the queue and reports whether
// it was accepted. A URL is rejected while it sits inside the debounce
// window of its previous submission or while an entry for it is still in
// the queue. Admission appends the entry and starts its runner atomically
// with respect to other submissions.
func (m *Manager) Submit(url string) bool {
	m.gateMu.Lock()
	defer m.gateMu.Unlock()

	now := time.Now()
	log := logrus.WithFields(logrus.Fields{
		"component": "QueueManager",
		"url":       url,
	})

	if m.recency.WithinWindow(url, m.cfg.DebounceWindow, now) {
		m.metrics.IncrementCustomCounter("scans_debounced")
		log.Debug("Scan rejected by debounce window")
		return false
	}
	if m.store.Contains(url) {
		m.metrics.IncrementCustomCounter("scans_already_queued")
		log.Debug("Scan rejected, URL already in queue")
		return false
	}

	entry := models.QueueEntry{
		TraceID: uuid.New().String(),
		URL:     url,
		Status:  models.StatusQueued,
		AddedAt: now,
	}
	m.store.Append(entry)
	m.recency.Record(url, now)
	m.metrics.IncrementCustomCounter("scans_admitted")
	log.WithField("trace_id", entry.TraceID).Info("Scan admitted to processing queue")

	go m.run(entry)
	return true
}

// Dismiss removes an entry by URL or by its assigned record id. The
// entry's runner notices the missing entry at its next checkpoint and
// exits without further effect. Dismissing an unknown key is a no-op.
func (m *Manager) Dismiss(key string) bool {
	url := key
	if recordID, err := strconv.Atoi(key); err == nil {
		for _, entry := range m.store.List() {
			if entry.RecordID == recordID {
				url = entry.URL
				break
			}
		}
	}
	removed := m.store.Remove(url)
	if removed {
		m.metrics.IncrementCustomCounter("scans_dismissed")
		logrus.WithFields(logrus.Fields{
			"component": "QueueManager",
			"url":       url,
		}).Info("Queue entry dismissed")
	}
	return removed
}

// ActiveCount returns how many entries are still moving through the
// pipeline.
func (m *Manager) ActiveCount() int {
	return m.store.ActiveCount()
}

// Reconcile merges the backend's in-flight extraction snapshot into the
// queue. Records already known locally are left untouched; unknown ones
// are appended in processing state and polled to completion. Intended for
// startup, when earlier submissions may have outlived a restart.
func (m *Manager) Reconcile(ctx context.Context) error {
	records, err := m.extractor.Processing(ctx)
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryNetwork, "RECONCILE_FETCH", "queue-manager", "reconcile", true)
	}

	log := logrus.WithField("component", "QueueManager")
	merged := 0
	for _, record := range records {
		if record.NFCeURL == "" || m.hasRecord(record.RecordID) {
			continue
		}

		m.gateMu.Lock()
		if m.store.Contains(record.NFCeURL) {
			m.gateMu.Unlock()
			continue
		}
		entry := models.QueueEntry{
			TraceID:  uuid.New().String(),
			URL:      record.NFCeURL,
			RecordID: record.RecordID,
			Status:   models.StatusProcessing,
			AddedAt:  time.Now(),
		}
		if record.MarketName != nil {
			entry.MarketName = *record.MarketName
		}
		entry.ProductsCount = record.ProductsCount
		m.store.Append(entry)
		m.recency.Record(entry.URL, entry.AddedAt)
		m.gateMu.Unlock()

		merged++
		go m.poll(entry.URL, entry.TraceID, entry.RecordID)
	}

	if merged > 0 {
		log.WithField("merged", merged).Info("Reconciled in-flight extractions from backend")
	}
	return nil
}

func (m *Manager) hasRecord(recordID int) bool {
	if recordID == 0 {
		return false
	}
	for _, entry := range m.store.List() {
		if entry.RecordID == recordID {
			return true
		}
	}
	return false
}

// run drives one admitted entry through submission and polling. All store
// mutations are keyed on the entry's trace id, so they double as liveness
// checks: once the entry is dismissed they stop applying, even when the
// same URL has since been resubmitted under a fresh trace id.
func (m *Manager) run(entry models.QueueEntry) {
	log := logrus.WithFields(logrus.Fields{
		"component": "QueueManager",
		"url":       entry.URL,
		"trace_id":  entry.TraceID,
	})

	if !m.store.Update(entry.TraceID, models.PatchStatus(models.StatusSending)) {
		return
	}

	started := time.Now()
	resp, err := m.extractor.Extract(m.ctx, entry.URL)
	if err != nil {
		var dup *models.DuplicateReceiptError
		if errors.As(err, &dup) {
			m.metrics.IncrementCustomCounter("scans_duplicate")
			log.WithField("processed_at", dup.ProcessedAt).Info("Receipt already processed by backend")
			message := dup.UserMessage()
			m.finish(entry.TraceID, models.EntryPatch{
				Status:        statusPtr(models.StatusDuplicate),
				ErrorMessage:  &message,
				ProductsCount: &dup.ProductsCount,
			})
			return
		}

		m.metrics.RecordRequest(false, time.Since(started))
		m.metrics.IncrementCustomCounter("scans_error")
		log.WithError(err).Warn("Extraction submission failed")
		message := "Failed to submit receipt"
		m.finish(entry.TraceID, models.EntryPatch{
			Status:       statusPtr(models.StatusError),
			ErrorMessage: &message,
		})
		return
	}

	log.WithField("record_id", resp.RecordID).Info("Extraction accepted by backend")
	if !m.store.Update(entry.TraceID, models.EntryPatch{
		Status:   statusPtr(models.StatusProcessing),
		RecordID: &resp.RecordID,
	}) {
		return
	}

	m.poll(entry.URL, entry.TraceID, resp.RecordID)
}

// poll watches one extraction until it reaches a terminal state or the
// attempt ceiling runs out. A failed poll consumes an attempt and the
// loop continues; the backend may recover on the next tick.
func (m *Manager) poll(url, traceID string, recordID int) {
	log := logrus.WithFields(logrus.Fields{
		"component": "QueueManager",
		"url":       url,
		"trace_id":  traceID,
		"record_id": recordID,
	})

	started := time.Now()
	for attempt := 1; attempt <= m.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.cfg.PollInterval):
		}
		if !m.store.ContainsTrace(traceID) {
			return
		}

		m.metrics.IncrementCustomCounter("status_polls")
		status, err := m.extractor.Status(m.ctx, recordID)
		if err != nil {
			m.metrics.IncrementCustomCounter("status_poll_failures")
			log.WithError(err).WithField("attempt", attempt).Warn("Status poll failed")
			continue
		}

		switch status.Status {
		case models.RemoteStatusSuccess:
			m.metrics.RecordRequest(true, time.Since(started))
			m.metrics.IncrementCustomCounter("scans_success")
			log.WithField("products_count", status.ProductsCount).Info("Extraction completed")
			patch := models.EntryPatch{
				Status:        statusPtr(models.StatusSuccess),
				ProductsCount: &status.ProductsCount,
			}
			if status.MarketName != nil {
				patch.MarketName = status.MarketName
			}
			m.finish(traceID, patch)
			return

		case models.RemoteStatusError:
			m.metrics.RecordRequest(false, time.Since(started))
			m.metrics.IncrementCustomCounter("scans_error")
			message := "Processing failed"
			if status.ErrorMessage != nil && *status.ErrorMessage != "" {
				message = *status.ErrorMessage
			}
			log.WithField("error_message", message).Warn("Extraction failed on backend")
			m.finish(traceID, models.EntryPatch{
				Status:       statusPtr(models.StatusError),
				ErrorMessage: &message,
			})
			return

		default:
			// Still processing; surface partial progress when present.
			patch := models.EntryPatch{ProductsCount: &status.ProductsCount}
			if status.MarketName != nil {
				patch.MarketName = status.MarketName
			}
			if !m.store.Update(traceID, patch) {
				return
			}
		}
	}

	m.metrics.RecordRequest(false, time.Since(started))
	m.metrics.IncrementCustomCounter("scans_timeout")
	log.Warn("Extraction did not complete before the poll ceiling")
	message := "Timeout"
	m.finish(traceID, models.EntryPatch{
		Status:       statusPtr(models.StatusError),
		ErrorMessage: &message,
	})
}

// finish applies a terminal patch and schedules the entry's removal after
// the lingering delay, so clients get a chance to render the outcome. Both
// the patch and the timer are keyed on the trace id: once the user
// dismisses the entry, or a resubmission of the same URL replaces it, the
// callback finds nothing to delete.
func (m *Manager) finish(traceID string, patch models.EntryPatch) {
	if !m.store.Update(traceID, patch) {
		return
	}
	time.AfterFunc(m.cfg.RemovalDelay, func() {
		m.store.RemoveByTrace(traceID)
	})
}

func statusPtr(s models.ProcessingStatus) *models.ProcessingStatus {
	return &s
}
