package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/queue"
)

// SourceDeadlines labels items created by the deadline scanner.
const SourceDeadlines = "deadlines"

// urgentWindow is how close a deadline must be to be queued as critical.
const urgentWindow = 24 * time.Hour

// Deadline is an open case deadline.
type Deadline struct {
	ID         string
	CourtID    string
	CaseID     *string
	CaseNumber *string
	CaseType   domain.CaseType
	Title      string
	DueAt      time.Time
}

// DeadlineSource lists open deadlines due before a cutoff that have never been queued.
type DeadlineSource interface {
	ListUnqueuedDeadlines(ctx context.Context, dueBefore time.Time, limit int) ([]Deadline, error)
}

// ScannerConfig contains deadline scanner configuration.
type ScannerConfig struct {
	PollInterval time.Duration
	Horizon      time.Duration
	BatchSize    int
}

// DefaultScannerConfig returns default scanner configuration.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		PollInterval: time.Minute,
		Horizon:      72 * time.Hour,
		BatchSize:    100,
	}
}

// DeadlineScanner periodically queues deadline alerts for approaching deadlines.
type DeadlineScanner struct {
	config   ScannerConfig
	source   DeadlineSource
	enqueuer *Enqueuer
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDeadlineScanner creates a new deadline scanner.
func NewDeadlineScanner(config ScannerConfig, source DeadlineSource, enqueuer *Enqueuer) *DeadlineScanner {
	return &DeadlineScanner{
		config:   config,
		source:   source,
		enqueuer: enqueuer,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the scanner goroutine.
func (s *DeadlineScanner) Start(ctx context.Context) {
	slog.Info("starting deadline scanner",
		"poll_interval", s.config.PollInterval,
		"horizon", s.config.Horizon,
		"batch_size", s.config.BatchSize,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the scanner.
func (s *DeadlineScanner) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("deadline scanner stopped")
}

func (s *DeadlineScanner) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil {
				slog.Error("deadline scan failed", "error", err)
			}
		}
	}
}

// ScanOnce queues one batch of approaching deadlines and returns how many items it created.
func (s *DeadlineScanner) ScanOnce(ctx context.Context) (int, error) {
	now := s.now()

	deadlines, err := s.source.ListUnqueuedDeadlines(ctx, now.Add(s.config.Horizon), s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list deadlines: %w", err)
	}

	created := 0
	for _, d := range deadlines {
		courtID, input := deadlineInput(d, now)
		_, ok, err := s.enqueuer.Ensure(ctx, SourceDeadlines, courtID, input)
		if err != nil {
			slog.Error("failed to queue deadline alert",
				"deadline_id", d.ID,
				"court_id", d.CourtID,
				"error", err,
			)
			continue
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		slog.Debug("queued deadline alerts", "count", created)
	}
	return created, nil
}

func deadlineInput(d Deadline, now time.Time) (string, queue.CreateInput) {
	priority := domain.PriorityHigh
	if d.DueAt.Sub(now) <= urgentWindow {
		priority = domain.PriorityCritical
	}

	title := "Deadline approaching: " + d.Title
	if d.CaseNumber != nil && *d.CaseNumber != "" {
		title = fmt.Sprintf("Deadline approaching in %s: %s", *d.CaseNumber, d.Title)
	}

	return d.CourtID, queue.CreateInput{
		QueueType:  domain.QueueTypeDeadlineAlert,
		Priority:   priority,
		Title:      title,
		SourceType: domain.SourceTypeDeadline,
		SourceID:   d.ID,
		CaseID:     d.CaseID,
		CaseType:   d.CaseType,
		CaseNumber: d.CaseNumber,
		Metadata: domain.Metadata{
			"due_at": d.DueAt.UTC().Format(time.RFC3339),
		},
	}
}
