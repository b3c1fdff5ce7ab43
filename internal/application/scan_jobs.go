package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Analyzer runs one scan and stores its mapping
type Analyzer interface {
	Analyze(ctx context.Context, shop string, scanType domain.ScanType) (*domain.MappingRecord, error)
}

// JobPublisher receives every scan job state change
type JobPublisher interface {
	Publish(job *domain.ScanJob)
}

// JobPublishers fans one update out to several publishers
type JobPublishers []JobPublisher

func (ps JobPublishers) Publish(job *domain.ScanJob) {
	for _, p := range ps {
		p.Publish(job)
	}
}

// ErrManagerClosed is returned by Start after Shutdown
var ErrManagerClosed = errors.New("scan job manager is shut down")

// ScanJobManager runs full scans in the background, one per shop at a time.
// Jobs are children of the manager's context; Shutdown cancels and waits.
type ScanJobManager struct {
	analyzer  Analyzer
	jobs      ports.ScanJobRepository
	publisher JobPublisher
	logger    zerolog.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running map[string]*domain.ScanJob
}

// NewScanJobManager creates a manager; publisher may be nil
func NewScanJobManager(analyzer Analyzer, jobs ports.ScanJobRepository, publisher JobPublisher, logger zerolog.Logger) *ScanJobManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ScanJobManager{
		analyzer:  analyzer,
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]*domain.ScanJob),
	}
}

// Start queues a full scan for shop. When one is already active for the
// shop, that job is returned and started is false.
func (m *ScanJobManager) Start(ctx context.Context, shop, trigger string) (job *domain.ScanJob, started bool, err error) {
	if shop == "" {
		return nil, false, fmt.Errorf("%w: shop_domain is required", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false, ErrManagerClosed
	}
	if active, ok := m.running[shop]; ok {
		snapshot := *active
		m.mu.Unlock()
		return &snapshot, false, nil
	}
	job = &domain.ScanJob{
		ID:         "scan_" + uuid.NewString(),
		ShopDomain: shop,
		Status:     domain.ScanJobQueued,
		Trigger:    trigger,
		CreatedAt:  m.now(),
	}
	m.running[shop] = job
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.save(ctx, job); err != nil {
		m.mu.Lock()
		delete(m.running, shop)
		m.mu.Unlock()
		m.wg.Done()
		return nil, false, err
	}

	m.logger.Info().
		Str("shop", shop).
		Str("job_id", job.ID).
		Str("trigger", trigger).
		Msg("Scan job queued")

	snapshot := *job
	go m.run(job)
	return &snapshot, true, nil
}

// Status returns the latest job for shop, including finished ones
func (m *ScanJobManager) Status(ctx context.Context, shop string) (*domain.ScanJob, error) {
	m.mu.Lock()
	if active, ok := m.running[shop]; ok {
		snapshot := *active
		m.mu.Unlock()
		return &snapshot, nil
	}
	m.mu.Unlock()

	job, err := m.jobs.GetScanJob(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: no scan job for %s", domain.ErrNotFound, shop)
	}
	return job, nil
}

// Shutdown cancels running jobs and waits for them to record their state
func (m *ScanJobManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop scan jobs: %w", ctx.Err())
	}
}

func (m *ScanJobManager) run(job *domain.ScanJob) {
	defer m.wg.Done()
	logger := m.logger.With().Str("shop", job.ShopDomain).Str("job_id", job.ID).Logger()

	// state writes must land even after cancellation
	persistCtx := context.WithoutCancel(m.ctx)

	m.update(persistCtx, job, func(j *domain.ScanJob) {
		started := m.now()
		j.Status = domain.ScanJobRunning
		j.StartedAt = &started
	})

	record, err := m.analyzer.Analyze(m.ctx, job.ShopDomain, domain.ScanFull)

	m.update(persistCtx, job, func(j *domain.ScanJob) {
		completed := m.now()
		j.CompletedAt = &completed
		switch {
		case err == nil:
			j.Status = domain.ScanJobCompleted
			j.MappingID = record.ID
			j.ElementsDetected = len(record.Mapping)
			j.FilesAnalyzed = len(record.FilesAnalyzed)
			j.TotalFiles = record.TotalFiles
		case errors.Is(err, context.Canceled):
			j.Status = domain.ScanJobCanceled
			j.Error = err.Error()
		default:
			j.Status = domain.ScanJobFailed
			j.Error = err.Error()
		}
	})

	// drop the job only once its terminal state is stored so Status never
	// falls back to an older record
	m.mu.Lock()
	if m.running[job.ShopDomain] == job {
		delete(m.running, job.ShopDomain)
	}
	m.mu.Unlock()

	if err != nil {
		logger.Warn().Err(err).Msg("Scan job did not complete")
		return
	}
	logger.Info().Str("mapping_id", record.ID).Msg("Scan job completed")
}

// update mutates job under the lock then persists a snapshot. fn runs with
// m.mu held.
func (m *ScanJobManager) update(ctx context.Context, job *domain.ScanJob, fn func(*domain.ScanJob)) {
	m.mu.Lock()
	fn(job)
	snapshot := *job
	m.mu.Unlock()

	if err := m.save(ctx, &snapshot); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save scan job")
	}
}

func (m *ScanJobManager) save(ctx context.Context, job *domain.ScanJob) error {
	if err := m.jobs.SaveScanJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save scan job: %w", err)
	}
	if m.publisher != nil {
		published := *job
		m.publisher.Publish(&published)
	}
	return nil
}
