package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedAnalyzer blocks each Analyze call until release is closed or the
// context ends.
type gatedAnalyzer struct {
	release chan struct{}
	err     error
	mu      sync.Mutex
	calls   int
}

func (a *gatedAnalyzer) Analyze(ctx context.Context, shop string, scanType domain.ScanType) (*domain.MappingRecord, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}
	return &domain.MappingRecord{
		ID:            "mapping_1",
		ShopDomain:    shop,
		FilesAnalyzed: []string{"a.liquid", "b.liquid"},
		TotalFiles:    3,
		Mapping:       domain.ElementMapping{"product_title": {}},
	}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []domain.ScanJobStatus
}

func (p *recordingPublisher) Publish(job *domain.ScanJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, job.Status)
}

func (p *recordingPublisher) seen() []domain.ScanJobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ScanJobStatus(nil), p.statuses...)
}

func waitForStatus(t *testing.T, m *ScanJobManager, shop string, want domain.ScanJobStatus) *domain.ScanJob {
	t.Helper()
	var job *domain.ScanJob
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Status(context.Background(), shop)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestScanJobCompletes(t *testing.T) {
	st := newStores()
	analyzer := &gatedAnalyzer{release: make(chan struct{})}
	pub := &recordingPublisher{}
	m := NewScanJobManager(analyzer, st.jobs, pub, zerolog.Nop())
	defer m.Shutdown(context.Background())

	job, started, err := m.Start(context.Background(), testShop, "api")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, domain.ScanJobQueued, job.Status)

	waitForStatus(t, m, testShop, domain.ScanJobRunning)
	close(analyzer.release)
	done := waitForStatus(t, m, testShop, domain.ScanJobCompleted)

	assert.Equal(t, "mapping_1", done.MappingID)
	assert.Equal(t, 1, done.ElementsDetected)
	assert.Equal(t, 2, done.FilesAnalyzed)
	assert.Equal(t, 3, done.TotalFiles)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	require.Eventually(t, func() bool { return len(pub.seen()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.ScanJobStatus{domain.ScanJobQueued, domain.ScanJobRunning, domain.ScanJobCompleted}, pub.seen())
}

func TestScanJobOnePerShop(t *testing.T) {
	st := newStores()
	analyzer := &gatedAnalyzer{release: make(chan struct{})}
	m := NewScanJobManager(analyzer, st.jobs, nil, zerolog.Nop())
	defer m.Shutdown(context.Background())
	ctx := context.Background()

	first, started, err := m.Start(ctx, testShop, "api")
	require.NoError(t, err)
	require.True(t, started)

	second, started, err := m.Start(ctx, testShop, "webhook")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, first.ID, second.ID)

	_, started, err = m.Start(ctx, "other-store.myshopify.com", "api")
	require.NoError(t, err)
	assert.True(t, started)

	close(analyzer.release)
	waitForStatus(t, m, testShop, domain.ScanJobCompleted)

	third, started, err := m.Start(ctx, testShop, "api")
	require.NoError(t, err)
	assert.True(t, started)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestScanJobRecordsFailure(t *testing.T) {
	st := newStores()
	analyzer := &gatedAnalyzer{release: make(chan struct{}), err: errors.New("no main theme found")}
	close(analyzer.release)
	m := NewScanJobManager(analyzer, st.jobs, nil, zerolog.Nop())
	defer m.Shutdown(context.Background())

	_, _, err := m.Start(context.Background(), testShop, "api")
	require.NoError(t, err)

	job := waitForStatus(t, m, testShop, domain.ScanJobFailed)
	assert.Equal(t, "no main theme found", job.Error)

	stored, err := st.jobs.GetScanJob(context.Background(), testShop)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanJobFailed, stored.Status)
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	st := newStores()
	analyzer := &gatedAnalyzer{release: make(chan struct{})}
	m := NewScanJobManager(analyzer, st.jobs, nil, zerolog.Nop())

	_, _, err := m.Start(context.Background(), testShop, "api")
	require.NoError(t, err)
	waitForStatus(t, m, testShop, domain.ScanJobRunning)

	require.NoError(t, m.Shutdown(context.Background()))

	stored, err := st.jobs.GetScanJob(context.Background(), testShop)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanJobCanceled, stored.Status)

	_, _, err = m.Start(context.Background(), testShop, "api")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestStatusUnknownShop(t *testing.T) {
	m := NewScanJobManager(&gatedAnalyzer{}, newStores().jobs, nil, zerolog.Nop())
	defer m.Shutdown(context.Background())

	_, err := m.Status(context.Background(), testShop)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// holdTerminalSave blocks the save of a finished job until proceed closes
type holdTerminalSave struct {
	ports.ScanJobRepository
	held    chan struct{}
	proceed chan struct{}
}

func (r *holdTerminalSave) SaveScanJob(ctx context.Context, job *domain.ScanJob) error {
	if !job.Active() {
		close(r.held)
		<-r.proceed
	}
	return r.ScanJobRepository.SaveScanJob(ctx, job)
}

func TestStatusReportsFinishedJobBeforeItIsStored(t *testing.T) {
	st := newStores()
	repo := &holdTerminalSave{ScanJobRepository: st.jobs, held: make(chan struct{}), proceed: make(chan struct{})}
	analyzer := &gatedAnalyzer{release: make(chan struct{})}
	m := NewScanJobManager(analyzer, repo, nil, zerolog.Nop())
	defer m.Shutdown(context.Background())

	_, _, err := m.Start(context.Background(), testShop, "api")
	require.NoError(t, err)
	waitForStatus(t, m, testShop, domain.ScanJobRunning)
	close(analyzer.release)

	select {
	case <-repo.held:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal save never happened")
	}
	stored, err := st.jobs.GetScanJob(context.Background(), testShop)
	require.NoError(t, err)
	require.Equal(t, domain.ScanJobRunning, stored.Status)

	job, err := m.Status(context.Background(), testShop)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanJobCompleted, job.Status)

	close(repo.proceed)
	waitForStatus(t, m, testShop, domain.ScanJobCompleted)
}
