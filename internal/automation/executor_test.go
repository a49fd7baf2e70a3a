package automation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aliraza-monster/crosspost-automation/internal/joblog"
	"github.com/Aliraza-monster/crosspost-automation/internal/models"
	"github.com/Aliraza-monster/crosspost-automation/internal/publisher"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/Aliraza-monster/crosspost-automation/internal/source"
	"github.com/Aliraza-monster/crosspost-automation/internal/utils"
	"github.com/rs/zerolog"
)

// fakeJobs is an in-memory JobRepository keyed by job id.
type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]models.AutomationJob
}

func newFakeJobs(jobs ...models.AutomationJob) *fakeJobs {
	f := &fakeJobs{jobs: make(map[string]models.AutomationJob)}
	for _, job := range jobs {
		f.jobs[job.ID] = job
	}
	return f
}

func (f *fakeJobs) get(jobID string) models.AutomationJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[jobID]
}

func (f *fakeJobs) Create(ctx context.Context, job models.AutomationJob) (models.AutomationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) GetByID(ctx context.Context, jobID string) (models.AutomationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return models.AutomationJob{}, repository.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) GetForUser(ctx context.Context, userID, jobID string) (models.AutomationJob, error) {
	job, err := f.GetByID(ctx, jobID)
	if err != nil || job.UserID != userID {
		return models.AutomationJob{}, repository.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) ListByUser(ctx context.Context, userID string) ([]models.AutomationJob, error) {
	return nil, nil
}

func (f *fakeJobs) ListDue(ctx context.Context, now time.Time, limit int) ([]models.AutomationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.AutomationJob
	for _, job := range f.jobs {
		if job.Status != models.JobStatusActive {
			continue
		}
		if job.NextRunAt == nil || !job.NextRunAt.After(now) {
			due = append(due, job)
		}
	}
	return due, nil
}

func (f *fakeJobs) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (f *fakeJobs) SetStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return repository.ErrJobNotFound
	}
	job.Status = status
	f.jobs[jobID] = job
	return nil
}

func (f *fakeJobs) UpdateNextRun(ctx context.Context, jobID string, nextRunAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return repository.ErrJobNotFound
	}
	job.NextRunAt = &nextRunAt
	f.jobs[jobID] = job
	return nil
}

func (f *fakeJobs) MarkPosted(ctx context.Context, jobID, postedURL string, postedAt, nextRunAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return repository.ErrJobNotFound
	}
	job.NextMediaIndex++
	job.LastPostedURL = &postedURL
	job.LastPostedAt = &postedAt
	job.NextRunAt = &nextRunAt
	job.Status = models.JobStatusActive
	f.jobs[jobID] = job
	return nil
}

// fakeLedger mirrors the balance-vs-ledger invariant of the real
// repository: every adjustment appends an entry, and a debit below zero
// is refused.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []repository.AdjustParams

	// gateBalance, when set, is reported by GetBalance instead of the real
	// balance. It simulates another consumer draining tokens between the
	// gate read and the debit.
	gateBalance *int64
}

func newFakeLedger(balances map[string]int64) *fakeLedger {
	return &fakeLedger{balances: balances}
}

func (f *fakeLedger) GetBalance(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gateBalance != nil {
		return *f.gateBalance, nil
	}
	return f.balances[userID], nil
}

func (f *fakeLedger) Adjust(ctx context.Context, params repository.AdjustParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	newBalance := f.balances[params.UserID] + params.DeltaTokens
	if newBalance < 0 {
		return 0, repository.ErrInsufficientBalance
	}
	f.balances[params.UserID] = newBalance
	f.entries = append(f.entries, params)
	return newBalance, nil
}

func (f *fakeLedger) ApprovePaymentRequest(ctx context.Context, requestID, adminUserID string) (models.PaymentRequest, int64, error) {
	return models.PaymentRequest{}, 0, nil
}

func (f *fakeLedger) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.TokenLedgerEntry, error) {
	return nil, nil
}

type recordedLog struct {
	level    models.LogLevel
	jobID    string
	message  string
	metadata map[string]interface{}
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (f *fakeRecorder) Info(ctx context.Context, jobID, message string, metadata map[string]interface{}) {
	f.append(models.LogLevelInfo, jobID, message, metadata)
}

func (f *fakeRecorder) Warn(ctx context.Context, jobID, message string, metadata map[string]interface{}) {
	f.append(models.LogLevelWarn, jobID, message, metadata)
}

func (f *fakeRecorder) Error(ctx context.Context, jobID, message string, metadata map[string]interface{}) {
	f.append(models.LogLevelError, jobID, message, metadata)
}

func (f *fakeRecorder) append(level models.LogLevel, jobID, message string, metadata map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedLog{level: level, jobID: jobID, message: message, metadata: metadata})
}

func (f *fakeRecorder) last(t *testing.T) recordedLog {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.entries)
	return f.entries[len(f.entries)-1]
}

// fakeSource serves canned listings. When dir is set, Download writes a
// real file there so cleanup behavior is observable on disk.
type fakeSource struct {
	items       []source.MediaItem
	dir         string
	listErr     error
	downloadErr error
	listed      int
	downloads   []string
}

func (f *fakeSource) List(ctx context.Context, sourceURL string) ([]source.MediaItem, error) {
	f.listed++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeSource) Download(ctx context.Context, url, baseName string) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	f.downloads = append(f.downloads, url)
	if f.dir == "" {
		return "/tmp/" + baseName + ".mp4", nil
	}
	path := filepath.Join(f.dir, baseName+".mp4")
	if err := os.WriteFile(path, []byte("video"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

type fakePublisher struct {
	uploads []publisher.UploadParams
	err     error
}

func (f *fakePublisher) UploadVideo(ctx context.Context, params publisher.UploadParams) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, params)
	return fmt.Sprintf("fbvid-%d", len(f.uploads)), nil
}

var _ joblog.Recorder = (*fakeRecorder)(nil)
var _ repository.JobRepository = (*fakeJobs)(nil)
var _ repository.LedgerRepository = (*fakeLedger)(nil)
var _ source.Source = (*fakeSource)(nil)
var _ publisher.Publisher = (*fakePublisher)(nil)

func testEncKey(t *testing.T) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("CROSSPOST_ENC_KEY", base64.StdEncoding.EncodeToString(key))
}

func encryptedToken(t *testing.T, plain string) string {
	t.Helper()
	enc, err := utils.EncryptCredential(plain)
	require.NoError(t, err)
	return enc
}

func testJob(t *testing.T, cursor int) models.AutomationJob {
	return models.AutomationJob{
		ID:                "job-1",
		UserID:            "user-1",
		Name:              "demo",
		SourcePlatform:    models.PlatformInstagram,
		SourceURL:         "https://www.instagram.com/demo/",
		FacebookUserToken: encryptedToken(t, "user-token"),
		FacebookPageID:    "page-1",
		FacebookPageName:  "Demo Page",
		FacebookPageToken: encryptedToken(t, "page-token"),
		NextMediaIndex:    cursor,
		Status:            models.JobStatusActive,
	}
}

func mediaItems(n int) []source.MediaItem {
	items := make([]source.MediaItem, 0, n)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		items = append(items, source.MediaItem{
			SourceID:  fmt.Sprintf("video-%d", i),
			URL:       fmt.Sprintf("https://example.com/video-%d", i),
			Title:     fmt.Sprintf("Video %d", i),
			CreatedAt: &at,
		})
	}
	return items
}

type executorFixture struct {
	jobs      *fakeJobs
	ledger    *fakeLedger
	recorder  *fakeRecorder
	source    *fakeSource
	publisher *fakePublisher
	executor  *Executor
}

func newExecutorFixture(t *testing.T, job models.AutomationJob, balance int64, src *fakeSource) *executorFixture {
	t.Helper()
	f := &executorFixture{
		jobs:      newFakeJobs(job),
		ledger:    newFakeLedger(map[string]int64{job.UserID: balance}),
		recorder:  &fakeRecorder{},
		source:    src,
		publisher: &fakePublisher{},
	}
	f.executor = NewExecutor(f.jobs, f.ledger, f.recorder, f.source, f.publisher, NewInFlight(), zerolog.Nop())
	return f
}

func TestExecutor_PublishesNextItemAndAdvances(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 0), 5, &fakeSource{items: mediaItems(3)})

	before := time.Now()
	require.NoError(t, f.executor.Run(context.Background(), "job-1"))

	// Oldest unpublished item first.
	require.Equal(t, []string{"https://example.com/video-0"}, f.source.downloads)
	require.Len(t, f.publisher.uploads, 1)
	require.Equal(t, "page-1", f.publisher.uploads[0].PageID)
	require.Equal(t, "page-token", f.publisher.uploads[0].PageToken)
	require.Equal(t, "Video 0", f.publisher.uploads[0].Title)

	job := f.jobs.get("job-1")
	require.Equal(t, 1, job.NextMediaIndex)
	require.Equal(t, models.JobStatusActive, job.Status)
	require.NotNil(t, job.LastPostedURL)
	require.Equal(t, "https://example.com/video-0", *job.LastPostedURL)
	require.NotNil(t, job.NextRunAt)
	require.WithinDuration(t, before.Add(24*time.Hour), *job.NextRunAt, time.Minute)

	balance, _ := f.ledger.GetBalance(context.Background(), "user-1")
	require.Equal(t, int64(4), balance)
	require.Len(t, f.ledger.entries, 1)
	require.Equal(t, int64(-1), f.ledger.entries[0].DeltaTokens)
	require.Equal(t, `Token used for job "demo"`, f.ledger.entries[0].Reason)
	require.Equal(t, "job-1", f.ledger.entries[0].Metadata["job_id"])

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelInfo, last.level)
	require.Equal(t, "Media published to the page successfully.", last.message)
	require.Equal(t, "fbvid-1", last.metadata["facebook_video_id"])
	require.Equal(t, int64(4), last.metadata["tokens_remaining"])
}

func TestExecutor_ZeroBalancePausesWithoutListing(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 0), 0, &fakeSource{items: mediaItems(3)})

	require.NoError(t, f.executor.Run(context.Background(), "job-1"))

	require.Zero(t, f.source.listed)
	require.Empty(t, f.publisher.uploads)
	require.Empty(t, f.ledger.entries)

	job := f.jobs.get("job-1")
	require.Equal(t, models.JobStatusPaused, job.Status)
	require.Equal(t, 0, job.NextMediaIndex)

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelError, last.level)
	require.Equal(t, "Job paused because account token balance is 0.", last.message)
}

func TestExecutor_CaughtUpReschedulesIdle(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 3), 5, &fakeSource{items: mediaItems(3)})

	before := time.Now()
	require.NoError(t, f.executor.Run(context.Background(), "job-1"))

	require.Empty(t, f.source.downloads)
	require.Empty(t, f.publisher.uploads)
	require.Empty(t, f.ledger.entries)

	job := f.jobs.get("job-1")
	require.Equal(t, models.JobStatusActive, job.Status)
	require.Equal(t, 3, job.NextMediaIndex)
	require.NotNil(t, job.NextRunAt)
	require.WithinDuration(t, before.Add(24*time.Hour), *job.NextRunAt, time.Minute)

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelInfo, last.level)
	require.Equal(t, "No new source media to publish yet.", last.message)
}

func TestExecutor_EmptyListingWarnsAndBacksOff(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 0), 5, &fakeSource{})

	before := time.Now()
	require.NoError(t, f.executor.Run(context.Background(), "job-1"))

	job := f.jobs.get("job-1")
	require.Equal(t, models.JobStatusActive, job.Status)
	require.NotNil(t, job.NextRunAt)
	require.WithinDuration(t, before.Add(24*time.Hour), *job.NextRunAt, time.Minute)

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelWarn, last.level)
	require.Equal(t, "No media was found on the source account.", last.message)
}

func TestExecutor_DownloadFailureRetriesInAnHour(t *testing.T) {
	testEncKey(t)
	cause := errors.New("network unreachable")
	f := newExecutorFixture(t, testJob(t, 0), 5, &fakeSource{
		items:       mediaItems(3),
		downloadErr: cause,
	})

	before := time.Now()
	err := f.executor.Run(context.Background(), "job-1")
	require.ErrorIs(t, err, cause)

	require.Empty(t, f.publisher.uploads)
	require.Empty(t, f.ledger.entries)

	// The job stays active with a short backoff so the next tick retries.
	job := f.jobs.get("job-1")
	require.Equal(t, models.JobStatusActive, job.Status)
	require.Equal(t, 0, job.NextMediaIndex)
	require.NotNil(t, job.NextRunAt)
	require.WithinDuration(t, before.Add(time.Hour), *job.NextRunAt, time.Minute)

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelError, last.level)
	require.Equal(t, "Downloading the source media failed.", last.message)
	require.Equal(t, "network unreachable", last.metadata["error"])
}

func TestExecutor_DebitRacePausesWithoutAdvancing(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 0), 0, &fakeSource{items: mediaItems(3)})

	// The gate sees one token, but the real balance is already drained by
	// the time the debit runs.
	stale := int64(1)
	f.ledger.gateBalance = &stale

	require.NoError(t, f.executor.Run(context.Background(), "job-1"))

	// The upload already happened and stays published.
	require.Len(t, f.publisher.uploads, 1)
	require.Empty(t, f.ledger.entries)

	job := f.jobs.get("job-1")
	require.Equal(t, models.JobStatusPaused, job.Status)
	require.Equal(t, 0, job.NextMediaIndex)

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelError, last.level)
	require.Equal(t, "Job paused because tokens were exhausted during the run.", last.message)
}

func TestExecutor_ConcurrentRunSkipped(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 0), 5, &fakeSource{items: mediaItems(3)})

	require.True(t, f.executor.inflight.TryAcquire("job-1"))
	defer f.executor.inflight.Release("job-1")

	err := f.executor.Run(context.Background(), "job-1")
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Zero(t, f.source.listed)
}

func TestExecutor_MissingJobSurfacesNotFound(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 0), 5, &fakeSource{items: mediaItems(3)})

	err := f.executor.Run(context.Background(), "ghost")
	require.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestLedgerReplayRecomputesBalance(t *testing.T) {
	ledger := newFakeLedger(map[string]int64{"user-1": 0})
	ctx := context.Background()

	for _, delta := range []int64{10, -1, -1, 5} {
		_, err := ledger.Adjust(ctx, repository.AdjustParams{
			UserID:      "user-1",
			DeltaTokens: delta,
			Reason:      "replay",
		})
		require.NoError(t, err)
	}

	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(13), balance)

	// Replaying the recorded entries from zero yields the same balance.
	var replayed int64
	for _, entry := range ledger.entries {
		replayed += entry.DeltaTokens
	}
	require.Equal(t, balance, replayed)
}

func TestExecutor_RepeatedRunsDrainBalance(t *testing.T) {
	testEncKey(t)
	f := newExecutorFixture(t, testJob(t, 0), 2, &fakeSource{items: mediaItems(5)})
	ctx := context.Background()

	require.NoError(t, f.executor.Run(ctx, "job-1"))
	require.NoError(t, f.executor.Run(ctx, "job-1"))

	job := f.jobs.get("job-1")
	require.Equal(t, 2, job.NextMediaIndex)
	require.Equal(t, []string{
		"https://example.com/video-0",
		"https://example.com/video-1",
	}, f.source.downloads)

	// The third run hits the zero-balance gate and pauses instead of
	// publishing.
	require.NoError(t, f.executor.Run(ctx, "job-1"))
	job = f.jobs.get("job-1")
	require.Equal(t, models.JobStatusPaused, job.Status)
	require.Equal(t, 2, job.NextMediaIndex)
	require.Len(t, f.publisher.uploads, 2)

	// Balance equals the sum of the ledger deltas applied to the start.
	var sum int64
	for _, entry := range f.ledger.entries {
		sum += entry.DeltaTokens
	}
	balance, _ := f.ledger.GetBalance(ctx, "user-1")
	require.Equal(t, int64(2)+sum, balance)
	require.Equal(t, int64(0), balance)
}

func TestExecutor_RemovesTempFileAfterSuccess(t *testing.T) {
	testEncKey(t)
	src := &fakeSource{dir: t.TempDir(), items: mediaItems(3)}
	f := newExecutorFixture(t, testJob(t, 0), 5, src)

	require.NoError(t, f.executor.Run(context.Background(), "job-1"))
	require.Len(t, f.publisher.uploads, 1)

	left, err := os.ReadDir(src.dir)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestExecutor_RemovesTempFileAfterPublishFailure(t *testing.T) {
	testEncKey(t)
	src := &fakeSource{dir: t.TempDir(), items: mediaItems(3)}
	f := newExecutorFixture(t, testJob(t, 0), 5, src)
	cause := errors.New("graph api 500")
	f.publisher.err = cause

	before := time.Now()
	err := f.executor.Run(context.Background(), "job-1")
	require.ErrorIs(t, err, cause)

	// The downloaded file is gone even though the run failed mid-pipeline.
	left, err := os.ReadDir(src.dir)
	require.NoError(t, err)
	require.Empty(t, left)

	require.Empty(t, f.ledger.entries)
	job := f.jobs.get("job-1")
	require.Equal(t, models.JobStatusActive, job.Status)
	require.NotNil(t, job.NextRunAt)
	require.WithinDuration(t, before.Add(time.Hour), *job.NextRunAt, time.Minute)

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelError, last.level)
	require.Equal(t, "Publishing to the page failed.", last.message)
}

func TestExecutor_DecryptFailurePausesJob(t *testing.T) {
	testEncKey(t)
	job := testJob(t, 0)
	job.FacebookPageToken = "not-a-sealed-credential"
	f := newExecutorFixture(t, job, 5, &fakeSource{items: mediaItems(3)})

	err := f.executor.Run(context.Background(), "job-1")
	require.Error(t, err)

	require.Empty(t, f.publisher.uploads)
	require.Empty(t, f.ledger.entries)

	// A credential that cannot decrypt is not transient: pause instead
	// of retrying hourly.
	got := f.jobs.get("job-1")
	require.Equal(t, models.JobStatusPaused, got.Status)
	require.Equal(t, 0, got.NextMediaIndex)
	require.Nil(t, got.NextRunAt)

	last := f.recorder.last(t)
	require.Equal(t, models.LogLevelError, last.level)
	require.Equal(t, "Could not decrypt page credentials.", last.message)
}
