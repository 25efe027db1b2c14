package downloads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/transfer"
)

// Concurrency bounds for the worker pool
const (
	MinConcurrency     = 1
	MaxConcurrency     = 16
	DefaultConcurrency = 6

	// DefaultStallTimeout is how long an attempt may go without progress
	// before it is aborted as a transient failure
	DefaultStallTimeout = 30 * time.Second
)

// Config carries the manager's tunables, injected at startup by the
// configuration loader
type Config struct {
	ConcurrencyLimit int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ProgressInterval time.Duration
	StallTimeout     time.Duration
	DownloadDir      string
}

// EventSink receives every job's notifications for system-wide fan-out
// (WebSocket broadcast, history recording). Per-job observers register
// through Job.Subscribe instead.
type EventSink interface {
	OnJobProgress(models.ProgressUpdate)
	OnJobUpdate(models.JobSnapshot)
}

// Manager owns the bounded worker pool: a FIFO wait queue of submitted
// jobs and the set of currently running ones. All mutations of pool
// state happen under a single mutex so a slot can never be double
// scheduled or leaked.
type Manager struct {
	logger   *logrus.Logger
	selector *transfer.Selector
	caps     transfer.Capabilities
	policy   RetryPolicy

	progressInterval time.Duration
	stallTimeout     time.Duration
	downloadDir      string
	sink             EventSink

	mu      sync.Mutex
	limit   int
	waitq   []*Job
	running map[uuid.UUID]*Job
	jobs    map[uuid.UUID]*Job
}

// NewManager creates a download manager around the given transfer setup
func NewManager(cfg Config, selector *transfer.Selector, caps transfer.Capabilities, logger *logrus.Logger) *Manager {
	limit := cfg.ConcurrencyLimit
	if limit == 0 {
		limit = DefaultConcurrency
	}
	if limit < MinConcurrency {
		limit = MinConcurrency
	}
	if limit > MaxConcurrency {
		limit = MaxConcurrency
	}

	policy := RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
	}
	if policy.MaxRetries == 0 {
		policy.MaxRetries = DefaultMaxRetries
	}
	if policy.BaseDelay == 0 {
		policy.BaseDelay = DefaultRetryBaseDelay
	}
	if policy.MaxDelay == 0 {
		policy.MaxDelay = DefaultRetryMaxDelay
	}

	stall := cfg.StallTimeout
	if stall == 0 {
		stall = DefaultStallTimeout
	}

	return &Manager{
		logger:           logger,
		selector:         selector,
		caps:             caps,
		policy:           policy,
		progressInterval: cfg.ProgressInterval,
		stallTimeout:     stall,
		downloadDir:      cfg.DownloadDir,
		limit:            limit,
		running:          make(map[uuid.UUID]*Job),
		jobs:             make(map[uuid.UUID]*Job),
	}
}

// SetEventSink installs the global fan-out sink. Call before the first
// Submit.
func (m *Manager) SetEventSink(sink EventSink) {
	m.sink = sink
}

// Configure updates the concurrency bound for future scheduling
// decisions and returns the clamped effective value. Running jobs above
// a lowered bound finish naturally; the pool shrinks as they do.
func (m *Manager) Configure(limit int) int {
	if limit < MinConcurrency {
		limit = MinConcurrency
	}
	if limit > MaxConcurrency {
		limit = MaxConcurrency
	}

	m.mu.Lock()
	m.limit = limit
	m.mu.Unlock()

	m.logger.WithField("concurrency_limit", limit).Info("Concurrency limit updated")
	m.schedule()
	return limit
}

// ConcurrencyLimit returns the current bound
func (m *Manager) ConcurrencyLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit
}

// Submit accepts a download request and returns its job handle without
// blocking. Invalid requests yield an immediately-failed handle rather
// than an error, so callers always consume results through the same
// channel.
func (m *Manager) Submit(req models.DownloadRequest) *Job {
	if req.DestinationDir == "" {
		req.DestinationDir = m.downloadDir
	}
	if req.Quality == "" {
		req.Quality = models.QualityBest
	}

	job := newJob(req, m.policy.MaxRetries+1, m.progressInterval, m.stallTimeout)
	m.attachSink(job)

	if err := validateRequest(req); err != nil {
		m.logger.WithFields(logrus.Fields{
			"job_id": job.ID(),
			"url":    req.URL,
		}).Warnf("Rejecting download request: %v", err)
		job.finalizeImmediately(err)
		return job
	}

	m.mu.Lock()
	m.jobs[job.ID()] = job
	m.waitq = append(m.waitq, job)
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"job_id": job.ID(),
		"url":    req.URL,
		"format": req.Format,
	}).Info("Download queued")

	m.schedule()
	return job
}

// Cancel requests cancellation of a job. A queued job is removed and
// finalized immediately; a running or retrying job is signalled to
// abort at its next checkpoint.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return models.ErrJobNotFound
	}
	for i, queued := range m.waitq {
		if queued == job {
			m.waitq = append(m.waitq[:i], m.waitq[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if job.requestCancel() {
		m.removeJob(id)
	}
	m.logger.WithField("job_id", id).Info("Cancellation requested")
	m.schedule()
	return nil
}

// Pause interrupts a job, keeping any partial output so a later Resume
// can pick up where it left off. A queued job is parked immediately; a
// running or retrying job is signalled to stop at its next checkpoint.
func (m *Manager) Pause(id uuid.UUID) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return models.ErrJobNotFound
	}
	for i, queued := range m.waitq {
		if queued == job {
			m.waitq = append(m.waitq[:i], m.waitq[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	job.requestPause()
	m.logger.WithField("job_id", id).Info("Pause requested")
	m.schedule()
	return nil
}

// Resume re-enters a paused job at the tail of the wait queue, behind
// jobs submitted while it was parked. The transfer engine continues
// from the preserved partial where the server supports it.
func (m *Manager) Resume(id uuid.UUID) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return models.ErrJobNotFound
	}
	if err := job.prepareResume(); err != nil {
		return err
	}

	m.mu.Lock()
	// A cancellation can land between prepareResume and here; a
	// finalized job must not re-enter the queue
	if job.State().IsTerminal() {
		m.mu.Unlock()
		return nil
	}
	m.waitq = append(m.waitq, job)
	m.mu.Unlock()

	m.logger.WithField("job_id", id).Info("Download resumed")
	m.schedule()
	return nil
}

// Get returns the handle of an active (non-terminal) job
func (m *Manager) Get(id uuid.UUID) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Jobs returns snapshots of all active jobs in submission order
func (m *Manager) Jobs() []models.JobSnapshot {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	snaps := make([]models.JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snaps = append(snaps, job.Snapshot())
	}
	sort.Slice(snaps, func(i, k int) bool {
		if snaps[i].CreatedAt.Equal(snaps[k].CreatedAt) {
			return snaps[i].ID.String() < snaps[k].ID.String()
		}
		return snaps[i].CreatedAt.Before(snaps[k].CreatedAt)
	})
	return snaps
}

// RunningCount returns the number of jobs currently holding a worker slot
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Shutdown cancels all active jobs and waits for their notifications to
// drain, bounded by ctx
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	for _, job := range jobs {
		_ = m.Cancel(job.ID())
	}
	for _, job := range jobs {
		select {
		case <-job.Done():
		case <-ctx.Done():
			return
		}
	}
}

// schedule starts queued jobs while free slots remain. Strict FIFO: the
// head of the wait queue always starts first.
func (m *Manager) schedule() {
	m.mu.Lock()
	for len(m.running) < m.limit && len(m.waitq) > 0 {
		job := m.waitq[0]
		m.waitq = m.waitq[1:]
		m.running[job.ID()] = job
		go m.runJob(job)
	}
	m.mu.Unlock()
}

// runJob executes one attempt on the claimed worker slot and releases
// it afterwards, regardless of outcome
func (m *Manager) runJob(job *Job) {
	finished := m.executeAttempt(job)

	m.mu.Lock()
	delete(m.running, job.ID())
	if finished {
		delete(m.jobs, job.ID())
	}
	m.mu.Unlock()

	m.schedule()
}

// executeAttempt runs a single transfer attempt for the job and decides
// its fate: success, retry with backoff, or a terminal failure. Returns
// true when the job reached a terminal state.
func (m *Manager) executeAttempt(job *Job) bool {
	if !job.beginAttempt() {
		// The job was cancelled (terminal) or paused (stays tracked)
		// before the attempt could start
		return job.State().IsTerminal()
	}

	mode := job.chooseMode(m.caps)
	engine := m.selector.ForMode(mode)

	log := m.logger.WithFields(logrus.Fields{
		"job_id":  job.ID(),
		"attempt": job.Attempt(),
		"mode":    mode,
	})
	log.Info("Starting transfer")

	path, err := engine.Transfer(job.attemptContext(), job.Request(), job.recordProgress)
	err = job.settleAttempt(err)

	if err == nil {
		log.WithField("output", path).Info("Download completed")
		job.finalizeSuccess(path)
		return true
	}

	if errors.Is(err, models.ErrPaused) {
		log.Info("Download paused")
		return job.markPaused()
	}

	switch models.ClassifyError(err) {
	case models.ErrorKindCancelled:
		log.Info("Download cancelled")
		job.finalizeCancelled()
		return true

	case models.ErrorKindTransientNetwork:
		if job.Attempt() < job.MaxAttempts() {
			delay := m.policy.NextDelay(job.Attempt() - 1)
			if job.scheduleRetry(delay, func() { m.requeue(job) }) {
				log.WithField("delay", delay).Warnf("Transient failure, retrying: %v", err)
				return false
			}
			return true
		}
		log.Errorf("Retries exhausted: %v", err)
		job.finalizeFailure(err)
		return true

	default:
		log.Errorf("Download failed: %v", err)
		job.finalizeFailure(err)
		return true
	}
}

// requeue re-enters a job whose backoff elapsed through the same FIFO
// path used by fresh submissions
func (m *Manager) requeue(job *Job) {
	if !job.prepareRequeue() {
		// Cancelled jobs are dropped; paused ones stay tracked until
		// a Resume or Cancel arrives
		if job.State().IsTerminal() {
			m.removeJob(job.ID())
		}
		return
	}

	m.mu.Lock()
	// A cancellation can land between prepareRequeue and here; a
	// finalized job must not re-enter the queue
	if job.State().IsTerminal() {
		m.mu.Unlock()
		return
	}
	m.waitq = append(m.waitq, job)
	m.mu.Unlock()

	m.schedule()
}

// removeJob drops a terminal job from the manager's bookkeeping
func (m *Manager) removeJob(id uuid.UUID) {
	m.mu.Lock()
	delete(m.jobs, id)
	delete(m.running, id)
	m.mu.Unlock()
}

// attachSink bridges the job's notifications to the global event sink
func (m *Manager) attachSink(job *Job) {
	sink := m.sink
	if sink == nil {
		return
	}
	job.Subscribe(Observer{
		OnProgress: sink.OnJobProgress,
		OnStatus:   sink.OnJobUpdate,
		OnDone:     sink.OnJobUpdate,
		OnError: func(snap models.JobSnapshot, _ error) {
			sink.OnJobUpdate(snap)
		},
	})
}

// validateRequest rejects requests the transfer engine could never
// serve; everything else is the engine's own business
func validateRequest(req models.DownloadRequest) error {
	if req.URL == "" {
		return models.NewFatalRequestError(fmt.Errorf("%w: empty URL", models.ErrInvalidURL))
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return models.NewFatalRequestError(fmt.Errorf("%w: %q", models.ErrInvalidURL, req.URL))
	}
	if !req.Format.IsValid() {
		return models.NewFatalRequestError(fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, req.Format))
	}
	return nil
}
