package downloads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/transfer"
)

// Observer receives a job's notifications. All callbacks are optional
// and are invoked from the job's dispatch goroutine, never from the
// transferring worker, so observers may block briefly without stalling
// the transfer.
type Observer struct {
	OnProgress func(models.ProgressUpdate)
	OnStatus   func(models.JobSnapshot)
	OnDone     func(models.JobSnapshot)
	OnError    func(models.JobSnapshot, error)
}

// Job is one queued-to-terminal unit of download work. It is owned by
// the Manager for its lifetime; callers interact with it as a handle
// for subscription, snapshots, and cancellation.
type Job struct {
	id      uuid.UUID
	request models.DownloadRequest

	mu           sync.Mutex
	state        models.JobState
	attempt      int
	maxAttempts  int
	bytes        int64
	total        int64
	speedKBPS    float64
	etaSeconds   int
	statusText   string
	outputPath   string
	lastErr      error
	errKind      models.ErrorKind
	createdAt    time.Time
	startedAt    *time.Time
	completedAt  *time.Time
	mode         transfer.Mode
	modeChosen   bool
	cancelled    bool
	paused       bool
	observers    []Observer
	attemptStart time.Time
	lastEventTS  time.Time

	throttle     *ProgressThrottle
	stallTimeout time.Duration

	ctx           context.Context
	cancelAttempt context.CancelCauseFunc
	stallTimer    *time.Timer
	retryTimer    *time.Timer

	events chan func()
	done   chan struct{}
}

func newJob(req models.DownloadRequest, maxAttempts int, progressInterval, stallTimeout time.Duration) *Job {
	j := &Job{
		id:           uuid.New(),
		request:      req,
		state:        models.JobStateQueued,
		maxAttempts:  maxAttempts,
		statusText:   "Queued",
		createdAt:    time.Now(),
		etaSeconds:   -1,
		throttle:     NewProgressThrottle(progressInterval),
		stallTimeout: stallTimeout,
		events:       make(chan func(), 128),
		done:         make(chan struct{}),
	}
	go j.dispatch()
	return j
}

// dispatch delivers notifications in submission order on a goroutine
// owned by the job. The channel is closed exactly once, after the
// terminal notification has been enqueued.
func (j *Job) dispatch() {
	for fn := range j.events {
		fn()
	}
	close(j.done)
}

// ID returns the job's unique identifier
func (j *Job) ID() uuid.UUID {
	return j.id
}

// Request returns the immutable request this job was created for
func (j *Job) Request() models.DownloadRequest {
	return j.request
}

// Done is closed once the job is terminal and every notification has
// been delivered
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// State returns the job's current lifecycle state
func (j *Job) State() models.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Attempt returns the number of transfer attempts made so far
func (j *Job) Attempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempt
}

// MaxAttempts returns how many tries the job may make in total,
// counting the first attempt
func (j *Job) MaxAttempts() int {
	return j.maxAttempts
}

// Snapshot returns a read-only copy of the job's current state for
// rendering
func (j *Job) Snapshot() models.JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() models.JobSnapshot {
	snap := models.JobSnapshot{
		ID:              j.id,
		Request:         j.request,
		State:           j.state,
		Attempt:         j.attempt,
		MaxAttempts:     j.maxAttempts,
		BytesDownloaded: j.bytes,
		TotalBytes:      j.total,
		SpeedKBPS:       j.speedKBPS,
		ETASeconds:      j.etaSeconds,
		StatusText:      j.statusText,
		OutputPath:      j.outputPath,
		ErrorKind:       j.errKind,
		CreatedAt:       j.createdAt,
		StartedAt:       j.startedAt,
		CompletedAt:     j.completedAt,
	}
	if j.total > 0 {
		snap.Percent = int(j.bytes * 100 / j.total)
	}
	if j.lastErr != nil {
		snap.ErrorMessage = j.lastErr.Error()
	}
	return snap
}

// Subscribe registers observer callbacks. Subscribing to a job that
// already reached a terminal state delivers the terminal notification
// once, asynchronously.
func (j *Job) Subscribe(obs Observer) {
	j.mu.Lock()
	if !j.state.IsTerminal() {
		j.observers = append(j.observers, obs)
		j.mu.Unlock()
		return
	}
	snap := j.snapshotLocked()
	err := j.lastErr
	j.mu.Unlock()

	go func() {
		if snap.State == models.JobStateFailed {
			if obs.OnError != nil {
				obs.OnError(snap, err)
			}
			return
		}
		if obs.OnDone != nil {
			obs.OnDone(snap)
		}
	}()
}

// beginAttempt transitions the job to Running for its next attempt.
// It returns false when the job was cancelled, paused, or finalized
// before the attempt could start.
func (j *Job) beginAttempt() bool {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	if j.cancelled {
		notify := j.finalizeLocked(models.JobStateCancelled, nil)
		j.mu.Unlock()
		notify()
		return false
	}
	if j.paused {
		// Pause may already have parked the job in place; a claimed
		// worker only needs to back off then
		if j.state == models.JobStatePaused {
			j.mu.Unlock()
			return false
		}
		notify := j.pauseLocked()
		j.mu.Unlock()
		notify()
		return false
	}

	j.attempt++
	j.state = models.JobStateRunning
	now := time.Now()
	if j.startedAt == nil {
		j.startedAt = &now
	}
	j.attemptStart = now
	j.throttle.Reset()
	j.statusText = fmt.Sprintf("Downloading (attempt %d/%d)", j.attempt, j.maxAttempts)

	ctx, cancel := context.WithCancelCause(context.Background())
	j.ctx = ctx
	j.cancelAttempt = cancel
	if j.stallTimeout > 0 {
		j.stallTimer = time.AfterFunc(j.stallTimeout, func() {
			cancel(models.ErrStalled)
		})
	}

	snap := j.snapshotLocked()
	observers := j.observers
	j.mu.Unlock()

	j.emitBlocking(statusEvent(observers, snap))
	return true
}

// attemptContext returns the cancellation context of the attempt
// started by the last beginAttempt call
func (j *Job) attemptContext() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ctx
}

// chooseMode fixes the transfer strategy on first use. The routing
// decision is never re-evaluated on retry.
func (j *Job) chooseMode(caps transfer.Capabilities) transfer.Mode {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.modeChosen {
		j.mode = Route(j.request.Format, caps)
		j.modeChosen = true
	}
	return j.mode
}

// recordProgress is the engine-facing progress callback. It updates the
// job's transfer statistics and forwards a throttled update to
// observers; a completion event (all bytes present) is never dropped.
func (j *Job) recordProgress(bytes, total int64, ts time.Time) {
	j.mu.Lock()
	if j.state != models.JobStateRunning || bytes < j.bytes {
		j.mu.Unlock()
		return
	}
	if j.stallTimer != nil {
		j.stallTimer.Reset(j.stallTimeout)
	}

	j.bytes = bytes
	if total > 0 {
		j.total = total
	}
	if ts.Before(j.lastEventTS) {
		ts = j.lastEventTS
	}
	j.lastEventTS = ts

	if elapsed := ts.Sub(j.attemptStart).Seconds(); elapsed > 0 {
		j.speedKBPS = float64(bytes) / elapsed / 1024
		if j.total > 0 && j.speedKBPS > 0 {
			j.etaSeconds = int(float64(j.total-bytes) / (j.speedKBPS * 1024))
		}
	}
	if bytes > 0 {
		j.statusText = progressStatusText(bytes, j.total, j.speedKBPS, j.etaSeconds)
	}

	update := models.ProgressUpdate{
		JobID:           j.id,
		BytesDownloaded: bytes,
		TotalBytes:      j.total,
		SpeedKBPS:       j.speedKBPS,
		ETASeconds:      j.etaSeconds,
		Timestamp:       ts,
	}
	if j.total > 0 {
		update.Percent = int(bytes * 100 / j.total)
	}
	complete := j.total > 0 && bytes >= j.total
	observers := j.observers
	j.mu.Unlock()

	event := func() {
		for _, o := range observers {
			if o.OnProgress != nil {
				o.OnProgress(update)
			}
		}
	}
	if complete {
		j.emitBlocking(event)
		return
	}
	if j.throttle.Allow() {
		j.emit(event)
	}
}

// settleAttempt tears down the attempt's watchdogs and maps its raw
// outcome onto the job's error taxonomy. A nil return means the
// attempt succeeded.
func (j *Job) settleAttempt(err error) error {
	j.mu.Lock()
	if j.stallTimer != nil {
		j.stallTimer.Stop()
		j.stallTimer = nil
	}
	cancel := j.cancelAttempt
	j.cancelAttempt = nil
	var cause error
	if j.ctx != nil {
		cause = context.Cause(j.ctx)
	}
	cancelled := j.cancelled
	paused := j.paused
	stallTimeout := j.stallTimeout
	j.mu.Unlock()

	if cancel != nil {
		cancel(nil)
	}
	if err == nil {
		return nil
	}
	if cancelled || errors.Is(cause, models.ErrCancelled) {
		return models.ErrCancelled
	}
	if paused || errors.Is(cause, models.ErrPaused) {
		return models.ErrPaused
	}
	if errors.Is(cause, models.ErrStalled) {
		return fmt.Errorf("%w (no progress for %s)", models.ErrStalled, stallTimeout)
	}
	return err
}

// scheduleRetry moves the job into backoff. The worker slot is released
// while the job waits; fire re-enters it through the manager's FIFO
// queue. Returns false when the job was cancelled instead.
func (j *Job) scheduleRetry(delay time.Duration, fire func()) bool {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	if j.cancelled {
		notify := j.finalizeLocked(models.JobStateCancelled, nil)
		j.mu.Unlock()
		notify()
		return false
	}

	j.state = models.JobStateRetrying
	j.statusText = fmt.Sprintf("Retrying (%d/%d)...", j.attempt, j.maxAttempts-1)
	j.retryTimer = time.AfterFunc(delay, fire)
	snap := j.snapshotLocked()
	observers := j.observers
	j.mu.Unlock()

	j.emitBlocking(statusEvent(observers, snap))
	return true
}

// prepareRequeue transitions a retrying job back to Queued when its
// backoff elapses. Returns false when the job was cancelled or paused
// in the meantime; the transition is handled here because the retry
// timer already fired and nobody else owns the job.
func (j *Job) prepareRequeue() bool {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	if j.cancelled {
		notify := j.finalizeLocked(models.JobStateCancelled, nil)
		j.mu.Unlock()
		notify()
		return false
	}
	if j.paused {
		j.retryTimer = nil
		notify := j.pauseLocked()
		j.mu.Unlock()
		notify()
		return false
	}
	j.state = models.JobStateQueued
	j.statusText = "Queued"
	j.retryTimer = nil
	j.mu.Unlock()
	return true
}

// requestPause records a pause request and interrupts whatever the job
// is doing, keeping any partial output. Returns true when the job
// settled into Paused here; false when an active worker or pending
// retry timer will observe the flag and park the job instead.
func (j *Job) requestPause() bool {
	j.mu.Lock()
	if j.state.IsTerminal() || j.paused {
		j.mu.Unlock()
		return false
	}
	j.paused = true

	switch j.state {
	case models.JobStateQueued:
		// Not running and no timer pending: safe to park in place. A
		// worker that already claimed the job re-checks the flag in
		// beginAttempt.
		if j.retryTimer == nil && j.cancelAttempt == nil {
			notify := j.pauseLocked()
			j.mu.Unlock()
			notify()
			return true
		}
		j.mu.Unlock()
		return false
	case models.JobStateRetrying:
		timer := j.retryTimer
		j.retryTimer = nil
		if timer != nil && timer.Stop() {
			notify := j.pauseLocked()
			j.mu.Unlock()
			notify()
			return true
		}
		// Timer already fired; the requeue path parks the job
		j.mu.Unlock()
		return false
	default: // Running
		cancel := j.cancelAttempt
		j.mu.Unlock()
		if cancel != nil {
			cancel(models.ErrPaused)
		}
		return false
	}
}

// prepareResume moves a paused job back to Queued so the manager can
// re-enter it at the tail of the wait queue
func (j *Job) prepareResume() error {
	j.mu.Lock()
	if j.state != models.JobStatePaused {
		j.mu.Unlock()
		return models.ErrJobNotPaused
	}
	j.paused = false
	j.state = models.JobStateQueued
	j.statusText = "Queued"
	snap := j.snapshotLocked()
	observers := j.observers
	j.mu.Unlock()

	j.emitBlocking(statusEvent(observers, snap))
	return nil
}

// markPaused parks a job whose in-flight attempt was interrupted by a
// pause request. Returns true when a racing cancellation finalized the
// job here instead.
func (j *Job) markPaused() bool {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return true
	}
	if j.cancelled {
		notify := j.finalizeLocked(models.JobStateCancelled, nil)
		j.mu.Unlock()
		notify()
		return true
	}
	// An interrupted attempt is not charged against the retry allowance
	j.attempt--
	notify := j.pauseLocked()
	j.mu.Unlock()
	notify()
	return false
}

// pauseLocked performs the transition into Paused. Callers must hold
// j.mu and run the returned notify func after unlocking.
func (j *Job) pauseLocked() func() {
	j.state = models.JobStatePaused
	j.statusText = "Paused"
	j.speedKBPS = 0
	j.etaSeconds = -1
	snap := j.snapshotLocked()
	observers := j.observers
	return func() {
		j.emitBlocking(statusEvent(observers, snap))
	}
}

// requestCancel records a cancellation request and aborts whatever the
// job is doing. Returns true when the job reached its terminal state
// here; false when an active worker or pending retry timer will
// observe the flag and finalize instead.
func (j *Job) requestCancel() bool {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	j.cancelled = true

	switch j.state {
	case models.JobStateQueued:
		// Not running and no timer pending: safe to finalize in place.
		// A worker that already claimed the job re-checks the flag in
		// beginAttempt.
		if j.retryTimer == nil && j.cancelAttempt == nil {
			notify := j.finalizeLocked(models.JobStateCancelled, nil)
			j.mu.Unlock()
			notify()
			return true
		}
		j.mu.Unlock()
		return false
	case models.JobStateRetrying:
		timer := j.retryTimer
		j.retryTimer = nil
		if timer != nil && timer.Stop() {
			notify := j.finalizeLocked(models.JobStateCancelled, nil)
			j.mu.Unlock()
			notify()
			return true
		}
		// Timer already fired; the requeue path finalizes
		j.mu.Unlock()
		return false
	case models.JobStatePaused:
		// No worker and no timer own a paused job
		notify := j.finalizeLocked(models.JobStateCancelled, nil)
		j.mu.Unlock()
		notify()
		return true
	default: // Running
		cancel := j.cancelAttempt
		j.mu.Unlock()
		if cancel != nil {
			cancel(models.ErrCancelled)
		}
		return false
	}
}

func (j *Job) finalizeSuccess(path string) {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return
	}
	j.outputPath = path
	if j.total > 0 {
		j.bytes = j.total
	}
	notify := j.finalizeLocked(models.JobStateSucceeded, nil)
	j.mu.Unlock()
	notify()
}

func (j *Job) finalizeFailure(err error) {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return
	}
	notify := j.finalizeLocked(models.JobStateFailed, err)
	j.mu.Unlock()
	notify()
}

func (j *Job) finalizeCancelled() {
	j.mu.Lock()
	if j.state.IsTerminal() {
		j.mu.Unlock()
		return
	}
	notify := j.finalizeLocked(models.JobStateCancelled, nil)
	j.mu.Unlock()
	notify()
}

// finalizeImmediately fails a job that never entered the queue, such as
// an invalid submission. The caller always receives a uniform
// handle-based result channel instead of an error return.
func (j *Job) finalizeImmediately(err error) {
	j.finalizeFailure(err)
}

// finalizeLocked performs the single terminal transition. Callers must
// hold j.mu and run the returned notify func after unlocking; it
// delivers the terminal notification and closes the event stream.
func (j *Job) finalizeLocked(state models.JobState, err error) func() {
	j.state = state
	j.lastErr = err
	now := time.Now()
	j.completedAt = &now

	switch state {
	case models.JobStateSucceeded:
		j.statusText = "Completed"
	case models.JobStateCancelled:
		j.statusText = "Cancelled"
	case models.JobStateFailed:
		j.errKind = models.ClassifyError(err)
		j.statusText = fmt.Sprintf("Failed: %v", err)
	}

	snap := j.snapshotLocked()
	observers := j.observers

	return func() {
		j.emitBlocking(func() {
			for _, o := range observers {
				switch snap.State {
				case models.JobStateFailed:
					if o.OnError != nil {
						o.OnError(snap, err)
					}
				default:
					if o.OnDone != nil {
						o.OnDone(snap)
					}
				}
			}
		})
		close(j.events)
	}
}

// emit enqueues a notification, dropping it when the dispatch queue is
// full. Only throttled progress events take this path.
func (j *Job) emit(fn func()) {
	select {
	case j.events <- fn:
	default:
	}
}

// emitBlocking enqueues a notification that must not be dropped
func (j *Job) emitBlocking(fn func()) {
	j.events <- fn
}

// progressStatusText renders the running status line shown to clients,
// such as "12.3 MB of 45.6 MB at 1.2 MB/s, ETA 00:45"
func progressStatusText(bytes, total int64, speedKBPS float64, etaSeconds int) string {
	speed := models.FormatSpeed(speedKBPS)
	if total > 0 {
		return fmt.Sprintf("%s of %s at %s, ETA %s",
			models.FormatBytes(bytes), models.FormatBytes(total), speed, models.FormatETA(etaSeconds))
	}
	return fmt.Sprintf("%s downloaded at %s", models.FormatBytes(bytes), speed)
}

func statusEvent(observers []Observer, snap models.JobSnapshot) func() {
	return func() {
		for _, o := range observers {
			if o.OnStatus != nil {
				o.OnStatus(snap)
			}
		}
	}
}
