package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/anmolramgarhia9/tunegrab/internal/models"
	"github.com/anmolramgarhia9/tunegrab/internal/transfer"
)

// ProgressStep is one progress callback a scripted attempt emits
type ProgressStep struct {
	Bytes int64
	Total int64
}

// AttemptScript describes the behavior of one transfer attempt. With
// Block set the attempt emits its progress steps and then parks until
// the context is cancelled or the engine is released.
type AttemptScript struct {
	Progress []ProgressStep
	Path     string
	Err      error
	Block    bool
}

// ScriptedEngine is a transfer.Engine whose attempts play back a fixed
// script. The last script repeats when attempts outnumber scripts. It
// also tracks how many transfers ran at once, which download pool tests
// assert on.
type ScriptedEngine struct {
	mu        sync.Mutex
	scripts   []AttemptScript
	perURL    map[string][]AttemptScript
	perURLIdx map[string]int
	calls     int
	active    int
	maxActive int
	urls      []string

	// Started receives one signal per attempt as it begins
	Started chan struct{}

	release chan struct{}
}

// NewScriptedEngine creates an engine that plays the given scripts in
// attempt order
func NewScriptedEngine(scripts ...AttemptScript) *ScriptedEngine {
	return &ScriptedEngine{
		scripts:   scripts,
		perURL:    make(map[string][]AttemptScript),
		perURLIdx: make(map[string]int),
		Started:   make(chan struct{}, 64),
		release:   make(chan struct{}),
	}
}

// ScriptFor registers a script sequence keyed by request URL, taking
// precedence over the positional scripts. The last script repeats.
func (e *ScriptedEngine) ScriptFor(url string, scripts ...AttemptScript) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.perURL[url] = scripts
}

// Transfer plays back the next script
func (e *ScriptedEngine) Transfer(ctx context.Context, req models.DownloadRequest, onProgress transfer.ProgressFunc) (string, error) {
	e.mu.Lock()
	var script AttemptScript
	if scripts, ok := e.perURL[req.URL]; ok {
		script = scripts[min(e.perURLIdx[req.URL], len(scripts)-1)]
		e.perURLIdx[req.URL]++
	} else if len(e.scripts) > 0 {
		script = e.scripts[min(e.calls, len(e.scripts)-1)]
	}
	e.calls++
	e.urls = append(e.urls, req.URL)
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	release := e.release
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	select {
	case e.Started <- struct{}{}:
	default:
	}

	for _, step := range script.Progress {
		if err := ctx.Err(); err != nil {
			return "", context.Cause(ctx)
		}
		if onProgress != nil {
			onProgress(step.Bytes, step.Total, time.Now())
		}
	}

	if script.Block {
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case <-release:
		}
	}

	if err := ctx.Err(); err != nil {
		return "", context.Cause(ctx)
	}
	if script.Err != nil {
		return "", script.Err
	}
	return script.Path, nil
}

// Release unparks every blocked attempt, letting it finish with its
// scripted outcome
func (e *ScriptedEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.release:
	default:
		close(e.release)
	}
}

// Calls returns how many attempts have started
func (e *ScriptedEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// MaxActive returns the highest number of concurrently running attempts
// observed
func (e *ScriptedEngine) MaxActive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxActive
}

// StartedURLs returns the request URLs in the order attempts began
func (e *ScriptedEngine) StartedURLs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.urls...)
}

// Active returns the number of attempts running right now
func (e *ScriptedEngine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// EventRecorder captures every notification a job delivers. Its methods
// have the same shapes as the download observer callbacks, so tests
// wire it in field by field.
type EventRecorder struct {
	mu       sync.Mutex
	progress []models.ProgressUpdate
	statuses []models.JobSnapshot
	terminal []models.JobSnapshot
	errors   []error
}

// NewEventRecorder creates an empty recorder
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) OnProgress(update models.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, update)
}

func (r *EventRecorder) OnStatus(snap models.JobSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, snap)
}

func (r *EventRecorder) OnDone(snap models.JobSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminal = append(r.terminal, snap)
}

func (r *EventRecorder) OnError(snap models.JobSnapshot, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminal = append(r.terminal, snap)
	r.errors = append(r.errors, err)
}

// Progress returns a copy of every recorded progress update
func (r *EventRecorder) Progress() []models.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProgressUpdate(nil), r.progress...)
}

// Statuses returns a copy of every recorded state change
func (r *EventRecorder) Statuses() []models.JobSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.JobSnapshot(nil), r.statuses...)
}

// Terminal returns every terminal notification received. Exactly-once
// delivery means this has at most one element.
func (r *EventRecorder) Terminal() []models.JobSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.JobSnapshot(nil), r.terminal...)
}

// Errors returns every terminal error received
func (r *EventRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}
