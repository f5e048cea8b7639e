package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kdimtricp/ecosort/internal/models"
)

const (
	DefaultInterval  = 250 * time.Millisecond
	DefaultThreshold = 70.0
	DefaultBannerTTL = 3 * time.Second
	MaxResumeDelay   = 2 * time.Second

	NavigationWarning = "Classification is running. Stop it before leaving this page."
)

// DefaultSentinels are the labels the backend uses when no item is present.
var DefaultSentinels = []string{"Track", "None"}

// Backend is the part of the classification backend the run loop drives.
type Backend interface {
	SystemStart(ctx context.Context) error
	Evaluate(ctx context.Context) (*models.PredictionResult, error)
	SystemStop(ctx context.Context) error
	SaveCorrection(ctx context.Context, id, trueClass, systemAnalysis string) error
	ServoPush(ctx context.Context, trueClass string) error
	CopyUncertain(ctx context.Context, id, trueClass string) error
}

// Recorder receives the run journal. Its errors never affect the loop.
type Recorder interface {
	RunStarted(ctx context.Context, run models.Run) error
	RunStopped(ctx context.Context, runID string, at time.Time, reason string) error
	PollRecorded(ctx context.Context, rec models.PollRecord) error
	ReviewRecorded(ctx context.Context, rec models.ReviewRecord) error
}

type Config struct {
	Interval    time.Duration
	Threshold   float64
	ResumeDelay time.Duration
	BannerTTL   time.Duration
	Sentinels   []string
	Clock       Clock
	Logger      *slog.Logger
}

// Snapshot is a consistent copy of the controller state for rendering.
type Snapshot struct {
	State        State                    `json:"state"`
	RunID        string                   `json:"run_id,omitempty"`
	Current      *models.PredictionResult `json:"current,omitempty"`
	PendingClass models.ManualClass       `json:"pending_class,omitempty"`
	NeedsReview  bool                     `json:"needs_review"`
	Saving       bool                     `json:"saving"`
	Banner       string                   `json:"banner,omitempty"`
	Threshold    float64                  `json:"threshold"`
}

// Controller owns the capture, predict and decide loop. All state is guarded
// by mu, which is never held across a backend call.
type Controller struct {
	backend  Backend
	recorder Recorder
	clock    Clock
	logger   *slog.Logger

	interval    time.Duration
	threshold   float64
	resumeDelay time.Duration
	bannerTTL   time.Duration
	sentinels   []string

	mu          sync.Mutex
	state       State
	runID       string
	token       context.Context
	cancel      context.CancelFunc
	timer       Timer
	current     *models.PredictionResult
	pending     models.ManualClass
	saving      bool
	bannerUntil time.Time
}

func New(backend Backend, recorder Recorder, config Config) *Controller {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.ResumeDelay < 0 {
		config.ResumeDelay = 0
	}
	if config.ResumeDelay > MaxResumeDelay {
		config.ResumeDelay = MaxResumeDelay
	}
	if config.BannerTTL <= 0 {
		config.BannerTTL = DefaultBannerTTL
	}
	if config.Sentinels == nil {
		config.Sentinels = DefaultSentinels
	}
	if config.Clock == nil {
		config.Clock = realClock{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Controller{
		backend:     backend,
		recorder:    recorder,
		clock:       config.Clock,
		logger:      config.Logger.With("component", "controller"),
		interval:    config.Interval,
		threshold:   config.Threshold,
		resumeDelay: config.ResumeDelay,
		bannerTTL:   config.BannerTTL,
		sentinels:   config.Sentinels,
		state:       Idle,
	}
}

// Start begins a new run from Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.runID = uuid.New().String()
	run := models.Run{ID: c.runID, StartedAt: c.clock.Now()}
	token := c.beginLocked()
	c.mu.Unlock()

	c.logger.Info("classification run started", "run_id", run.ID)
	c.record(func(ctx context.Context) error { return c.recorder.RunStarted(ctx, run) })
	c.launch(ctx, token, c.interval)
	return nil
}

// Stop ends the active run and tells the backend. Stopping an idle
// controller does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	return c.halt(ctx, models.StopOperator)
}

// Shutdown is Stop for process exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.halt(ctx, models.StopShutdown)
}

func (c *Controller) halt(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return nil
	}
	runID := c.runID
	c.stopLocked(false)
	c.mu.Unlock()

	c.notifyStop(ctx)
	at := c.clock.Now()
	c.logger.Info("classification run stopped", "run_id", runID, "reason", reason)
	c.record(func(ctx context.Context) error { return c.recorder.RunStopped(ctx, runID, at, reason) })
	return nil
}

// SelectManualClass remembers the operator's pick while a prediction waits
// for review.
func (c *Controller) SelectManualClass(selected string) error {
	if strings.TrimSpace(selected) == "" {
		return ErrNoClassSelected
	}
	class, ok := models.ParseManualClass(selected)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownClass, selected)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != PausedForReview {
		return ErrNotPaused
	}
	c.pending = class
	return nil
}

// ManualSave submits the operator's class for the paused prediction and
// resumes the run. An empty selection falls back to the pending class. Backend
// failures are returned joined, but the run resumes regardless.
func (c *Controller) ManualSave(ctx context.Context, selected string) error {
	c.mu.Lock()
	class, err := c.resolveClassLocked(selected)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != PausedForReview {
		c.mu.Unlock()
		return ErrNotPaused
	}
	if c.saving {
		c.mu.Unlock()
		return ErrSaveInProgress
	}
	c.saving = true
	runID := c.runID
	var current models.PredictionResult
	if c.current != nil {
		current = *c.current
	}
	c.mu.Unlock()

	reqCtx := context.WithoutCancel(ctx)
	trueClass := string(class)
	var errs []error

	if current.HasResultID() {
		if err := c.backend.SaveCorrection(reqCtx, current.InsertedID, trueClass, current.Label); err != nil {
			c.logger.Error("saving manual classification failed", "run_id", runID, "result_id", current.InsertedID, "error", err)
			errs = append(errs, fmt.Errorf("saving correction: %w", err))
		}
	} else {
		errs = append(errs, ErrNoResultID)
	}

	if err := c.backend.ServoPush(reqCtx, trueClass); err != nil {
		c.logger.Warn("servo push failed", "run_id", runID, "class", trueClass, "error", err)
		errs = append(errs, fmt.Errorf("servo push: %w", err))
	}

	copied := false
	if current.HasResultID() && !strings.EqualFold(trueClass, current.Label) {
		if err := c.backend.CopyUncertain(reqCtx, current.InsertedID, trueClass); err != nil {
			c.logger.Warn("copying uncertain sample failed", "run_id", runID, "result_id", current.InsertedID, "error", err)
			errs = append(errs, fmt.Errorf("copy uncertain: %w", err))
		} else {
			copied = true
		}
	}

	saveErr := errors.Join(errs...)
	review := models.ReviewRecord{
		RunID:             runID,
		ResultID:          current.InsertedID,
		SystemLabel:       current.Label,
		TrueClass:         trueClass,
		CopiedForTraining: copied,
		At:                c.clock.Now(),
	}
	if saveErr != nil {
		review.Error = saveErr.Error()
	}
	c.record(func(ctx context.Context) error { return c.recorder.ReviewRecorded(ctx, review) })

	c.mu.Lock()
	c.saving = false
	c.pending = ""
	if c.state != PausedForReview {
		// Stopped while the save was in flight.
		c.mu.Unlock()
		return saveErr
	}
	token := c.beginLocked()
	c.mu.Unlock()

	c.logger.Info("manual classification saved, resuming run", "run_id", runID, "class", trueClass, "copied", copied)
	c.launch(ctx, token, c.interval+c.resumeDelay)
	return saveErr
}

// AllowNavigation is the pre-navigation predicate for the host UI. It denies
// while a run is active and raises the warning banner.
func (c *Controller) AllowNavigation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return true
	}
	c.bannerUntil = c.clock.Now().Add(c.bannerTTL)
	return false
}

// Banner returns the navigation warning while it is still visible.
func (c *Controller) Banner() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bannerLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:        c.state,
		PendingClass: c.pending,
		NeedsReview:  c.state == PausedForReview,
		Saving:       c.saving,
		Threshold:    c.threshold,
	}
	if c.state != Idle {
		snap.RunID = c.runID
	}
	if c.current != nil {
		current := *c.current
		snap.Current = &current
	}
	snap.Banner, _ = c.bannerLocked()
	return snap
}

func (c *Controller) bannerLocked() (string, bool) {
	if c.clock.Now().Before(c.bannerUntil) {
		return NavigationWarning, true
	}
	return "", false
}

// beginLocked cancels whatever is pending and enters Running under a fresh
// cancellation token.
func (c *Controller) beginLocked() context.Context {
	c.cancelPendingLocked()
	token, cancel := context.WithCancel(context.Background())
	c.token, c.cancel = token, cancel
	c.state = Running
	c.pending = ""
	return token
}

// stopLocked cancels the token and any pending timer. A pause-only stop keeps
// the state and the current result so the operator can review it.
func (c *Controller) stopLocked(pauseOnly bool) {
	c.cancelPendingLocked()
	if !pauseOnly {
		c.state = Idle
		c.current = nil
		c.pending = ""
	}
}

func (c *Controller) cancelPendingLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// launch notifies the backend and schedules the first poll of the token.
func (c *Controller) launch(ctx context.Context, token context.Context, delay time.Duration) {
	if err := c.backend.SystemStart(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("system start notification failed", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleLocked(token, delay)
}

func (c *Controller) scheduleLocked(token context.Context, delay time.Duration) {
	if token.Err() != nil || c.state != Running {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(delay, func() { c.pollOnce(token) })
}

func (c *Controller) pollOnce(token context.Context) {
	c.mu.Lock()
	if token.Err() != nil || c.state != Running {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	runID := c.runID
	c.mu.Unlock()

	result, err := c.backend.Evaluate(context.Background())
	if err != nil {
		c.logger.Error("prediction request failed, run loop halted", "run_id", runID, "error", err)
		c.record(func(ctx context.Context) error {
			return c.recorder.PollRecorded(ctx, models.PollRecord{
				RunID:   runID,
				Outcome: models.PollError,
				Error:   err.Error(),
				At:      c.clock.Now(),
			})
		})
		return
	}

	c.mu.Lock()
	if token.Err() != nil {
		c.mu.Unlock()
		c.logger.Debug("discarding prediction from a cancelled run", "run_id", runID)
		return
	}
	result.ReceivedAt = c.clock.Now()
	c.current = result

	outcome := models.PollConfident
	if c.needsReview(result) {
		outcome = models.PollPaused
		c.state = PausedForReview
		c.stopLocked(true)
	} else {
		c.scheduleLocked(token, c.interval)
	}
	c.mu.Unlock()

	rec := models.PollRecord{
		RunID:      runID,
		Label:      result.Label,
		Confidence: result.Confidence,
		ImageName:  result.ImageName,
		ResultID:   result.InsertedID,
		Outcome:    outcome,
		At:         result.ReceivedAt,
	}
	c.record(func(ctx context.Context) error { return c.recorder.PollRecorded(ctx, rec) })

	if outcome == models.PollPaused {
		c.logger.Info("low confidence, waiting for manual review",
			"run_id", runID, "label", result.Label, "confidence", result.Confidence)
		c.notifyStop(context.Background())
	}
}

func (c *Controller) needsReview(result *models.PredictionResult) bool {
	if result.Confidence >= c.threshold {
		return false
	}
	for _, s := range c.sentinels {
		if strings.EqualFold(result.Label, s) {
			return false
		}
	}
	return true
}

func (c *Controller) resolveClassLocked(selected string) (models.ManualClass, error) {
	if strings.TrimSpace(selected) == "" {
		if c.pending == "" {
			return "", ErrNoClassSelected
		}
		return c.pending, nil
	}
	class, ok := models.ParseManualClass(selected)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownClass, selected)
	}
	return class, nil
}

func (c *Controller) notifyStop(ctx context.Context) {
	if err := c.backend.SystemStop(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("system stop notification failed", "error", err)
	}
}

func (c *Controller) record(fn func(ctx context.Context) error) {
	if err := fn(context.Background()); err != nil {
		c.logger.Warn("run journal write failed", "error", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(context.Context, models.Run) error { return nil }

func (nopRecorder) RunStopped(context.Context, string, time.Time, string) error { return nil }

func (nopRecorder) PollRecorded(context.Context, models.PollRecord) error { return nil }

func (nopRecorder) ReviewRecorded(context.Context, models.ReviewRecord) error { return nil }
