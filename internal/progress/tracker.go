package progress

import (
	"log/slog"
	"sync"
	"time"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
)

// Step pacing. The drain rate is cosmetic catch-up and deliberately tunable.
const (
	minStepDelay  = 50 * time.Millisecond
	maxStepDelay  = 500 * time.Millisecond
	fastDrainStep = 2 * time.Millisecond
)

type update struct {
	progress  int
	status    domain.FileStatus
	message   string
	etaMillis int64
	terminal  bool
}

// Tracker smooths the bursty progress reports of one transcription job into
// a dense, monotone stream of 1-percent ticks. One Tracker serves exactly one
// run of one job; the worker feeds it via SetTarget/Finish and the background
// agent publishes ticks to the hub.
type Tracker struct {
	fileID domain.FileID
	pub    ports.EventPublisher
	logger *slog.Logger

	// Latest-wins inbox: SetTarget never blocks the worker.
	updates chan update
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	minDelay  time.Duration
	maxDelay  time.Duration
	drainStep time.Duration
}

func NewTracker(fileID domain.FileID, pub ports.EventPublisher, logger *slog.Logger) *Tracker {
	return newTracker(fileID, pub, logger, minStepDelay, maxStepDelay, fastDrainStep)
}

func newTracker(fileID domain.FileID, pub ports.EventPublisher, logger *slog.Logger,
	minDelay, maxDelay, drainStep time.Duration) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		fileID:    fileID,
		pub:       pub,
		logger:    logger,
		updates:   make(chan update, 1),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		drainStep: drainStep,
	}
	go t.run()
	return t
}

// SetTarget declares a new raw progress target. Targets below the current
// one are ignored, which is what keeps the outgoing stream monotone.
func (t *Tracker) SetTarget(progress int, status domain.FileStatus, message string, etaMillis int64) {
	t.offer(update{progress: clamp(progress), status: status, message: message, etaMillis: etaMillis})
}

// Finish asks the agent to emit the terminal event of this run and stop.
// A completed run drains the bar to its final value first; cancellation and
// error emit immediately.
func (t *Tracker) Finish(status domain.FileStatus, progress int, message string) {
	t.offer(update{progress: clamp(progress), status: status, message: message, terminal: true})
}

// Close tears the agent down without a terminal event. Idempotent; safe to
// call after Finish.
func (t *Tracker) Close() {
	t.once.Do(func() { close(t.quit) })
}

// Wait blocks until the agent has exited.
func (t *Tracker) Wait() {
	<-t.stopped
}

func (t *Tracker) offer(u update) {
	for {
		select {
		case <-t.stopped:
			return
		case t.updates <- u:
			return
		default:
		}
		// Inbox full: displace the stale update.
		select {
		case <-t.updates:
		default:
		}
	}
}

func (t *Tracker) run() {
	defer close(t.stopped)

	cur, target := 0, 0
	status := domain.FileProcessing
	message := ""
	var eta int64
	var final *update
	draining := false

	lastProgress := -1
	lastStatus := domain.FileStatus("")
	emit := func(p int, s domain.FileStatus, m string) {
		// Duplicate (progress, status) pairs are suppressed.
		if p == lastProgress && s == lastStatus {
			return
		}
		lastProgress, lastStatus = p, s
		t.pub.Publish(domain.ProgressEvent{FileID: t.fileID, Status: s, Progress: p, Message: m})
	}

	apply := func(u update) {
		if u.terminal {
			final = &u
			if u.status == domain.FileCompleted && u.progress > target {
				target = u.progress
			}
			draining = true
			return
		}
		if u.progress > target {
			if target > cur {
				// The worker outran the bar; catch up quickly.
				draining = true
			}
			target = u.progress
		}
		status = u.status
		message = u.message
		eta = u.etaMillis
	}

	for {
		if final != nil {
			if final.status == domain.FileCompleted && cur < target {
				// keep draining below
			} else {
				emit(final.progress, final.status, final.message)
				return
			}
		}

		if cur >= target && final == nil {
			// Caught up; later targets step at the paced rate again.
			draining = false
			select {
			case u := <-t.updates:
				apply(u)
			case <-t.quit:
				return
			}
			continue
		}

		delay := t.stepDelay(cur, target, eta, draining)
		select {
		case u := <-t.updates:
			apply(u)
			continue
		case <-t.quit:
			return
		case <-time.After(delay):
		}
		cur++
		emit(cur, status, message)
	}
}

func (t *Tracker) stepDelay(cur, target int, etaMillis int64, draining bool) time.Duration {
	if draining {
		return t.drainStep
	}
	remaining := target - cur
	if remaining < 1 {
		remaining = 1
	}
	if etaMillis <= 0 {
		return t.minDelay
	}
	per := time.Duration(etaMillis/int64(remaining)) * time.Millisecond
	if per < t.minDelay {
		return t.minDelay
	}
	if per > t.maxDelay {
		return t.maxDelay
	}
	return per
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
