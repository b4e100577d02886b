package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
	"voicescribe/internal/history"
	"voicescribe/internal/metrics"
	"voicescribe/internal/progress"
	"voicescribe/internal/registry"
)

const (
	// DefaultWorkers bounds how many transcriptions run at once.
	DefaultWorkers = 12

	queueCapacity = 1024

	cancelledMessage = "转写已停止"
	completedMessage = "转写完成"
)

var ErrQueueFull = errors.New("transcription queue is full")

// Job is the handle returned by Enqueue. Cancel is idempotent; Done closes
// when the run reached a terminal state.
type Job struct {
	ID domain.FileID

	sched     *Scheduler
	done      chan struct{}
	cancelled atomic.Bool
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel sets the cooperative stop flag. A job that has not started yet will
// never run; a running job returns to uploaded at its next cancellation
// checkpoint.
func (j *Job) Cancel() {
	if !j.cancelled.CompareAndSwap(false, true) {
		return
	}
	_, err := j.sched.registry.Update(j.ID, func(rec *domain.FileRecord) error {
		rec.Cancelled = true
		return nil
	})
	if err != nil {
		j.sched.logger.Warn("cancel on missing record",
			slog.String("file_id", string(j.ID)), slog.String("error", err.Error()))
	}
}

// Config wires the scheduler's collaborators.
type Config struct {
	Registry   *registry.Registry
	History    *history.Store
	Runner     ports.Transcriber
	Normalizer ports.Normalizer
	Renderer   ports.DocumentRenderer
	Publisher  ports.EventPublisher
	Workers    int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Scheduler owns the bounded transcription worker pool. Jobs start in enqueue
// order; at most Workers run concurrently; at most one run per file id is in
// flight at any time (enforced by the registry's processing index).
type Scheduler struct {
	registry   *registry.Registry
	history    *history.Store
	runner     ports.Transcriber
	normalizer ports.Normalizer
	renderer   ports.DocumentRenderer
	publisher  ports.EventPublisher
	logger     *slog.Logger
	now        func() time.Time

	queue chan *Job
	sem   *semaphore.Weighted

	mu   sync.Mutex
	jobs map[domain.FileID]*Job

	ctx      context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
	dispWG   sync.WaitGroup
}

func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		registry:   cfg.Registry,
		history:    cfg.History,
		runner:     cfg.Runner,
		normalizer: cfg.Normalizer,
		renderer:   cfg.Renderer,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
		now:        cfg.Now,
		queue:      make(chan *Job, queueCapacity),
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		jobs:       make(map[domain.FileID]*Job),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.dispWG.Add(1)
	go s.dispatch()
	return s
}

// Enqueue claims the file and queues it for a worker. The externally visible
// status flips to processing immediately so clients get instant feedback even
// while the job waits for capacity.
func (s *Scheduler) Enqueue(id domain.FileID, lang domain.Language, hotword string) (*Job, error) {
	if _, err := s.registry.BeginProcessing(id); err != nil {
		return nil, err
	}
	if lang != "" || hotword != "" {
		if _, err := s.registry.Update(id, func(r *domain.FileRecord) error {
			if lang != "" {
				r.Language = lang
			}
			r.Hotword = hotword
			return nil
		}); err != nil {
			return nil, err
		}
	}

	job := &Job{ID: id, sched: s, done: make(chan struct{})}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	select {
	case s.queue <- job:
	default:
		s.release(job)
		s.resetToUploaded(id, "任务队列已满")
		return nil, ErrQueueFull
	}

	metrics.QueuedJobs.Inc()
	s.publisher.Publish(domain.ProgressEvent{
		FileID: id, Status: domain.FileProcessing, Progress: 0, Message: "开始转写",
	})
	return job, nil
}

// Lookup returns the in-flight job for a file, if any.
func (s *Scheduler) Lookup(id domain.FileID) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok
}

// Cancel stops the in-flight job for a file. Without a live job it still sets
// the registry flag so a worker that is between checkpoints observes it.
func (s *Scheduler) Cancel(id domain.FileID) error {
	if job, ok := s.Lookup(id); ok {
		job.Cancel()
		return nil
	}
	_, err := s.registry.Update(id, func(rec *domain.FileRecord) error {
		if rec.Status != domain.FileProcessing {
			return fmt.Errorf("%w: %s is not processing", domain.ErrInvalidTransition, id)
		}
		rec.Cancelled = true
		return nil
	})
	return err
}

// BatchResult partitions a waited submission by final status.
type BatchResult struct {
	Completed []domain.FileID
	Failed    []domain.FileID
	Pending   []domain.FileID
	TimedOut  bool
}

// Wait blocks until every listed job reaches a terminal state or ctx expires,
// then buckets the ids by their status at that moment. Jobs keep running
// after a timeout.
func (s *Scheduler) Wait(ctx context.Context, ids []domain.FileID) BatchResult {
	for _, id := range ids {
		job, ok := s.Lookup(id)
		if !ok {
			continue
		}
		select {
		case <-job.Done():
		case <-ctx.Done():
			return s.classify(ids, true)
		}
	}
	return s.classify(ids, false)
}

func (s *Scheduler) classify(ids []domain.FileID, timedOut bool) BatchResult {
	res := BatchResult{TimedOut: timedOut}
	for _, id := range ids {
		rec, err := s.registry.Get(id)
		switch {
		case err == nil && rec.Status == domain.FileCompleted:
			res.Completed = append(res.Completed, id)
		case err == nil && rec.Status == domain.FileError:
			res.Failed = append(res.Failed, id)
		default:
			res.Pending = append(res.Pending, id)
		}
	}
	return res
}

// Close stops accepting work and waits for running jobs to finish their
// current cancellation checkpoint.
func (s *Scheduler) Close() {
	s.cancel()
	s.dispWG.Wait()
	s.workerWG.Wait()
}

func (s *Scheduler) dispatch() {
	defer s.dispWG.Done()
	defer s.drainQueue()
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.queue:
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				s.release(job)
				return
			}
			metrics.QueuedJobs.Dec()
			s.workerWG.Add(1)
			go s.work(job)
		}
	}
}

// drainQueue releases jobs still sitting in the queue at shutdown so Wait
// callers observe them as done instead of holding until their deadline.
func (s *Scheduler) drainQueue() {
	for {
		select {
		case job := <-s.queue:
			metrics.QueuedJobs.Dec()
			s.release(job)
		default:
			return
		}
	}
}

func (s *Scheduler) work(job *Job) {
	started := s.now()
	defer func() {
		s.sem.Release(1)
		s.release(job)
		s.workerWG.Done()
	}()

	// A job cancelled before pickup never runs.
	if s.isCancelled(job.ID) {
		s.finishCancelled(job.ID, nil)
		return
	}

	rec, err := s.registry.Get(job.ID)
	if err != nil {
		s.logger.Warn("job record vanished before start", slog.String("file_id", string(job.ID)))
		return
	}

	metrics.ActiveJobs.Inc()
	metrics.JobStartsTotal.Inc()
	defer metrics.ActiveJobs.Dec()

	tracker := progress.NewTracker(job.ID, s.publisher, s.logger)
	defer func() {
		tracker.Close()
		tracker.Wait()
	}()

	path := rec.StoredPath
	if s.normalizer != nil {
		normalized, err := s.normalizer.Normalize(s.ctx, path)
		if err != nil {
			s.finishError(job.ID, tracker, fmt.Errorf("audio preprocessing: %w", err))
			return
		}
		path = normalized
	}

	cancelCheck := func() bool { return s.isCancelled(job.ID) }
	progressCb := func(stage string, p int, message string, etaMillis int64) {
		tracker.SetTarget(p, domain.FileProcessing, message, etaMillis)
	}

	segments, meta, err := s.runner.Transcribe(s.ctx, path, rec.Hotword, rec.Language, cancelCheck, progressCb)
	switch {
	case err != nil && errors.Is(err, domain.ErrCancelled):
		s.finishCancelled(job.ID, tracker)
		return
	case err != nil:
		s.finishError(job.ID, tracker, err)
		return
	case s.isCancelled(job.ID):
		// The runner missed the flag; discard the result.
		s.finishCancelled(job.ID, tracker)
		return
	}

	docPath := ""
	if s.renderer != nil {
		docPath, err = s.renderer.RenderTranscriptDoc(segments, ports.DocMeta{
			FileID:        job.ID,
			AudioFilename: rec.OriginalName,
			Language:      rec.Language,
		})
		if err != nil {
			// The transcript itself succeeded; completion stands.
			s.logger.Error("transcript document render failed",
				slog.String("file_id", string(job.ID)), slog.String("error", err.Error()))
			docPath = ""
		}
	}

	now := s.now()
	_, err = s.registry.Update(job.ID, func(r *domain.FileRecord) error {
		r.Segments = segments
		r.TranscriptDocPath = docPath
		r.Status = domain.FileCompleted
		r.Progress = 100
		r.CompleteTime = domain.NewTimestamp(now)
		r.ErrorMessage = ""
		if meta.AudioDuration > 0 {
			r.Duration = meta.AudioDuration
		}
		return nil
	})
	if err != nil {
		s.finishError(job.ID, tracker, fmt.Errorf("persist result: %w", err))
		return
	}

	if err := s.history.Save(s.registry.CompletedRecords()); err != nil {
		s.logger.Error("history save failed",
			slog.String("file_id", string(job.ID)), slog.String("error", err.Error()))
	}

	metrics.JobDuration.Observe(s.now().Sub(started).Seconds())
	tracker.Finish(domain.FileCompleted, 100, completedMessage)
	tracker.Wait()
}

func (s *Scheduler) isCancelled(id domain.FileID) bool {
	rec, err := s.registry.Get(id)
	return err == nil && rec.Cancelled
}

// finishCancelled returns the record to uploaded with progress reset. The
// tracker, when present, emits the terminal event; a job that never started
// publishes it directly.
func (s *Scheduler) finishCancelled(id domain.FileID, tracker *progress.Tracker) {
	metrics.JobCancellationsTotal.Inc()
	s.resetToUploaded(id, cancelledMessage)
	if tracker != nil {
		tracker.Finish(domain.FileUploaded, 0, cancelledMessage)
		tracker.Wait()
		return
	}
	s.publisher.Publish(domain.ProgressEvent{
		FileID: id, Status: domain.FileUploaded, Progress: 0, Message: cancelledMessage,
	})
}

func (s *Scheduler) resetToUploaded(id domain.FileID, message string) {
	_, err := s.registry.Update(id, func(rec *domain.FileRecord) error {
		rec.Status = domain.FileUploaded
		rec.Progress = 0
		rec.ErrorMessage = message
		return nil
	})
	if err != nil {
		s.logger.Warn("reset to uploaded failed",
			slog.String("file_id", string(id)), slog.String("error", err.Error()))
	}
}

func (s *Scheduler) finishError(id domain.FileID, tracker *progress.Tracker, cause error) {
	metrics.JobFailuresTotal.Inc()
	_, err := s.registry.Update(id, func(rec *domain.FileRecord) error {
		rec.Status = domain.FileError
		rec.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		s.logger.Warn("error transition failed",
			slog.String("file_id", string(id)), slog.String("error", err.Error()))
	}
	s.logger.Error("transcription failed",
		slog.String("file_id", string(id)), slog.String("error", cause.Error()))
	tracker.Finish(domain.FileError, 0, cause.Error())
	tracker.Wait()
}

func (s *Scheduler) release(job *Job) {
	s.mu.Lock()
	delete(s.jobs, job.ID)
	s.mu.Unlock()
	close(job.done)
}
