package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"voicescribe/internal/domain"
	"voicescribe/internal/metrics"
)

// Registry is the authoritative in-memory catalogue of file records. All
// reads return deep copies; all writes go through mutation closures that are
// validated before commit, so a rejected mutation leaves no trace.
type Registry struct {
	mu    sync.RWMutex
	files map[domain.FileID]*domain.FileRecord

	// Index sets kept in lockstep with record status for O(1) scheduling
	// decisions.
	processing map[domain.FileID]struct{}
	completed  map[domain.FileID]struct{}

	logger *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		files:      make(map[domain.FileID]*domain.FileRecord),
		processing: make(map[domain.FileID]struct{}),
		completed:  make(map[domain.FileID]struct{}),
		logger:     logger,
	}
}

// Add stores a new record. The record must be in uploaded state.
func (r *Registry) Add(rec domain.FileRecord) (domain.FileID, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if rec.Status != domain.FileUploaded {
		return "", fmt.Errorf("%w: new records must be uploaded, got %s",
			domain.ErrInvalidTransition, rec.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[rec.ID]; ok {
		return "", fmt.Errorf("%w: %s", domain.ErrDuplicateID, rec.ID)
	}
	stored := rec.Clone()
	r.files[rec.ID] = &stored
	r.reindexLocked(rec.ID, rec.Status)
	r.publishGaugesLocked()
	return rec.ID, nil
}

// Get returns a snapshot copy of one record.
func (r *Registry) Get(id domain.FileID) (domain.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.files[id]
	if !ok {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List returns a sorted, filtered, paginated snapshot slice together with
// unfiltered per-status counts and the filtered total (for pagination).
func (r *Registry) List(filter domain.FileFilter) ([]domain.FileRecord, domain.StatusCounts, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts domain.StatusCounts
	matched := make([]domain.FileRecord, 0, len(r.files))
	for _, rec := range r.files {
		counts.Add(rec.Status)
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		matched = append(matched, rec.Clone())
	}

	sort.SliceStable(matched, func(i, j int) bool {
		pi, pj := matched[i].Status.SortPriority(), matched[j].Status.SortPriority()
		if pi != pj {
			return pi < pj
		}
		return matched[i].UploadTime.After(matched[j].UploadTime.Time)
	})

	total := len(matched)
	matched = applyWindow(matched, filter.Limit, filter.Offset)
	return matched, counts, total
}

// Update runs mut on a working copy of the record under the lock and commits
// the copy only if it passes invariant checks. The new snapshot is returned.
func (r *Registry) Update(id domain.FileID, mut func(*domain.FileRecord) error) (domain.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[id]
	if !ok {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	next := rec.Clone()
	if err := mut(&next); err != nil {
		return domain.FileRecord{}, err
	}
	if err := validateMutation(*rec, next); err != nil {
		r.logger.Warn("registry mutation rejected",
			slog.String("file_id", string(id)), slog.String("reason", err.Error()))
		return domain.FileRecord{}, err
	}

	*rec = next
	r.reindexLocked(id, next.Status)
	r.publishGaugesLocked()
	return next.Clone(), nil
}

// Remove deletes a record. Removal of an in-flight record is forbidden until
// it has been cancelled.
func (r *Registry) Remove(id domain.FileID) (domain.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[id]
	if !ok {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if rec.Status == domain.FileProcessing && !rec.Cancelled {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", domain.ErrFileProcessing, id)
	}

	removed := rec.Clone()
	delete(r.files, id)
	delete(r.processing, id)
	delete(r.completed, id)
	r.publishGaugesLocked()
	return removed, nil
}

// BeginProcessing atomically claims a file for a worker. It fails when the
// file is already in flight or in a state that may not re-enter processing.
func (r *Registry) BeginProcessing(id domain.FileID) (domain.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.files[id]
	if !ok {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if _, inFlight := r.processing[id]; inFlight {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", domain.ErrFileProcessing, id)
	}
	if rec.Status == domain.FileCompleted {
		return domain.FileRecord{}, fmt.Errorf("%w: completed file %s cannot be reprocessed",
			domain.ErrInvalidTransition, id)
	}

	rec.Status = domain.FileProcessing
	rec.Progress = 0
	rec.ErrorMessage = ""
	rec.Cancelled = false
	r.reindexLocked(id, rec.Status)
	r.publishGaugesLocked()
	return rec.Clone(), nil
}

// MergeHistory folds history-store records into the catalogue. Live records
// that are uploaded or in flight are never overwritten.
func (r *Registry) MergeHistory(records []domain.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if live, ok := r.files[rec.ID]; ok {
			if live.Status == domain.FileProcessing || live.Status == domain.FileUploaded {
				continue
			}
		}
		stored := rec.Clone()
		r.files[rec.ID] = &stored
		r.reindexLocked(rec.ID, rec.Status)
	}
	r.publishGaugesLocked()
}

// CompletedRecords returns the completed subset, the payload of every history
// save.
func (r *Registry) CompletedRecords() []domain.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.FileRecord, 0, len(r.completed))
	for id := range r.completed {
		if rec, ok := r.files[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadTime.Before(out[j].UploadTime.Time) })
	return out
}

// ProcessingCount reports how many files are currently claimed by workers.
func (r *Registry) ProcessingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processing)
}

func (r *Registry) reindexLocked(id domain.FileID, status domain.FileStatus) {
	delete(r.processing, id)
	delete(r.completed, id)
	switch status {
	case domain.FileProcessing:
		r.processing[id] = struct{}{}
	case domain.FileCompleted:
		r.completed[id] = struct{}{}
	}
}

func (r *Registry) publishGaugesLocked() {
	var counts domain.StatusCounts
	for _, rec := range r.files {
		counts.Add(rec.Status)
	}
	metrics.FilesTotal.WithLabelValues(string(domain.FileUploaded)).Set(float64(counts.Uploaded))
	metrics.FilesTotal.WithLabelValues(string(domain.FileProcessing)).Set(float64(counts.Processing))
	metrics.FilesTotal.WithLabelValues(string(domain.FileCompleted)).Set(float64(counts.Completed))
	metrics.FilesTotal.WithLabelValues(string(domain.FileError)).Set(float64(counts.Error))
}

func validateMutation(old, next domain.FileRecord) error {
	if next.ID != old.ID {
		return fmt.Errorf("%w: id is immutable", domain.ErrInvalidTransition)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Status == old.Status && next.Progress < old.Progress && old.Status != domain.FileError {
		return fmt.Errorf("%w: %d -> %d", domain.ErrProgressRegression, old.Progress, next.Progress)
	}
	if old.Status == domain.FileCompleted && next.Status != domain.FileCompleted {
		return fmt.Errorf("%w: completed is terminal", domain.ErrInvalidTransition)
	}
	if old.Status == domain.FileError && next.Status != domain.FileError && next.Status != domain.FileProcessing {
		return fmt.Errorf("%w: error may only re-enter processing", domain.ErrInvalidTransition)
	}
	return nil
}

func applyWindow(records []domain.FileRecord, limit, offset int) []domain.FileRecord {
	if offset > 0 {
		if offset >= len(records) {
			return nil
		}
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
