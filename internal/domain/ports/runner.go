package ports

import (
	"context"

	"voicescribe/internal/domain"
)

// ProgressFunc receives raw progress reports from the runner. Progress is a
// target percentage 0..100; etaMillis is the runner's estimate of time left
// to reach it (0 when unknown).
type ProgressFunc func(stage string, progress int, message string, etaMillis int64)

// CancelFunc is polled by the runner at stage boundaries; returning true asks
// the runner to abandon the job.
type CancelFunc func() bool

// TranscribeMeta carries runner-side facts about a finished job.
type TranscribeMeta struct {
	AudioDuration float64
	ModelName     string
}

// Transcriber is the external speech-recognition runner. Implementations must
// return domain.ErrCancelled (possibly wrapped) when cancelCheck fires.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, hotword string, lang domain.Language,
		cancelCheck CancelFunc, progress ProgressFunc) ([]domain.Segment, TranscribeMeta, error)
}

// Normalizer converts audio to the runner's target format (16 kHz mono WAV).
// It may return the input path unchanged when no conversion is needed.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// AudioProber reports duration and format of an uploaded file.
type AudioProber interface {
	Probe(ctx context.Context, path string) (AudioInfo, error)
}

type AudioInfo struct {
	DurationSeconds float64
	Format          string
	SampleRate      int
	Channels        int
}
