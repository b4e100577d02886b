package domain

import "errors"

type FileID string

// FileRecord is the unit of work: one uploaded audio file and everything the
// pipeline has produced for it so far. JSON tags define the persisted history
// format; HTTP responses are built from explicit views in the API layer.
type FileRecord struct {
	ID           FileID     `json:"id"`
	StoredName   string     `json:"filename"`
	OriginalName string     `json:"original_name"`
	StoredPath   string     `json:"filepath"`
	SizeBytes    int64      `json:"size"`
	Duration     float64    `json:"duration,omitempty"`
	UploadTime   Timestamp  `json:"upload_time"`
	CompleteTime Timestamp  `json:"complete_time"`
	Status       FileStatus `json:"status"`
	Progress     int        `json:"progress"`
	Language     Language   `json:"language,omitempty"`
	Hotword      string     `json:"hotword,omitempty"`
	ErrorMessage string     `json:"error_message"`

	// Cancelled is the cooperative stop flag read by a running worker.
	// It is process-local and never persisted.
	Cancelled bool `json:"-"`

	Segments          []Segment `json:"transcript_data,omitempty"`
	TranscriptDocPath string    `json:"transcript_file,omitempty"`
	SummaryDocPath    string    `json:"summary_file,omitempty"`
	Summary           *Summary  `json:"meeting_summary,omitempty"`
}

// Segment is one speaker-attributed utterance.
type Segment struct {
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Words     []Word  `json:"words,omitempty"`
}

// Word carries per-word alignment inside a segment.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Summary is the stored result of an LLM summarisation run.
type Summary struct {
	RawText     string    `json:"raw_text"`
	GeneratedAt Timestamp `json:"generated_at"`
	ModelKey    string    `json:"model"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// Validate checks domain invariants for FileRecord.
func (r FileRecord) Validate() error {
	if r.ID == "" {
		return errors.New("file id is required")
	}
	if r.StoredName == "" {
		return errors.New("stored filename is required")
	}
	if r.SizeBytes < 0 {
		return errors.New("size must not be negative")
	}
	if r.Progress < 0 || r.Progress > 100 {
		return errors.New("progress must be within 0..100")
	}
	if r.Status == "" {
		return errors.New("status is required")
	}
	if !r.Status.Valid() {
		return errors.New("invalid status: " + string(r.Status))
	}
	return nil
}

// Clone returns a deep copy so callers can read a snapshot without holding
// any registry lock.
func (r FileRecord) Clone() FileRecord {
	out := r
	if r.Segments != nil {
		out.Segments = make([]Segment, len(r.Segments))
		for i, seg := range r.Segments {
			out.Segments[i] = seg
			if seg.Words != nil {
				out.Segments[i].Words = append([]Word(nil), seg.Words...)
			}
		}
	}
	if r.Summary != nil {
		s := *r.Summary
		out.Summary = &s
	}
	return out
}

// StripWords returns segments without word-level alignment, the shape used by
// list and batch-transcribe responses.
func StripWords(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		seg.Words = nil
		out[i] = seg
	}
	return out
}
