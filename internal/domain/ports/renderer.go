package ports

import "voicescribe/internal/domain"

// DocMeta names the audio a document belongs to.
type DocMeta struct {
	FileID        domain.FileID
	AudioFilename string
	Language      domain.Language
}

// DocumentRenderer produces the downloadable Word artifacts. Both calls
// return the absolute path of the written file.
type DocumentRenderer interface {
	RenderTranscriptDoc(segments []domain.Segment, meta DocMeta) (string, error)
	RenderSummaryDoc(segments []domain.Segment, summary domain.Summary, meta DocMeta) (string, error)
}
