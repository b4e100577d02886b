package domain

// ProgressEvent is one status tick for one file, produced by the tracker and
// fanned out to websocket clients.
type ProgressEvent struct {
	FileID   FileID     `json:"file_id"`
	Status   FileStatus `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message"`
}

// Terminal reports whether this is the last event of a run: completion,
// failure, or the return to uploaded after a cancellation.
func (e ProgressEvent) Terminal() bool {
	return e.Status.Terminal() || (e.Status == FileUploaded && e.Progress == 0)
}
