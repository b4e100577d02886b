package domain

type FileStatus string

const (
	FileUploaded   FileStatus = "uploaded"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileError      FileStatus = "error"
)

// SortPriority orders file listings: in-flight work first, failures last.
func (s FileStatus) SortPriority() int {
	switch s {
	case FileProcessing:
		return 0
	case FileUploaded:
		return 1
	case FileCompleted:
		return 2
	case FileError:
		return 3
	default:
		return 4
	}
}

// Terminal reports whether a transcription run can no longer change the
// status on its own.
func (s FileStatus) Terminal() bool {
	return s == FileCompleted || s == FileError
}

func (s FileStatus) Valid() bool {
	switch s {
	case FileUploaded, FileProcessing, FileCompleted, FileError:
		return true
	}
	return false
}
