package domain

type FileFilter struct {
	Status         *FileStatus `json:"status,omitempty"`
	Limit          int         `json:"limit,omitempty"`
	Offset         int         `json:"offset,omitempty"`
	IncludeHistory bool        `json:"includeHistory,omitempty"`
}

// StatusCounts holds unfiltered per-status totals for the statistics block.
type StatusCounts struct {
	Total      int `json:"total_files"`
	Uploaded   int `json:"uploaded"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
}

func (c *StatusCounts) Add(s FileStatus) {
	c.Total++
	switch s {
	case FileUploaded:
		c.Uploaded++
	case FileProcessing:
		c.Processing++
	case FileCompleted:
		c.Completed++
	case FileError:
		c.Error++
	}
}
