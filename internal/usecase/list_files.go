package usecase

import (
	"context"

	"voicescribe/internal/domain"
	"voicescribe/internal/registry"
)

type ListFiles struct {
	Registry *registry.Registry
}

type ListResult struct {
	Records    []domain.FileRecord
	Statistics domain.StatusCounts
	Total      int // filtered total before pagination
}

// Execute returns the catalogue view for listings. Word-level alignment is
// stripped; the detail endpoint serves it on request.
func (uc ListFiles) Execute(ctx context.Context, filter domain.FileFilter) ListResult {
	records, counts, total := uc.Registry.List(filter)
	for i := range records {
		records[i].Segments = domain.StripWords(records[i].Segments)
	}
	return ListResult{Records: records, Statistics: counts, Total: total}
}
