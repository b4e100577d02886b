package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"voicescribe/internal/domain"
	"voicescribe/internal/history"
	"voicescribe/internal/registry"
)

type DeleteFile struct {
	Registry *registry.Registry
	History  *history.Store
	Logger   *slog.Logger
}

// Execute removes the record and its on-disk artifacts. Files still being
// transcribed must be stopped first; the registry enforces that.
func (uc DeleteFile) Execute(ctx context.Context, id domain.FileID) error {
	removed, err := uc.Registry.Remove(id)
	if err != nil {
		return err
	}
	uc.removeArtifacts(removed)

	if uc.History != nil {
		if err := uc.History.Save(uc.Registry.CompletedRecords()); err != nil {
			uc.logger().Warn("history save after delete failed",
				slog.String("file_id", string(id)), slog.String("error", err.Error()))
		}
	}
	return nil
}

type ClearAllResult struct {
	Deleted int
	Skipped int
}

// ClearAll deletes every record that is not actively transcribing. In-flight
// files are left in place and counted as skipped.
func (uc DeleteFile) ClearAll(ctx context.Context) (ClearAllResult, error) {
	records, _, _ := uc.Registry.List(domain.FileFilter{})

	var result ClearAllResult
	for _, rec := range records {
		removed, err := uc.Registry.Remove(rec.ID)
		if err != nil {
			if errors.Is(err, domain.ErrFileProcessing) {
				result.Skipped++
				continue
			}
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return result, err
		}
		uc.removeArtifacts(removed)
		result.Deleted++
	}

	if uc.History != nil {
		if err := uc.History.Save(uc.Registry.CompletedRecords()); err != nil {
			uc.logger().Warn("history save after clear failed",
				slog.String("error", err.Error()))
		}
	}
	uc.logger().Info("cleared file records",
		slog.Int("deleted", result.Deleted), slog.Int("skipped", result.Skipped))
	return result, nil
}

func (uc DeleteFile) removeArtifacts(rec domain.FileRecord) {
	for _, path := range []string{rec.StoredPath, rec.TranscriptDocPath, rec.SummaryDocPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			uc.logger().Warn("artifact removal failed",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

func (uc DeleteFile) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
