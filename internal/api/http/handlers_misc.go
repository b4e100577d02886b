package apihttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"voicescribe/internal/domain"
)

type historyEntry struct {
	FileID         domain.FileID    `json:"file_id"`
	Filename       string           `json:"filename"`
	TranscribeTime domain.Timestamp `json:"transcribe_time"`
	Status         string           `json:"status"`
	Details        string           `json:"details"`
}

// handleHistory summarises the persisted completed records, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var records []domain.FileRecord
	if s.history != nil {
		loaded, err := s.history.Load()
		if err != nil {
			s.logger.Warn("history load failed", slog.String("error", err.Error()))
		} else {
			records = loaded
		}
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		stats := buildTranscriptStatistics(rec.Segments)
		entries = append(entries, historyEntry{
			FileID:         rec.ID,
			Filename:       rec.OriginalName,
			TranscribeTime: rec.CompleteTime,
			Status:         string(domain.FileCompleted),
			Details:        fmt.Sprintf("%d位发言人, %d段对话", stats.SpeakersCount, stats.SegmentsCount),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TranscribeTime.After(entries[j].TranscribeTime.Time)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"records": entries,
		"total":   len(entries),
	})
}

type languageView struct {
	Value       domain.Language `json:"value"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	options := domain.LanguageOptions()
	views := make([]languageView, 0, len(options))
	for _, opt := range options {
		views = append(views, languageView{Value: opt.Code, Name: opt.Name, Description: opt.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"languages": views,
	})
}

// handleHealthz reports liveness plus informational checks. Low disk is
// surfaced but never fails the probe; uploads are refused separately.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{}
	if s.registry != nil {
		_, counts, _ := s.registry.List(domain.FileFilter{})
		checks["registry"] = map[string]any{
			"status":     "ok",
			"files":      counts.Total,
			"processing": counts.Processing,
		}
	}
	if s.disk != nil {
		diskStatus := "ok"
		if s.disk.Low() {
			diskStatus = "low"
		}
		checks["disk"] = map[string]any{
			"status":     diskStatus,
			"free_bytes": s.disk.FreeBytes(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   domain.Now(),
		"checks": checks,
	})
}
