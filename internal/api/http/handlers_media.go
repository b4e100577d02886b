package apihttp

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// handleAudio streams the stored audio. With download=1 the response is an
// attachment named after the original upload; otherwise it plays inline and
// supports range requests for seeking.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/voice/audio/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "文件不存在")
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec.StoredPath == "" {
		writeFailure(w, http.StatusNotFound, "音频文件不存在")
		return
	}
	if _, err := os.Stat(rec.StoredPath); err != nil {
		writeFailure(w, http.StatusNotFound, "音频文件不存在")
		return
	}

	if r.URL.Query().Get("download") == "1" {
		setAttachment(w, rec.OriginalName)
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	http.ServeFile(w, r, rec.StoredPath)
}

func (s *Server) handleDownloadTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/voice/download_transcript/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "文件不存在")
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec.Status != domain.FileCompleted {
		writeFailure(w, http.StatusBadRequest, "文件转写未完成")
		return
	}

	path := rec.TranscriptDocPath
	if !fileExists(path) {
		path = s.regenerateTranscriptDoc(rec)
	}
	if path == "" {
		writeFailure(w, http.StatusNotFound, "转录文档不存在")
		return
	}
	s.serveDocx(w, r, path)
}

func (s *Server) handleDownloadSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/voice/download_summary/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "文件不存在")
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec.Summary == nil {
		writeFailure(w, http.StatusBadRequest, "请先生成会议纪要")
		return
	}

	path := rec.SummaryDocPath
	if !fileExists(path) {
		path = s.regenerateSummaryDoc(rec)
	}
	if path == "" {
		writeFailure(w, http.StatusNotFound, "纪要文档不存在")
		return
	}
	s.serveDocx(w, r, path)
}

// regenerateTranscriptDoc rebuilds a transcript document whose file went
// missing, for example after the data volume was pruned.
func (s *Server) regenerateTranscriptDoc(rec domain.FileRecord) string {
	if s.renderer == nil || len(rec.Segments) == 0 {
		return ""
	}
	path, err := s.renderer.RenderTranscriptDoc(rec.Segments, ports.DocMeta{
		FileID:        rec.ID,
		AudioFilename: rec.OriginalName,
		Language:      rec.Language,
	})
	if err != nil {
		s.logger.Error("transcript document regeneration failed",
			slog.String("file_id", string(rec.ID)), slog.String("error", err.Error()))
		return ""
	}
	s.persistDocPath(rec.ID, func(r *domain.FileRecord) { r.TranscriptDocPath = path })
	return path
}

func (s *Server) regenerateSummaryDoc(rec domain.FileRecord) string {
	if s.renderer == nil || rec.Summary == nil || len(rec.Segments) == 0 {
		return ""
	}
	path, err := s.renderer.RenderSummaryDoc(rec.Segments, *rec.Summary, ports.DocMeta{
		FileID:        rec.ID,
		AudioFilename: rec.OriginalName,
		Language:      rec.Language,
	})
	if err != nil {
		s.logger.Error("summary document regeneration failed",
			slog.String("file_id", string(rec.ID)), slog.String("error", err.Error()))
		return ""
	}
	s.persistDocPath(rec.ID, func(r *domain.FileRecord) { r.SummaryDocPath = path })
	return path
}

func (s *Server) persistDocPath(id domain.FileID, set func(*domain.FileRecord)) {
	if _, err := s.registry.Update(id, func(r *domain.FileRecord) error {
		set(r)
		return nil
	}); err != nil {
		s.logger.Warn("document path update failed",
			slog.String("file_id", string(id)), slog.String("error", err.Error()))
	}
}

func (s *Server) serveDocx(w http.ResponseWriter, r *http.Request, path string) {
	setAttachment(w, filepath.Base(path))
	w.Header().Set("Content-Type", docxContentType)
	http.ServeFile(w, r, path)
}

func setAttachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
