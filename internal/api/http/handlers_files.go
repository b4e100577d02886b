package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"voicescribe/internal/domain"
	"voicescribe/internal/summary"
)

// handleFiles lists the registry, optionally folding persisted history in
// first so completed files from earlier runs show up too.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filter := domain.FileFilter{
		Limit:          parseIntQuery(r, "limit", 0),
		Offset:         parseIntQuery(r, "offset", 0),
		IncludeHistory: parseBoolQuery(r, "include_history", false),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.FileStatus(raw)
		if !status.Valid() {
			writeFailure(w, http.StatusBadRequest, "无效的状态: "+raw)
			return
		}
		filter.Status = &status
	}

	if filter.IncludeHistory && s.history != nil {
		records, err := s.history.Load()
		if err != nil {
			s.logger.Warn("history load for listing failed", slog.String("error", err.Error()))
		} else {
			s.registry.MergeHistory(records)
		}
	}

	result := s.listFiles.Execute(r.Context(), filter)
	views := make([]fileView, 0, len(result.Records))
	for _, rec := range result.Records {
		views = append(views, newFileView(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   views,
		"pagination": map[string]any{
			"total":    result.Total,
			"limit":    filter.Limit,
			"offset":   filter.Offset,
			"returned": len(views),
		},
		"statistics": result.Statistics,
	})
}

func (s *Server) handleFileByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r.URL.Path, "/api/voice/files/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "文件不存在")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleFileDetail(w, r, id)
	case http.MethodPatch:
		s.handleFilePatch(w, r, id)
	case http.MethodDelete:
		s.handleFileDelete(w, r, id)
	default:
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleFileDetail(w http.ResponseWriter, r *http.Request, id domain.FileID) {
	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	file := map[string]any{
		"id":            rec.ID,
		"filename":      rec.OriginalName,
		"size":          rec.SizeBytes,
		"duration":      rec.Duration,
		"status":        rec.Status,
		"progress":      rec.Progress,
		"language":      rec.Language,
		"upload_time":   rec.UploadTime,
		"complete_time": rec.CompleteTime,
		"error_message": rec.ErrorMessage,
		"download_urls": buildDownloadURLs(rec),
	}
	resp := map[string]any{
		"success": true,
		"file":    file,
	}
	if parseBoolQuery(r, "include_transcript", false) && rec.Status == domain.FileCompleted {
		resp["transcript"] = rec.Segments
		resp["statistics"] = buildTranscriptStatistics(rec.Segments)
	}
	if parseBoolQuery(r, "include_summary", false) && rec.Summary != nil {
		resp["summary"] = rec.Summary
	}
	writeJSON(w, http.StatusOK, resp)
}

type filePatchRequest struct {
	Action   string `json:"action"`
	Language string `json:"language"`
	Hotword  string `json:"hotword"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
}

func (s *Server) handleFilePatch(w http.ResponseWriter, r *http.Request, id domain.FileID) {
	var req filePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "无效的请求体")
		return
	}

	switch req.Action {
	case "retranscribe":
		s.handleRetranscribe(w, id, req)
	case "generate_summary":
		s.runGenerateSummary(w, r, id, req.Prompt, req.Model)
	default:
		writeFailure(w, http.StatusBadRequest, "不支持的操作: "+req.Action)
	}
}

func (s *Server) handleRetranscribe(w http.ResponseWriter, id domain.FileID, req filePatchRequest) {
	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec.Status == domain.FileProcessing {
		writeFailure(w, http.StatusBadRequest, "文件正在处理中")
		return
	}
	lang := domain.Language(req.Language)
	if lang != "" && !lang.Valid() {
		writeFailure(w, http.StatusBadRequest, "不支持的语言: "+req.Language)
		return
	}
	if _, err := s.sched.Enqueue(id, lang, req.Hotword); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "已开始重新转写",
		"file_id": id,
		"status":  domain.FileProcessing,
	})
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request, id domain.FileID) {
	if id == "_clear_all" {
		result, err := s.deleteFile.ClearAll(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "清空所有历史记录成功",
			"deleted": result.Deleted,
			"skipped": result.Skipped,
		})
		return
	}

	if err := s.deleteFile.Execute(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "文件删除成功",
		"file_id": id,
	})
}

type generateSummaryRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// handleGenerateSummary is the pre-PATCH route kept for older clients.
func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/voice/generate_summary/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "文件不存在")
		return
	}

	var req generateSummaryRequest
	if r.Body != nil {
		// Body is optional here; older clients post without one.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	s.runGenerateSummary(w, r, id, req.Prompt, req.Model)
}

func (s *Server) runGenerateSummary(w http.ResponseWriter, r *http.Request, id domain.FileID, prompt, model string) {
	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec.Status != domain.FileCompleted {
		writeFailure(w, http.StatusBadRequest, "文件转写未完成")
		return
	}

	sum, err := s.generateSummary.Execute(r.Context(), summary.GenerateInput{
		FileID: id,
		Prompt: prompt,
		Model:  model,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "会议纪要生成成功",
		"file_id": id,
		"summary": sum,
	})
}
