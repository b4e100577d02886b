package apihttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voicescribe/internal/domain"
)

type transcribeRequest struct {
	FileID   string          `json:"file_id"`
	FileIDs  json.RawMessage `json:"file_ids"`
	Language string          `json:"language"`
	Hotword  string          `json:"hotword"`
	Wait     *bool           `json:"wait"`
	Timeout  int             `json:"timeout"`
}

type transcribeResult struct {
	FileID       domain.FileID     `json:"file_id"`
	Filename     string            `json:"filename"`
	Status       domain.FileStatus `json:"status"`
	Progress     int               `json:"progress"`
	UploadTime   domain.Timestamp  `json:"upload_time"`
	CompleteTime domain.Timestamp  `json:"complete_time"`
	Transcript   []domain.Segment  `json:"transcript,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// handleTranscribe submits a batch of files to the scheduler. With wait (the
// default) the call blocks until every job finishes or the deadline passes;
// jobs keep running after a timeout and the client falls back to polling.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "无效的请求体")
		return
	}

	ids := parseFileIDs(req.FileIDs, req.FileID)
	if len(ids) == 0 {
		writeFailure(w, http.StatusBadRequest, "没有指定文件")
		return
	}

	lang := domain.Language(req.Language)
	if lang != "" && !lang.Valid() {
		writeFailure(w, http.StatusBadRequest, "不支持的语言: "+req.Language)
		return
	}

	// Validate the whole batch before starting anything so a bad id does not
	// leave half the batch running.
	for _, id := range ids {
		rec, err := s.registry.Get(id)
		if err != nil {
			writeFailure(w, http.StatusNotFound, fmt.Sprintf("文件ID %s 不存在", id))
			return
		}
		if rec.Status == domain.FileProcessing {
			writeFailure(w, http.StatusBadRequest, fmt.Sprintf("文件 %s 正在处理中", id))
			return
		}
	}

	for _, id := range ids {
		if _, err := s.sched.Enqueue(id, lang, req.Hotword); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if req.Wait != nil && !*req.Wait {
		resp := map[string]any{
			"success":  true,
			"status":   "processing",
			"message":  fmt.Sprintf("已开始转写 %d 个文件", len(ids)),
			"file_ids": ids,
			"count":    len(ids),
			"progress": 0,
		}
		if len(ids) == 1 {
			resp["file_id"] = ids[0]
			if rec, err := s.registry.Get(ids[0]); err == nil {
				resp["filename"] = rec.OriginalName
			}
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	timeout := s.waitTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	res := s.sched.Wait(ctx, ids)

	results := make([]transcribeResult, 0, len(ids))
	for _, id := range ids {
		rec, err := s.registry.Get(id)
		if err != nil || rec.Status == domain.FileProcessing {
			continue
		}
		results = append(results, buildTranscribeResult(rec))
	}

	if res.TimedOut {
		resp := map[string]any{
			"success":            false,
			"status":             "timeout",
			"message":            "部分任务未在超时时间内完成",
			"completed_file_ids": nonNilIDs(res.Completed),
			"failed_file_ids":    nonNilIDs(res.Failed),
			"pending_file_ids":   nonNilIDs(res.Pending),
			"results":            results,
		}
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	resp := map[string]any{
		"success":  len(res.Failed) == 0,
		"status":   "completed",
		"message":  fmt.Sprintf("转写完成 %d 个文件", len(res.Completed)),
		"file_ids": nonNilIDs(res.Completed),
		"results":  results,
	}
	if len(ids) == 1 && len(results) == 1 {
		// Single-file callers read the result fields off the envelope.
		only := results[0]
		resp["file_id"] = only.FileID
		resp["filename"] = only.Filename
		resp["status"] = only.Status
		resp["progress"] = only.Progress
		if only.Transcript != nil {
			resp["transcript"] = only.Transcript
		}
		if only.ErrorMessage != "" {
			resp["error_message"] = only.ErrorMessage
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func buildTranscribeResult(rec domain.FileRecord) transcribeResult {
	return transcribeResult{
		FileID:       rec.ID,
		Filename:     rec.OriginalName,
		Status:       rec.Status,
		Progress:     rec.Progress,
		UploadTime:   rec.UploadTime,
		CompleteTime: rec.CompleteTime,
		Transcript:   domain.StripWords(rec.Segments),
		ErrorMessage: rec.ErrorMessage,
	}
}

// handleStop sets the cooperative cancellation flag for an in-flight job.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/voice/stop/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "文件不存在")
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec.Status != domain.FileProcessing {
		writeFailure(w, http.StatusBadRequest, "文件未在转写中")
		return
	}
	if err := s.sched.Cancel(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "已停止转写",
		"file_id": id,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/voice/status/")
	if !ok {
		writeFailure(w, http.StatusNotFound, "文件不存在")
		return
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"file_id":       rec.ID,
		"status":        rec.Status,
		"progress":      rec.Progress,
		"error_message": rec.ErrorMessage,
	})
}

// handleResult returns the full transcript, word alignment included, for a
// completed file.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := pathID(r.URL.Path, "/api/voice/result/")
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

	resp := map[string]any{
		"success": true,
		"file_info": map[string]any{
			"id":            rec.ID,
			"original_name": rec.OriginalName,
			"upload_time":   rec.UploadTime,
		},
		"transcript": rec.Segments,
	}
	if rec.Summary != nil {
		resp["summary"] = rec.Summary
	}
	writeJSON(w, http.StatusOK, resp)
}
