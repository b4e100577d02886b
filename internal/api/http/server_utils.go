package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"voicescribe/internal/domain"
	"voicescribe/internal/scheduler"
	"voicescribe/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// writeDomainError maps domain and usecase sentinel errors onto the HTTP
// error taxonomy. Unknown errors become opaque 500s.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "文件不存在")
	case errors.Is(err, domain.ErrFileProcessing):
		writeFailure(w, http.StatusBadRequest, "文件正在处理中")
	case errors.Is(err, usecase.ErrEmptyUpload):
		writeFailure(w, http.StatusBadRequest, "没有选择文件")
	case errors.Is(err, usecase.ErrUnsupportedFormat):
		writeFailure(w, http.StatusBadRequest, "不支持的文件格式，支持的格式: mp3, wav, m4a, flac, aac, ogg, wma")
	case errors.Is(err, usecase.ErrUploadTooLarge):
		writeFailure(w, http.StatusRequestEntityTooLarge, "文件大小超过限制")
	case errors.Is(err, usecase.ErrInsufficientDisk):
		writeFailure(w, http.StatusInsufficientStorage, "磁盘空间不足")
	case errors.Is(err, scheduler.ErrQueueFull):
		writeFailure(w, http.StatusServiceUnavailable, "任务队列已满")
	case errors.Is(err, domain.ErrNoSegments):
		writeFailure(w, http.StatusBadRequest, "没有转写结果")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeFailure(w, http.StatusBadRequest, err.Error())
	default:
		writeFailure(w, http.StatusInternalServerError, "服务器内部错误")
	}
}

// pathID extracts the trailing id from a prefixed route like
// /api/voice/status/{id}. Nested paths are rejected.
func pathID(path, prefix string) (domain.FileID, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path || strings.Contains(rest, "/") {
		return "", false
	}
	return domain.FileID(rest), true
}

// parseFileIDs accepts the shapes browser clients have historically sent for
// file_ids: a JSON array of strings, a JSON-encoded array inside a string, a
// Python-style list literal inside a string, or a single bare id. file_id is
// the single-file fallback.
func parseFileIDs(raw json.RawMessage, single string) []domain.FileID {
	if len(raw) == 0 {
		if id := strings.TrimSpace(single); id != "" {
			return []domain.FileID{domain.FileID(id)}
		}
		return nil
	}

	var anyList []any
	if err := json.Unmarshal(raw, &anyList); err == nil {
		return flattenIDs(anyList)
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return parseIDString(str)
	}

	// Bare number or similar scalar.
	var scalar any
	if err := json.Unmarshal(raw, &scalar); err == nil && scalar != nil {
		return stringifyID(scalar)
	}
	return nil
}

func parseIDString(s string) []domain.FileID {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var anyList []any
		if err := json.Unmarshal([]byte(s), &anyList); err == nil {
			return flattenIDs(anyList)
		}
		return parseListLiteral(s)
	}
	return []domain.FileID{domain.FileID(s)}
}

// parseListLiteral handles Python repr leakage like "['a', 'b']".
func parseListLiteral(s string) []domain.FileID {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []domain.FileID
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			out = append(out, domain.FileID(part))
		}
	}
	return out
}

func flattenIDs(values []any) []domain.FileID {
	var out []domain.FileID
	for _, v := range values {
		switch val := v.(type) {
		case []any:
			out = append(out, flattenIDs(val)...)
		default:
			out = append(out, stringifyID(val)...)
		}
	}
	return out
}

func stringifyID(v any) []domain.FileID {
	switch val := v.(type) {
	case string:
		return parseIDString(val)
	case float64:
		return []domain.FileID{domain.FileID(strconv.FormatFloat(val, 'f', -1, 64))}
	default:
		return nil
	}
}

func nonNilIDs(ids []domain.FileID) []domain.FileID {
	if ids == nil {
		return []domain.FileID{}
	}
	return ids
}

func parseBoolQuery(r *http.Request, name string, fallback bool) bool {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

type downloadURLs struct {
	Audio      string `json:"audio"`
	Transcript string `json:"transcript,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// buildDownloadURLs derives API download links. Raw server paths never leave
// the process.
func buildDownloadURLs(rec domain.FileRecord) downloadURLs {
	u := downloadURLs{Audio: "/api/voice/audio/" + string(rec.ID) + "?download=1"}
	if rec.TranscriptDocPath != "" {
		u.Transcript = "/api/voice/download_transcript/" + string(rec.ID)
	}
	if rec.Summary != nil {
		u.Summary = "/api/voice/download_summary/" + string(rec.ID)
	}
	return u
}

type fileView struct {
	domain.FileRecord
	DownloadURLs downloadURLs `json:"download_urls"`
}

func newFileView(rec domain.FileRecord) fileView {
	return fileView{FileRecord: rec, DownloadURLs: buildDownloadURLs(rec)}
}

type transcriptStatistics struct {
	SpeakersCount   int      `json:"speakers_count"`
	SegmentsCount   int      `json:"segments_count"`
	TotalCharacters int      `json:"total_characters"`
	Speakers        []string `json:"speakers"`
}

func buildTranscriptStatistics(segments []domain.Segment) transcriptStatistics {
	stats := transcriptStatistics{
		SegmentsCount: len(segments),
		Speakers:      []string{},
	}
	seen := make(map[string]struct{})
	for _, seg := range segments {
		stats.TotalCharacters += utf8.RuneCountInString(seg.Text)
		if seg.Speaker == "" {
			continue
		}
		if _, ok := seen[seg.Speaker]; !ok {
			seen[seg.Speaker] = struct{}{}
			stats.Speakers = append(stats.Speakers, seg.Speaker)
		}
	}
	stats.SpeakersCount = len(stats.Speakers)
	return stats
}
