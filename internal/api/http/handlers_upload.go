package apihttp

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"voicescribe/internal/domain"
	"voicescribe/internal/usecase"
)

const multipartMemoryLimit = 32 << 20

type failedUpload struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// handleUpload accepts one or more audio files in the audio_file multipart
// field. Partial failure is reported per file; the batch succeeds when at
// least one file is stored.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeFailure(w, http.StatusBadRequest, "无效的上传请求")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["audio_file"]
	if len(headers) == 0 {
		writeFailure(w, http.StatusBadRequest, "没有选择文件")
		return
	}

	lang := domain.Language(r.FormValue("language"))
	if lang != "" && !lang.Valid() {
		writeFailure(w, http.StatusBadRequest, "不支持的语言: "+string(lang))
		return
	}

	var (
		stored   = make([]fileView, 0, len(headers))
		storedID = make([]domain.FileID, 0, len(headers))
		failed   = make([]failedUpload, 0)
		firstErr error
	)
	for _, header := range headers {
		rec, err := s.storeOne(r, header, lang)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed = append(failed, failedUpload{Filename: header.Filename, Error: uploadErrorMessage(err)})
			s.logger.Warn("upload rejected",
				slog.String("filename", header.Filename), slog.String("error", err.Error()))
			continue
		}
		stored = append(stored, newFileView(rec))
		storedID = append(storedID, rec.ID)
	}

	if len(stored) == 0 {
		writeDomainError(w, firstErr)
		return
	}

	resp := map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("成功上传 %d 个文件", len(stored)),
		"files":    stored,
		"file_ids": storedID,
	}
	if len(failed) > 0 {
		resp["failed_files"] = failed
	}
	if len(stored) == 1 {
		resp["file"] = stored[0]
		resp["file_id"] = storedID[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storeOne(r *http.Request, header *multipart.FileHeader, lang domain.Language) (domain.FileRecord, error) {
	src, err := header.Open()
	if err != nil {
		return domain.FileRecord{}, err
	}
	defer src.Close()

	return s.uploadFile.Execute(r.Context(), usecase.UploadInput{
		OriginalName: header.Filename,
		Size:         header.Size,
		Content:      src,
		Language:     lang,
	})
}

func uploadErrorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrUnsupportedFormat):
		return "不支持的文件格式"
	case errors.Is(err, usecase.ErrUploadTooLarge):
		return "文件大小超过限制"
	case errors.Is(err, usecase.ErrInsufficientDisk):
		return "磁盘空间不足"
	case errors.Is(err, usecase.ErrEmptyUpload):
		return "没有选择文件"
	default:
		return "文件保存失败"
	}
}
