package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
	"voicescribe/internal/metrics"
	"voicescribe/internal/registry"
)

// allowedExtensions is the closed set of audio formats accepted for upload.
var allowedExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".flac": {},
	".aac":  {},
	".ogg":  {},
	".wma":  {},
}

type UploadFile struct {
	Registry     *registry.Registry
	Prober       ports.AudioProber
	UploadDir    string
	MaxBytes     int64 // 0 = unlimited
	MinFreeBytes int64 // 0 = disabled
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string
}

type UploadInput struct {
	OriginalName string
	Size         int64 // advisory; the copy is bounded regardless
	Content      io.Reader
	Language     domain.Language
}

func (uc UploadFile) Execute(ctx context.Context, input UploadInput) (domain.FileRecord, error) {
	now := time.Now
	if uc.Now != nil {
		now = uc.Now
	}
	newID := uuid.NewString
	if uc.NewID != nil {
		newID = uc.NewID
	}
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	original := filepath.Base(strings.TrimSpace(input.OriginalName))
	if original == "" || original == "." || original == string(filepath.Separator) {
		return domain.FileRecord{}, ErrEmptyUpload
	}
	ext := strings.ToLower(filepath.Ext(original))
	if _, ok := allowedExtensions[ext]; !ok {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if uc.MaxBytes > 0 && input.Size > uc.MaxBytes {
		return domain.FileRecord{}, ErrUploadTooLarge
	}
	if uc.MinFreeBytes > 0 {
		if free, err := diskFreeBytes(uc.UploadDir); err == nil && free < uc.MinFreeBytes {
			return domain.FileRecord{}, ErrInsufficientDisk
		}
	}

	if err := os.MkdirAll(uc.UploadDir, 0o755); err != nil {
		return domain.FileRecord{}, wrapStorage(err)
	}

	uploadedAt := now()
	fileID := newID()
	storedName := storedFileName(original, uploadedAt, fileID)
	storedPath := filepath.Join(uc.UploadDir, storedName)

	written, err := uc.writeUpload(storedPath, input.Content)
	if err != nil {
		return domain.FileRecord{}, err
	}

	lang := input.Language
	if lang == "" {
		lang = domain.LangMandarin
	}
	rec := domain.FileRecord{
		ID:           domain.FileID(fileID),
		StoredName:   storedName,
		OriginalName: original,
		StoredPath:   storedPath,
		SizeBytes:    written,
		UploadTime:   domain.NewTimestamp(uploadedAt),
		Status:       domain.FileUploaded,
		Language:     lang,
	}

	// Duration is informational; a probe failure never fails the upload.
	if uc.Prober != nil {
		if info, err := uc.Prober.Probe(ctx, storedPath); err == nil {
			rec.Duration = info.DurationSeconds
		} else {
			logger.Warn("audio probe failed",
				slog.String("file", storedName), slog.String("error", err.Error()))
		}
	}

	if _, err := uc.Registry.Add(rec); err != nil {
		_ = os.Remove(storedPath)
		return domain.FileRecord{}, err
	}

	metrics.UploadBytesTotal.Add(float64(written))
	logger.Info("file uploaded",
		slog.String("file_id", string(rec.ID)),
		slog.String("filename", storedName),
		slog.Int64("size", written))
	return rec, nil
}

func (uc UploadFile) writeUpload(path string, content io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, wrapStorage(err)
	}

	src := content
	if uc.MaxBytes > 0 {
		src = io.LimitReader(content, uc.MaxBytes+1)
	}
	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, wrapStorage(err)
	}
	if uc.MaxBytes > 0 && written > uc.MaxBytes {
		_ = os.Remove(path)
		return 0, ErrUploadTooLarge
	}
	return written, nil
}

// storedFileName builds "<stem>_<YYYYMMDD_HHMMSS_uuuuuu>_<id8><ext>". The
// microsecond timestamp plus a slice of the record id keep same-instant
// uploads of the same file apart.
func storedFileName(original string, now time.Time, id string) string {
	ext := filepath.Ext(original)
	stem := sanitizeStem(strings.TrimSuffix(original, ext))
	stamp := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s%s", stem, stamp, short, strings.ToLower(ext))
}

// sanitizeStem strips path and shell metacharacters but keeps non-ASCII, so
// Chinese filenames survive.
func sanitizeStem(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|' || r == 0:
			b.WriteRune('_')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return "audio"
	}
	return cleaned
}
