package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
	"voicescribe/internal/history"
	"voicescribe/internal/registry"
	"voicescribe/internal/scheduler"
	"voicescribe/internal/summary"
	"voicescribe/internal/usecase"
)

type stubProber struct{}

func (stubProber) Probe(ctx context.Context, path string) (ports.AudioInfo, error) {
	return ports.AudioInfo{DurationSeconds: 5}, nil
}

// stubRenderer writes real files so the download handlers have something to
// serve.
type stubRenderer struct {
	dir string
}

func (s stubRenderer) RenderTranscriptDoc(segments []domain.Segment, meta ports.DocMeta) (string, error) {
	path := filepath.Join(s.dir, "transcript_"+string(meta.FileID)+".docx")
	return path, os.WriteFile(path, []byte("transcript"), 0o644)
}

func (s stubRenderer) RenderSummaryDoc(segments []domain.Segment, sum domain.Summary, meta ports.DocMeta) (string, error) {
	path := filepath.Join(s.dir, "meeting_summary_"+string(meta.FileID)+".docx")
	return path, os.WriteFile(path, []byte("summary"), 0o644)
}

// okRunner succeeds immediately with a two-speaker transcript.
type okRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *okRunner) Transcribe(ctx context.Context, path, hotword string, lang domain.Language,
	cancelCheck ports.CancelFunc, progress ports.ProgressFunc) ([]domain.Segment, ports.TranscribeMeta, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	progress("asr", 100, "转写中", 0)
	return []domain.Segment{
		{Speaker: "发言人1", Text: "大家好", EndTime: 2.5, Words: []domain.Word{{Text: "大家好", Start: 0, End: 2.5}}},
		{Speaker: "发言人2", Text: "开始吧", StartTime: 2.5, EndTime: 4},
	}, ports.TranscribeMeta{AudioDuration: 4}, nil
}

type serverFixture struct {
	srv  *Server
	reg  *registry.Registry
	hist *history.Store
	dir  string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServerFixture(t *testing.T, runner ports.Transcriber) *serverFixture {
	t.Helper()
	dir := t.TempDir()
	logger := discardLogger()
	reg := registry.New(logger)
	hist := history.NewStore(filepath.Join(dir, "history_records.json"), logger)
	renderer := stubRenderer{dir: dir}

	srv := NewServer(
		usecase.UploadFile{
			Registry:  reg,
			Prober:    stubProber{},
			UploadDir: filepath.Join(dir, "uploads"),
			Logger:    logger,
		},
		WithRegistry(reg),
		WithHistory(hist),
		WithDeleteFile(usecase.DeleteFile{Registry: reg, History: hist, Logger: logger}),
		WithListFiles(usecase.ListFiles{Registry: reg}),
		WithSummaryGenerator(summary.Generator{Registry: reg, History: hist, Renderer: renderer, Logger: logger}),
		WithRenderer(renderer),
		WithLogger(logger),
		WithWaitTimeout(10*time.Second),
	)

	if runner == nil {
		runner = &okRunner{}
	}
	sched := scheduler.New(scheduler.Config{
		Registry:  reg,
		History:   hist,
		Runner:    runner,
		Renderer:  renderer,
		Publisher: srv,
		Workers:   4,
		Logger:    logger,
	})
	srv.SetScheduler(sched)
	t.Cleanup(func() {
		sched.Close()
		srv.Close()
	})
	return &serverFixture{srv: srv, reg: reg, hist: hist, dir: dir}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, decoded
}

func (f *serverFixture) upload(t *testing.T, filename, content string) domain.FileID {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio_file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/voice/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload %s: status %d, body %s", filename, rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	id, _ := resp["file_id"].(string)
	if id == "" {
		t.Fatalf("upload response carries no file_id: %v", resp)
	}
	return domain.FileID(id)
}

func (f *serverFixture) waitForStatus(t *testing.T, id domain.FileID, want domain.FileStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := f.reg.Get(id)
		if err == nil && rec.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := f.reg.Get(id)
	t.Fatalf("file %s never reached %s, last status %s (%s)", id, want, rec.Status, rec.ErrorMessage)
}

func TestUploadAndListFlow(t *testing.T) {
	f := newServerFixture(t, nil)
	id := f.upload(t, "周会录音.mp3", "audio-bytes")

	rr, resp := f.do(t, http.MethodGet, "/api/voice/files", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	files, _ := resp["files"].([]any)
	if len(files) != 1 {
		t.Fatalf("files = %v", resp["files"])
	}
	entry := files[0].(map[string]any)
	if entry["id"] != string(id) || entry["original_name"] != "周会录音.mp3" {
		t.Fatalf("entry = %v", entry)
	}
	urls := entry["download_urls"].(map[string]any)
	if urls["audio"] != "/api/voice/audio/"+string(id)+"?download=1" {
		t.Fatalf("audio url = %v", urls["audio"])
	}
	stats := resp["statistics"].(map[string]any)
	if stats["uploaded"] != float64(1) || stats["total_files"] != float64(1) {
		t.Fatalf("statistics = %v", stats)
	}
	pagination := resp["pagination"].(map[string]any)
	if pagination["returned"] != float64(1) || pagination["total"] != float64(1) {
		t.Fatalf("pagination = %v", pagination)
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	f := newServerFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("audio_file", "notes.txt")
	_, _ = part.Write([]byte("text"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/voice/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["success"] != false {
		t.Fatalf("response = %v", resp)
	}
}

func TestUploadWithoutFileField(t *testing.T) {
	f := newServerFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("language", "zh")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/voice/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestUploadPartialFailure(t *testing.T) {
	f := newServerFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	good, _ := mw.CreateFormFile("audio_file", "good.wav")
	_, _ = good.Write([]byte("audio"))
	bad, _ := mw.CreateFormFile("audio_file", "bad.pdf")
	_, _ = bad.Write([]byte("not audio"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/voice/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["success"] != true {
		t.Fatalf("response = %v", resp)
	}
	failed, _ := resp["failed_files"].([]any)
	if len(failed) != 1 {
		t.Fatalf("failed_files = %v", resp["failed_files"])
	}
	if failed[0].(map[string]any)["filename"] != "bad.pdf" {
		t.Fatalf("failed entry = %v", failed[0])
	}
}

func TestTranscribeRejectsUnknownID(t *testing.T) {
	f := newServerFixture(t, nil)

	rr, resp := f.do(t, http.MethodPost, "/api/voice/transcribe",
		map[string]any{"file_id": "ghost"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp["error"] != "文件ID ghost 不存在" {
		t.Fatalf("error = %v", resp["error"])
	}
}

func TestTranscribeNoWait(t *testing.T) {
	f := newServerFixture(t, nil)
	id := f.upload(t, "a.mp3", "x")

	rr, resp := f.do(t, http.MethodPost, "/api/voice/transcribe",
		map[string]any{"file_id": string(id), "wait": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rr.Code, resp)
	}
	if resp["status"] != "processing" || resp["count"] != float64(1) {
		t.Fatalf("response = %v", resp)
	}
	if resp["file_id"] != string(id) {
		t.Fatalf("file_id = %v", resp["file_id"])
	}
	f.waitForStatus(t, id, domain.FileCompleted)
}

func TestStopRequiresProcessing(t *testing.T) {
	f := newServerFixture(t, nil)
	id := f.upload(t, "a.mp3", "x")

	rr, resp := f.do(t, http.MethodPost, "/api/voice/stop/"+string(id), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp["error"] != "文件未在转写中" {
		t.Fatalf("error = %v", resp["error"])
	}
}

func TestResultRequiresCompletion(t *testing.T) {
	f := newServerFixture(t, nil)
	id := f.upload(t, "a.mp3", "x")

	rr, resp := f.do(t, http.MethodGet, "/api/voice/result/"+string(id), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp["error"] != "文件转写未完成" {
		t.Fatalf("error = %v", resp["error"])
	}
}

func TestPatchUnknownAction(t *testing.T) {
	f := newServerFixture(t, nil)
	id := f.upload(t, "a.mp3", "x")

	rr, resp := f.do(t, http.MethodPatch, "/api/voice/files/"+string(id),
		map[string]any{"action": "frobnicate"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp["error"] != "不支持的操作: frobnicate" {
		t.Fatalf("error = %v", resp["error"])
	}
}

func TestDeleteFileLifecycle(t *testing.T) {
	f := newServerFixture(t, nil)
	id := f.upload(t, "a.mp3", "x")

	rr, resp := f.do(t, http.MethodDelete, "/api/voice/files/"+string(id), nil)
	if rr.Code != http.StatusOK || resp["message"] != "文件删除成功" {
		t.Fatalf("delete: status %d, %v", rr.Code, resp)
	}

	rr, _ = f.do(t, http.MethodGet, "/api/voice/files/"+string(id), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("detail after delete = %d", rr.Code)
	}

	rr, _ = f.do(t, http.MethodDelete, "/api/voice/files/"+string(id), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("double delete = %d", rr.Code)
	}
}

func TestClearAll(t *testing.T) {
	f := newServerFixture(t, nil)
	f.upload(t, "a.mp3", "x")
	f.upload(t, "b.wav", "y")

	rr, resp := f.do(t, http.MethodDelete, "/api/voice/files/_clear_all", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp["deleted"] != float64(2) || resp["skipped"] != float64(0) {
		t.Fatalf("response = %v", resp)
	}

	_, listResp := f.do(t, http.MethodGet, "/api/voice/files", nil)
	if files, _ := listResp["files"].([]any); len(files) != 0 {
		t.Fatalf("files after clear = %v", listResp["files"])
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)

	rr, resp := f.do(t, http.MethodGet, "/api/voice/languages", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	langs, _ := resp["languages"].([]any)
	if len(langs) != 4 {
		t.Fatalf("languages = %v", resp["languages"])
	}
	first := langs[0].(map[string]any)
	if first["value"] != "zh" || first["name"] != "中文普通话" {
		t.Fatalf("first language = %v", first)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := newServerFixture(t, nil)
	err := f.hist.Save([]domain.FileRecord{{
		ID:           "old",
		StoredName:   "old.mp3",
		OriginalName: "老会议.mp3",
		Status:       domain.FileCompleted,
		Progress:     100,
		CompleteTime: domain.NewTimestamp(time.Date(2026, 2, 1, 10, 0, 0, 0, time.Local)),
		Segments: []domain.Segment{
			{Speaker: "发言人1", Text: "第一段"},
			{Speaker: "发言人2", Text: "第二段"},
			{Speaker: "发言人1", Text: "第三段"},
		},
	}})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}

	rr, resp := f.do(t, http.MethodGet, "/api/voice/history", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	records, _ := resp["records"].([]any)
	if len(records) != 1 || resp["total"] != float64(1) {
		t.Fatalf("response = %v", resp)
	}
	entry := records[0].(map[string]any)
	if entry["details"] != "2位发言人, 3段对话" {
		t.Fatalf("details = %v", entry["details"])
	}
	if entry["transcribe_time"] != "2026-02-01 10:00:00" {
		t.Fatalf("transcribe_time = %v", entry["transcribe_time"])
	}
}

func TestListIncludesHistory(t *testing.T) {
	f := newServerFixture(t, nil)
	err := f.hist.Save([]domain.FileRecord{{
		ID:           "hist",
		StoredName:   "hist.mp3",
		OriginalName: "历史.mp3",
		Status:       domain.FileCompleted,
		Progress:     100,
	}})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}

	_, resp := f.do(t, http.MethodGet, "/api/voice/files?include_history=true", nil)
	files, _ := resp["files"].([]any)
	if len(files) != 1 {
		t.Fatalf("files = %v", resp["files"])
	}
	if files[0].(map[string]any)["id"] != "hist" {
		t.Fatalf("entry = %v", files[0])
	}
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t, nil)

	rr, resp := f.do(t, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp["status"] != "healthy" {
		t.Fatalf("response = %v", resp)
	}
	checks := resp["checks"].(map[string]any)
	if _, ok := checks["registry"]; !ok {
		t.Fatalf("checks = %v", checks)
	}
}

func TestAudioDownload(t *testing.T) {
	f := newServerFixture(t, nil)
	id := f.upload(t, "讲话.mp3", "mp3-bytes")

	req := httptest.NewRequest(http.MethodGet, "/api/voice/audio/"+string(id)+"?download=1", nil)
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !bytes.Contains([]byte(cd), []byte("attachment")) {
		t.Fatalf("content-disposition = %q", cd)
	}
	if rr.Body.String() != "mp3-bytes" {
		t.Fatalf("body = %q", rr.Body.String())
	}

	rr, _ = f.do(t, http.MethodGet, "/api/voice/audio/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing audio status = %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newServerFixture(t, nil)

	rr, _ := f.do(t, http.MethodPut, "/api/voice/files", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newServerFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/voice/files", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("allow-origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}
