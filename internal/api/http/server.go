package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
	"voicescribe/internal/history"
	"voicescribe/internal/registry"
	"voicescribe/internal/scheduler"
	"voicescribe/internal/summary"
	"voicescribe/internal/usecase"
)

type UploadFileUseCase interface {
	Execute(ctx context.Context, input usecase.UploadInput) (domain.FileRecord, error)
}

type DeleteFileUseCase interface {
	Execute(ctx context.Context, id domain.FileID) error
	ClearAll(ctx context.Context) (usecase.ClearAllResult, error)
}

type ListFilesUseCase interface {
	Execute(ctx context.Context, filter domain.FileFilter) usecase.ListResult
}

type SummaryGenerateUseCase interface {
	Execute(ctx context.Context, input summary.GenerateInput) (domain.Summary, error)
}

// JobScheduler is the scheduler surface the handlers need: submit, stop and
// wait on transcription jobs.
type JobScheduler interface {
	Enqueue(id domain.FileID, lang domain.Language, hotword string) (*scheduler.Job, error)
	Cancel(id domain.FileID) error
	Wait(ctx context.Context, ids []domain.FileID) scheduler.BatchResult
}

type DiskMonitor interface {
	Low() bool
	FreeBytes() int64
}

type Server struct {
	uploadFile      UploadFileUseCase
	deleteFile      DeleteFileUseCase
	listFiles       ListFilesUseCase
	generateSummary SummaryGenerateUseCase
	sched           JobScheduler
	registry        *registry.Registry
	history         *history.Store
	renderer        ports.DocumentRenderer
	disk            DiskMonitor
	waitTimeout     time.Duration
	allowedOrigins  []string
	logger          *slog.Logger
	handler         http.Handler
	wsHub           *wsHub
}

type ServerOption func(*Server)

func WithRegistry(reg *registry.Registry) ServerOption {
	return func(s *Server) {
		s.registry = reg
	}
}

func WithHistory(store *history.Store) ServerOption {
	return func(s *Server) {
		s.history = store
	}
}

func WithScheduler(sched JobScheduler) ServerOption {
	return func(s *Server) {
		s.sched = sched
	}
}

func WithDeleteFile(uc DeleteFileUseCase) ServerOption {
	return func(s *Server) {
		s.deleteFile = uc
	}
}

func WithListFiles(uc ListFilesUseCase) ServerOption {
	return func(s *Server) {
		s.listFiles = uc
	}
}

func WithSummaryGenerator(uc SummaryGenerateUseCase) ServerOption {
	return func(s *Server) {
		s.generateSummary = uc
	}
}

func WithRenderer(renderer ports.DocumentRenderer) ServerOption {
	return func(s *Server) {
		s.renderer = renderer
	}
}

func WithDiskMonitor(mon DiskMonitor) ServerOption {
	return func(s *Server) {
		s.disk = mon
	}
}

// WithWaitTimeout sets the default deadline for transcribe requests that wait
// for completion. Requests may shorten it per call.
func WithWaitTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.waitTimeout = d
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// SetScheduler wires the scheduler after construction. The scheduler needs
// the server's event publisher, so the two are built in that order.
func (s *Server) SetScheduler(sched JobScheduler) {
	s.sched = sched
}

func NewServer(upload UploadFileUseCase, opts ...ServerOption) *Server {
	s := &Server{
		uploadFile:  upload,
		waitTimeout: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/voice/upload", s.handleUpload)
	mux.HandleFunc("/api/voice/transcribe", s.handleTranscribe)
	mux.HandleFunc("/api/voice/stop/", s.handleStop)
	mux.HandleFunc("/api/voice/status/", s.handleStatus)
	mux.HandleFunc("/api/voice/result/", s.handleResult)
	mux.HandleFunc("/api/voice/files", s.handleFiles)
	mux.HandleFunc("/api/voice/files/", s.handleFileByID)
	mux.HandleFunc("/api/voice/generate_summary/", s.handleGenerateSummary)
	mux.HandleFunc("/api/voice/audio/", s.handleAudio)
	mux.HandleFunc("/api/voice/download_transcript/", s.handleDownloadTranscript)
	mux.HandleFunc("/api/voice/download_summary/", s.handleDownloadSummary)
	mux.HandleFunc("/api/voice/history", s.handleHistory)
	mux.HandleFunc("/api/voice/languages", s.handleLanguages)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/voice/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "voicescribe",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/api/voice/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Publish forwards one progress event to the WebSocket hub. The server is the
// scheduler's event publisher.
func (s *Server) Publish(event domain.ProgressEvent) {
	if s.wsHub != nil {
		s.wsHub.Publish(event)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
		subs: make(map[domain.FileID]struct{}),
		seen: make(map[domain.FileID]lastSeen),
	}
	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		// Upgrade raced shutdown; the hub will never accept the client.
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
