package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	UploadDir     string
	TranscriptDir string
	SummaryDir    string
	WorkDir       string
	HistoryPath   string

	LogLevel  string
	LogFormat string

	TranscriptionWorkers int
	TranscribeTimeout    time.Duration
	MaxUploadBytes       int64
	MinFreeDiskBytes     int64 // 0 = disabled
	AllowedOrigins       []string

	ASRCommand  string
	FFMPEGPath  string
	FFProbePath string

	LLMAPIKey       string
	LLMBaseURL      string
	LLMModels       map[string]string
	LLMDefaultModel string
	LLMTimeout      time.Duration
}

func LoadConfig() Config {
	transcriptDir := getEnv("TRANSCRIPT_DIR", "data/transcripts")
	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		UploadDir:     getEnv("UPLOAD_DIR", "data/uploads"),
		TranscriptDir: transcriptDir,
		SummaryDir:    getEnv("SUMMARY_DIR", "data/summaries"),
		WorkDir:       getEnv("WORK_DIR", "data/work"),
		HistoryPath:   getEnv("HISTORY_PATH", transcriptDir+"/history_records.json"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		TranscriptionWorkers: int(getEnvInt64("TRANSCRIPTION_WORKERS", 12)),
		TranscribeTimeout:    time.Duration(getEnvInt64("TRANSCRIBE_TIMEOUT_SECONDS", 3600)) * time.Second,
		MaxUploadBytes:       getEnvInt64("MAX_UPLOAD_BYTES", 2<<30),
		MinFreeDiskBytes:     getEnvInt64("MIN_FREE_DISK_BYTES", 0),
		AllowedOrigins:       splitList(getEnv("ALLOWED_ORIGINS", "*")),

		ASRCommand:  getEnv("ASR_COMMAND", ""),
		FFMPEGPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath: getEnv("FFPROBE_PATH", "ffprobe"),

		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMBaseURL: getEnv("LLM_BASE_URL", ""),
		LLMModels: map[string]string{
			"deepseek": getEnv("LLM_MODEL_DEEPSEEK", "deepseek-chat"),
			"qwen":     getEnv("LLM_MODEL_QWEN", "qwen-plus"),
			"glm":      getEnv("LLM_MODEL_GLM", "glm-4"),
		},
		LLMDefaultModel: strings.ToLower(getEnv("LLM_DEFAULT_MODEL", "deepseek")),
		LLMTimeout:      time.Duration(getEnvInt64("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
