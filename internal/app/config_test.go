package app

import (
	"os"
	"testing"
	"time"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// Clear all env vars that LoadConfig reads so we get pure defaults.
	envVars := []string{
		"HTTP_ADDR", "UPLOAD_DIR", "TRANSCRIPT_DIR", "SUMMARY_DIR", "WORK_DIR",
		"HISTORY_PATH", "LOG_LEVEL", "LOG_FORMAT",
		"TRANSCRIPTION_WORKERS", "TRANSCRIBE_TIMEOUT_SECONDS",
		"MAX_UPLOAD_BYTES", "MIN_FREE_DISK_BYTES", "ALLOWED_ORIGINS",
		"ASR_COMMAND", "FFMPEG_PATH", "FFPROBE_PATH",
		"LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL_DEEPSEEK", "LLM_MODEL_QWEN",
		"LLM_MODEL_GLM", "LLM_DEFAULT_MODEL", "LLM_TIMEOUT_SECONDS",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"UploadDir", cfg.UploadDir, "data/uploads"},
		{"TranscriptDir", cfg.TranscriptDir, "data/transcripts"},
		{"SummaryDir", cfg.SummaryDir, "data/summaries"},
		{"WorkDir", cfg.WorkDir, "data/work"},
		{"HistoryPath", cfg.HistoryPath, "data/transcripts/history_records.json"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"TranscriptionWorkers", cfg.TranscriptionWorkers, 12},
		{"TranscribeTimeout", cfg.TranscribeTimeout, time.Hour},
		{"MaxUploadBytes", cfg.MaxUploadBytes, int64(2 << 30)},
		{"MinFreeDiskBytes", cfg.MinFreeDiskBytes, int64(0)},
		{"ASRCommand", cfg.ASRCommand, ""},
		{"FFMPEGPath", cfg.FFMPEGPath, "ffmpeg"},
		{"FFProbePath", cfg.FFProbePath, "ffprobe"},
		{"LLMAPIKey", cfg.LLMAPIKey, ""},
		{"LLMBaseURL", cfg.LLMBaseURL, ""},
		{"LLMDefaultModel", cfg.LLMDefaultModel, "deepseek"},
		{"LLMTimeout", cfg.LLMTimeout, 120 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins: got %v, want [*]", cfg.AllowedOrigins)
	}
	if cfg.LLMModels["deepseek"] != "deepseek-chat" || cfg.LLMModels["qwen"] != "qwen-plus" || cfg.LLMModels["glm"] != "glm-4" {
		t.Errorf("LLMModels: got %v", cfg.LLMModels)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"HTTP_ADDR":                  ":9090",
		"UPLOAD_DIR":                 "/srv/uploads",
		"TRANSCRIPT_DIR":             "/srv/transcripts",
		"SUMMARY_DIR":                "/srv/summaries",
		"HISTORY_PATH":               "/srv/history.json",
		"LOG_LEVEL":                  "DEBUG",
		"LOG_FORMAT":                 "JSON",
		"TRANSCRIPTION_WORKERS":      "4",
		"TRANSCRIBE_TIMEOUT_SECONDS": "600",
		"MAX_UPLOAD_BYTES":           "1073741824",
		"MIN_FREE_DISK_BYTES":        "536870912",
		"ALLOWED_ORIGINS":            "http://localhost:3000, https://example.com",
		"ASR_COMMAND":                "python3 asr_worker.py",
		"FFPROBE_PATH":               "/usr/bin/ffprobe",
		"LLM_API_KEY":                "sk-abc",
		"LLM_BASE_URL":               "https://api.deepseek.com/v1",
		"LLM_MODEL_QWEN":             "qwen-max",
		"LLM_DEFAULT_MODEL":          "QWEN",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":9090"},
		{"UploadDir", cfg.UploadDir, "/srv/uploads"},
		{"TranscriptDir", cfg.TranscriptDir, "/srv/transcripts"},
		{"SummaryDir", cfg.SummaryDir, "/srv/summaries"},
		{"HistoryPath", cfg.HistoryPath, "/srv/history.json"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"TranscriptionWorkers", cfg.TranscriptionWorkers, 4},
		{"TranscribeTimeout", cfg.TranscribeTimeout, 10 * time.Minute},
		{"MaxUploadBytes", cfg.MaxUploadBytes, int64(1 << 30)},
		{"MinFreeDiskBytes", cfg.MinFreeDiskBytes, int64(512 << 20)},
		{"ASRCommand", cfg.ASRCommand, "python3 asr_worker.py"},
		{"FFProbePath", cfg.FFProbePath, "/usr/bin/ffprobe"},
		{"LLMAPIKey", cfg.LLMAPIKey, "sk-abc"},
		{"LLMBaseURL", cfg.LLMBaseURL, "https://api.deepseek.com/v1"},
		{"LLMModelQwen", cfg.LLMModels["qwen"], "qwen-max"},
		{"LLMDefaultModel", cfg.LLMDefaultModel, "qwen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	wantOrigins := []string{"http://localhost:3000", "https://example.com"}
	if len(cfg.AllowedOrigins) != len(wantOrigins) {
		t.Fatalf("AllowedOrigins: got %d entries, want %d", len(cfg.AllowedOrigins), len(wantOrigins))
	}
	for i, got := range cfg.AllowedOrigins {
		if got != wantOrigins[i] {
			t.Errorf("AllowedOrigins[%d]: got %q, want %q", i, got, wantOrigins[i])
		}
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"whitespace only", "   ", nil},
		{"single value", "http://localhost:3000", []string{"http://localhost:3000"}},
		{"multiple values", "a,b,c", []string{"a", "b", "c"}},
		{"values with spaces", " a , b , c ", []string{"a", "b", "c"}},
		{"trailing comma", "a,b,", []string{"a", "b"}},
		{"empty entries filtered", "a,,b,,c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitList(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("splitList(%q) returned %d elements, want %d", tt.input, len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("splitList(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("TEST_EXISTING", "hello")

	if got := getEnv("TEST_EXISTING", "default"); got != "hello" {
		t.Errorf("getEnv(existing) = %q, want %q", got, "hello")
	}

	// Unset to test fallback
	t.Setenv("TEST_MISSING_XYZ", "")
	os.Unsetenv("TEST_MISSING_XYZ")
	if got := getEnv("TEST_MISSING_XYZ", "default"); got != "default" {
		t.Errorf("getEnv(missing) = %q, want %q", got, "default")
	}
}
