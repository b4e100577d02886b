package execrunner

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"voicescribe/internal/domain"
)

func shellRunner(t *testing.T, script string) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based runner tests need a POSIX shell")
	}
	return &Runner{command: []string{"sh", "-c", script}}
}

func TestTranscribeParsesProgressAndResult(t *testing.T) {
	script := `
echo '{"type":"progress","stage":"vad","progress":20,"message":"检测语音段","eta_ms":4000}'
echo '{"type":"progress","stage":"asr","progress":80,"message":"识别中"}'
echo '{"type":"result","segments":[{"speaker":"发言人1","text":"你好","start_time":0,"end_time":1.5}]}'
`
	r := shellRunner(t, script)

	var stages []string
	var targets []int
	segments, meta, err := r.Transcribe(context.Background(), "/tmp/a.wav", "", domain.LangMandarin,
		func() bool { return false },
		func(stage string, p int, msg string, eta int64) {
			stages = append(stages, stage)
			targets = append(targets, p)
		})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "你好" {
		t.Fatalf("segments = %+v", segments)
	}
	if meta.AudioDuration != 1.5 {
		t.Fatalf("meta duration = %v", meta.AudioDuration)
	}
	if len(targets) != 2 || targets[0] != 20 || targets[1] != 80 {
		t.Fatalf("progress targets = %v", targets)
	}
	if stages[0] != "vad" || stages[1] != "asr" {
		t.Fatalf("stages = %v", stages)
	}
}

func TestTranscribeSurfacesRunnerError(t *testing.T) {
	script := `echo '{"type":"error","error":"model not loaded"}'`
	r := shellRunner(t, script)

	_, _, err := r.Transcribe(context.Background(), "/tmp/a.wav", "", domain.LangMandarin, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v", err)
	}
}

func TestTranscribeRejectsMissingResult(t *testing.T) {
	r := shellRunner(t, `echo '{"type":"progress","progress":10}'`)

	_, _, err := r.Transcribe(context.Background(), "/tmp/a.wav", "", domain.LangMandarin, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "no result") {
		t.Fatalf("err = %v", err)
	}
}

func TestTranscribeCancellationKillsProcess(t *testing.T) {
	r := shellRunner(t, `sleep 30`)

	start := time.Now()
	_, _, err := r.Transcribe(context.Background(), "/tmp/a.wav", "", domain.LangMandarin,
		func() bool { return true }, nil)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation did not kill the subprocess promptly")
	}
}
