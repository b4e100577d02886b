// Package execrunner drives an external speech-recognition process.
//
// The runner command is launched once per job with the audio path, language
// and hotword string as arguments. It reports over stdout, one JSON object
// per line:
//
//	{"type":"progress","stage":"asr","progress":40,"message":"...","eta_ms":12000}
//	{"type":"result","segments":[{"speaker":"...","text":"...", ...}]}
//	{"type":"error","error":"..."}
//
// Cancellation is cooperative from the caller's side and hard towards the
// subprocess: when the cancel flag fires the process is killed and the job
// reports domain.ErrCancelled.
package execrunner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
)

const cancelPollInterval = 200 * time.Millisecond

type Runner struct {
	command []string
}

// New builds a runner from a command line, e.g. "python3 asr_worker.py".
func New(command string) (*Runner, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("asr command is required")
	}
	return &Runner{command: fields}, nil
}

type stdoutLine struct {
	Type     string           `json:"type"`
	Stage    string           `json:"stage"`
	Progress int              `json:"progress"`
	Message  string           `json:"message"`
	EtaMS    int64            `json:"eta_ms"`
	Segments []domain.Segment `json:"segments"`
	Error    string           `json:"error"`
}

func (r *Runner) Transcribe(ctx context.Context, path, hotword string, lang domain.Language,
	cancelCheck ports.CancelFunc, progress ports.ProgressFunc) ([]domain.Segment, ports.TranscribeMeta, error) {

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append(append([]string{}, r.command[1:]...), path, string(lang), hotword)
	cmd := exec.CommandContext(runCtx, r.command[0], args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ports.TranscribeMeta{}, fmt.Errorf("asr stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, ports.TranscribeMeta{}, fmt.Errorf("asr start: %w", err)
	}

	// Kill the subprocess as soon as the cooperative flag fires.
	cancelled := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if cancelCheck != nil && cancelCheck() {
					close(cancelled)
					cancel()
					return
				}
			}
		}
	}()

	var segments []domain.Segment
	var runnerErr string
	sawResult := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line stdoutLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		switch line.Type {
		case "progress":
			if progress != nil {
				progress(line.Stage, line.Progress, line.Message, line.EtaMS)
			}
		case "result":
			segments = line.Segments
			sawResult = true
		case "error":
			runnerErr = line.Error
		}
	}

	waitErr := cmd.Wait()
	cancel()
	<-watcherDone

	select {
	case <-cancelled:
		return nil, ports.TranscribeMeta{}, domain.ErrCancelled
	default:
	}
	if cancelCheck != nil && cancelCheck() {
		return nil, ports.TranscribeMeta{}, domain.ErrCancelled
	}

	if runnerErr != "" {
		return nil, ports.TranscribeMeta{}, fmt.Errorf("asr runner: %s", runnerErr)
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, ports.TranscribeMeta{}, fmt.Errorf("asr runner: %w", waitErr)
		}
		return nil, ports.TranscribeMeta{}, fmt.Errorf("asr runner: %w: %s", waitErr, msg)
	}
	if !sawResult {
		return nil, ports.TranscribeMeta{}, errors.New("asr runner produced no result")
	}

	meta := ports.TranscribeMeta{}
	if n := len(segments); n > 0 {
		meta.AudioDuration = segments[n-1].EndTime
	}
	return segments, meta, nil
}
