package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"voicescribe/internal/domain/ports"
)

const (
	targetSampleRate = 16000
	targetChannels   = 1
)

// Normalizer converts uploads to the 16 kHz mono WAV the recognition runner
// expects. Files that already match pass through untouched.
type Normalizer struct {
	binary  string
	workDir string
	prober  ports.AudioProber
}

func New(binary, workDir string, prober ports.AudioProber) *Normalizer {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Normalizer{binary: bin, workDir: workDir, prober: prober}
}

func (n *Normalizer) Normalize(ctx context.Context, path string) (string, error) {
	if n.prober != nil && strings.EqualFold(filepath.Ext(path), ".wav") {
		info, err := n.prober.Probe(ctx, path)
		if err == nil && info.SampleRate == targetSampleRate && info.Channels == targetChannels {
			return path, nil
		}
	}

	if err := os.MkdirAll(n.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(n.workDir, base+"_16k.wav")

	cmd := exec.CommandContext(ctx, n.binary,
		"-y",
		"-i", path,
		"-ar", fmt.Sprintf("%d", targetSampleRate),
		"-ac", fmt.Sprintf("%d", targetChannels),
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("ffmpeg convert failed: %w", err)
		}
		return "", fmt.Errorf("ffmpeg convert failed: %w: %s", err, truncateTail(msg, 400))
	}
	return out, nil
}

func truncateTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
