package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"voicescribe/internal/domain/ports"
)

const maxProbeTimeout = 30 * time.Second

// Prober reads duration and stream layout of uploaded audio via ffprobe.
type Prober struct {
	binary string
}

func New(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

func (p *Prober) Probe(ctx context.Context, filePath string) (ports.AudioInfo, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return ports.AudioInfo{}, errors.New("file path is required")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return ports.AudioInfo{}, fmt.Errorf("ffprobe failed: %w", err)
		}
		return ports.AudioInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
	}
	return parseProbeOutput(stdout.Bytes())
}

type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

func parseProbeOutput(data []byte) (ports.AudioInfo, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ports.AudioInfo{}, fmt.Errorf("ffprobe output parse failed: %w", err)
	}

	info := ports.AudioInfo{Format: payload.Format.FormatName}
	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
			info.DurationSeconds = d
		}
	}
	for _, stream := range payload.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		info.Channels = stream.Channels
		if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
			info.SampleRate = rate
		}
		break
	}
	return info, nil
}
