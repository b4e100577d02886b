package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
	"voicescribe/internal/history"
	"voicescribe/internal/metrics"
	"voicescribe/internal/registry"
)

// DefaultModelKey is used when the caller names no model or an unknown one.
const DefaultModelKey = "deepseek"

// ResolveModelKey maps a free-form model name to a configured model key by
// substring match.
func ResolveModelKey(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "deepseek"):
		return "deepseek"
	case strings.Contains(m, "qwen"):
		return "qwen"
	case strings.Contains(m, "glm"):
		return "glm"
	default:
		return DefaultModelKey
	}
}

type segmentView struct {
	speaker string
	text    string
}

// Generator produces a meeting summary for a completed file: it serialises
// the segments into a prompt, calls the LLM, cleans the reply and persists
// the result on the record.
type Generator struct {
	Registry *registry.Registry
	History  *history.Store
	Renderer ports.DocumentRenderer
	Chat     ports.ChatClient
	Logger   *slog.Logger
	Now      func() time.Time
}

type GenerateInput struct {
	FileID domain.FileID
	Prompt string
	Model  string
}

func (g Generator) Execute(ctx context.Context, input GenerateInput) (domain.Summary, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	rec, err := g.Registry.Get(input.FileID)
	if err != nil {
		return domain.Summary{}, err
	}
	if len(rec.Segments) == 0 {
		return domain.Summary{}, fmt.Errorf("%w: %s", domain.ErrNoSegments, input.FileID)
	}

	views := make([]segmentView, len(rec.Segments))
	for i, seg := range rec.Segments {
		views[i] = segmentView{speaker: seg.Speaker, text: seg.Text}
	}
	transcriptText := joinSegments(views)
	if strings.TrimSpace(transcriptText) == "" {
		return domain.Summary{}, fmt.Errorf("%w: segments carry no text", domain.ErrNoSegments)
	}

	var sum domain.Summary
	switch {
	case g.Chat == nil || !g.Chat.Configured():
		logger.Warn("no llm api key configured, using default template",
			slog.String("file_id", string(input.FileID)))
		sum = defaultSummary(rec.Segments, now())
		metrics.SummaryRequestsTotal.WithLabelValues("default_template").Inc()
	default:
		modelKey := ResolveModelKey(input.Model)
		prompt := composePrompt(input.Prompt, transcriptText)
		raw, chatErr := g.Chat.Chat(ctx, systemPrompt, prompt, modelKey)
		if chatErr != nil {
			logger.Error("summary generation failed",
				slog.String("file_id", string(input.FileID)), slog.String("error", chatErr.Error()))
			sum = domain.Summary{
				RawText:     "生成会议纪要时发生错误: " + chatErr.Error(),
				GeneratedAt: domain.NewTimestamp(now()),
				ModelKey:    modelKey,
				Status:      "error",
				Error:       chatErr.Error(),
			}
			metrics.SummaryRequestsTotal.WithLabelValues("error").Inc()
		} else {
			sum = domain.Summary{
				RawText:     cleanReply(raw),
				GeneratedAt: domain.NewTimestamp(now()),
				ModelKey:    modelKey,
				Status:      "success",
			}
			metrics.SummaryRequestsTotal.WithLabelValues("success").Inc()
		}
	}

	docPath := ""
	if sum.Status == "success" && g.Renderer != nil {
		docPath, err = g.Renderer.RenderSummaryDoc(rec.Segments, sum, ports.DocMeta{
			FileID:        rec.ID,
			AudioFilename: rec.OriginalName,
			Language:      rec.Language,
		})
		if err != nil {
			logger.Error("summary document render failed",
				slog.String("file_id", string(input.FileID)), slog.String("error", err.Error()))
			docPath = ""
		}
	}

	updated, err := g.Registry.Update(input.FileID, func(r *domain.FileRecord) error {
		s := sum
		r.Summary = &s
		if docPath != "" {
			r.SummaryDocPath = docPath
		}
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("persist summary: %w", err)
	}

	if updated.Status == domain.FileCompleted && g.History != nil {
		if err := g.History.Save(g.Registry.CompletedRecords()); err != nil {
			logger.Error("history save after summary failed",
				slog.String("file_id", string(input.FileID)), slog.String("error", err.Error()))
		}
	}
	return sum, nil
}
