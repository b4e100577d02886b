package summary

import (
	"fmt"
	"strings"
	"time"

	"voicescribe/internal/domain"
)

// defaultSummary synthesises a deterministic summary from segment statistics.
// It is the fallback when no LLM API key is configured.
func defaultSummary(segments []domain.Segment, now time.Time) domain.Summary {
	type stat struct {
		count int
		words int
	}
	order := make([]string, 0, 8)
	stats := make(map[string]*stat)
	totalWords := 0

	for _, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "未知发言人"
		}
		s, ok := stats[speaker]
		if !ok {
			s = &stat{}
			stats[speaker] = s
			order = append(order, speaker)
		}
		chars := len([]rune(seg.Text))
		s.count++
		s.words += chars
		totalWords += chars
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## 会议概要\n本次会议共有%d位参与者，会议记录共%d段发言，总计约%d字。\n\n## 参与人员\n",
		len(stats), len(segments), totalWords)
	for _, speaker := range order {
		fmt.Fprintf(&b, "- %s: 发言%d次\n", speaker, stats[speaker].count)
	}

	return domain.Summary{
		RawText:     b.String(),
		GeneratedAt: domain.NewTimestamp(now),
		ModelKey:    "default_template",
		Status:      "success",
	}
}
