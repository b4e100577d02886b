package summary

import (
	"regexp"
	"strings"
)

// The cleaner strips confirmation preambles and markdown decoration from LLM
// replies. The pattern set is heuristic and deliberately kept as one closed
// list per concern.

var confirmationLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(好的|明白了|收到|了解)[，,。\s]*`),
	regexp.MustCompile(`^(已根据|根据您提供|根据.*?转录|根据.*?内容)`),
	regexp.MustCompile(`^(为您生成|为您.*?生成|已.*?生成.*?会议纪要)`),
	regexp.MustCompile(`^(这是.*?生成的.*?会议纪要|这是根据.*?生成的)`),
	regexp.MustCompile(`^(以下是|下面.*?是|我将.*?为您)`),
	regexp.MustCompile(`^(根据.*?内容.*?生成|基于.*?内容.*?生成)`),
}

var confirmationPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`这是根据您提供的`),
	regexp.MustCompile(`已为您生成`),
	regexp.MustCompile(`已经为您生成`),
	regexp.MustCompile(`为您生成.*?会议纪要`),
	regexp.MustCompile(`根据.*?内容.*?生成.*?会议纪要`),
}

// contentStartPattern recognises the first real line of a meeting summary.
var contentStartPattern = regexp.MustCompile(`^(会议主题|会议时间|会议地点|主持人|记录人|参与人员|参会人数|一、|二、|三、)`)

var (
	hrPattern          = regexp.MustCompile(`(?m)^[-=]{3,}\s*$`)
	headingTitle       = regexp.MustCompile(`(?m)^#{1,6}\s*\*{0,2}\s*会议纪要\s*\*{0,2}\s*$`)
	headingMarks       = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	boldPattern        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern      = regexp.MustCompile(`\*([^*]+)\*`)
	codeBlockPattern   = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodePattern  = regexp.MustCompile("`([^`]+)`")
	bulletPattern      = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	numberedPattern    = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	blankRunPattern    = regexp.MustCompile(`\n{3,}`)
	loneTitlePattern   = regexp.MustCompile(`(?m)^\s*会议纪要\s*$`)
	leadKeywordPattern = regexp.MustCompile(`根据|生成|为您|已|这是`)
)

// cleanReply normalises an LLM reply into plain meeting-summary text.
func cleanReply(raw string) string {
	text := dropConfirmationLines(raw)

	text = hrPattern.ReplaceAllString(text, "")
	text = headingTitle.ReplaceAllString(text, "")
	text = headingMarks.ReplaceAllString(text, "")
	text = boldPattern.ReplaceAllString(text, "$1")
	text = loneTitlePattern.ReplaceAllString(text, "")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = codeBlockPattern.ReplaceAllString(text, "")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = bulletPattern.ReplaceAllString(text, "")
	text = numberedPattern.ReplaceAllString(text, "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = loneTitlePattern.ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}

// dropConfirmationLines removes leading confirmation chatter until the first
// line that looks like real summary content.
func dropConfirmationLines(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	skipUntilContent := true

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			if !skipUntilContent {
				cleaned = append(cleaned, line)
			}
			continue
		}

		if isConfirmation(stripped) {
			skipUntilContent = true
			continue
		}

		switch {
		case contentStartPattern.MatchString(stripped):
			skipUntilContent = false
			cleaned = append(cleaned, line)
		case !skipUntilContent:
			cleaned = append(cleaned, line)
		case len([]rune(stripped)) > 20 && !leadKeywordPattern.MatchString(stripped):
			skipUntilContent = false
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func isConfirmation(line string) bool {
	for _, p := range confirmationLinePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	for _, p := range confirmationPhrasePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
