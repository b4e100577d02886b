// Package docgen writes the downloadable Word artifacts. A .docx file is a
// zip archive of WordprocessingML parts; only the minimal part set is
// emitted, which every Word-compatible reader accepts.
package docgen

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicescribe/internal/domain"
	"voicescribe/internal/domain/ports"
)

const (
	transcriptPrefix = "transcript"
	summaryPrefix    = "meeting_summary"
)

type Renderer struct {
	transcriptDir string
	summaryDir    string
	now           func() time.Time
}

func NewRenderer(transcriptDir, summaryDir string) *Renderer {
	return &Renderer{transcriptDir: transcriptDir, summaryDir: summaryDir, now: time.Now}
}

func (r *Renderer) RenderTranscriptDoc(segments []domain.Segment, meta ports.DocMeta) (string, error) {
	paragraphs := []paragraph{
		{text: "会议转录记录", heading: true},
		{text: "音频文件: " + meta.AudioFilename},
		{text: "识别语言: " + string(meta.Language)},
		{text: "生成时间: " + r.now().Format(domain.TimeLayout)},
		{text: ""},
	}
	for _, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "未知发言人"
		}
		paragraphs = append(paragraphs,
			paragraph{text: fmt.Sprintf("[%s - %s] %s", formatClock(seg.StartTime), formatClock(seg.EndTime), speaker), bold: true},
			paragraph{text: seg.Text},
			paragraph{text: ""},
		)
	}
	return r.write(r.transcriptDir, transcriptPrefix, meta.FileID, paragraphs)
}

func (r *Renderer) RenderSummaryDoc(segments []domain.Segment, summary domain.Summary, meta ports.DocMeta) (string, error) {
	duration := 0.0
	if n := len(segments); n > 0 {
		duration = segments[n-1].EndTime
	}
	paragraphs := []paragraph{
		{text: "会议纪要", heading: true},
		{text: "音频文件: " + meta.AudioFilename},
		{text: "会议时长: " + formatClock(duration)},
		{text: "生成时间: " + summary.GeneratedAt.String()},
		{text: "生成模型: " + summary.ModelKey},
		{text: ""},
	}
	for _, line := range strings.Split(summary.RawText, "\n") {
		paragraphs = append(paragraphs, paragraph{text: line})
	}
	return r.write(r.summaryDir, summaryPrefix, meta.FileID, paragraphs)
}

// artifactName builds "<prefix>_<YYYYMMDD_HHMMSS_uuuuuu>_<id8>.docx". The
// microsecond timestamp plus the short id keep concurrent completions from
// colliding.
func artifactName(prefix string, id domain.FileID, now time.Time) string {
	stamp := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	short := strings.ReplaceAll(string(id), "-", "")
	if short == "" {
		short = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s.docx", prefix, stamp, short)
}

func (r *Renderer) write(dir, prefix string, id domain.FileID, paragraphs []paragraph) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	path := filepath.Join(dir, artifactName(prefix, id, r.now()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML(paragraphs)},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return "", fmt.Errorf("write %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return "", fmt.Errorf("write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize document: %w", err)
	}
	return path, nil
}

type paragraph struct {
	text    string
	heading bool
	bold    bool
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func documentXML(paragraphs []paragraph) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		b.WriteString(`<w:p>`)
		if p.heading || p.bold {
			b.WriteString(`<w:pPr><w:rPr><w:b/></w:rPr></w:pPr>`)
		}
		b.WriteString(`<w:r>`)
		if p.heading || p.bold {
			b.WriteString(`<w:rPr><w:b/></w:rPr>`)
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		b.WriteString(escapeXML(p.text))
		b.WriteString(`</w:t></w:r></w:p>`)
	}
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func escapeXML(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return ""
	}
	return b.String()
}

func formatClock(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
