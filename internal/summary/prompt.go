package summary

import "strings"

// systemPrompt pins the assistant role and forbids confirmation preambles.
const systemPrompt = "你是一个专业的会议纪要助手。重要规则：直接输出会议纪要内容，不要包含任何确认消息、引导语句、说明性文字或元信息（如'这是根据您提供的会议转录内容生成的会议纪要'、'好的'、'已根据'、'为您生成'等）。直接开始输出会议主题，不要添加任何前缀。"

const transcriptMarker = "会议转录内容："

const hygieneDirective = "\n\n重要要求：直接输出会议纪要内容，不要包含任何确认消息、引导语句或说明性文字（如'这是根据您提供的会议转录内容生成的会议纪要'、'好的'、'已根据'等）。不要添加任何前缀说明，直接开始输出。"

const defaultPromptTemplate = `请根据以下会议转录内容，生成一份结构化的会议纪要。

会议转录内容：
{transcript}

请严格按照以下格式生成会议纪要：

会议主题：[根据会议内容总结主题]
主持人：[从转录中识别主持人]
参会人数：[统计参与会议的总人数]
关键词：[会议纪要关键词]
大纲:[用200字左右阐述会议概要]

一、会议议题及讨论内容
二、行动清单（待办事项）
三、其他说明

重要要求：
1. 直接输出会议纪要内容，不要包含任何确认消息、引导语句或说明性文字
2. 不要添加任何前缀说明，直接开始输出会议主题
3. 不要使用"为您生成"、"已根据"、"这是"等引导性语句
4. 输出内容应该是纯粹的会议纪要，不包含任何元信息或确认信息
5. 关键词部分应提取会议中的核心专业术语、重要概念、关键议题等，用空格分隔，数量控制在10-20个之间`

// composePrompt builds the user message. A custom template may carry the
// {transcript} placeholder, or the literal transcript marker, or neither, in
// which case the transcript is appended under a header. Custom templates
// additionally get the output-hygiene directive unless they already state it.
func composePrompt(custom, transcriptText string) string {
	if custom == "" {
		return strings.Replace(defaultPromptTemplate, "{transcript}", transcriptText, 1)
	}

	var prompt string
	switch {
	case strings.Contains(custom, "{transcript}"):
		prompt = strings.ReplaceAll(custom, "{transcript}", transcriptText)
	case strings.Contains(custom, transcriptMarker):
		prompt = strings.Replace(custom, transcriptMarker, transcriptMarker+"\n"+transcriptText, 1)
	default:
		prompt = custom + "\n\n" + transcriptMarker + "\n" + transcriptText
	}

	if !strings.Contains(prompt, "不要包含任何确认消息") && !strings.Contains(prompt, "不要添加任何前缀说明") {
		prompt += hygieneDirective
	}
	return prompt
}

// joinSegments renders segments as "speaker: text" paragraphs.
func joinSegments(segments []segmentView) string {
	var b strings.Builder
	for _, seg := range segments {
		speaker := seg.speaker
		if speaker == "" {
			speaker = "未知发言人"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(seg.text)
		b.WriteString("\n\n")
	}
	return b.String()
}
