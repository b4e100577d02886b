package domain

type Language string

const (
	LangMandarin Language = "zh"
	LangDialect  Language = "zh-dialect"
	LangMixed    Language = "zh-en"
	LangEnglish  Language = "en"
)

func (l Language) Valid() bool {
	switch l {
	case LangMandarin, LangDialect, LangMixed, LangEnglish:
		return true
	}
	return false
}

type LanguageOption struct {
	Code        Language `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
}

// LanguageOptions is the closed set offered by the languages endpoint.
func LanguageOptions() []LanguageOption {
	return []LanguageOption{
		{Code: LangMandarin, Name: "中文普通话", Description: "标准普通话识别"},
		{Code: LangDialect, Name: "中文方言", Description: "支持多种中文方言"},
		{Code: LangMixed, Name: "中英混合", Description: "中英文混合语音识别"},
		{Code: LangEnglish, Name: "English", Description: "English speech recognition"},
	}
}
