// Package languages owns the target-language picker catalog. Codes are only
// looked up for display; the engine receives them exactly as chosen.
package languages

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"media-dubber/internal/domain"
)

// targetCodes are offered in the picker, in display order.
var targetCodes = []string{
	"en", "es", "fr", "de", "it", "pt", "nl", "pl", "ru", "uk",
	"tr", "ar", "hi", "ja", "ko", "zh-CN", "zh-TW",
}

// Catalog returns the picker entries with English and native names.
func Catalog() []domain.LanguageOption {
	names := display.English.Tags()
	out := make([]domain.LanguageOption, 0, len(targetCodes))
	for _, code := range targetCodes {
		tag := language.MustParse(code)
		out = append(out, domain.LanguageOption{
			Code:   code,
			Name:   names.Name(tag),
			Native: nativeName(tag),
		})
	}
	return out
}

// Name returns the English display name for code, or code itself when x/text
// does not know it (engine-specific codes such as "auto").
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

func nativeName(tag language.Tag) string {
	name := display.Self.Name(tag)
	if name == "" {
		return ""
	}
	return cases.Title(tag).String(name)
}
