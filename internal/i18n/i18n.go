// Package i18n negotiates the display language for server-generated text.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Supported lists the languages with translated text, default first.
var Supported = []language.Tag{language.English, language.SimplifiedChinese}

var matcher = language.NewMatcher(Supported)

// Negotiate picks the best supported language for an Accept-Language header
// or a bare tag such as "zh" or "en-US". Unknown or empty input yields English.
func Negotiate(accept string) language.Tag {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return Supported[0]
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return Supported[0]
	}
	_, idx, _ := matcher.Match(tags...)
	return Supported[idx]
}

// IsChinese reports whether tag is a Chinese variant.
func IsChinese(tag language.Tag) bool {
	base, _ := tag.Base()
	return base.String() == "zh"
}

// Text is a string with an English and a Chinese rendering.
type Text struct {
	EN string
	ZH string
}

// In returns the rendering for tag, falling back to English.
func (t Text) In(tag language.Tag) string {
	if IsChinese(tag) && t.ZH != "" {
		return t.ZH
	}
	return t.EN
}
