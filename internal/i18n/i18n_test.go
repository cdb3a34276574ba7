package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		in   string
		want language.Tag
	}{
		{"", language.English},
		{"en-US,en;q=0.9", language.English},
		{"zh-CN,zh;q=0.9,en;q=0.8", language.SimplifiedChinese},
		{"zh", language.SimplifiedChinese},
		{"fr-FR", language.English},
		{"!!!", language.English},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Negotiate(tt.in))
		})
	}
}

func TestTextIn(t *testing.T) {
	txt := Text{EN: "Enable caching", ZH: "启用缓存"}
	assert.Equal(t, "Enable caching", txt.In(language.English))
	assert.Equal(t, "启用缓存", txt.In(language.SimplifiedChinese))
	assert.Equal(t, "Only English", Text{EN: "Only English"}.In(language.SimplifiedChinese))
}

func TestIsChinese(t *testing.T) {
	assert.True(t, IsChinese(language.SimplifiedChinese))
	assert.True(t, IsChinese(language.MustParse("zh-TW")))
	assert.False(t, IsChinese(language.English))
}
