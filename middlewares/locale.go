package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

const (
	ContextLocale       = "locale"
	ContextLocalePrefix = "localePrefix"
)

// 対応言語。先頭が既定値です。
var SupportedLocales = []language.Tag{language.German, language.English}

var localeMatcher = language.NewMatcher(SupportedLocales)

// Locale はURLの言語プレフィックスを優先し、なければ Accept-Language から言語を決めます。
func Locale() gin.HandlerFunc {
	return func(c *gin.Context) {
		prefix, tag := LocaleFromPath(c.Request.URL.Path)
		if prefix == "" {
			tag = NegotiateLocale(c.GetHeader("Accept-Language"))
		}
		c.Set(ContextLocale, tag)
		c.Set(ContextLocalePrefix, prefix)
		c.Header("Content-Language", tag)
		c.Next()
	}
}

// LocaleFromPath は "/de/..." や "/en/..." のプレフィックスを取り出します。
func LocaleFromPath(path string) (string, string) {
	for _, t := range SupportedLocales {
		base, _ := t.Base()
		p := "/" + base.String()
		if path == p || strings.HasPrefix(path, p+"/") {
			return p, base.String()
		}
	}
	return "", ""
}

// NegotiateLocale は Accept-Language から対応言語を選びます。
func NegotiateLocale(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		base, _ := SupportedLocales[0].Base()
		return base.String()
	}
	_, idx, _ := localeMatcher.Match(tags...)
	base, _ := SupportedLocales[idx].Base()
	return base.String()
}

// LocalizedPath は現在の言語プレフィックスを付けたパスを返します。
func LocalizedPath(c *gin.Context, route string) string {
	return c.GetString(ContextLocalePrefix) + route
}
