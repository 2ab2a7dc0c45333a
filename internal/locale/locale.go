// Package locale holds the per-language strings and formats used for period
// labels, keyword collation and rendered text.
package locale

import (
	"fmt"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Supported locale names.
const (
	English           = "en"
	SimplifiedChinese = "zh-CN"
)

// Locale describes one supported presentation language.
type Locale struct {
	Name string
	Tag  language.Tag

	// UnknownPeriod labels the bucket of papers with no usable date.
	UnknownPeriod string
	AllPapers     string
	UnknownDate   string
	UnknownAuthor string
	NoAbstract    string
	NoMatches     string
	EtAl          string

	period func(year int, month time.Month) string
}

var locales = map[string]*Locale{
	English: {
		Name:          English,
		Tag:           language.English,
		UnknownPeriod: "unknown",
		AllPapers:     "All papers",
		UnknownDate:   "Unknown date",
		UnknownAuthor: "Unknown author",
		NoAbstract:    "No abstract available...",
		NoMatches:     "No matching papers found",
		EtAl:          " et al.",
		period: func(year int, month time.Month) string {
			return fmt.Sprintf("%04d-%02d", year, int(month))
		},
	},
	SimplifiedChinese: {
		Name:          SimplifiedChinese,
		Tag:           language.SimplifiedChinese,
		UnknownPeriod: "其他日期",
		AllPapers:     "全部论文",
		UnknownDate:   "未知日期",
		UnknownAuthor: "未知作者",
		NoAbstract:    "暂无摘要内容...",
		NoMatches:     "没有找到匹配的论文",
		EtAl:          " 等",
		period: func(year int, month time.Month) string {
			return fmt.Sprintf("%d年%02d月", year, int(month))
		},
	},
}

// Lookup returns the locale registered under name.
func Lookup(name string) (*Locale, bool) {
	l, ok := locales[name]
	return l, ok
}

// MustLookup returns the named locale, falling back to English.
func MustLookup(name string) *Locale {
	if l, ok := locales[name]; ok {
		return l
	}
	return locales[English]
}

// Default returns the English locale.
func Default() *Locale {
	return locales[English]
}

// Period renders the coarse period label for t.
func (l *Locale) Period(t time.Time) string {
	return l.period(t.Year(), t.Month())
}

// PeriodKey is the locale independent sort key for a period: "2024-01".
func PeriodKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// NewCollator returns a collator for keyword ordering in this locale.
// A Collator is not safe for concurrent use.
func (l *Locale) NewCollator() *collate.Collator {
	return collate.New(l.Tag)
}
