// Package speech routes text to audio and audio to text by output language.
//
// Languages with a native synthesiser are spoken directly. Languages marked
// for translation are translated from English and rendered by the regional
// provider; captured speech in those languages is transcribed by the regional
// recogniser and translated back to English before intent classification.
package speech

import (
	"strings"

	"github.com/sightwear/sightwear/pkg/phonetic"
)

// Source is the language every prompt is authored in.
const Source = "en"

// Language is one selectable output language.
type Language struct {
	Code      string
	Name      string
	Aliases   []string
	Translate bool
}

// Languages is the closed set of supported languages. It is read-only after
// construction.
type Languages struct {
	def     Language
	list    []Language
	matcher *phonetic.Matcher
}

// NewLanguages returns the set with def as its default. An unknown def falls
// back to the first entry, or to English when list is empty.
func NewLanguages(def string, list []Language) *Languages {
	if len(list) == 0 {
		list = []Language{{Code: Source, Name: "English"}}
	}
	l := &Languages{list: list, def: list[0], matcher: phonetic.New()}
	if lang, ok := l.Lookup(def); ok {
		l.def = lang
	}
	return l
}

// Default returns the default language.
func (l *Languages) Default() Language { return l.def }

// All returns the supported languages in configuration order.
func (l *Languages) All() []Language { return l.list }

// Lookup finds a language by code, case-insensitively.
func (l *Languages) Lookup(code string) (Language, bool) {
	for _, lang := range l.list {
		if strings.EqualFold(lang.Code, code) {
			return lang, true
		}
	}
	return Language{}, false
}

// Translated reports whether code is spoken through translation.
func (l *Languages) Translated(code string) bool {
	lang, ok := l.Lookup(code)
	return ok && lang.Translate
}

// Match finds the language named in a spoken answer such as "I want Twi".
// Names and aliases are compared phonetically, so transcription slips like
// "tree" for "Twi" still resolve when they sound alike.
func (l *Languages) Match(utterance string) (Language, bool) {
	if strings.TrimSpace(utterance) == "" {
		return Language{}, false
	}
	for _, lang := range l.list {
		for _, word := range append([]string{lang.Name}, lang.Aliases...) {
			if word != "" && l.matcher.Mentions(utterance, word) {
				return lang, true
			}
		}
	}
	return Language{}, false
}
