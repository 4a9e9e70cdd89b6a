// Package moderation screens submitted comments for banned vocabulary.
package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
)

type Word struct {
	Text       string   `json:"text"`
	Pattern    string   `json:"pattern"`
	Exceptions []string `json:"exceptions"`

	regexPattern *regexp.Regexp
}

type Filter struct {
	bannedWords []Word
}

// New returns a Filter that lets everything through until words are loaded.
func New() *Filter {
	return &Filter{}
}

// LoadFromJSON loads banned words from a JSON file and compiles their patterns.
func (f *Filter) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var words []Word
	if err := json.Unmarshal(data, &words); err != nil {
		return err
	}

	for i, word := range words {
		words[i].regexPattern, err = regexp.Compile("^(?:" + word.Pattern + ")$")
		if err != nil {
			return fmt.Errorf("failed to compile pattern %q: %w", word.Pattern, err)
		}
	}

	f.bannedWords = words
	return nil
}

// Lookalike letters from other scripts mapped to the Latin letter they imitate.
var confusables = strings.NewReplacer(
	"а", "a", "е", "e", "ё", "e", "о", "o", "р", "p", "с", "c", "у", "y", "х", "x", "і", "i",
	"ο", "o", "ι", "i", "α", "a", "ε", "e", "ѕ", "s",
	"0", "o", "1", "i", "3", "e", "@", "a", "$", "s",
)

func normalize(text string) []string {
	text = confusables.Replace(strings.ToLower(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Match returns the first banned word found in text. Words listed as exceptions of a
// pattern are allowed. Matching ignores case, punctuation and common lookalike letters.
func (f *Filter) Match(text string) (string, bool) {
	for _, w := range normalize(text) {
		for _, banned := range f.bannedWords {
			if !banned.regexPattern.MatchString(w) {
				continue
			}

			isException := false
			for _, exc := range banned.Exceptions {
				if exc == w {
					isException = true
					break
				}
			}

			if !isException {
				return banned.Text, true
			}
		}
	}

	return "", false
}

// Check reports whether text contains banned vocabulary.
func (f *Filter) Check(text string) bool {
	_, found := f.Match(text)
	return found
}
