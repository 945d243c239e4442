// Package rules corrects recurring speech recognition mistakes, such as
// misheard landmark names, before a transcript is sent to the guide.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"tourguide/internal/domain"
)

const defaultPassLimit = 30

// Engine applies user rules followed by the landmark glossary of the current tour.
type Engine struct {
	rules     []Rule
	passLimit int

	mu       sync.Mutex
	glossKey string
	glossary []Rule
}

// NewEngine loads rules from path. A missing or empty path yields an engine
// that only applies the landmark glossary.
func NewEngine(path string, passLimit int) (*Engine, error) {
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}
	engine := &Engine{passLimit: passLimit}

	if strings.TrimSpace(path) == "" {
		return engine, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine, nil
		}
		return nil, fmt.Errorf("open rules file %q: %w", path, err)
	}
	defer file.Close()

	parsed, err := ParseRules(file, DefaultParsers())
	if err != nil {
		return nil, fmt.Errorf("parse rules file %q: %w", path, err)
	}
	engine.rules = parsed
	return engine, nil
}

// Len reports how many user rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply runs the user rules until the text stops changing or the pass limit is hit.
func (e *Engine) Apply(text string) (string, error) {
	return applyUntilStable(text, e.rules, e.passLimit), nil
}

// Correct implements ports.TranscriptCorrector.
func (e *Engine) Correct(text string, tour domain.TourContext) (string, error) {
	out := applyUntilStable(text, e.rules, e.passLimit)
	return applyUntilStable(out, e.glossaryFor(tour), 1), nil
}

func applyUntilStable(text string, rules []Rule, limit int) string {
	for pass := 0; pass < limit; pass++ {
		changed := false
		for _, rule := range rules {
			if next, ok := rule.Apply(text); ok {
				text = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return text
}

// glossaryFor returns canonical-spelling rules for the tour's proper names,
// rebuilding them only when the tour changes.
func (e *Engine) glossaryFor(tour domain.TourContext) []Rule {
	names := make([]string, 0, len(tour.Landmarks)+1)
	if dest := strings.TrimSpace(tour.Destination); dest != "" {
		names = append(names, dest)
	}
	for _, landmark := range tour.Landmarks {
		if name := strings.TrimSpace(landmark); name != "" {
			names = append(names, name)
		}
	}
	key := strings.Join(names, "\x00")

	e.mu.Lock()
	defer e.mu.Unlock()
	if key == e.glossKey && e.glossary != nil {
		return e.glossary
	}

	glossary := make([]Rule, 0, len(names))
	for _, name := range names {
		if rule, ok := glossaryRule(name); ok {
			glossary = append(glossary, rule)
		}
	}
	e.glossKey = key
	e.glossary = glossary
	return glossary
}

// glossaryRule matches a name regardless of case, and with its words run
// together or split by spaces or hyphens ("eiffel-tower", "Eiffeltower").
func glossaryRule(name string) (Rule, bool) {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == ' ' || r == '-' || r == '\t' })
	if len(words) == 0 {
		return nil, false
	}
	quoted := make([]string, len(words))
	for i, word := range words {
		quoted[i] = regexp.QuoteMeta(word)
	}
	first, _ := utf8.DecodeRuneInString(words[0])
	last, _ := utf8.DecodeLastRuneInString(words[len(words)-1])
	pattern, err := regexp.Compile(`(?i)` + boundary(first) + strings.Join(quoted, `[\s-]*`) + boundary(last))
	if err != nil {
		return nil, false
	}
	return phraseRule{pattern: pattern, replacement: name}, true
}

// boundary returns a word boundary for an ASCII word character. RE2's \b
// only knows ASCII, so names starting or ending in other letters ("Île")
// go unanchored on that side.
func boundary(r rune) string {
	if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
		return `\b`
	}
	return ""
}
