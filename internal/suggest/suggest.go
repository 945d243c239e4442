// Package suggest separates the structured point-of-interest block a guide
// appends to its answer from the prose that is spoken aloud.
//
// The canonical block is a fenced section tagged with BlockTag, usually at
// the end of the answer:
//
//	The tower was finished in 1889.
//	```suggestions/v1
//	[{"name":"Trocadéro","coordinates":[2.2885,48.8616],"description":"Best photo spot"}]
//	```
//
// A trailing ```json fence and a bare trailing JSON array are accepted as
// well, optionally followed by punctuation.
package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"tourguide/internal/domain"
	"tourguide/internal/validation"
)

// BlockTag is the info string of the versioned suggestion fence.
const BlockTag = "suggestions/v1"

const (
	fence       = "```"
	blockFamily = "suggestions/"
)

var (
	ErrMalformedBlock     = errors.New("malformed suggestion block")
	ErrUnsupportedVersion = errors.New("unsupported suggestion block version")
)

// Extraction is the result of splitting a guide response.
type Extraction struct {
	// Text is the response without the block, or the original text when no
	// well-formed block was found.
	Text        string
	Suggestions []domain.Suggestion
	// Dropped counts block entries that failed validation.
	Dropped int

	malformedAt  int
	malformedEnd int
}

// Speakable returns text that is safe to hand to speech synthesis. When the
// block was malformed, the block itself is cut and prose around it is kept.
func (e Extraction) Speakable() string {
	if e.malformedAt < 0 || e.malformedAt > len(e.Text) {
		return e.Text
	}
	end := e.malformedEnd
	if end < e.malformedAt || end > len(e.Text) {
		end = len(e.Text)
	}
	return joinProse(e.Text[:e.malformedAt], e.Text[end:])
}

// Extract returns the response text with the suggestion block removed and the
// parsed suggestions. Malformed input yields the original text and no suggestions.
func Extract(text string) (string, []domain.Suggestion) {
	extraction, _ := Parse(text)
	return extraction.Text, extraction.Suggestions
}

// Parse is Extract with diagnostics. The returned Extraction is always usable;
// the error only describes why a block that looked present was rejected.
//
// A fence tagged suggestions/... is recognized anywhere in the text. Untagged
// blocks (a json fence or a bare array) must close the text, optionally
// followed by punctuation.
func Parse(text string) (Extraction, error) {
	result := Extraction{Text: text, Suggestions: []domain.Suggestion{}, malformedAt: -1}

	if strings.TrimSpace(text) == "" {
		return result, nil
	}
	if open := lastTaggedFence(text); open >= 0 {
		return parseTagged(text, open, result)
	}

	trimmed := trimTail(text)
	var (
		start   int
		payload string
		err     error
		found   bool
	)
	if strings.HasSuffix(trimmed, fence) {
		start, payload, found, err = locateFence(trimmed)
	} else if strings.HasSuffix(trimmed, "]") {
		start, payload, found, err = locateInline(trimmed)
	}
	if err != nil {
		result.malformedAt, result.malformedEnd = start, len(text)
		return result, err
	}
	if !found {
		return result, nil
	}

	suggestions, dropped, err := decode(payload)
	if err != nil {
		result.malformedAt, result.malformedEnd = start, len(text)
		return result, err
	}

	result.Text = trimRight(trimmed[:start])
	result.Suggestions = suggestions
	result.Dropped = dropped
	return result, nil
}

// parseTagged decodes the suggestions/... fence opening at open. Prose after
// the closing fence is kept.
func parseTagged(text string, open int, result Extraction) (Extraction, error) {
	header := text[open+len(fence):]
	end := len(text)
	info, content := header, ""
	if newline := strings.IndexByte(header, '\n'); newline >= 0 {
		info, content = header[:newline], header[newline+1:]
		if closing := strings.Index(content, fence); closing >= 0 {
			end = open + len(fence) + newline + 1 + closing + len(fence)
			content = content[:closing]
		}
	}

	info = strings.ToLower(strings.TrimSpace(info))
	if info != BlockTag {
		result.malformedAt, result.malformedEnd = open, end
		return result, fmt.Errorf("%w: %q", ErrUnsupportedVersion, info)
	}
	suggestions, dropped, err := decode(content)
	if err != nil {
		result.malformedAt, result.malformedEnd = open, end
		return result, err
	}

	result.Text = joinProse(text[:open], text[end:])
	result.Suggestions = suggestions
	result.Dropped = dropped
	return result, nil
}

// lastTaggedFence returns the offset of the last fence whose info string
// starts with the suggestions/ family, ignoring ASCII case, or -1.
func lastTaggedFence(text string) int {
	lowered := []byte(text)
	for i, c := range lowered {
		if 'A' <= c && c <= 'Z' {
			lowered[i] = c + 'a' - 'A'
		}
	}
	return strings.LastIndex(string(lowered), fence+blockFamily)
}

// locateFence finds the untagged fenced block that closes the text.
func locateFence(trimmed string) (int, string, bool, error) {
	body := trimmed[:len(trimmed)-len(fence)]
	open := strings.LastIndex(body, fence)
	if open < 0 {
		return 0, "", false, nil
	}

	header := body[open+len(fence):]
	newline := strings.IndexByte(header, '\n')
	if newline < 0 {
		return 0, "", false, nil
	}
	info := strings.ToLower(strings.TrimSpace(header[:newline]))
	content := header[newline+1:]

	if info != "json" && info != "" {
		return 0, "", false, nil
	}
	if !strings.HasPrefix(strings.TrimSpace(content), "[") {
		return 0, "", false, nil
	}
	return open, content, true, nil
}

// locateInline finds the longest trailing JSON array of objects.
func locateInline(trimmed string) (int, string, bool, error) {
	first := -1
	for index := 0; index < len(trimmed); index++ {
		if trimmed[index] != '[' || !opensObjectArray(trimmed[index+1:]) {
			continue
		}
		if first < 0 {
			first = index
		}
		candidate := trimmed[index:]
		if json.Valid([]byte(candidate)) {
			return index, candidate, true, nil
		}
	}
	if first >= 0 {
		return first, "", false, fmt.Errorf("%w: trailing array is not valid JSON", ErrMalformedBlock)
	}
	return 0, "", false, nil
}

func opensObjectArray(rest string) bool {
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	return strings.HasPrefix(rest, "{") || strings.HasPrefix(rest, "]")
}

type entry struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Coordinates []float64 `json:"coordinates" validate:"lonlat"`
	Description string    `json:"description" validate:"max=2000"`
}

func decode(payload string) ([]domain.Suggestion, int, error) {
	var entries []entry
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &entries); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	suggestions := make([]domain.Suggestion, 0, len(entries))
	dropped := 0
	for _, item := range entries {
		item.Name = strings.TrimSpace(item.Name)
		item.Description = strings.TrimSpace(item.Description)
		if err := validation.Struct(item); err != nil {
			dropped++
			continue
		}
		suggestions = append(suggestions, domain.Suggestion{
			Name:        item.Name,
			Coordinates: [2]float64{item.Coordinates[0], item.Coordinates[1]},
			Description: item.Description,
		})
	}
	return suggestions, dropped, nil
}

func trimRight(text string) string {
	return strings.TrimRightFunc(text, unicode.IsSpace)
}

// trimTail drops trailing whitespace and sentence punctuation.
func trimTail(text string) string {
	return strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".!?,;:", r)
	})
}

func joinProse(before, after string) string {
	before, after = trimRight(before), strings.TrimSpace(after)
	switch {
	case after == "":
		return before
	case strings.TrimSpace(before) == "":
		return after
	default:
		return before + "\n" + after
	}
}
