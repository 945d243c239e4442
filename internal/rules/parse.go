package rules

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Rule rewrites a transcript and reports whether anything changed.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// Parser turns one rules-file line into a Rule.
type Parser interface {
	Matches(line string) bool
	Parse(line string) (Rule, error)
}

// DefaultParsers understands `s/pattern/replacement/flags` and `from => to`.
func DefaultParsers() []Parser {
	return []Parser{sedParser{}, arrowParser{}}
}

// ParseRules reads a rules file. Blank lines and `#` comments are skipped.
func ParseRules(r io.Reader, parsers []Parser) ([]Rule, error) {
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}

	var parsed []Rule
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		parsed = append(parsed, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return parsed, nil
}

func parseLine(line string, parsers []Parser) (Rule, error) {
	for _, parser := range parsers {
		if parser.Matches(line) {
			return parser.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}

// phraseRule replaces every case-insensitive occurrence of a phrase.
type phraseRule struct {
	pattern     *regexp.Regexp
	replacement string
}

func (r phraseRule) Apply(input string) (string, bool) {
	output := r.pattern.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type arrowParser struct{}

func (arrowParser) Matches(line string) bool {
	return strings.Contains(line, "=>")
}

func (arrowParser) Parse(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("phrase rule needs a source phrase")
	}
	pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid phrase: %w", err)
	}
	return phraseRule{pattern: pattern, replacement: strings.TrimSpace(to)}, nil
}

// patternRule is a sed-style substitution. Without the g flag only the first
// match is rewritten.
type patternRule struct {
	pattern     *regexp.Regexp
	replacement string
	everyMatch  bool
}

func (r patternRule) Apply(input string) (string, bool) {
	if r.everyMatch {
		output := r.pattern.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.pattern.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.pattern.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

type sedParser struct{}

func (sedParser) Matches(line string) bool {
	return len(line) > 1 && line[0] == 's' && isDelimiter(line[1])
}

func (sedParser) Parse(line string) (Rule, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, rest, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	// Matching is case-insensitive unless overridden by an inline (?-i).
	inline := "i"
	everyMatch := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'i':
		case 'g':
			everyMatch = true
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	compiled, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return patternRule{pattern: compiled, replacement: replacement, everyMatch: everyMatch}, nil
}

// splitDelimited reads up to the next unescaped delimiter. Escapes other than
// an escaped delimiter are preserved for the regex engine.
func splitDelimited(input string, delim byte) (string, string, error) {
	var out strings.Builder
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c == '\\' && i+1 < len(input):
			if input[i+1] != delim {
				out.WriteByte(c)
			}
			out.WriteByte(input[i+1])
			i++
		case c == delim:
			return out.String(), input[i+1:], nil
		default:
			out.WriteByte(c)
		}
	}
	return "", "", errors.New("missing closing delimiter")
}

func isDelimiter(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == ' ' || c == '\t' || c == '\\':
		return false
	default:
		return true
	}
}
