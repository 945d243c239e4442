package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tourguide/internal/domain"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corrections.rules")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

func TestEnginePhraseAndPatternRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, `
# phrase
notre dam => Notre-Dame
# pattern, case-insensitive by default
s/\bsacre\s*coeur\b/Sacré-Cœur/g
`)

	engine, err := NewEngine(path, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.Len() != 2 {
		t.Fatalf("expected 2 rules, got %d", engine.Len())
	}

	output, err := engine.Apply("Notre Dam or SACRE coeur")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "Notre-Dame or Sacré-Cœur" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineRepeatsUntilStable(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "a => b\nb => c\n")
	engine, err := NewEngine(path, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, _ := engine.Apply("a")
	if output != "c" {
		t.Fatalf("expected c, got %q", output)
	}
}

func TestEnginePassLimitStopsCycles(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "x => xx\n")
	engine, err := NewEngine(path, 3)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, _ := engine.Apply("x")
	if output != "xxxxxxxx" {
		t.Fatalf("unexpected output after 3 passes: %q", output)
	}
}

func TestNewEngineMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(filepath.Join(t.TempDir(), "absent.rules"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.Len() != 0 {
		t.Fatalf("expected no rules")
	}
	output, _ := engine.Apply("unchanged")
	if output != "unchanged" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestNewEngineRejectsBadLine(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "ok => fine\nnot a rule\n")
	_, err := NewEngine(path, 0)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 parse error, got %v", err)
	}
}

func TestPhraseRuleStartingWithS(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "saint chapel => Sainte-Chapelle\n")
	engine, err := NewEngine(path, 0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	output, _ := engine.Apply("where is saint chapel")
	if output != "where is Sainte-Chapelle" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestPatternRuleWithoutGlobalReplacesFirstMatch(t *testing.T) {
	t.Parallel()

	rule, err := sedParser{}.Parse(`s/(t)ower/${1}OWER/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	output, changed := rule.Apply("tower tower")
	if !changed || output != "tOWER tower" {
		t.Fatalf("unexpected output: %q changed=%v", output, changed)
	}
}

func TestPatternRuleEscapedDelimiter(t *testing.T) {
	t.Parallel()

	rule, err := sedParser{}.Parse(`s#a\#b#either#g`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	output, _ := rule.Apply("a#b")
	if output != "either" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestPatternRuleUnsupportedFlag(t *testing.T) {
	t.Parallel()

	if _, err := (sedParser{}).Parse(`s/foo/bar/x`); err == nil {
		t.Fatalf("expected unsupported flag error")
	}
	if _, err := (sedParser{}).Parse(`s/foo/bar`); err == nil {
		t.Fatalf("expected missing delimiter error")
	}
}

func TestParseRulesWithCustomParser(t *testing.T) {
	t.Parallel()

	parsers := append([]Parser{upperParser{}}, DefaultParsers()...)
	parsed, err := ParseRules(strings.NewReader("upper:louvre\n"), parsers)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected one rule")
	}
	output, _ := parsed[0].Apply("the louvre")
	if output != "the LOUVRE" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestCorrectAppliesLandmarkGlossary(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine("", 0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	tour := domain.TourContext{
		Destination: "Paris",
		Landmarks:   []string{"Eiffel Tower", "Musée d'Orsay", "Sainte-Chapelle"},
	}

	output, err := engine.Correct("tell me about the eiffel-tower and sainte chapelle in paris", tour)
	if err != nil {
		t.Fatalf("correct failed: %v", err)
	}
	if output != "tell me about the Eiffel Tower and Sainte-Chapelle in Paris" {
		t.Fatalf("unexpected output: %q", output)
	}

	output, _ = engine.Correct("eiffeltower", tour)
	if output != "Eiffel Tower" {
		t.Fatalf("unexpected joined-word output: %q", output)
	}
}

func TestCorrectRebuildsGlossaryWhenTourChanges(t *testing.T) {
	t.Parallel()

	engine, _ := NewEngine("", 0)
	first, _ := engine.Correct("colosseum", domain.TourContext{Destination: "Rome", Landmarks: []string{"Colosseum"}})
	second, _ := engine.Correct("colosseum", domain.TourContext{Destination: "Paris"})
	if first != "Colosseum" {
		t.Fatalf("unexpected first output: %q", first)
	}
	if second != "colosseum" {
		t.Fatalf("glossary leaked across tours: %q", second)
	}
}

type upperParser struct{}

func (upperParser) Matches(line string) bool { return strings.HasPrefix(line, "upper:") }

func (upperParser) Parse(line string) (Rule, error) {
	word := strings.TrimPrefix(line, "upper:")
	return arrowParser{}.Parse(word + " => " + strings.ToUpper(word))
}

func TestCorrectMatchesLandmarksWithAccentedEdges(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine("", 0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	tour := domain.TourContext{
		Destination: "Paris",
		Landmarks:   []string{"Île de la Cité", "Musée d'Orsay"},
	}

	output, err := engine.Correct("we crossed to the île de la cité then saw the musée d'orsay", tour)
	if err != nil {
		t.Fatalf("correct failed: %v", err)
	}
	if output != "we crossed to the Île de la Cité then saw the Musée d'Orsay" {
		t.Fatalf("unexpected output: %q", output)
	}
}
