package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"tourguide/internal/domain"
	"tourguide/internal/suggest"
)

const systemTemplate = `You are a friendly, knowledgeable tour guide speaking to a visitor in {{.Destination}}.
{{- if .Landmarks}}
The tour covers: {{join .Landmarks ", "}}.
{{- end}}
Answer in {{.Language}} in at most {{.MaxSentences}} short sentences that sound natural when read aloud.
Do not use markdown, lists or emoji in the spoken answer.
If you recommend other places worth visiting nearby, end your answer with exactly one block in this form and nothing after it:
` + "```" + `{{.BlockTag}}
[{"name":"<place name>","coordinates":[<longitude>,<latitude>],"description":"<one short sentence>"}]
` + "```" + `
Omit the block when you have nothing to recommend.`

const userTemplate = `{{- if .History}}Earlier in this conversation:
{{- range .History}}
Visitor: {{.Question}}
Guide: {{.Answer}}
{{- end}}

{{end -}}
Visitor: {{.Question}}`

// Options tune the rendered instructions.
type Options struct {
	DefaultLanguage string
	MaxSentences    int
}

// Builder renders completion requests for the guide.
type Builder struct {
	system *template.Template
	user   *template.Template
	opts   Options
}

func NewBuilder(opts Options) *Builder {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "English"
	}
	if opts.MaxSentences <= 0 {
		opts.MaxSentences = 4
	}
	funcs := template.FuncMap{"join": strings.Join}
	return &Builder{
		system: template.Must(template.New("system").Funcs(funcs).Parse(systemTemplate)),
		user:   template.Must(template.New("user").Parse(userTemplate)),
		opts:   opts,
	}
}

// Build renders the system instruction from the tour and the prompt from the
// transcript plus earlier exchanges.
func (b *Builder) Build(tour domain.TourContext, transcript domain.TranscriptRecord, history []domain.Exchange) (domain.CompletionRequest, error) {
	question := strings.TrimSpace(transcript.Text)
	if question == "" {
		return domain.CompletionRequest{}, errors.New("transcript is empty")
	}

	destination := strings.TrimSpace(tour.Destination)
	if destination == "" {
		destination = "the city"
	}
	language := strings.TrimSpace(tour.Language)
	if language == "" {
		language = b.opts.DefaultLanguage
	}

	var system strings.Builder
	err := b.system.Execute(&system, map[string]any{
		"Destination":  destination,
		"Landmarks":    tour.Landmarks,
		"Language":     language,
		"MaxSentences": b.opts.MaxSentences,
		"BlockTag":     suggest.BlockTag,
	})
	if err != nil {
		return domain.CompletionRequest{}, fmt.Errorf("render system instruction: %w", err)
	}

	var user strings.Builder
	err = b.user.Execute(&user, map[string]any{
		"History":  history,
		"Question": question,
	})
	if err != nil {
		return domain.CompletionRequest{}, fmt.Errorf("render prompt: %w", err)
	}

	return domain.CompletionRequest{
		Prompt:            user.String(),
		SystemInstruction: system.String(),
	}, nil
}
