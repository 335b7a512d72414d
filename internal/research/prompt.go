// prompt.go renders the embedded prompt templates for each model call.
package research

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/berth-dev/scout/internal/session"
	"github.com/berth-dev/scout/prompts"
)

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var (
	questionsTmpl = template.Must(template.New("questions").Funcs(funcs).Parse(prompts.QuestionsTemplate))
	findingsTmpl  = template.Must(template.New("findings").Funcs(funcs).Parse(prompts.FindingsTemplate))
	reportTmpl    = template.Must(template.New("report").Funcs(funcs).Parse(prompts.ReportTemplate))
)

type questionsData struct {
	Topic string
	Count int
}

type promptSource struct {
	Index   int
	Title   string
	URL     string
	Excerpt string
}

type findingsData struct {
	Topic     string
	Questions []string
	Sources   []promptSource
}

type promptFinding struct {
	Index      int
	Text       string
	Sources    string
	Confidence string
}

type reportData struct {
	Topic    string
	Findings []promptFinding
}

func buildQuestionsPrompt(topic string, count int) (string, error) {
	return execute(questionsTmpl, questionsData{Topic: topic, Count: count})
}

func buildFindingsPrompt(topic string, questions []string, sources []session.Source, previewChars int) (string, error) {
	data := findingsData{Topic: topic, Questions: questions}
	for i, src := range sources {
		data.Sources = append(data.Sources, promptSource{
			Index:   i + 1,
			Title:   src.Title,
			URL:     src.URL,
			Excerpt: excerpt(src.Content, previewChars),
		})
	}
	return execute(findingsTmpl, data)
}

func buildReportPrompt(topic string, findings []session.Finding) (string, error) {
	data := reportData{Topic: topic}
	for i, f := range findings {
		data.Findings = append(data.Findings, promptFinding{
			Index:      i + 1,
			Text:       f.Text,
			Sources:    strings.Join(f.SourceRefs, ", "),
			Confidence: f.Confidence,
		})
	}
	return execute(reportTmpl, data)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// excerpt returns the first n characters of s, marked with "..." when cut.
func excerpt(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
