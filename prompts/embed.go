// Package prompts holds the model prompts used by the research pipeline.
package prompts

import _ "embed"

//go:embed research/system.md
var ResearchSystemPrompt string

//go:embed research/questions.md.tmpl
var QuestionsTemplate string

//go:embed research/findings.md.tmpl
var FindingsTemplate string

//go:embed research/report.md.tmpl
var ReportTemplate string
