package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/berth-dev/scout/internal/llm"
	eventlog "github.com/berth-dev/scout/internal/log"
	"github.com/berth-dev/scout/internal/report"
	"github.com/berth-dev/scout/internal/session"
	"github.com/berth-dev/scout/prompts"
)

// Run researches topic at depth, collecting at most maxSources sources.
//
// Only invalid input, a store failure while creating the session and
// cancellation of ctx are returned as errors. Model, search and extraction
// failures fall back to reduced output and the run still completes.
func (p *Pipeline) Run(ctx context.Context, topic string, depth session.Depth, maxSources int) (*Result, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	count, ok := p.cfg.QuestionCount(string(depth))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDepth, depth)
	}
	if maxSources < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxSources, maxSources)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := p.now()
	id, err := p.store.CreateSession(ctx, topic, depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	logger := p.logger.With(zap.Int64("session_id", id))
	logger.Info("research started", zap.String("topic", topic), zap.String("depth", string(depth)))
	p.record(eventlog.LogEvent{Event: eventlog.EventResearchStarted, SessionID: id, Topic: topic, Depth: string(depth)})

	res := &Result{SessionID: id, Topic: topic, Depth: depth}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.stageStarted(StageQuestions)
	res.Questions = p.generateQuestions(ctx, id, topic, count)
	p.stageFinished(StageQuestions, fmt.Sprintf("%d questions", len(res.Questions)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.stageStarted(StageSources)
	res.Sources = p.collectSources(ctx, id, topic, res.Questions, maxSources)
	p.stageFinished(StageSources, fmt.Sprintf("%d sources", len(res.Sources)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.stageStarted(StageFindings)
	res.Findings = p.analyzeSources(ctx, id, topic, res.Questions, res.Sources)
	p.stageFinished(StageFindings, fmt.Sprintf("%d findings", len(res.Findings)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.stageStarted(StageReport)
	res.Report = p.synthesizeReport(ctx, id, topic, res.Findings)
	res.ReportPath = p.writeReport(id, topic, res.Report.Content)
	p.stageFinished(StageReport, res.ReportPath)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.store.CompleteSession(ctx, id, res.Report.Summary, res.ReportPath); err != nil {
		logger.Warn("completing session failed", zap.Error(err))
	} else {
		res.Completed = true
	}

	elapsed := p.now().Sub(start)
	logger.Info("research finished",
		zap.Int("sources", len(res.Sources)),
		zap.Int("findings", len(res.Findings)),
		zap.Bool("completed", res.Completed),
		zap.Duration("elapsed", elapsed),
	)
	p.record(eventlog.LogEvent{
		Event:      eventlog.EventResearchCompleted,
		SessionID:  id,
		Path:       res.ReportPath,
		Count:      len(res.Findings),
		DurationMs: elapsed.Milliseconds(),
	})

	return res, nil
}

func (p *Pipeline) request(prompt string) llm.Request {
	return llm.Request{
		Prompt:      prompt,
		System:      prompts.ResearchSystemPrompt,
		Temperature: p.cfg.LLM.Temperature,
		MaxTokens:   p.cfg.LLM.MaxTokens,
	}
}

func (p *Pipeline) generateQuestions(ctx context.Context, id int64, topic string, count int) []string {
	prompt, err := buildQuestionsPrompt(topic, count)
	if err != nil {
		p.fallback(id, StageQuestions, err)
		return []string{topic}
	}

	text, err := p.gen.Generate(ctx, p.request(prompt))
	if err != nil {
		p.fallback(id, StageQuestions, err)
		return []string{topic}
	}

	questions := ParseQuestions(text, count)
	if len(questions) == 0 {
		p.fallback(id, StageQuestions, errors.New("no questions in model output"))
		return []string{topic}
	}

	p.record(eventlog.LogEvent{Event: eventlog.EventQuestionsGenerated, SessionID: id, Count: len(questions)})
	return questions
}

func (p *Pipeline) collectSources(ctx context.Context, id int64, topic string, questions []string, maxSources int) []session.Source {
	queries := []string{topic}
	queries = append(queries, questions[:min(p.cfg.Research.QuestionQueries, len(questions))]...)

	var sources []session.Source
	for _, query := range queries {
		if len(sources) >= maxSources || ctx.Err() != nil {
			break
		}

		for _, hit := range p.searcher.Search(ctx, query, p.cfg.Research.ResultsPerQuery) {
			if len(sources) >= maxSources || ctx.Err() != nil {
				break
			}

			content := p.searcher.ExtractContent(ctx, hit.URL)
			if content == "" {
				p.logger.Debug("skipping source without content", zap.String("url", hit.URL))
				continue
			}

			src := session.Source{
				SessionID:   id,
				Title:       hit.Title,
				URL:         hit.URL,
				Snippet:     hit.Snippet,
				Query:       query,
				Content:     content,
				RetrievedAt: p.now().UTC(),
			}
			srcID, err := p.store.AddSource(ctx, id, src)
			if err != nil {
				p.logger.Warn("persisting source failed", zap.Int64("session_id", id), zap.String("url", hit.URL), zap.Error(err))
			} else {
				src.ID = srcID
			}
			sources = append(sources, src)
			p.record(eventlog.LogEvent{Event: eventlog.EventSourceAdded, SessionID: id, Query: query, URL: hit.URL})
		}
	}
	return sources
}

func (p *Pipeline) analyzeSources(ctx context.Context, id int64, topic string, questions []string, sources []session.Source) []session.Finding {
	if len(sources) == 0 {
		p.fallback(id, StageFindings, errors.New("no sources collected"))
		return nil
	}

	prompt, err := buildFindingsPrompt(topic, questions, sources, p.cfg.Research.ContentPreviewChars)
	if err != nil {
		p.fallback(id, StageFindings, err)
		return nil
	}
	text, err := p.gen.Generate(ctx, p.request(prompt))
	if err != nil {
		p.fallback(id, StageFindings, err)
		return nil
	}

	findings := ParseFindings(text)
	for i := range findings {
		f := &findings[i]
		f.SessionID = id
		f.CreatedAt = p.now().UTC()
		fid, err := p.store.AddFinding(ctx, id, *f)
		if err != nil {
			p.logger.Warn("persisting finding failed", zap.Int64("session_id", id), zap.Error(err))
			continue
		}
		f.ID = fid
	}

	p.record(eventlog.LogEvent{Event: eventlog.EventFindingsExtracted, SessionID: id, Count: len(findings)})
	return findings
}

func (p *Pipeline) synthesizeReport(ctx context.Context, id int64, topic string, findings []session.Finding) Report {
	prompt, err := buildReportPrompt(topic, findings)
	if err != nil {
		p.fallback(id, StageReport, err)
		return Report{Content: ReportUnavailable}
	}

	text, err := p.gen.Generate(ctx, p.request(prompt))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty report from model")
	}
	if err != nil {
		p.fallback(id, StageReport, err)
		return Report{Content: ReportUnavailable}
	}

	return Report{Content: text, Summary: Summarize(text)}
}

func (p *Pipeline) writeReport(id int64, topic, content string) string {
	path, err := report.Write(p.reportDir, report.Document{
		Topic:       topic,
		SessionID:   id,
		GeneratedAt: p.now(),
		Body:        content,
	})
	if err != nil {
		p.fallback(id, "report_file", err)
		return ""
	}

	p.record(eventlog.LogEvent{Event: eventlog.EventReportWritten, SessionID: id, Path: path})
	return path
}

