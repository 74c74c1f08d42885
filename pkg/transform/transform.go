// Package transform runs the bounded generate-execute-validate loop
// that turns a raw spreadsheet into an analysis-ready table. The
// generator is untrusted: its code is pattern-scanned, executed on a
// sample in the sandbox, and the result is gated by structural
// invariants before the loop converges.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ruslano69/datachat/pkg/llm"
	"github.com/ruslano69/datachat/pkg/metrics"
	"github.com/ruslano69/datachat/pkg/script"
	"github.com/ruslano69/datachat/pkg/table"
)

const (
	// maxAttempts bounds the loop. Retries are never unbounded: the
	// failure cause is a non-deterministic external generator, so cost
	// and latency stay predictable.
	maxAttempts = 3
	// sampleRows caps the prompt sample.
	sampleRows = 30
	// executeRows caps the validation execution sample.
	executeRows = 100
	// previewRows caps result previews.
	previewRows = 20
	// historyCap limits how many prior failures a retry prompt carries
	// in full.
	historyCap = 2
	// passthroughCode is the safe no-op script reported on exhaustion.
	passthroughCode = "result = df"
)

// Result is the outcome of a transform session, well-formed on every
// path including exhaustion.
type Result struct {
	Summary         string
	Explanation     string
	IssuesFound     []string
	TransformCode   string
	NeedsTransform  bool
	Preview         *table.Table
	OriginalSample  *table.Table
	ValidationNotes []string
	Iterations      int
	HasError        bool
	FailedCode      string
}

// Options carries per-call context for Generate.
type Options struct {
	Filename        string
	Sheet           string
	UserDescription string
}

// RegenOptions carries per-call context for Regenerate.
type RegenOptions struct {
	OriginalSample     *table.Table
	TransformedPreview *table.Table
	PreviousError      string
}

// generatorResponse is the structured contract the generator must
// return.
type generatorResponse struct {
	NeedsTransform bool     `json:"needs_transform"`
	Issues         []string `json:"issues"`
	Summary        string   `json:"summary"`
	Explanation    string   `json:"explanation"`
	Code           string   `json:"code"`
}

// Engine drives the loop. The generator client and the sandbox runner
// are injected so tests substitute scripted fakes.
type Engine struct {
	client llm.Client
	runner script.Runner
	log    zerolog.Logger
}

// NewEngine creates an engine.
func NewEngine(client llm.Client, runner script.Runner, log zerolog.Logger) *Engine {
	return &Engine{
		client: client,
		runner: runner,
		log:    log.With().Str("component", "transform").Logger(),
	}
}

// Generate runs the full bounded loop against t. It never returns an
// error: every failure mode lands in the Result with HasError set. On
// exhaustion the original data comes back unchanged with
// NeedsTransform forced off and the passthrough code reported, never
// the offending script.
func (e *Engine) Generate(ctx context.Context, t *table.Table, opts Options) *Result {
	res := &Result{
		OriginalSample: t.Head(sampleRows),
	}
	sample := t.Head(executeRows)

	var failures []string
	var lastCode string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Iterations = attempt
		if err := ctx.Err(); err != nil {
			e.fail(res, t, lastCode, append(failures, fmt.Sprintf("cancelled: %v", err)))
			return res
		}

		var user string
		if attempt == 1 {
			user = buildGeneratePrompt(res.OriginalSample, opts.Filename, opts.Sheet, opts.UserDescription)
		} else {
			user = buildRetryPrompt(res.OriginalSample, lastCode, failures)
		}

		resp, err := e.generate(ctx, user)
		if err != nil {
			failures = append(failures, fmt.Sprintf("attempt %d: generator failed: %v", attempt, err))
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeRetried).Inc()
			e.log.Warn().Err(err).Int("attempt", attempt).Msg("generator call failed")
			continue
		}
		res.Summary = resp.Summary
		res.Explanation = resp.Explanation
		res.IssuesFound = resp.Issues

		if !resp.NeedsTransform {
			res.NeedsTransform = false
			res.TransformCode = ""
			res.Preview = t.Head(previewRows)
			res.ValidationNotes = append(res.ValidationNotes, failures...)
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeAccepted).Inc()
			e.log.Info().Int("attempt", attempt).Msg("no transform needed")
			return res
		}
		lastCode = resp.Code

		// Dangerous code is rejected by the scan alone; it never
		// reaches the executor, not even partially.
		if err := script.CheckForbidden(resp.Code); err != nil {
			failures = append(failures, fmt.Sprintf("attempt %d: rejected before execution: %v", attempt, err))
			metrics.DangerousRejections.Inc()
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeRetried).Inc()
			e.log.Warn().Int("attempt", attempt).Msg("dangerous code rejected")
			continue
		}

		exec := e.runner.Execute(ctx, resp.Code, sample, script.ModeTransform)
		if exec.Err != nil {
			failures = append(failures, fmt.Sprintf("attempt %d: execution failed: %s", attempt, exec.Err.Error()))
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeRetried).Inc()
			continue
		}

		if dups := exec.Table.DuplicateColumns(); len(dups) > 0 {
			failures = append(failures, fmt.Sprintf("attempt %d: duplicate column names in result: %s",
				attempt, strings.Join(dups, ", ")))
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeRetried).Inc()
			continue
		}

		issues := CompareStructure(sample, exec.Table)
		if HasCritical(issues) {
			for _, issue := range issues {
				failures = append(failures, fmt.Sprintf("attempt %d: %s", attempt, issue))
			}
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeRetried).Inc()
			continue
		}

		// Converged. Warnings ride along as notes.
		for _, issue := range issues {
			res.ValidationNotes = append(res.ValidationNotes, issue.String())
		}
		res.ValidationNotes = append(res.ValidationNotes, failures...)
		if exec.Diagnostic != "" {
			res.ValidationNotes = append(res.ValidationNotes, exec.Diagnostic)
		}
		res.NeedsTransform = true
		res.TransformCode = resp.Code
		res.Preview = exec.Table.Head(previewRows)
		metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeAccepted).Inc()
		e.log.Info().Int("attempt", attempt).Msg("transform converged")
		return res
	}

	e.fail(res, t, lastCode, failures)
	return res
}

// fail fills the exhaustion result: original data, passthrough code,
// the full diagnostic trail.
func (e *Engine) fail(res *Result, t *table.Table, lastCode string, failures []string) {
	res.NeedsTransform = false
	res.HasError = true
	res.TransformCode = passthroughCode
	res.FailedCode = lastCode
	res.Preview = t.Head(previewRows)
	res.ValidationNotes = append(res.ValidationNotes, failures...)
	metrics.GenerationAttempts.WithLabelValues(metrics.LoopTransform, metrics.OutcomeFailed).Inc()
	metrics.LoopExhaustions.WithLabelValues(metrics.LoopTransform).Inc()
	e.log.Warn().Strs("failures", failures).Msg("transform loop exhausted")
}

// Regenerate performs exactly one generation cycle from human
// feedback. The human is the retry loop here, so there is none inside.
func (e *Engine) Regenerate(ctx context.Context, t *table.Table, previousCode, feedback string, opts RegenOptions) *Result {
	original := opts.OriginalSample
	if original == nil {
		original = t.Head(sampleRows)
	}
	res := &Result{
		OriginalSample: original,
		Iterations:     1,
	}

	user := buildFeedbackPrompt(original, previousCode, feedback, opts.TransformedPreview, opts.PreviousError)
	resp, err := e.generate(ctx, user)
	if err != nil {
		res.HasError = true
		res.NeedsTransform = false
		res.TransformCode = passthroughCode
		res.FailedCode = previousCode
		res.Preview = t.Head(previewRows)
		res.ValidationNotes = append(res.ValidationNotes, fmt.Sprintf("generator failed: %v", err))
		return res
	}
	res.Summary = resp.Summary
	res.Explanation = resp.Explanation
	res.IssuesFound = resp.Issues

	if !resp.NeedsTransform {
		res.Preview = t.Head(previewRows)
		return res
	}

	if err := script.CheckForbidden(resp.Code); err != nil {
		res.HasError = true
		res.TransformCode = passthroughCode
		res.FailedCode = resp.Code
		res.NeedsTransform = false
		res.Preview = t.Head(previewRows)
		res.ValidationNotes = append(res.ValidationNotes, fmt.Sprintf("rejected before execution: %v", err))
		metrics.DangerousRejections.Inc()
		return res
	}

	exec := e.runner.Execute(ctx, resp.Code, t.Head(executeRows), script.ModeTransform)
	if exec.Err != nil {
		res.HasError = true
		res.TransformCode = passthroughCode
		res.FailedCode = resp.Code
		res.NeedsTransform = false
		res.Preview = t.Head(previewRows)
		res.ValidationNotes = append(res.ValidationNotes, fmt.Sprintf("execution failed: %s", exec.Err.Error()))
		return res
	}

	res.NeedsTransform = true
	res.TransformCode = resp.Code
	res.Preview = exec.Table.Head(previewRows)
	if exec.Diagnostic != "" {
		res.ValidationNotes = append(res.ValidationNotes, exec.Diagnostic)
	}
	return res
}

// generate runs one completion and parses the structured response.
func (e *Engine) generate(ctx context.Context, user string) (*generatorResponse, error) {
	text, err := e.client.Complete(ctx, transformSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in generator response")
	}
	var resp generatorResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("malformed generator response: %w", err)
	}
	if resp.NeedsTransform && strings.TrimSpace(resp.Code) == "" {
		return nil, fmt.Errorf("generator asked for a transform but returned no code")
	}
	return &resp, nil
}
