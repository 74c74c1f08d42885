// Package answer runs the bounded question-answering loop: prompt the
// generator for a script, execute it in the sandbox against the full
// table, have a judge call verify the output actually answers the
// question, and retry with the judge's advice on rejection.
package answer

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
	maxAttempts = 3
	// promptSampleRows caps the sample embedded in the system prompt.
	promptSampleRows = 5
	// historyTurns / turnCharCap bound the conversation context.
	historyTurns = 10
	turnCharCap  = 500
	// failureHistoryCap limits how many prior failures a retry prompt
	// carries in full.
	failureHistoryCap = 2
	// explanationMinChars: shorter outputs with no components are not
	// worth an explanation call.
	explanationMinChars = 20

	// apologyTemplate is the fixed exhaustion answer; partial or
	// garbage output is never surfaced.
	apologyTemplate = "I was unable to compute an answer to this question after several attempts. " +
		"Please try rephrasing it, or check that the question matches the columns in this table."
)

// Turn is one prior conversation exchange.
type Turn struct {
	Role    string
	Content string
}

// Options carries optional context for one question.
type Options struct {
	TableDescription   string
	ColumnDescriptions map[string]string
	History            []Turn
}

// Result is the outcome of one question, well-formed on every path.
type Result struct {
	ResponseText    string
	GeneratedCode   string
	Explanation     string
	Components      []script.Component
	Iterations      int
	HasError        bool
	FailedCode      string
	ValidationNotes []string
}

// attemptFailure records one failed attempt for the retry prompt.
type attemptFailure struct {
	code   string
	reason string
	advice string
}

// judgeResponse is the verdict contract.
type judgeResponse struct {
	Accept bool   `json:"accept"`
	Advice string `json:"advice"`
}

const judgeSystemPrompt = `You verify whether a computed output answers a question. You see only the question and the output, never the code.
Respond with a single JSON object:
{"accept": true|false, "advice": "when rejecting, one concrete instruction for the next attempt"}
Accept when the output plausibly answers the question. Reject vague, irrelevant or incomplete output.`

const explanationSystemPrompt = `You write a short insight for a business user from an already-computed result. Two or three sentences: what the numbers show, then how they were obtained. Never recompute or second-guess the values.`

// Engine drives the loop. Generator and judge are separate interfaces
// so tests count their calls independently; production wires the same
// client into both.
type Engine struct {
	client llm.Client
	judge  llm.Client
	runner script.Runner
	log    zerolog.Logger
}

// NewEngine creates an engine.
func NewEngine(client, judge llm.Client, runner script.Runner, log zerolog.Logger) *Engine {
	return &Engine{
		client: client,
		judge:  judge,
		runner: runner,
		log:    log.With().Str("component", "answer").Logger(),
	}
}

// Answer runs the bounded loop for one question. It never returns a Go
// error: exhaustion yields the apology template with HasError set and
// the diagnostic trail in ValidationNotes.
func (e *Engine) Answer(ctx context.Context, t *table.Table, question string, opts Options) *Result {
	res := &Result{}
	system := buildSystemPrompt(t, opts)

	var failures []attemptFailure

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Iterations = attempt
		if err := ctx.Err(); err != nil {
			res.ValidationNotes = append(res.ValidationNotes, fmt.Sprintf("cancelled: %v", err))
			break
		}

		user := buildUserPrompt(question, opts.History, failures)
		text, err := e.client.Complete(ctx, system, user)
		if err != nil {
			failures = append(failures, attemptFailure{reason: fmt.Sprintf("generator failed: %v", err)})
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopAnswer, metrics.OutcomeRetried).Inc()
			e.log.Warn().Err(err).Int("attempt", attempt).Msg("generator call failed")
			continue
		}
		code := llm.ExtractCode(text)

		exec := e.runner.Execute(ctx, code, t, script.ModeAnswer)
		if exec.Err != nil {
			failures = append(failures, attemptFailure{code: code, reason: exec.Err.Error()})
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopAnswer, metrics.OutcomeRetried).Inc()
			continue
		}

		// Cheap local rejection before spending a judge round trip.
		if reason, bad := obviousFailure(exec.Output, exec.Components); bad {
			failures = append(failures, attemptFailure{code: code, reason: reason})
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopAnswer, metrics.OutcomeRetried).Inc()
			continue
		}

		accept, advice := e.verify(ctx, question, exec.Output, exec.Components)
		if !accept && attempt < maxAttempts {
			failures = append(failures, attemptFailure{code: code, reason: "judge rejected the output", advice: advice})
			metrics.JudgeRejections.Inc()
			metrics.GenerationAttempts.WithLabelValues(metrics.LoopAnswer, metrics.OutcomeRetried).Inc()
			e.log.Info().Int("attempt", attempt).Str("advice", advice).Msg("judge rejected")
			continue
		}
		if !accept {
			// Last attempt: a plausible unverified answer beats
			// surfacing nothing.
			res.ValidationNotes = append(res.ValidationNotes, "accepted without judge verification on final attempt")
			metrics.JudgeRejections.Inc()
		}

		res.ResponseText = exec.Output
		res.GeneratedCode = code
		res.Components = exec.Components
		for _, f := range failures {
			res.ValidationNotes = append(res.ValidationNotes, f.reason)
		}
		if shouldExplain(exec.Output, exec.Components) {
			res.Explanation = e.explain(ctx, question, exec.Output, exec.Components)
		}
		metrics.GenerationAttempts.WithLabelValues(metrics.LoopAnswer, metrics.OutcomeAccepted).Inc()
		return res
	}

	res.HasError = true
	res.ResponseText = apologyTemplate
	for _, f := range failures {
		res.ValidationNotes = append(res.ValidationNotes, f.reason)
		if f.code != "" {
			res.FailedCode = f.code
		}
	}
	metrics.GenerationAttempts.WithLabelValues(metrics.LoopAnswer, metrics.OutcomeFailed).Inc()
	metrics.LoopExhaustions.WithLabelValues(metrics.LoopAnswer).Inc()
	e.log.Warn().Int("attempts", res.Iterations).Msg("answer loop exhausted")
	return res
}

// obviousFailure is the judge short-circuit: empty output with no
// components, or output that is itself an error message.
func obviousFailure(output string, components []script.Component) (string, bool) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" && len(components) == 0 {
		return "script produced no output", true
	}
	if strings.Contains(strings.ToLower(trimmed), "error") {
		return "script output contains an error message", true
	}
	return "", false
}

// verify asks the judge whether the output answers the question. A
// failed or malformed judge call accepts: the judge is an optimization,
// not a gate worth burning attempts on.
func (e *Engine) verify(ctx context.Context, question, output string, components []script.Component) (bool, string) {
	text, err := e.judge.Complete(ctx, judgeSystemPrompt, judgeInput(question, output, components))
	if err != nil {
		e.log.Warn().Err(err).Msg("judge call failed, accepting")
		return true, ""
	}
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return true, ""
	}
	var verdict judgeResponse
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return true, ""
	}
	return verdict.Accept, verdict.Advice
}

func judgeInput(question, output string, components []script.Component) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nComputed output:\n%s\n", question, output)
	for _, c := range components {
		fmt.Fprintf(&b, "[%s]", c.Kind)
		switch c.Kind {
		case script.ComponentPreview:
			fmt.Fprintf(&b, " columns=%s rows=%d", strings.Join(c.Columns, ","), c.TotalRows)
		case script.ComponentMetric:
			fmt.Fprintf(&b, " %s=%v", c.Label, c.Value)
		case script.ComponentRaw:
			fmt.Fprintf(&b, " %s", c.Raw)
		case script.ComponentClarification:
			fmt.Fprintf(&b, " %s", c.Question)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// shouldExplain skips the explanation call for empty, error-bearing or
// trivially short output.
func shouldExplain(output string, components []script.Component) bool {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" && len(components) == 0 {
		return false
	}
	if strings.Contains(strings.ToLower(trimmed), "error") {
		return false
	}
	if len(trimmed) < explanationMinChars && len(components) == 0 {
		return false
	}
	return true
}

// explain makes the third generator call: insight from the computed
// output, never re-deriving it. Best effort.
func (e *Engine) explain(ctx context.Context, question, output string, components []script.Component) string {
	text, err := e.client.Complete(ctx, explanationSystemPrompt, judgeInput(question, output, components))
	if err != nil {
		e.log.Warn().Err(err).Msg("explanation call failed")
		return ""
	}
	return strings.TrimSpace(text)
}
