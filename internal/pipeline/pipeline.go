// Package pipeline orchestrates one command against one session: decide
// between reset, undo, and generated-code handling, run the fragment against
// a working copy, classify the outcome, and update session history.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cleanslate/cleanslate/internal/codegen"
	"github.com/cleanslate/cleanslate/internal/observability"
	"github.com/cleanslate/cleanslate/internal/session"
	"github.com/cleanslate/cleanslate/internal/table"
)

// Modes reported on command results.
const (
	ModeAction     = "action"
	ModeInspection = "inspection"
	ModeReset      = "reset"
	ModeUndo       = "undo"
)

// resetCodeMarker is returned in place of generated code when a reset
// synonym short-circuits the pipeline. No model call happens.
const resetCodeMarker = "(reset)"

// resetSynonyms short-circuit to a history reset without involving the
// model.
var resetSynonyms = map[string]struct{}{
	"reset":            {},
	"restart":          {},
	"restore":          {},
	"reset data":       {},
	"restore original": {},
	"start over":       {},
}

type Pipeline struct {
	store      *session.Store
	generator  codegen.Generator
	executor   Executor
	sampleRows int
	logger     *slog.Logger
}

type Options struct {
	ExecTimeout time.Duration
	// SampleRows is how many head/tail rows the model sees. Zero means 5.
	SampleRows int
	Logger     *slog.Logger
}

func New(store *session.Store, generator codegen.Generator, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sampleRows := opts.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	return &Pipeline{
		store:      store,
		generator:  generator,
		executor:   Executor{Timeout: opts.ExecTimeout},
		sampleRows: sampleRows,
		logger:     logger,
	}
}

// CommandResult is what a completed command hands back to the transport.
// Table is an independent snapshot, safe to read after the session lock is
// released.
type CommandResult struct {
	Message    string
	Code       string
	Mode       string
	Table      *table.Table
	HistoryLen int
}

// Process handles one natural-language command. The whole read-generate-
// execute-commit sequence runs under the session's lock so concurrent
// commands against one session cannot interleave history updates.
func (p *Pipeline) Process(ctx context.Context, sessionID, query string) (CommandResult, error) {
	var result CommandResult
	err := p.store.WithSession(sessionID, func(sess *session.Session) error {
		normalized := strings.ToLower(strings.TrimSpace(query))
		if _, isReset := resetSynonyms[normalized]; isReset {
			restored := sess.Reset()
			result = CommandResult{
				Message:    "Restored the original dataset",
				Code:       resetCodeMarker,
				Mode:       ModeReset,
				Table:      restored.Clone(),
				HistoryLen: sess.HistoryLen(),
			}
			observability.ObserveCommand(ModeReset, 0)
			return nil
		}

		current := sess.Current()
		generated, err := p.generator.Generate(ctx, buildRequest(query, current, p.sampleRows))
		if err != nil {
			observability.ObserveCommandFailure("generate")
			return &GenerationError{Err: err}
		}
		fragment := codegen.StripFences(generated.Code)
		p.logger.InfoContext(ctx, "generated fragment",
			slog.String("session_id", sessionID),
			slog.String("model", generated.Model),
			slog.String("code", fragment),
		)

		start := time.Now()
		execResult, err := p.executor.Execute(fragment, current.Clone())
		if err != nil {
			observability.ObserveCommandFailure("execute")
			return err
		}
		elapsed := time.Since(start)

		switch execResult.Outcome {
		case OutcomeInspected:
			result = CommandResult{
				Message:    "Executed: " + fragment,
				Code:       fragment,
				Mode:       ModeInspection,
				Table:      execResult.Table,
				HistoryLen: sess.HistoryLen(),
			}
			observability.ObserveCommand(ModeInspection, elapsed)
		default:
			sess.Commit(execResult.Table)
			result = CommandResult{
				Message:    "Executed: " + fragment,
				Code:       fragment,
				Mode:       ModeAction,
				Table:      execResult.Table,
				HistoryLen: sess.HistoryLen(),
			}
			observability.ObserveCommand(ModeAction, elapsed)
		}
		return nil
	})
	return result, err
}

// Undo pops the latest snapshot. It never calls the generator and is
// idempotent once only the original remains.
func (p *Pipeline) Undo(ctx context.Context, sessionID string) (CommandResult, error) {
	var result CommandResult
	err := p.store.WithSession(sessionID, func(sess *session.Session) error {
		restored := sess.Undo()
		result = CommandResult{
			Message:    "Reverted the last change",
			Code:       "",
			Mode:       ModeUndo,
			Table:      restored.Clone(),
			HistoryLen: sess.HistoryLen(),
		}
		observability.ObserveCommand(ModeUndo, 0)
		return nil
	})
	return result, err
}
