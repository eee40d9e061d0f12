package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cleanslate/cleanslate/internal/codegen"
	"github.com/cleanslate/cleanslate/internal/session"
)

type fakeGenerator struct {
	code     string
	err      error
	requests []codegen.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req codegen.Request) (codegen.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return codegen.Result{}, f.err
	}
	return codegen.Result{Code: f.code, Provider: "fake", Model: "fake-model"}, nil
}

func newPipeline(t *testing.T, generator codegen.Generator) (*Pipeline, string) {
	t.Helper()
	store := session.NewStore(session.Options{})
	sess := store.Create(peopleTable(t), "people.csv")
	return New(store, generator, Options{}), sess.ID()
}

func TestProcessActionCommitsSnapshot(t *testing.T) {
	gen := &fakeGenerator{code: "df = df.filter(r => r.age !== null)"}
	p, id := newPipeline(t, gen)

	result, err := p.Process(context.Background(), id, "remove rows with missing age")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Mode != ModeAction {
		t.Fatalf("mode = %q, want %q", result.Mode, ModeAction)
	}
	if result.Table.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", result.Table.NumRows())
	}
	if result.HistoryLen != 2 {
		t.Fatalf("history len = %d, want 2", result.HistoryLen)
	}
	if result.Code != gen.code {
		t.Fatalf("code = %q", result.Code)
	}
}

func TestProcessInspectionDoesNotCommit(t *testing.T) {
	gen := &fakeGenerator{code: "result = df.filter(r => r.age !== null && r.age > 35)"}
	p, id := newPipeline(t, gen)

	result, err := p.Process(context.Background(), id, "show rows where age > 35")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Mode != ModeInspection {
		t.Fatalf("mode = %q, want %q", result.Mode, ModeInspection)
	}
	if result.Table.NumRows() != 1 {
		t.Fatalf("rows = %d, want 1", result.Table.NumRows())
	}
	if result.HistoryLen != 1 {
		t.Fatalf("history len = %d, inspection must not commit", result.HistoryLen)
	}
}

func TestProcessStripsFences(t *testing.T) {
	gen := &fakeGenerator{code: "```javascript\ndf = df.filter(r => r.age !== null)\n```"}
	p, id := newPipeline(t, gen)

	result, err := p.Process(context.Background(), id, "remove rows with missing age")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Code != "df = df.filter(r => r.age !== null)" {
		t.Fatalf("code = %q, fences should be stripped", result.Code)
	}
	if result.Table.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", result.Table.NumRows())
	}
}

func TestProcessResetSynonymSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{code: "df = []"}
	p, id := newPipeline(t, gen)

	if _, err := p.Process(context.Background(), id, "remove rows with missing age"); err != nil {
		t.Fatalf("setup command failed: %v", err)
	}

	result, err := p.Process(context.Background(), id, "  Start Over ")
	if err != nil {
		t.Fatalf("Process(reset) error = %v", err)
	}
	if result.Mode != ModeReset {
		t.Fatalf("mode = %q, want %q", result.Mode, ModeReset)
	}
	if result.Table.NumRows() != 3 {
		t.Fatalf("rows = %d, want the original 3", result.Table.NumRows())
	}
	if result.HistoryLen != 1 {
		t.Fatalf("history len = %d, want 1", result.HistoryLen)
	}
	if len(gen.requests) != 1 {
		t.Fatalf("generator calls = %d, reset must not call the model", len(gen.requests))
	}
}

func TestProcessGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("model unavailable")}
	p, id := newPipeline(t, gen)

	_, err := p.Process(context.Background(), id, "remove rows with missing age")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
}

func TestProcessExecutionFailureKeepsHistory(t *testing.T) {
	gen := &fakeGenerator{code: "throw new Error('boom')"}
	p, id := newPipeline(t, gen)

	_, err := p.Process(context.Background(), id, "do something impossible")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %T, want *ExecutionError", err)
	}
	if execErr.Fragment != gen.code {
		t.Fatalf("fragment = %q", execErr.Fragment)
	}

	// The failed command must not have touched the working table.
	gen.err = nil
	gen.code = "result = df"
	result, err := p.Process(context.Background(), id, "show everything")
	if err != nil {
		t.Fatalf("follow-up command failed: %v", err)
	}
	if result.Table.NumRows() != 3 || result.HistoryLen != 1 {
		t.Fatalf("rows = %d history = %d after failed command", result.Table.NumRows(), result.HistoryLen)
	}
}

func TestProcessUnknownSession(t *testing.T) {
	p, _ := newPipeline(t, &fakeGenerator{code: "df = df"})
	if _, err := p.Process(context.Background(), "missing", "anything"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUndoRevertsLastAction(t *testing.T) {
	gen := &fakeGenerator{code: "df = df.filter(r => r.age !== null)"}
	p, id := newPipeline(t, gen)

	if _, err := p.Process(context.Background(), id, "remove rows with missing age"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	result, err := p.Undo(context.Background(), id)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if result.Mode != ModeUndo {
		t.Fatalf("mode = %q, want %q", result.Mode, ModeUndo)
	}
	if result.Table.NumRows() != 3 {
		t.Fatalf("rows = %d, want the original 3", result.Table.NumRows())
	}
	if result.HistoryLen != 1 {
		t.Fatalf("history len = %d, want 1", result.HistoryLen)
	}

	// Undo at the floor stays on the original.
	again, err := p.Undo(context.Background(), id)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if again.Table.NumRows() != 3 || again.HistoryLen != 1 {
		t.Fatalf("second undo changed state: rows = %d history = %d", again.Table.NumRows(), again.HistoryLen)
	}
}

func TestProcessRequestCarriesTableContext(t *testing.T) {
	gen := &fakeGenerator{code: "df = df"}
	p, id := newPipeline(t, gen)

	if _, err := p.Process(context.Background(), id, "keep everything"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(gen.requests) != 1 {
		t.Fatalf("generator calls = %d", len(gen.requests))
	}
	req := gen.requests[0]
	if req.RowCount != 3 {
		t.Fatalf("row count = %d", req.RowCount)
	}
	if len(req.Columns) != 2 || req.Columns[0] != "name" {
		t.Fatalf("columns = %v", req.Columns)
	}
	if req.SampleHead == "" {
		t.Fatal("sample head should not be empty")
	}
	if req.Stats == "" {
		t.Fatal("stats should not be empty")
	}
}
