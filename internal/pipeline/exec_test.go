package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cleanslate/cleanslate/internal/table"
)

func peopleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New([]table.Column{
		{Name: "name", Cells: []any{"Ann", "Bob", "Cid"}},
		{Name: "age", Cells: []any{30.0, nil, 40.0}},
	})
	if err != nil {
		t.Fatalf("table.New() error = %v", err)
	}
	return tbl
}

func TestExecuteMutationFiltersRows(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute("df = df.filter(r => r.age !== null)", peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Outcome != OutcomeMutated {
		t.Fatalf("outcome = %v, want mutated", result.Outcome)
	}
	if result.Table.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", result.Table.NumRows())
	}
	name, _ := result.Table.Column("name")
	if name.Cells[0] != "Ann" || name.Cells[1] != "Cid" {
		t.Fatalf("names = %v", name.Cells)
	}
}

func TestExecuteInspectionLeavesSubjectAlone(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute("result = df.filter(r => r.age !== null && r.age > 35)", peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Outcome != OutcomeInspected {
		t.Fatalf("outcome = %v, want inspected", result.Outcome)
	}
	if result.Table.NumRows() != 1 {
		t.Fatalf("rows = %d, want 1", result.Table.NumRows())
	}
	name, _ := result.Table.Column("name")
	if name.Cells[0] != "Cid" {
		t.Fatalf("name = %v, want Cid", name.Cells[0])
	}
}

func TestExecuteNonTableResultFallsBackToSubject(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute("result = 42", peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	// A scalar result is not a table view, so the untouched subject counts
	// as the outcome.
	if result.Outcome != OutcomeMutated {
		t.Fatalf("outcome = %v, want mutated", result.Outcome)
	}
	if result.Table.NumRows() != 3 {
		t.Fatalf("rows = %d, want 3", result.Table.NumRows())
	}
}

func TestExecutePreservesColumnOrder(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute("df = df.map(r => ({name: r.name, age: r.age}))", peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	names := result.Table.ColumnNames()
	if names[0] != "name" || names[1] != "age" {
		t.Fatalf("column order = %v", names)
	}
}

func TestExecuteAddedColumnAppendsLast(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute("df = df.map(r => ({...r, senior: r.age !== null && r.age >= 35}))", peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	names := result.Table.ColumnNames()
	if len(names) != 3 || names[2] != "senior" {
		t.Fatalf("column order = %v", names)
	}
	senior, _ := result.Table.Column("senior")
	if senior.Cells[0] != false || senior.Cells[2] != true {
		t.Fatalf("senior = %v", senior.Cells)
	}
}

func TestExecuteEmptyResultKeepsSchema(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute("df = []", peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Table.NumRows() != 0 {
		t.Fatalf("rows = %d, want 0", result.Table.NumRows())
	}
	names := result.Table.ColumnNames()
	if len(names) != 2 || names[0] != "name" || names[1] != "age" {
		t.Fatalf("columns = %v, want original schema", names)
	}
}

func TestExecuteThrowCarriesFragmentAndTrace(t *testing.T) {
	executor := Executor{}
	fragment := "throw new Error('boom')"
	_, err := executor.Execute(fragment, peopleTable(t))
	if err == nil {
		t.Fatal("Execute() should fail")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %T, want *ExecutionError", err)
	}
	if execErr.Fragment != fragment {
		t.Fatalf("fragment = %q", execErr.Fragment)
	}
	if !strings.Contains(execErr.Trace, "boom") {
		t.Fatalf("trace = %q, want it to mention boom", execErr.Trace)
	}
}

func TestExecuteTimeoutInterruptsFragment(t *testing.T) {
	executor := Executor{Timeout: 50 * time.Millisecond}
	_, err := executor.Execute("while (true) {}", peopleTable(t))
	if err == nil {
		t.Fatal("Execute() should interrupt a runaway fragment")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %T, want *ExecutionError", err)
	}
}

func TestExecuteRemovedSubjectIsAnError(t *testing.T) {
	executor := Executor{}
	_, err := executor.Execute("df = undefined", peopleTable(t))
	if err == nil {
		t.Fatal("Execute() should reject a removed subject binding")
	}
}

func TestExecuteMissingCellsRoundTripAsNull(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute("df = df", peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	age, _ := result.Table.Column("age")
	if age.Cells[1] != nil {
		t.Fatalf("missing age came back as %v", age.Cells[1])
	}
}

func TestExecuteHelpers(t *testing.T) {
	executor := Executor{}
	fragment := `df = df.map(r => ({
		name: r.name,
		age: r.age === null ? util.toNumber("35") : r.age,
		score: util.round(1.2345, 2)
	}))`
	result, err := executor.Execute(fragment, peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	age, _ := result.Table.Column("age")
	if age.Cells[1] != 35.0 {
		t.Fatalf("filled age = %v, want 35", age.Cells[1])
	}
	score, _ := result.Table.Column("score")
	if score.Cells[0] != 1.23 {
		t.Fatalf("score = %v, want 1.23", score.Cells[0])
	}
}

func TestExecuteDateStringsBecomeTimestamps(t *testing.T) {
	executor := Executor{}
	result, err := executor.Execute(`df = df.map(r => ({...r, joined: "2024-03-01"}))`, peopleTable(t))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	joined, _ := result.Table.Column("joined")
	ts, ok := joined.Cells[0].(time.Time)
	if !ok {
		t.Fatalf("joined[0] = %T, want time.Time", joined.Cells[0])
	}
	if ts.Year() != 2024 {
		t.Fatalf("joined[0] = %v", ts)
	}
}
