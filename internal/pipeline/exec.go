package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/cleanslate/cleanslate/internal/preview"
	"github.com/cleanslate/cleanslate/internal/table"
)

// Bindings exposed to the fragment. The generator is prompted to mutate the
// subject for edits and to set the result binding for read-only answers;
// nothing verifies the fragment honors that convention.
const (
	subjectBinding = "df"
	resultBinding  = "result"
	helperBinding  = "util"
)

// Outcome tags what a fragment did, decided once at the executor boundary.
type Outcome int

const (
	// OutcomeMutated: the subject binding is the new working table.
	OutcomeMutated Outcome = iota
	// OutcomeInspected: the result binding holds a derived view; the working
	// table is untouched.
	OutcomeInspected
)

type ExecResult struct {
	Outcome Outcome
	Table   *table.Table
}

// Executor runs generated fragments in a fresh ECMAScript VM per call. The
// VM gives scope isolation only: the fragment has full read/write access to
// cell contents, a trust boundary this service knowingly keeps.
type Executor struct {
	Timeout time.Duration
}

func (e *Executor) Execute(fragment string, working *table.Table) (ExecResult, error) {
	vm := goja.New()

	rowsJSON, err := marshalRows(working)
	if err != nil {
		return ExecResult{}, &ExecutionError{Fragment: fragment, Trace: err.Error(), Err: fmt.Errorf("bind working table: %w", err)}
	}
	if err := vm.Set("__rows", rowsJSON); err != nil {
		return ExecResult{}, &ExecutionError{Fragment: fragment, Trace: err.Error(), Err: err}
	}
	if _, err := vm.RunString("var " + subjectBinding + " = JSON.parse(__rows);"); err != nil {
		return ExecResult{}, &ExecutionError{Fragment: fragment, Trace: err.Error(), Err: fmt.Errorf("seed subject binding: %w", err)}
	}
	_ = vm.Set("__rows", goja.Undefined())
	if err := vm.Set(helperBinding, helpers()); err != nil {
		return ExecResult{}, &ExecutionError{Fragment: fragment, Trace: err.Error(), Err: err}
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(fmt.Sprintf("execution exceeded %s", timeout))
	})
	defer timer.Stop()

	if _, err := vm.RunString(fragment); err != nil {
		return ExecResult{}, &ExecutionError{Fragment: fragment, Trace: executionTrace(err), Err: err}
	}

	// Classification: a table-shaped result binding wins; anything else
	// means the subject is the new working table.
	if resultVal := vm.Get(resultBinding); bindingSet(resultVal) {
		if view, ok := tableFromValue(vm, resultVal, working.ColumnNames()); ok {
			return ExecResult{Outcome: OutcomeInspected, Table: view}, nil
		}
	}

	subjectVal := vm.Get(subjectBinding)
	if !bindingSet(subjectVal) {
		return ExecResult{}, &ExecutionError{
			Fragment: fragment,
			Trace:    fmt.Sprintf("the %q binding was removed", subjectBinding),
			Err:      fmt.Errorf("fragment removed the %q binding", subjectBinding),
		}
	}
	mutated, ok := tableFromValue(vm, subjectVal, working.ColumnNames())
	if !ok {
		return ExecResult{}, &ExecutionError{
			Fragment: fragment,
			Trace:    fmt.Sprintf("the %q binding is not an array of row objects", subjectBinding),
			Err:      fmt.Errorf("fragment left %q in a non-tabular state", subjectBinding),
		}
	}
	return ExecResult{Outcome: OutcomeMutated, Table: mutated}, nil
}

func bindingSet(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

func executionTrace(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exc.String()
	}
	return err.Error()
}

// marshalRows renders the table as a JSON array of row objects with keys in
// column order; JSON.parse inside the VM preserves that order on the JS
// side. Non-finite numbers have no JSON form and are nulled.
func marshalRows(t *table.Table) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	names := t.ColumnNames()
	for r := 0; r < t.NumRows(); r++ {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for c, cell := range t.Row(r) {
			if c > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(names[c])
			if err != nil {
				return "", err
			}
			buf.Write(key)
			buf.WriteByte(':')
			value, err := json.Marshal(preview.SafeValue(cell))
			if err != nil {
				return "", err
			}
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// tableFromValue converts a JS value back into a table. Well-formed means an
// array whose every element is a plain object; key order of first appearance
// fixes column order. An empty array keeps the fallback schema.
func tableFromValue(vm *goja.Runtime, v goja.Value, fallbackCols []string) (*table.Table, bool) {
	obj := v.ToObject(vm)
	if obj == nil || obj.ClassName() != "Array" {
		return nil, false
	}
	length := int(obj.Get("length").ToInteger())
	if length == 0 {
		t, err := table.Empty(fallbackCols)
		if err != nil {
			return nil, false
		}
		return t, true
	}

	var order []string
	index := map[string]int{}
	columns := make([][]any, 0, len(fallbackCols))

	for r := 0; r < length; r++ {
		item := obj.Get(strconv.Itoa(r))
		if item == nil || goja.IsUndefined(item) || goja.IsNull(item) {
			return nil, false
		}
		if _, isRow := item.Export().(map[string]any); !isRow {
			return nil, false
		}
		rowObj := item.ToObject(vm)
		for _, key := range rowObj.Keys() {
			if _, known := index[key]; !known {
				index[key] = len(order)
				order = append(order, key)
				cells := make([]any, length)
				columns = append(columns, cells)
			}
			columns[index[key]][r] = importCell(rowObj.Get(key).Export())
		}
	}

	cols := make([]table.Column, len(order))
	for i, name := range order {
		cols[i] = table.Column{Name: name, Cells: columns[i]}
	}
	t, err := table.New(cols)
	if err != nil {
		return nil, false
	}
	return t, true
}

// importCell maps an exported JS value to a cell. Strings that look like
// datetimes are re-inferred, matching upload-time decoding.
func importCell(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case int64:
		return float64(value)
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil
		}
		return value
	case bool:
		return value
	case string:
		if ts, ok := table.ParseTime(value); ok {
			return ts
		}
		return value
	case time.Time:
		return value
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(raw)
	}
}

func helpers() map[string]any {
	return map[string]any{
		"toNumber": func(v any) any {
			switch value := v.(type) {
			case int64:
				return float64(value)
			case float64:
				return value
			case bool:
				if value {
					return float64(1)
				}
				return float64(0)
			case string:
				if n, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
					return n
				}
			}
			return nil
		},
		"parseDate": func(v any) any {
			s, ok := v.(string)
			if !ok {
				return nil
			}
			if ts, parsed := table.ParseTime(strings.TrimSpace(s)); parsed {
				return ts.Format(time.RFC3339)
			}
			return nil
		},
		"columns": func(rows any) []string {
			items, ok := rows.([]any)
			if !ok || len(items) == 0 {
				return nil
			}
			first, ok := items[0].(map[string]any)
			if !ok {
				return nil
			}
			names := make([]string, 0, len(first))
			for name := range first {
				names = append(names, name)
			}
			return names
		},
		"round": func(x float64, digits int) float64 {
			scale := math.Pow(10, float64(digits))
			return math.Round(x*scale) / scale
		},
	}
}
