package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Document is a Store backed by a single JSON file.
//
// All writes happen inside an Atomic scope: the file is read under a
// reentrant file lock, mutated in memory, and written back when the scope
// succeeds. A failed scope writes nothing. Tables are stored as ordered row
// lists, so insertion order survives reloads (signal binding relies on it).
//
// The document store trades throughput for zero infrastructure: it is meant
// for small deployments, examples, and tests. It satisfies the same Store
// interface as the relational backends.
type Document struct {
	path string
	lock *FileLock
}

type docTables map[string][]Row

type docScopeKey struct{}

type docScope struct {
	tables docTables
}

// DefaultDocumentPath is where NewDocument keeps its file when no path is
// given.
const DefaultDocumentPath = "./flowstate.json"

// NewDocument opens a JSON-file-backed store at path. The lock file lives
// next to it as "<path>.lock". The file itself is created on first write.
func NewDocument(path string) (*Document, error) {
	if path == "" {
		path = DefaultDocumentPath
	}
	return &Document{
		path: path,
		lock: &FileLock{Path: path + ".lock", Reentrant: true},
	}, nil
}

// Path returns the document file path.
func (d *Document) Path() string { return d.path }

func (d *Document) Workflows() Workflows   { return &docWorkflows{d} }
func (d *Document) Activities() Activities { return &docActivities{d} }
func (d *Document) Signals() Signals       { return &docSignals{d} }
func (d *Document) Tasks() Tasks           { return &docTasks{d} }

// Close releases nothing: the document store holds no open handles between
// scopes.
func (d *Document) Close() error { return nil }

// Atomic runs fn with exclusive ownership of the document. Nested calls join
// the enclosing scope; the outermost scope persists the mutated tables when
// fn succeeds and discards them when it fails.
func (d *Document) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(docScopeKey{}).(*docScope); ok {
		return fn(ctx)
	}

	return d.lock.With(ctx, func(ctx context.Context) error {
		tables, err := d.load()
		if err != nil {
			return err
		}
		scope := &docScope{tables: tables}
		if err := fn(context.WithValue(ctx, docScopeKey{}, scope)); err != nil {
			return err
		}
		return d.save(scope.tables)
	})
}

// view returns the scope's working tables, or a fresh read when called
// outside any scope.
func (d *Document) view(ctx context.Context) (docTables, error) {
	if scope, ok := ctx.Value(docScopeKey{}).(*docScope); ok {
		return scope.tables, nil
	}
	return d.load()
}

// mutate applies fn to the working tables inside an Atomic scope, opening a
// self-contained one when necessary.
func (d *Document) mutate(ctx context.Context, fn func(tables docTables) error) error {
	return d.Atomic(ctx, func(ctx context.Context) error {
		scope := ctx.Value(docScopeKey{}).(*docScope)
		return fn(scope.tables)
	})
}

func (d *Document) load() (docTables, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return docTables{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	tables := docTables{}
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return tables, nil
}

func (d *Document) save(tables docTables) error {
	data, err := json.Marshal(tables)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// Get returns the row with the given id from a table, or ErrNotFound.
// Applications can keep their own tables in the same document.
func (d *Document) Get(ctx context.Context, table, id string) (Row, error) {
	tables, err := d.view(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range tables[table] {
		if row["id"] == id {
			return row, nil
		}
	}
	return nil, ErrNotFound
}

// List returns the rows of a table in insertion order. A nil filter returns
// everything.
func (d *Document) List(ctx context.Context, table string, filter func(Row) bool) ([]Row, error) {
	tables, err := d.view(ctx)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, row := range tables[table] {
		if filter == nil || filter(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Set inserts or replaces a row by its "id" field.
func (d *Document) Set(ctx context.Context, table string, row Row) error {
	id, ok := row["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("row has no id")
	}
	return d.mutate(ctx, func(tables docTables) error {
		setRow(tables, table, id, row)
		return nil
	})
}

func setRow(tables docTables, table, id string, row Row) {
	for i, existing := range tables[table] {
		if existing["id"] == id {
			tables[table][i] = row
			return
		}
	}
	tables[table] = append(tables[table], row)
}

func deleteRow(tables docTables, table, id string) {
	rows := tables[table]
	for i, existing := range rows {
		if existing["id"] == id {
			tables[table] = append(rows[:i], rows[i+1:]...)
			return
		}
	}
}

// rowInt reads a numeric field that may be an int (fresh row) or a float64
// (row decoded from JSON).
func rowInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func rowString(v any) string {
	s, _ := v.(string)
	return s
}

type docWorkflows struct {
	d *Document
}

func workflowRow(wf Workflow) Row {
	return Row{"id": wf.ID, "name": wf.Name, "input": string(wf.Input), "status": string(wf.Status)}
}

func rowWorkflow(r Row) Workflow {
	return Workflow{
		ID:     rowString(r["id"]),
		Name:   rowString(r["name"]),
		Input:  []byte(rowString(r["input"])),
		Status: WorkflowStatus(rowString(r["status"])),
	}
}

func (w *docWorkflows) GetOrCreate(ctx context.Context, name string, input []byte) (Workflow, error) {
	var wf Workflow
	err := w.d.mutate(ctx, func(tables docTables) error {
		for _, row := range tables["workflows"] {
			existing := rowWorkflow(row)
			if existing.Name != name || string(existing.Input) != string(input) {
				continue
			}
			switch existing.Status {
			case WorkflowCompleted:
				continue
			case WorkflowRunning:
				return ErrAlreadyRunning
			case WorkflowStopped:
				existing.Status = WorkflowRunning
				setRow(tables, "workflows", existing.ID, workflowRow(existing))
				wf = existing
				return nil
			}
		}
		wf = Workflow{ID: uuid.New().String(), Name: name, Input: input, Status: WorkflowRunning}
		setRow(tables, "workflows", wf.ID, workflowRow(wf))
		return nil
	})
	if err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

func (w *docWorkflows) Get(ctx context.Context, id string) (Workflow, error) {
	row, err := w.d.Get(ctx, "workflows", id)
	if err != nil {
		return Workflow{}, err
	}
	return rowWorkflow(row), nil
}

func (w *docWorkflows) setStatus(ctx context.Context, id string, status WorkflowStatus) error {
	return w.d.mutate(ctx, func(tables docTables) error {
		for _, row := range tables["workflows"] {
			if row["id"] == id {
				wf := rowWorkflow(row)
				wf.Status = status
				setRow(tables, "workflows", id, workflowRow(wf))
				return nil
			}
		}
		return nil
	})
}

func (w *docWorkflows) Complete(ctx context.Context, id string) error {
	return w.setStatus(ctx, id, WorkflowCompleted)
}

func (w *docWorkflows) Failed(ctx context.Context, id string) error {
	return w.setStatus(ctx, id, WorkflowStopped)
}

func (w *docWorkflows) List(ctx context.Context, status WorkflowStatus) ([]Workflow, error) {
	tables, err := w.d.view(ctx)
	if err != nil {
		return nil, err
	}
	var out []Workflow
	for _, row := range tables["workflows"] {
		wf := rowWorkflow(row)
		if status == "" || wf.Status == status {
			out = append(out, wf)
		}
	}
	return out, nil
}

type docActivities struct {
	d *Document
}

func activityRow(a Activity) Row {
	return Row{"id": a.ID, "workflow_id": a.WorkflowID, "name": a.Name, "input": string(a.Input), "output": string(a.Output)}
}

func rowActivity(r Row) Activity {
	return Activity{
		ID:         rowString(r["id"]),
		WorkflowID: rowString(r["workflow_id"]),
		Name:       rowString(r["name"]),
		Input:      []byte(rowString(r["input"])),
		Output:     []byte(rowString(r["output"])),
	}
}

func (a *docActivities) MayFindOne(ctx context.Context, workflowID, name string, input []byte) (Activity, bool, error) {
	tables, err := a.d.view(ctx)
	if err != nil {
		return Activity{}, false, err
	}
	for _, row := range tables["activities"] {
		act := rowActivity(row)
		if act.WorkflowID == workflowID && act.Name == name && string(act.Input) == string(input) {
			return act, true, nil
		}
	}
	return Activity{}, false, nil
}

func (a *docActivities) Save(ctx context.Context, act Activity) error {
	if act.ID == "" {
		act.ID = uuid.New().String()
	}
	return a.d.mutate(ctx, func(tables docTables) error {
		setRow(tables, "activities", act.ID, activityRow(act))
		return nil
	})
}

type docSignals struct {
	d *Document
}

func signalRow(s Signal) Row {
	row := Row{"id": s.ID, "workflow_id": s.WorkflowID, "name": s.Name, "content": string(s.Content)}
	if s.Step != nil {
		row["step"] = *s.Step
	} else {
		row["step"] = nil
	}
	return row
}

func rowSignal(r Row) Signal {
	s := Signal{
		ID:         rowString(r["id"]),
		WorkflowID: rowString(r["workflow_id"]),
		Name:       rowString(r["name"]),
		Content:    []byte(rowString(r["content"])),
	}
	if r["step"] != nil {
		step := rowInt(r["step"])
		s.Step = &step
	}
	return s
}

func (sg *docSignals) New(ctx context.Context, s Signal) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return sg.d.mutate(ctx, func(tables docTables) error {
		setRow(tables, "signals", s.ID, signalRow(s))
		return nil
	})
}

func (sg *docSignals) MayFindOne(ctx context.Context, workflowID, name string, step int) (Signal, bool, error) {
	var (
		found Signal
		ok    bool
	)
	err := sg.d.mutate(ctx, func(tables docTables) error {
		var oldest *Signal
		for _, row := range tables["signals"] {
			s := rowSignal(row)
			if s.WorkflowID != workflowID || s.Name != name {
				continue
			}
			if s.Step != nil && *s.Step == step {
				found, ok = s, true
				return nil
			}
			if s.Step == nil && oldest == nil {
				bound := s
				oldest = &bound
			}
		}
		if oldest == nil {
			return nil
		}
		bound := step
		oldest.Step = &bound
		setRow(tables, "signals", oldest.ID, signalRow(*oldest))
		found, ok = *oldest, true
		return nil
	})
	if err != nil {
		return Signal{}, false, err
	}
	return found, ok, nil
}

type docTasks struct {
	d *Document
}

func taskRow(t Task) Row {
	return Row{
		"id":          t.ID,
		"name":        t.Name,
		"timestamp":   t.Timestamp,
		"retry_count": t.RetryCount,
		"input":       string(t.Input),
		"queue_id":    t.QueueID,
		"status":      string(t.Status),
	}
}

func rowTask(r Row) Task {
	ts, _ := r["timestamp"].(float64)
	return Task{
		ID:         rowString(r["id"]),
		Name:       rowString(r["name"]),
		Timestamp:  ts,
		RetryCount: rowInt(r["retry_count"]),
		Input:      []byte(rowString(r["input"])),
		QueueID:    rowString(r["queue_id"]),
		Status:     TaskStatus(rowString(r["status"])),
	}
}

func (tr *docTasks) Add(ctx context.Context, t Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return tr.d.mutate(ctx, func(tables docTables) error {
		for _, row := range tables["tasks"] {
			if row["id"] == t.ID {
				existing := rowTask(row)
				existing.Timestamp = t.Timestamp
				existing.RetryCount = t.RetryCount
				existing.Status = TaskScheduled
				setRow(tables, "tasks", t.ID, taskRow(existing))
				return nil
			}
		}
		t.Status = TaskScheduled
		setRow(tables, "tasks", t.ID, taskRow(t))
		return nil
	})
}

func (tr *docTasks) NextTask(ctx context.Context, queueID string, now float64) (Task, error) {
	var claimed Task
	err := tr.d.mutate(ctx, func(tables docTables) error {
		var due *Task
		for _, row := range tables["tasks"] {
			t := rowTask(row)
			if t.QueueID != queueID || t.Status != TaskScheduled || t.Timestamp > now {
				continue
			}
			if due == nil || t.Timestamp < due.Timestamp {
				candidate := t
				due = &candidate
			}
		}
		if due == nil {
			return ErrNotFound
		}
		due.Status = TaskRunning
		// Stamp the claim instant so the stale sweep measures how long the
		// task has been RUNNING, not how long it sat queued.
		due.Timestamp = now
		setRow(tables, "tasks", due.ID, taskRow(*due))
		claimed = *due
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return claimed, nil
}

func (tr *docTasks) setStatus(ctx context.Context, id string, from []TaskStatus, to TaskStatus) error {
	return tr.d.mutate(ctx, func(tables docTables) error {
		for _, row := range tables["tasks"] {
			if row["id"] != id {
				continue
			}
			t := rowTask(row)
			for _, s := range from {
				if t.Status == s {
					t.Status = to
					setRow(tables, "tasks", id, taskRow(t))
					return nil
				}
			}
			return nil
		}
		return nil
	})
}

func (tr *docTasks) Suspend(ctx context.Context, id string) error {
	return tr.setStatus(ctx, id, []TaskStatus{TaskScheduled, TaskRunning}, TaskSuspended)
}

func (tr *docTasks) Wakeup(ctx context.Context, id string) error {
	return tr.setStatus(ctx, id, []TaskStatus{TaskSuspended}, TaskScheduled)
}

func (tr *docTasks) GetResult(ctx context.Context, taskID string) (TaskResult, error) {
	var result TaskResult
	err := tr.d.mutate(ctx, func(tables docTables) error {
		for _, row := range tables["results"] {
			if row["id"] != taskID {
				continue
			}
			result = TaskResult{TaskID: taskID, Error: rowString(row["error"])}
			if row["result"] != nil {
				result.Result = []byte(rowString(row["result"]))
			}
			deleteRow(tables, "tasks", taskID)
			deleteRow(tables, "results", taskID)
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return TaskResult{}, err
	}
	return result, nil
}

func (tr *docTasks) SetResult(ctx context.Context, r TaskResult) error {
	return tr.d.mutate(ctx, func(tables docTables) error {
		for _, row := range tables["tasks"] {
			if row["id"] == r.TaskID {
				t := rowTask(row)
				t.Status = TaskCompleted
				setRow(tables, "tasks", t.ID, taskRow(t))
				break
			}
		}

		resultRow := Row{"id": r.TaskID, "result": nil, "error": nil}
		if r.Failed() {
			resultRow["error"] = r.Error
		} else {
			resultRow["result"] = string(r.Result)
		}
		setRow(tables, "results", r.TaskID, resultRow)
		return nil
	})
}

func (tr *docTasks) FindByInput(ctx context.Context, nameSuffix string, input []byte) (Task, error) {
	tables, err := tr.d.view(ctx)
	if err != nil {
		return Task{}, err
	}
	for _, row := range tables["tasks"] {
		t := rowTask(row)
		if strings.HasSuffix(t.Name, nameSuffix) && string(t.Input) == string(input) {
			return t, nil
		}
	}
	return Task{}, ErrNotFound
}

func (tr *docTasks) RequeueStale(ctx context.Context, cutoff float64) (int, error) {
	var n int
	err := tr.d.mutate(ctx, func(tables docTables) error {
		for _, row := range tables["tasks"] {
			t := rowTask(row)
			if t.Status == TaskRunning && t.Timestamp <= cutoff {
				t.Status = TaskScheduled
				setRow(tables, "tasks", t.ID, taskRow(t))
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (tr *docTasks) List(ctx context.Context, queueID string) ([]Task, error) {
	tables, err := tr.d.view(ctx)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, row := range tables["tasks"] {
		t := rowTask(row)
		if queueID == "" || t.QueueID == queueID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
