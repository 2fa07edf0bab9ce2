package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// dialect covers the statements where SQLite and MySQL disagree: upsert
// syntax, the atomic claim, the physical ordering column used to bind
// signals in arrival order, and how the GetOrCreate lookup serializes
// against concurrent creators.
type dialect interface {
	upsertTask() string
	upsertResult() string
	upsertActivity() string
	signalOrder() string
	workflowLock() string
	lockConflict(err error) bool
	claimTask(ctx context.Context, db *DB, queueID string, now float64) (Task, error)
}

// sqlRepos implements Store over a relational DB. SQLite and MySQL embed it
// and supply their dialect.
type sqlRepos struct {
	db *DB
	d  dialect
}

func (s *sqlRepos) Workflows() Workflows   { return &sqlWorkflows{s.db, s.d} }
func (s *sqlRepos) Activities() Activities { return &sqlActivities{s.db, s.d} }
func (s *sqlRepos) Signals() Signals       { return &sqlSignals{s.db, s.d} }
func (s *sqlRepos) Tasks() Tasks           { return &sqlTasks{s.db, s.d} }

func (s *sqlRepos) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.Cursor(ctx, true, fn)
}

func (s *sqlRepos) Close() error { return s.db.Close() }

// DB exposes the underlying connection plumbing, for callers that need raw
// queries (inspection tooling, application tables).
func (s *sqlRepos) DB() *DB { return s.db }

type rowScanner interface {
	Scan(dest ...any) error
}

type sqlWorkflows struct {
	db *DB
	d  dialect
}

func scanWorkflow(row rowScanner) (Workflow, error) {
	var (
		wf     Workflow
		input  string
		status string
	)
	if err := row.Scan(&wf.ID, &wf.Name, &input, &status); err != nil {
		return Workflow{}, err
	}
	wf.Input = []byte(input)
	wf.Status = WorkflowStatus(status)
	return wf, nil
}

func (w *sqlWorkflows) GetOrCreate(ctx context.Context, name string, input []byte) (Workflow, error) {
	var wf Workflow
	for {
		err := w.db.Cursor(ctx, true, func(ctx context.Context) error {
			// The lock suffix keeps two concurrent creators from both reading
			// "no row" and inserting duplicate RUNNING rows.
			row := w.db.runner(ctx).QueryRowContext(ctx,
				"SELECT id, name, input, status FROM workflows WHERE name = ? AND input = ? AND status <> 'COMPLETED' LIMIT 1"+w.d.workflowLock(),
				name, string(input))

			existing, err := scanWorkflow(row)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				wf = Workflow{ID: uuid.New().String(), Name: name, Input: input, Status: WorkflowRunning}
				return w.db.Execute(ctx,
					"INSERT INTO workflows (id, name, input, status) VALUES (?, ?, ?, ?)",
					wf.ID, wf.Name, string(wf.Input), string(wf.Status))
			case err != nil:
				return fmt.Errorf("failed to look up workflow: %w", err)
			case existing.Status == WorkflowRunning:
				return ErrAlreadyRunning
			default: // STOPPED: revive
				if err := w.db.Execute(ctx,
					"UPDATE workflows SET status = 'RUNNING' WHERE id = ?", existing.ID); err != nil {
					return err
				}
				existing.Status = WorkflowRunning
				wf = existing
				return nil
			}
		})
		if w.d.lockConflict(err) {
			// Lost a lock race with another creator. Its row is committed
			// by the time the retry reads, so the retry reports it.
			continue
		}
		if err != nil {
			return Workflow{}, err
		}
		return wf, nil
	}
}

func (w *sqlWorkflows) Get(ctx context.Context, id string) (Workflow, error) {
	row := w.db.runner(ctx).QueryRowContext(ctx,
		"SELECT id, name, input, status FROM workflows WHERE id = ?", id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("failed to load workflow: %w", err)
	}
	return wf, nil
}

func (w *sqlWorkflows) Complete(ctx context.Context, id string) error {
	return w.db.Execute(ctx, "UPDATE workflows SET status = 'COMPLETED' WHERE id = ?", id)
}

func (w *sqlWorkflows) Failed(ctx context.Context, id string) error {
	return w.db.Execute(ctx, "UPDATE workflows SET status = 'STOPPED' WHERE id = ?", id)
}

func (w *sqlWorkflows) List(ctx context.Context, status WorkflowStatus) ([]Workflow, error) {
	query := "SELECT id, name, input, status FROM workflows"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	rows, err := w.db.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows: %w", err)
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

type sqlActivities struct {
	db *DB
	d  dialect
}

func (a *sqlActivities) MayFindOne(ctx context.Context, workflowID, name string, input []byte) (Activity, bool, error) {
	row := a.db.runner(ctx).QueryRowContext(ctx,
		"SELECT id, workflow_id, name, input, output FROM activities WHERE workflow_id = ? AND name = ? AND input = ? LIMIT 1",
		workflowID, name, string(input))

	var (
		act     Activity
		in, out string
	)
	err := row.Scan(&act.ID, &act.WorkflowID, &act.Name, &in, &out)
	if errors.Is(err, sql.ErrNoRows) {
		return Activity{}, false, nil
	}
	if err != nil {
		return Activity{}, false, fmt.Errorf("failed to look up activity: %w", err)
	}
	act.Input = []byte(in)
	act.Output = []byte(out)
	return act, true, nil
}

func (a *sqlActivities) Save(ctx context.Context, act Activity) error {
	if act.ID == "" {
		act.ID = uuid.New().String()
	}
	return a.db.Execute(ctx, a.d.upsertActivity(),
		act.ID, act.WorkflowID, act.Name, string(act.Input), string(act.Output))
}

type sqlSignals struct {
	db *DB
	d  dialect
}

func scanSignal(row rowScanner) (Signal, error) {
	var (
		s       Signal
		content string
		step    sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.WorkflowID, &s.Name, &content, &step); err != nil {
		return Signal{}, err
	}
	s.Content = []byte(content)
	if step.Valid {
		v := int(step.Int64)
		s.Step = &v
	}
	return s, nil
}

func (sg *sqlSignals) New(ctx context.Context, s Signal) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	var step any
	if s.Step != nil {
		step = *s.Step
	}
	return sg.db.Execute(ctx,
		"INSERT INTO signals (id, workflow_id, name, content, step) VALUES (?, ?, ?, ?, ?)",
		s.ID, s.WorkflowID, s.Name, string(s.Content), step)
}

func (sg *sqlSignals) MayFindOne(ctx context.Context, workflowID, name string, step int) (Signal, bool, error) {
	var (
		found Signal
		ok    bool
	)
	err := sg.db.Cursor(ctx, true, func(ctx context.Context) error {
		row := sg.db.runner(ctx).QueryRowContext(ctx,
			"SELECT id, workflow_id, name, content, step FROM signals WHERE workflow_id = ? AND name = ? AND step = ? LIMIT 1",
			workflowID, name, step)
		s, err := scanSignal(row)
		if err == nil {
			found, ok = s, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up signal: %w", err)
		}

		// No row bound to this step yet: bind the oldest unbound one.
		row = sg.db.runner(ctx).QueryRowContext(ctx,
			fmt.Sprintf("SELECT id, workflow_id, name, content, step FROM signals WHERE workflow_id = ? AND name = ? AND step IS NULL ORDER BY %s LIMIT 1", sg.d.signalOrder()),
			workflowID, name)
		s, err = scanSignal(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up signal: %w", err)
		}

		if err := sg.db.Execute(ctx, "UPDATE signals SET step = ? WHERE id = ?", step, s.ID); err != nil {
			return err
		}
		bound := step
		s.Step = &bound
		found, ok = s, true
		return nil
	})
	if err != nil {
		return Signal{}, false, err
	}
	return found, ok, nil
}

type sqlTasks struct {
	db *DB
	d  dialect
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t      Task
		input  string
		status string
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Timestamp, &t.RetryCount, &input, &t.QueueID, &status); err != nil {
		return Task{}, err
	}
	t.Input = []byte(input)
	t.Status = TaskStatus(status)
	return t, nil
}

func (tr *sqlTasks) Add(ctx context.Context, t Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return tr.db.Execute(ctx, tr.d.upsertTask(),
		t.ID, t.Name, t.Timestamp, t.RetryCount, string(t.Input), t.QueueID)
}

func (tr *sqlTasks) NextTask(ctx context.Context, queueID string, now float64) (Task, error) {
	return tr.d.claimTask(ctx, tr.db, queueID, now)
}

func (tr *sqlTasks) Suspend(ctx context.Context, id string) error {
	return tr.db.Execute(ctx,
		"UPDATE tasks SET status = 'SUSPENDED' WHERE id = ? AND status IN ('SCHEDULED', 'RUNNING')", id)
}

func (tr *sqlTasks) Wakeup(ctx context.Context, id string) error {
	return tr.db.Execute(ctx,
		"UPDATE tasks SET status = 'SCHEDULED' WHERE id = ? AND status = 'SUSPENDED'", id)
}

func (tr *sqlTasks) GetResult(ctx context.Context, taskID string) (TaskResult, error) {
	var result TaskResult
	err := tr.db.Cursor(ctx, true, func(ctx context.Context) error {
		row := tr.db.runner(ctx).QueryRowContext(ctx,
			"SELECT id, result, error FROM results WHERE id = ?", taskID)

		var res, errMsg sql.NullString
		if err := row.Scan(&result.TaskID, &res, &errMsg); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load result: %w", err)
		}
		if res.Valid {
			result.Result = []byte(res.String)
		}
		result.Error = errMsg.String

		if err := tr.db.Execute(ctx, "DELETE FROM tasks WHERE id = ?", taskID); err != nil {
			return err
		}
		return tr.db.Execute(ctx, "DELETE FROM results WHERE id = ?", taskID)
	})
	if err != nil {
		return TaskResult{}, err
	}
	return result, nil
}

func (tr *sqlTasks) SetResult(ctx context.Context, r TaskResult) error {
	return tr.db.Cursor(ctx, true, func(ctx context.Context) error {
		if err := tr.db.Execute(ctx,
			"UPDATE tasks SET status = 'COMPLETED' WHERE id = ?", r.TaskID); err != nil {
			return err
		}

		var result, errMsg any
		if r.Failed() {
			errMsg = r.Error
		} else {
			result = string(r.Result)
		}
		return tr.db.Execute(ctx, tr.d.upsertResult(), r.TaskID, result, errMsg)
	})
}

func (tr *sqlTasks) FindByInput(ctx context.Context, nameSuffix string, input []byte) (Task, error) {
	row := tr.db.runner(ctx).QueryRowContext(ctx,
		"SELECT id, name, timestamp, retry_count, input, queue_id, status FROM tasks WHERE name LIKE ? AND input = ? LIMIT 1",
		"%"+nameSuffix, string(input))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}

func (tr *sqlTasks) RequeueStale(ctx context.Context, cutoff float64) (int, error) {
	res, err := tr.db.runner(ctx).ExecContext(ctx,
		"UPDATE tasks SET status = 'SCHEDULED' WHERE status = 'RUNNING' AND timestamp <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued tasks: %w", err)
	}
	return int(n), nil
}

func (tr *sqlTasks) List(ctx context.Context, queueID string) ([]Task, error) {
	query := "SELECT id, name, timestamp, retry_count, input, queue_id, status FROM tasks"
	var args []any
	if queueID != "" {
		query += " WHERE queue_id = ?"
		args = append(args, queueID)
	}
	query += " ORDER BY timestamp"
	rows, err := tr.db.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
