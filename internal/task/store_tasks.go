package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shortvideo/internal/services"
)

const (
	defaultTenant   = "default"
	defaultProject  = "default"
	defaultPlatform = "unknown"
)

// Create inserts a new task with every step absent.
func (r *Repository) Create(ctx context.Context, t *Task) (*Task, error) {
	if t == nil {
		return nil, errors.New("task is nil")
	}
	ctx = ensureContext(ctx)
	t = t.Clone()
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create task", "task id is required", nil)
	}
	if strings.TrimSpace(t.SourceURL) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create task", "source url is required", nil)
	}
	if err := t.Namespace().Validate(); err != nil {
		return nil, err
	}
	if t.Tenant == "" {
		t.Tenant = defaultTenant
	}
	if t.Project == "" {
		t.Project = defaultProject
	}
	if t.Platform == "" {
		t.Platform = defaultPlatform
	}
	now := r.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Recompute()

	err := retryOnBusy(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID,
			t.Tenant,
			t.Project,
			nullableString(t.Title),
			t.Platform,
			t.SourceURL,
			t.TargetLang,
			nullableString(t.VoiceID),
			t.Status,
			nullableString(string(t.LastCompletedStep)),
			formatTime(t.CreatedAt),
			formatTime(t.UpdatedAt),
		); err != nil {
			return err
		}
		if err := saveSteps(ctx, tx, t); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: task %s", services.ErrAlreadyExists, t.ID)
		}
		return nil, services.Wrap(services.ErrStorage, "", "create task", t.ID, err)
	}
	return t, nil
}

// Get fetches a task by id.
func (r *Repository) Get(ctx context.Context, id string) (*Task, error) {
	t, err := loadTask(ensureContext(ctx), r.db, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "get task", id, err)
	}
	return t, nil
}

// Update applies mutate to the current task state inside an IMMEDIATE
// transaction and persists the result. mutate may run more than once when
// the database is busy, always against freshly loaded state. An error from
// mutate aborts the update and is returned unchanged.
func (r *Repository) Update(ctx context.Context, id string, mutate func(*Task) error) (*Task, error) {
	ctx = ensureContext(ctx)
	var (
		result    *Task
		mutateErr error
	)
	err := retryOnBusy(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		t, err := loadTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(t); err != nil {
				mutateErr = err
				return nil
			}
		}
		t.Recompute()
		t.UpdatedAt = r.now()
		if err := saveTask(ctx, tx, t); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result = t
		return nil
	})
	switch {
	case mutateErr != nil:
		return nil, mutateErr
	case errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case err != nil:
		return nil, services.Wrap(services.ErrStorage, "", "update task", id, err)
	}
	return result, nil
}

// List returns one page of tasks, newest first, plus the total number of
// tasks matching the filter.
func (r *Repository) List(ctx context.Context, filter Filter, page Page) ([]*Task, int, error) {
	ctx = ensureContext(ctx)
	page = page.Normalized()

	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Platform != "" {
		clauses = append(clauses, "platform = ?")
		args = append(args, filter.Platform)
	}
	if filter.Tenant != "" {
		clauses = append(clauses, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	if filter.Project != "" {
		clauses = append(clauses, "project = ?")
		args = append(args, filter.Project)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, services.Wrap(services.ErrStorage, "", "count tasks", "", err)
	}

	pageArgs := append(append([]any(nil), args...), page.Size, (page.Number-1)*page.Size)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrStorage, "", "list tasks", "", err)
	}
	defer rows.Close()

	var tasks []*Task
	byID := make(map[string]*Task)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, services.Wrap(services.ErrStorage, "", "list tasks", "scan", err)
		}
		tasks = append(tasks, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, 0, services.Wrap(services.ErrStorage, "", "list tasks", "", err)
	}
	_ = rows.Close()

	if err := loadChildren(ctx, r.db, byID); err != nil {
		return nil, 0, services.Wrap(services.ErrStorage, "", "list tasks", "load steps", err)
	}
	return tasks, total, nil
}

// Delete removes a task and its step and artifact rows. Stored artifacts are
// left to the artifact store.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return services.Wrap(services.ErrStorage, "", "delete task", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Summary counts tasks per status.
func (r *Repository) Summary(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "", "summarize tasks", "", err)
	}
	defer rows.Close()
	counts := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, services.Wrap(services.ErrStorage, "", "summarize tasks", "scan", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func isConstraintViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
