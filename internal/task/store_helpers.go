package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shortvideo/internal/artifact"
)

const taskColumns = "id, tenant, project, title, platform, source_url, target_lang, voice_id, status, last_completed_step, created_at, updated_at"

const stepColumns = "task_id, step, status, error, error_class, provider, attempts, started_at, finished_at, last_heartbeat"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface{ Scan(dest ...any) error }

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		id, tenant, project, platform string
		sourceURL, targetLang, status string
		title, voiceID, lastStep      sql.NullString
		createdRaw, updatedRaw        string
	)
	if err := scanner.Scan(
		&id, &tenant, &project, &title, &platform, &sourceURL,
		&targetLang, &voiceID, &status, &lastStep, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	t := New(id)
	t.Tenant = tenant
	t.Project = project
	t.Title = title.String
	t.Platform = platform
	t.SourceURL = sourceURL
	t.TargetLang = targetLang
	t.VoiceID = voiceID.String
	t.Status = Status(status)
	t.LastCompletedStep = Step(lastStep.String)
	if created, err := parseTimeString(createdRaw); err == nil {
		t.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		t.UpdatedAt = updated
	}
	return t, nil
}

func scanStep(scanner rowScanner) (string, Step, *StepState, error) {
	var (
		taskID, step, status                  string
		errMsg, errClass, provider            sql.NullString
		attempts                              int
		startedRaw, finishedRaw, heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(&taskID, &step, &status, &errMsg, &errClass, &provider, &attempts, &startedRaw, &finishedRaw, &heartbeatRaw); err != nil {
		return "", "", nil, err
	}
	state := &StepState{
		Status:        StepStatus(status),
		Error:         errMsg.String,
		ErrorClass:    errClass.String,
		Provider:      provider.String,
		Attempts:      attempts,
		StartedAt:     parseNullableTime(startedRaw),
		FinishedAt:    parseNullableTime(finishedRaw),
		LastHeartbeat: parseNullableTime(heartbeatRaw),
	}
	return taskID, Step(step), state, nil
}

// loadChildren fills in steps and artifact keys for the given tasks.
func loadChildren(ctx context.Context, q querier, tasks map[string]*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]any, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	placeholders := makePlaceholders(len(ids))

	rows, err := q.QueryContext(ctx, `SELECT `+stepColumns+` FROM task_steps WHERE task_id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return err
	}
	for rows.Next() {
		taskID, step, state, err := scanStep(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		if t := tasks[taskID]; t != nil {
			t.Steps[step] = state
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT task_id, kind, key FROM task_artifacts WHERE task_id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, kind, key string
		if err := rows.Scan(&taskID, &kind, &key); err != nil {
			return err
		}
		if t := tasks[taskID]; t != nil {
			t.Artifacts[artifact.Kind(kind)] = key
		}
	}
	return rows.Err()
}

func loadTask(ctx context.Context, q querier, id string) (*Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, q, map[string]*Task{t.ID: t}); err != nil {
		return nil, err
	}
	return t, nil
}

// saveTask writes the task row, every step row and the artifact key set.
func saveTask(ctx context.Context, q querier, t *Task) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE tasks SET title = ?, platform = ?, source_url = ?, target_lang = ?, voice_id = ?,
            status = ?, last_completed_step = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(t.Title),
		t.Platform,
		t.SourceURL,
		t.TargetLang,
		nullableString(t.VoiceID),
		t.Status,
		nullableString(string(t.LastCompletedStep)),
		formatTime(t.UpdatedAt),
		t.ID,
	); err != nil {
		return err
	}
	if err := saveSteps(ctx, q, t); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM task_artifacts WHERE task_id = ?`, t.ID); err != nil {
		return err
	}
	for kind, key := range t.Artifacts {
		if key == "" {
			continue
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO task_artifacts (task_id, kind, key) VALUES (?, ?, ?)`,
			t.ID, string(kind), key,
		); err != nil {
			return err
		}
	}
	return nil
}

func saveSteps(ctx context.Context, q querier, t *Task) error {
	for _, step := range allSteps {
		state := t.Step(step)
		if _, err := q.ExecContext(ctx,
			`INSERT INTO task_steps (`+stepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(task_id, step) DO UPDATE SET
                status = excluded.status, error = excluded.error, error_class = excluded.error_class,
                provider = excluded.provider,
                attempts = excluded.attempts, started_at = excluded.started_at,
                finished_at = excluded.finished_at, last_heartbeat = excluded.last_heartbeat`,
			t.ID,
			string(step),
			string(state.Status),
			nullableString(state.Error),
			nullableString(state.ErrorClass),
			nullableString(state.Provider),
			state.Attempts,
			nullableTime(state.StartedAt),
			nullableTime(state.FinishedAt),
			nullableTime(state.LastHeartbeat),
		); err != nil {
			return err
		}
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
