package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stagehand/internal/services"
	"stagehand/internal/textutil"
	"stagehand/internal/workflow"
)

const taskColumns = "repo_name, feature_slug, id, title, description, status, order_of_execution, acceptance_criteria_json, test_scenarios_json, reviews_json, created_at, updated_at"

func scanTask(scanner rowScanner) (*workflow.Task, error) {
	var (
		task        workflow.Task
		statusStr   string
		criteriaRaw string
		scenarioRaw string
		reviewsRaw  string
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&task.RepoName,
		&task.FeatureSlug,
		&task.ID,
		&task.Title,
		&task.Description,
		&statusStr,
		&task.OrderOfExecution,
		&criteriaRaw,
		&scenarioRaw,
		&reviewsRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	task.Status = workflow.Status(statusStr)
	if err := decodeJSONColumn(criteriaRaw, &task.AcceptanceCriteria); err != nil {
		return nil, fmt.Errorf("task %s acceptance criteria: %w", task.ID, err)
	}
	if err := decodeJSONColumn(scenarioRaw, &task.TestScenarios); err != nil {
		return nil, fmt.Errorf("task %s test scenarios: %w", task.ID, err)
	}
	if err := decodeJSONColumn(reviewsRaw, &task.Reviews); err != nil {
		return nil, fmt.Errorf("task %s reviews: %w", task.ID, err)
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = t
	}
	task.Normalize()
	return &task, nil
}

func decodeJSONColumn(raw string, target any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

func encodeJSONColumn(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func checkPair(op, repoName, featureSlug string) error {
	var problems []string
	if err := textutil.CheckIdentifier("repoName", repoName); err != nil {
		problems = append(problems, err.Error())
	}
	if err := textutil.CheckIdentifier("featureSlug", featureSlug); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "store", op, strings.Join(problems, "; "), nil)
	}
	return nil
}

func ensureFeatureTx(ctx context.Context, tx *sql.Tx, repoName, featureSlug, title, ts string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO repositories (name, created_at) VALUES (?, ?)`, repoName, ts,
	); err != nil {
		return fmt.Errorf("insert repository %s: %w", repoName, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO features (repo_name, slug, title, created_at) VALUES (?, ?, ?, ?)`,
		repoName, featureSlug, title, ts,
	); err != nil {
		return fmt.Errorf("insert feature %s/%s: %w", repoName, featureSlug, err)
	}
	if title != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE features SET title = ? WHERE repo_name = ? AND slug = ? AND title = ''`,
			title, repoName, featureSlug,
		); err != nil {
			return fmt.Errorf("title feature %s/%s: %w", repoName, featureSlug, err)
		}
	}
	return nil
}

// EnsureFeature registers a repository and feature if they do not exist yet.
func (s *Store) EnsureFeature(ctx context.Context, repoName, featureSlug, title string) error {
	if err := checkPair("ensure feature", repoName, featureSlug); err != nil {
		return err
	}
	ts := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return ensureFeatureTx(ctx, tx, repoName, featureSlug, strings.TrimSpace(title), ts)
	})
}

// CreateTask persists a new task together with its transition history,
// registering its repository and feature on the way. A task id already used
// inside the feature yields ErrConflict.
func (s *Store) CreateTask(ctx context.Context, task *workflow.Task) error {
	ctx = ensureContext(ctx)
	if task == nil {
		return services.Wrap(services.ErrValidation, "store", "create task", "task is required", nil)
	}
	task.Normalize()
	if err := task.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "store", "create task", "invalid task", err)
	}
	if err := checkPair("create task", task.RepoName, task.FeatureSlug); err != nil {
		return err
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now().UTC()
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}

	criteria, err := encodeJSONColumn(task.AcceptanceCriteria)
	if err != nil {
		return fmt.Errorf("encode acceptance criteria: %w", err)
	}
	scenarios, err := encodeJSONColumn(task.TestScenarios)
	if err != nil {
		return fmt.Errorf("encode test scenarios: %w", err)
	}
	reviews, err := encodeJSONColumn(task.Reviews)
	if err != nil {
		return fmt.Errorf("encode reviews: %w", err)
	}

	ts := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureFeatureTx(ctx, tx, task.RepoName, task.FeatureSlug, "", ts); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tasks (`+taskColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.RepoName, task.FeatureSlug, task.ID, task.Title, task.Description, string(task.Status),
			task.OrderOfExecution, criteria, scenarios, reviews,
			formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return services.Wrap(services.ErrConflict, "store", "create task",
				fmt.Sprintf("task %s already exists in %s/%s", task.ID, task.RepoName, task.FeatureSlug), nil)
		}
		for _, transition := range task.Transitions {
			if err := insertTransitionTx(ctx, tx, task, transition); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertTransitionTx(ctx context.Context, tx *sql.Tx, task *workflow.Task, transition workflow.Transition) error {
	var metadata any
	if len(transition.Metadata) > 0 {
		encoded, err := encodeJSONColumn(transition.Metadata)
		if err != nil {
			return fmt.Errorf("encode transition metadata: %w", err)
		}
		metadata = encoded
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO task_transitions (repo_name, feature_slug, task_id, from_status, to_status, actor, at, notes, metadata_json)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.RepoName, task.FeatureSlug, task.ID,
		string(transition.From), string(transition.To), string(transition.Actor),
		formatTime(transition.At), nullableString(transition.Notes), metadata,
	); err != nil {
		return fmt.Errorf("insert transition for task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask fetches a task with its transitions; nil when it does not exist.
func (s *Store) GetTask(ctx context.Context, repoName, featureSlug, id string) (*workflow.Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE repo_name = ? AND feature_slug = ? AND id = ?`,
		repoName, featureSlug, id,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	transitions, err := s.loadTransitions(ctx, repoName, featureSlug, id)
	if err != nil {
		return nil, err
	}
	task.Transitions = transitions[id]
	task.Normalize()
	return task, nil
}

// ListTasks returns every task of a feature in execution order.
func (s *Store) ListTasks(ctx context.Context, repoName, featureSlug string) ([]*workflow.Task, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE repo_name = ? AND feature_slug = ?
         ORDER BY order_of_execution, id`,
		repoName, featureSlug,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*workflow.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	transitions, err := s.loadTransitions(ctx, repoName, featureSlug, "")
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		task.Transitions = transitions[task.ID]
		task.Normalize()
	}
	return tasks, nil
}

// loadTransitions returns transitions keyed by task id, oldest first. An
// empty taskID loads the whole feature.
func (s *Store) loadTransitions(ctx context.Context, repoName, featureSlug, taskID string) (map[string][]workflow.Transition, error) {
	query := `SELECT task_id, from_status, to_status, actor, at, notes, metadata_json
              FROM task_transitions WHERE repo_name = ? AND feature_slug = ?`
	args := []any{repoName, featureSlug}
	if taskID != "" {
		query += ` AND task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]workflow.Transition)
	for rows.Next() {
		var (
			id          string
			from, to    string
			actor       string
			atRaw       string
			notes       sql.NullString
			metadataRaw sql.NullString
		)
		if err := rows.Scan(&id, &from, &to, &actor, &atRaw, &notes, &metadataRaw); err != nil {
			return nil, err
		}
		transition := workflow.Transition{
			From:  workflow.Status(from),
			To:    workflow.Status(to),
			Actor: workflow.Role(actor),
			Notes: notes.String,
		}
		if t, err := parseTimeString(atRaw); err == nil {
			transition.At = t
		}
		if metadataRaw.Valid {
			if err := decodeJSONColumn(metadataRaw.String, &transition.Metadata); err != nil {
				return nil, fmt.Errorf("transition metadata for task %s: %w", id, err)
			}
		}
		out[id] = append(out[id], transition)
	}
	return out, rows.Err()
}

// ApplyTransition persists the status, review slots, and newest transition of
// task, provided the stored status still equals expectedFrom. A concurrent
// change yields ErrConflict and nothing is written.
func (s *Store) ApplyTransition(ctx context.Context, task *workflow.Task, expectedFrom workflow.Status, transition workflow.Transition) error {
	ctx = ensureContext(ctx)
	if task == nil {
		return services.Wrap(services.ErrValidation, "store", "apply transition", "task is required", nil)
	}
	reviews, err := encodeJSONColumn(task.Reviews)
	if err != nil {
		return fmt.Errorf("encode reviews: %w", err)
	}
	updatedAt := task.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, reviews_json = ?, updated_at = ?
             WHERE repo_name = ? AND feature_slug = ? AND id = ? AND status = ?`,
			string(task.Status), reviews, formatTime(updatedAt),
			task.RepoName, task.FeatureSlug, task.ID, string(expectedFrom),
		)
		if err != nil {
			return fmt.Errorf("update task %s: %w", task.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task %s: rows affected: %w", task.ID, err)
		}
		if affected == 0 {
			var current string
			err := tx.QueryRowContext(ctx,
				`SELECT status FROM tasks WHERE repo_name = ? AND feature_slug = ? AND id = ?`,
				task.RepoName, task.FeatureSlug, task.ID,
			).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "store", "apply transition",
					fmt.Sprintf("task %s does not exist in %s/%s", task.ID, task.RepoName, task.FeatureSlug), nil)
			}
			if err != nil {
				return fmt.Errorf("read task %s: %w", task.ID, err)
			}
			return services.Wrap(services.ErrConflict, "store", "apply transition",
				fmt.Sprintf("task %s is %s, expected %s", task.ID, current, expectedFrom), nil)
		}
		return insertTransitionTx(ctx, tx, task, transition)
	})
}

// ListRepositories returns registered repositories by name.
func (s *Store) ListRepositories(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT name, created_at FROM repositories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []Repository
	for rows.Next() {
		var repo Repository
		var createdRaw string
		if err := rows.Scan(&repo.Name, &createdRaw); err != nil {
			return nil, err
		}
		if t, err := parseTimeString(createdRaw); err == nil {
			repo.CreatedAt = t
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// ListFeatures returns the features of a repository, or of every repository
// when repoName is empty.
func (s *Store) ListFeatures(ctx context.Context, repoName string) ([]Feature, error) {
	query := `SELECT repo_name, slug, title, created_at FROM features`
	var args []any
	if repoName != "" {
		query += ` WHERE repo_name = ?`
		args = append(args, repoName)
	}
	query += ` ORDER BY repo_name, slug`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var feature Feature
		var createdRaw string
		if err := rows.Scan(&feature.RepoName, &feature.Slug, &feature.Title, &createdRaw); err != nil {
			return nil, err
		}
		if t, err := parseTimeString(createdRaw); err == nil {
			feature.CreatedAt = t
		}
		features = append(features, feature)
	}
	return features, rows.Err()
}

const scanStateQuery = `
SELECT
    f.repo_name,
    f.slug,
    (SELECT COUNT(1) FROM tasks t WHERE t.repo_name = f.repo_name AND t.feature_slug = f.slug),
    (SELECT COUNT(1) FROM tasks t WHERE t.repo_name = f.repo_name AND t.feature_slug = f.slug AND t.status = ?),
    (SELECT MAX(t.updated_at) FROM tasks t WHERE t.repo_name = f.repo_name AND t.feature_slug = f.slug),
    f.last_enqueued_at,
    EXISTS (SELECT 1 FROM queue_items q WHERE q.repo_name = f.repo_name AND q.feature_slug = f.slug AND q.status IN (?, ?))
FROM features f`

func scanFeatureState(scanner rowScanner) (FeatureScanState, error) {
	var (
		state        FeatureScanState
		lastUpdate   sql.NullString
		lastEnqueued sql.NullString
		active       int
	)
	if err := scanner.Scan(&state.RepoName, &state.FeatureSlug, &state.Total, &state.Ready,
		&lastUpdate, &lastEnqueued, &active); err != nil {
		return FeatureScanState{}, err
	}
	state.LastTaskUpdate = parseNullTime(lastUpdate)
	state.LastEnqueuedAt = parseNullTime(lastEnqueued)
	state.Active = active != 0
	return state, nil
}

// FeatureScanState aggregates what the scheduler needs for one feature.
func (s *Store) FeatureScanState(ctx context.Context, repoName, featureSlug string) (FeatureScanState, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		scanStateQuery+` WHERE f.repo_name = ? AND f.slug = ?`,
		string(workflow.StatusReadyForDevelopment), QueueStatusPending, QueueStatusRunning,
		repoName, featureSlug,
	)
	state, err := scanFeatureState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FeatureScanState{RepoName: repoName, FeatureSlug: featureSlug}, nil
	}
	if err != nil {
		return FeatureScanState{}, fmt.Errorf("feature scan state: %w", err)
	}
	return state, nil
}

// FeatureScanStates aggregates every feature of repoName.
func (s *Store) FeatureScanStates(ctx context.Context, repoName string) ([]FeatureScanState, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		scanStateQuery+` WHERE f.repo_name = ? ORDER BY f.slug`,
		string(workflow.StatusReadyForDevelopment), QueueStatusPending, QueueStatusRunning,
		repoName,
	)
	if err != nil {
		return nil, fmt.Errorf("feature scan states: %w", err)
	}
	defer rows.Close()

	var states []FeatureScanState
	for rows.Next() {
		state, err := scanFeatureState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}
