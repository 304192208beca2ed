package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/askiada/go-insar/internal/config"
	"github.com/askiada/go-insar/pkg/insarerr"
	"github.com/askiada/go-insar/pkg/pipeline"
	"github.com/askiada/go-insar/pkg/raster"
)

// ErrRunNotFound is returned when no run is recorded under an identifier.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// RunRecord is the persisted outcome of a run.
type RunRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Config     config.ProcessingConfig
	Status     string
	Error      string
	Steps      []pipeline.Result
	TotalSteps int
	ID         uuid.UUID
}

// RunStatus maps the error returned by a run to the status recorded for it.
func RunStatus(runErr error) string {
	switch {
	case runErr == nil:
		return RunCompleted
	case errors.Is(runErr, insarerr.ErrCancelled):
		return RunCancelled
	default:
		return RunFailed
	}
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	return time.Parse(timeLayout, s)
}

// SaveRun records the final status of a run and its step results, replacing any previous record
// with the same identifier.
func (db *DB) SaveRun(ctx context.Context, id uuid.UUID, cfg config.ProcessingConfig, started time.Time, snap pipeline.Snapshot, runErr error) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "unable to encode config")
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"step_results", "runs"} {
		_, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id.String())
		if err != nil {
			return errors.Wrap(err, "unable to replace run")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, error, config, total_steps, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), RunStatus(runErr), errMsg, string(cfgJSON), snap.TotalSteps,
		formatTime(started), formatTime(time.Now()),
	)
	if err != nil {
		return errors.Wrap(err, "unable to insert run")
	}

	for i, step := range snap.Order {
		res := snap.Results[step]

		artifacts, err := json.Marshal(res.Artifacts)
		if err != nil {
			return errors.Wrap(err, "unable to encode artifacts")
		}

		meta, err := json.Marshal(res.Metadata)
		if err != nil {
			return errors.Wrap(err, "unable to encode metadata")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_results (run_id, position, step, status, start_time, end_time, error, artifacts, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id.String(), i, string(step), string(res.Status),
			formatTime(res.StartTime), formatTime(res.EndTime), res.Error, string(artifacts), string(meta),
		)
		if err != nil {
			return errors.Wrapf(err, "unable to insert result of %s", step)
		}
	}

	return errors.Wrap(tx.Commit(), "unable to commit run")
}

// LoadRun returns the run recorded under id, with its steps in execution order.
func (db *DB) LoadRun(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	rec := &RunRecord{ID: id}

	var cfgJSON, started, finished string

	err := db.QueryRowContext(ctx, `
		SELECT status, error, config, total_steps, started_at, finished_at FROM runs WHERE run_id = ?`, id.String(),
	).Scan(&rec.Status, &rec.Error, &cfgJSON, &rec.TotalSteps, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrRunNotFound, id.String())
	}

	if err != nil {
		return nil, errors.Wrapf(err, "unable to read run %s", id)
	}

	if err := json.Unmarshal([]byte(cfgJSON), &rec.Config); err != nil {
		return nil, errors.Wrap(err, "invalid stored config")
	}

	if rec.StartedAt, err = parseTime(started); err != nil {
		return nil, errors.Wrap(err, "invalid start time")
	}

	if rec.FinishedAt, err = parseTime(finished); err != nil {
		return nil, errors.Wrap(err, "invalid finish time")
	}

	rec.Steps, err = db.stepResults(ctx, id)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (db *DB) stepResults(ctx context.Context, id uuid.UUID) ([]pipeline.Result, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT step, status, start_time, end_time, error, artifacts, metadata
		FROM step_results WHERE run_id = ? ORDER BY position`, id.String())
	if err != nil {
		return nil, errors.Wrap(err, "unable to query step results")
	}
	defer rows.Close()

	var out []pipeline.Result

	for rows.Next() {
		var (
			res                 pipeline.Result
			step, status        string
			start, end          string
			artifacts, metadata string
		)

		err = rows.Scan(&step, &status, &start, &end, &res.Error, &artifacts, &metadata)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan step result")
		}

		res.Step, res.Status = pipeline.Step(step), pipeline.Status(status)

		if res.StartTime, err = parseTime(start); err != nil {
			return nil, errors.Wrap(err, "invalid step start time")
		}

		if res.EndTime, err = parseTime(end); err != nil {
			return nil, errors.Wrap(err, "invalid step end time")
		}

		if err = json.Unmarshal([]byte(artifacts), &res.Artifacts); err != nil {
			return nil, errors.Wrap(err, "invalid artifacts")
		}

		var meta raster.Metadata
		if err = json.Unmarshal([]byte(metadata), &meta); err != nil {
			return nil, errors.Wrap(err, "invalid metadata")
		}
		res.Metadata = meta

		out = append(out, res)
	}

	return out, errors.Wrap(rows.Err(), "unable to iterate step results")
}

// RecentRuns returns the identifiers of the latest runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query runs")
	}
	defer rows.Close()

	var out []uuid.UUID

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "unable to scan run")
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid run id %q", raw)
		}

		out = append(out, id)
	}

	return out, errors.Wrap(rows.Err(), "unable to iterate runs")
}
