package iostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// maxErrorLength bounds the error text stored with a failed run.
const maxErrorLength = 2000

// GetState returns the stored state, or a zero state when the stage never ran.
func (s *SQLStore) GetState(ctx context.Context, user uuid.UUID, stage schema.PipelineStage) (schema.PipelineState, error) {
	state := schema.PipelineState{UserID: user, Stage: stage}

	query := fmt.Sprintf("SELECT last_processed_ts, last_run_id, last_run_status, updated_at FROM %s WHERE user_id = ? AND stage = ?",
		s.table(stateTable))
	var (
		ts        sql.NullFloat64
		status    string
		updatedMs int64
	)
	err := s.db.QueryRowContext(ctx, s.q(query), user.String(), string(stage)).Scan(&ts, &state.LastRunID, &status, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return state, contract.NewStoreAccessError("get pipeline state", err)
	}

	if ts.Valid {
		v := ts.Float64
		state.LastProcessedTs = &v
	}
	state.LastRunStatus = schema.RunStatus(status)
	if updatedMs > 0 {
		state.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	}
	return state, nil
}

// ensureStateRow creates the state row for (user, stage) if it is missing.
func (s *SQLStore) ensureStateRow(ctx context.Context, exec execer, user uuid.UUID, stage schema.PipelineStage) error {
	query := insertIgnore(s.backend, stateTable, "user_id, stage, last_run_id, last_run_status, updated_at", 5)
	_, err := exec.ExecContext(ctx, s.q(query), user.String(), string(stage), 0, "", time.Now().UnixMilli())
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AdvanceWatermark moves last_processed_ts from prev to next.
// It returns false without changes when the stored value no longer equals prev.
func (s *SQLStore) AdvanceWatermark(ctx context.Context, user uuid.UUID, stage schema.PipelineStage, prev *float64, next float64, runID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, contract.NewStoreAccessError("begin advance watermark", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureStateRow(ctx, tx, user, stage); err != nil {
		return false, contract.NewStoreAccessError("create pipeline state", err)
	}

	guard := "last_processed_ts IS NULL"
	args := []any{next, runID, string(schema.RunSuccess), time.Now().UnixMilli(), user.String(), string(stage)}
	if prev != nil {
		guard = "last_processed_ts = ?"
		args = append(args, *prev)
	}
	query := fmt.Sprintf("UPDATE %s SET last_processed_ts = ?, last_run_id = ?, last_run_status = ?, updated_at = ? WHERE user_id = ? AND stage = ? AND %s",
		s.table(stateTable), guard)

	res, err := tx.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return false, contract.NewStoreAccessError("advance watermark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, contract.NewStoreAccessError("advance watermark", err)
	}
	if n != 1 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, contract.NewStoreAccessError("commit advance watermark", err)
	}
	return true, nil
}

// ResetState deletes the state row so the next run starts from the earliest entry.
func (s *SQLStore) ResetState(ctx context.Context, user uuid.UUID, stage schema.PipelineStage) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = ? AND stage = ?", s.table(stateTable))
	if _, err := s.db.ExecContext(ctx, s.q(query), user.String(), string(stage)); err != nil {
		return contract.NewStoreAccessError("reset pipeline state", err)
	}
	return nil
}

// BeginRun records a new running stage run and returns its id.
func (s *SQLStore) BeginRun(ctx context.Context, user uuid.UUID, stage schema.PipelineStage, window schema.TimeRange) (int64, error) {
	quoted := s.table(runsTable)
	args := []any{user.String(), string(stage), window.StartTs, window.EndTs, time.Now().UnixMilli(), string(schema.RunRunning)}

	var runID int64
	switch s.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (user_id, stage, window_start, window_end, started_at, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING run_id`, quoted)
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&runID); err != nil {
			return 0, contract.NewStoreAccessError("begin run", err)
		}
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (user_id, stage, window_start, window_end, started_at, status) VALUES (?, ?, ?, ?, ?, ?)`, quoted)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, contract.NewStoreAccessError("begin run", err)
		}
		runID, err = res.LastInsertId()
		if err != nil {
			return 0, contract.NewStoreAccessError("begin run", err)
		}
	}
	return runID, nil
}

// EndRun records the outcome of a run and mirrors its status onto the state row.
func (s *SQLStore) EndRun(ctx context.Context, runID int64, status schema.RunStatus, processed int, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		if len(msg) > maxErrorLength {
			msg = msg[:maxErrorLength]
		}
		errMsg = &msg
	}
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.NewStoreAccessError("begin end run", err)
	}
	defer func() { _ = tx.Rollback() }()

	update := fmt.Sprintf("UPDATE %s SET finished_at = ?, status = ?, entries_processed = ?, error_msg = ? WHERE run_id = ?", s.table(runsTable))
	if _, err := tx.ExecContext(ctx, s.q(update), now, string(status), processed, errMsg, runID); err != nil {
		return contract.NewStoreAccessError("end run", err)
	}

	var userID, stage string
	lookup := fmt.Sprintf("SELECT user_id, stage FROM %s WHERE run_id = ?", s.table(runsTable))
	if err := tx.QueryRowContext(ctx, s.q(lookup), runID).Scan(&userID, &stage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("pipeline run %d does not exist", runID)
		}
		return contract.NewStoreAccessError("end run", err)
	}
	user, err := uuid.Parse(userID)
	if err != nil {
		return contract.NewStoreAccessError("end run", err)
	}

	if err := s.ensureStateRow(ctx, tx, user, schema.PipelineStage(stage)); err != nil {
		return contract.NewStoreAccessError("create pipeline state", err)
	}
	mirror := fmt.Sprintf("UPDATE %s SET last_run_id = ?, last_run_status = ?, updated_at = ? WHERE user_id = ? AND stage = ?", s.table(stateTable))
	if _, err := tx.ExecContext(ctx, s.q(mirror), runID, string(status), now, userID, stage); err != nil {
		return contract.NewStoreAccessError("end run", err)
	}

	if err := tx.Commit(); err != nil {
		return contract.NewStoreAccessError("commit end run", err)
	}
	return nil
}

// ListRuns returns recorded runs ordered by id, for every user when user is uuid.Nil.
func (s *SQLStore) ListRuns(ctx context.Context, user uuid.UUID) ([]schema.PipelineRunRecord, error) {
	query := fmt.Sprintf("SELECT run_id, user_id, stage, window_start, window_end, started_at, finished_at, status, entries_processed, error_msg FROM %s",
		s.table(runsTable))
	var args []any
	if user != uuid.Nil {
		query += " WHERE user_id = ?"
		args = append(args, user.String())
	}
	query += " ORDER BY run_id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, contract.NewStoreAccessError("list runs", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.PipelineRunRecord
	for rows.Next() {
		var (
			record     schema.PipelineRunRecord
			userID     string
			stage      string
			status     string
			startedMs  int64
			finishedMs sql.NullInt64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&record.RunID, &userID, &stage, &record.WindowStartTs, &record.WindowEndTs,
			&startedMs, &finishedMs, &status, &record.EntriesProcessed, &errMsg); err != nil {
			return nil, contract.NewStoreAccessError("scan run", err)
		}
		record.UserID, err = uuid.Parse(userID)
		if err != nil {
			return nil, contract.NewStoreAccessError("scan run", err)
		}
		record.Stage = schema.PipelineStage(stage)
		record.Status = schema.RunStatus(status)
		record.StartedAt = time.UnixMilli(startedMs).UTC()
		if finishedMs.Valid {
			finished := time.UnixMilli(finishedMs.Int64).UTC()
			record.FinishedAt = &finished
		}
		if errMsg.Valid {
			msg := errMsg.String
			record.Error = &msg
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, contract.NewStoreAccessError("iterate runs", err)
	}
	return results, nil
}
