package iostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// deleteChunkSize bounds the number of ids in one DELETE statement.
const deleteChunkSize = 500

const entryColumns = "entry_id, user_id, metadata_key, write_ts, data_ts, data_end_ts, metadata_json, data_json"

// timeColumn maps a query axis to its column.
func timeColumn(field schema.TimeField) string {
	if field == schema.TimeFieldWrite {
		return "write_ts"
	}
	return "data_ts"
}

// keyFilter appends an IN clause for keys and returns the extended args.
func keyFilter(where []string, args []any, keys []string) ([]string, []any) {
	if len(keys) == 0 {
		return where, args
	}
	where = append(where, fmt.Sprintf("metadata_key IN (%s)", placeholders(len(keys))))
	for _, k := range keys {
		args = append(args, k)
	}
	return where, args
}

// InsertEntries appends entries in one transaction.
func (s *SQLStore) InsertEntries(ctx context.Context, entries ...schema.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.NewStoreAccessError("begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertTx(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return contract.NewStoreAccessError("commit insert", err)
	}
	return nil
}

// insertTx writes entries through tx in slice order.
func (s *SQLStore) insertTx(ctx context.Context, tx *sql.Tx, entries []schema.Entry) error {
	stmt, err := tx.PrepareContext(ctx, s.q(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", s.table(entriesTable), entryColumns, placeholders(8))))
	if err != nil {
		return contract.NewStoreAccessError("prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if e.ID.IsZero() {
			return fmt.Errorf("entry with key %q has no id", e.Metadata.Key)
		}
		if e.UserID == uuid.Nil {
			return fmt.Errorf("entry %s has no user id", e.ID.Hex())
		}
		if err := codec.Stamp(&e); err != nil {
			return err
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return &contract.SerializationError{Key: e.Metadata.Key, EntryID: e.ID.Hex(), Err: err}
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID.Hex(), e.UserID.String(), e.Metadata.Key, e.Metadata.WriteTs,
			e.DataTs, e.DataEndTs, string(meta), string(e.Data),
		); err != nil {
			return contract.NewStoreAccessError("insert entry "+e.ID.Hex(), err)
		}
	}
	return nil
}

// FindEntries returns the user's entries for keys, ordered by the query axis then insertion order.
func (s *SQLStore) FindEntries(ctx context.Context, user uuid.UUID, keys []string, q *schema.TimeQuery) ([]schema.Entry, error) {
	where := []string{"user_id = ?"}
	args := []any{user.String()}
	where, args = keyFilter(where, args, keys)

	column := "data_ts"
	if q != nil {
		column = timeColumn(q.Field)
		lower := ">="
		if q.StartExclusive {
			lower = ">"
		}
		where = append(where, fmt.Sprintf("%s %s ?", column, lower), fmt.Sprintf("%s <= ?", column))
		args = append(args, q.StartTs, q.EndTs)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s, seq",
		entryColumns, s.table(entriesTable), strings.Join(where, " AND "), column)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, contract.NewStoreAccessError("find entries", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, contract.NewStoreAccessError("iterate entries", err)
	}
	return results, nil
}

// scanEntry decodes one row into an Entry.
func scanEntry(rows *sql.Rows) (schema.Entry, error) {
	var (
		e                      schema.Entry
		entryID, userID, key   string
		metaJSON, dataJSON     string
		writeTs, dataTs, endTs float64
	)
	if err := rows.Scan(&entryID, &userID, &key, &writeTs, &dataTs, &endTs, &metaJSON, &dataJSON); err != nil {
		return e, contract.NewStoreAccessError("scan entry", err)
	}

	id, err := primitive.ObjectIDFromHex(entryID)
	if err != nil {
		return e, contract.NewStoreAccessError("scan entry", fmt.Errorf("malformed entry id %q: %w", entryID, err))
	}
	user, err := uuid.Parse(userID)
	if err != nil {
		return e, contract.NewStoreAccessError("scan entry", fmt.Errorf("malformed user id %q: %w", userID, err))
	}
	if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
		return e, contract.NewStoreAccessError("scan entry", fmt.Errorf("malformed metadata for %s: %w", entryID, err))
	}

	e.ID = id
	e.UserID = user
	e.Metadata.Key = key
	e.Metadata.WriteTs = writeTs
	e.Data = json.RawMessage(dataJSON)
	e.DataTs = dataTs
	e.DataEndTs = endTs
	return e, nil
}

// EarliestTs returns the smallest timestamp on the axis for the user.
func (s *SQLStore) EarliestTs(ctx context.Context, user uuid.UUID, field schema.TimeField) (float64, bool, error) {
	query := fmt.Sprintf("SELECT MIN(%s) FROM %s WHERE user_id = ?", timeColumn(field), s.table(entriesTable))
	var ts sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, s.q(query), user.String()).Scan(&ts); err != nil {
		return 0, false, contract.NewStoreAccessError("earliest timestamp", err)
	}
	return ts.Float64, ts.Valid, nil
}

// CountEntries counts the user's entries for keys.
func (s *SQLStore) CountEntries(ctx context.Context, user uuid.UUID, keys []string) (int, error) {
	where, args := keyFilter([]string{"user_id = ?"}, []any{user.String()}, keys)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.table(entriesTable), strings.Join(where, " AND "))
	var count int
	if err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(&count); err != nil {
		return 0, contract.NewStoreAccessError("count entries", err)
	}
	return count, nil
}

// DeleteEntries removes the given entries of one user in one transaction.
func (s *SQLStore) DeleteEntries(ctx context.Context, user uuid.UUID, ids []primitive.ObjectID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contract.NewStoreAccessError("begin delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleted := 0
	for start := 0; start < len(ids); start += deleteChunkSize {
		chunk := ids[start:min(start+deleteChunkSize, len(ids))]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, user.String())
		for _, id := range chunk {
			args = append(args, id.Hex())
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE user_id = ? AND entry_id IN (%s)", s.table(entriesTable), placeholders(len(chunk)))
		res, err := tx.ExecContext(ctx, s.q(query), args...)
		if err != nil {
			return 0, contract.NewStoreAccessError("delete entries", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, contract.NewStoreAccessError("delete entries", err)
		}
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, contract.NewStoreAccessError("commit delete", err)
	}
	return deleted, nil
}

// ListUsers returns every user with at least one entry.
func (s *SQLStore) ListUsers(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT user_id FROM %s ORDER BY user_id", s.table(entriesTable)))
	if err != nil {
		return nil, contract.NewStoreAccessError("list users", err)
	}
	defer func() { _ = rows.Close() }()

	var users []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, contract.NewStoreAccessError("scan user", err)
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, contract.NewStoreAccessError("scan user", fmt.Errorf("malformed user id %q: %w", raw, err))
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, contract.NewStoreAccessError("iterate users", err)
	}
	return users, nil
}

// RebindUser moves the matching entries of from onto to.
// Stored rows are never updated: each one is read, rebuilt as a new entry for to
// and written back in place of the old row, all in one transaction.
// Entry ids, payloads and relative insertion order are preserved.
func (s *SQLStore) RebindUser(ctx context.Context, from, to uuid.UUID, keys []string) (int, error) {
	if to == uuid.Nil {
		return 0, errors.New("cannot rebind entries to the nil user")
	}
	if from == to {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contract.NewStoreAccessError("begin rebind", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := s.findTx(ctx, tx, from, keys)
	if err != nil {
		return 0, err
	}
	if len(old) == 0 {
		return 0, nil
	}

	rebound := make([]schema.Entry, 0, len(old))
	for _, e := range old {
		rebound = append(rebound, rebindEntry(e, to))
	}

	for start := 0; start < len(old); start += deleteChunkSize {
		chunk := old[start:min(start+deleteChunkSize, len(old))]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, from.String())
		for _, e := range chunk {
			args = append(args, e.ID.Hex())
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE user_id = ? AND entry_id IN (%s)", s.table(entriesTable), placeholders(len(chunk)))
		if _, err := tx.ExecContext(ctx, s.q(query), args...); err != nil {
			return 0, contract.NewStoreAccessError("rebind user", err)
		}
	}
	if err := s.insertTx(ctx, tx, rebound); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, contract.NewStoreAccessError("commit rebind", err)
	}
	return len(rebound), nil
}

// findTx reads the user's entries for keys in insertion order through tx.
func (s *SQLStore) findTx(ctx context.Context, tx *sql.Tx, user uuid.UUID, keys []string) ([]schema.Entry, error) {
	where, args := keyFilter([]string{"user_id = ?"}, []any{user.String()}, keys)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY seq",
		entryColumns, s.table(entriesTable), strings.Join(where, " AND "))

	rows, err := tx.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, contract.NewStoreAccessError("rebind user", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, contract.NewStoreAccessError("iterate entries", err)
	}
	return results, nil
}

// rebindEntry returns a copy of e owned by user. The payload bytes are cloned so
// the result shares nothing with e.
func rebindEntry(e schema.Entry, user uuid.UUID) schema.Entry {
	return schema.Entry{
		ID:        e.ID,
		UserID:    user,
		Metadata:  e.Metadata,
		Data:      slices.Clone(e.Data),
		DataTs:    e.DataTs,
		DataEndTs: e.DataEndTs,
	}
}
