// Package archive exports time series windows to gzip-compressed JSON files.
package archive

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/parquet"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/klauspost/compress/gzip"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Extension is appended to the archive prefix.
const Extension = ".gz"

// ParquetExtension is appended to the prefix of the parquet sidecar.
const ParquetExtension = ".parquet"

// Options controls what happens around an export.
type Options struct {
	// Purge deletes the exported entries once the archive is durable.
	Purge bool

	// Parquet also writes a flattened parquet sidecar next to the archive.
	Parquet bool
}

// FileName returns the archive prefix for a user window inside dir.
func FileName(dir string, user uuid.UUID, startTs, endTs float64) string {
	name := fmt.Sprintf("archive_%s_%s_%s", user,
		strconv.FormatFloat(startTs, 'f', -1, 64),
		strconv.FormatFloat(endTs, 'f', -1, 64))
	return filepath.Join(dir, name)
}

// Export archives every entry of user whose data timestamp lies in [startTs, endTs]
// to prefix + ".gz", then purges them if purgeAfter is set.
func Export(ctx context.Context, user uuid.UUID, series contract.TimeSeries, startTs, endTs float64, prefix string, purgeAfter bool) (schema.ExportResult, error) {
	q := schema.TimeQuery{Field: schema.TimeFieldData, StartTs: startTs, EndTs: endTs}
	return ExportQuery(ctx, user, series, q, prefix, Options{Purge: purgeAfter})
}

// ExportQuery archives the entries matching q to prefix + ".gz".
// Nothing is purged unless the archive was written and synced.
// An existing archive for the same prefix is only ever extended, never replaced by fewer entries.
func ExportQuery(ctx context.Context, user uuid.UUID, series contract.TimeSeries, q schema.TimeQuery, prefix string, opts Options) (schema.ExportResult, error) {
	result := schema.ExportResult{Path: prefix + Extension, StartTs: q.StartTs, EndTs: q.EndTs}

	entries, err := series.FindEntries(ctx, user, nil, &q)
	if err != nil {
		return result, fmt.Errorf("failed to read entries for export: %w", err)
	}

	// A retried window may find its archive already written and the store already purged.
	archived, exists, err := readExisting(result.Path)
	if err != nil {
		return result, err
	}
	content := entries
	if exists {
		content = mergeArchived(archived, entries, q.Field)
	}
	result.Entries = len(content)

	if exists && len(content) == len(archived) {
		result.Reused = true
	} else if err := writeAtomic(result.Path, func(w io.Writer) error {
		return encode(ctx, w, content)
	}); err != nil {
		return result, err
	}

	if opts.Parquet {
		result.ParquetPath = prefix + ParquetExtension
		if err := WriteParquet(result.ParquetPath, content); err != nil {
			return result, err
		}
	}

	if opts.Purge && len(entries) > 0 {
		ids := make([]primitive.ObjectID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		n, err := series.DeleteEntries(ctx, user, ids)
		if err != nil {
			return result, fmt.Errorf("failed to purge exported entries: %w", err)
		}
		result.Purged = n
	}
	return result, nil
}

// readExisting reads the archive at path if there is one.
func readExisting(path string) ([]schema.Entry, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, &contract.ArchiveIOError{Path: path, Err: err}
	}
	entries, err := ReadArchive(path)
	if err != nil {
		return nil, true, err
	}
	return entries, true, nil
}

// mergeArchived adds the entries missing from an existing archive, keeping timestamp order.
// Archived entries are never dropped, even when the store no longer holds them.
func mergeArchived(archived, entries []schema.Entry, field schema.TimeField) []schema.Entry {
	seen := make(map[primitive.ObjectID]struct{}, len(archived))
	for _, e := range archived {
		seen[e.ID] = struct{}{}
	}
	merged := slices.Clone(archived)
	for _, e := range entries {
		if _, ok := seen[e.ID]; !ok {
			merged = append(merged, e)
		}
	}
	slices.SortStableFunc(merged, func(a, b schema.Entry) int {
		return cmp.Compare(a.Timestamp(field), b.Timestamp(field))
	})
	return merged
}

// encode writes entries as a gzip-compressed JSON array.
func encode(ctx context.Context, w io.Writer, entries []schema.Entry) error {
	zw := gzip.NewWriter(w)
	if _, err := zw.Write([]byte("[")); err != nil {
		return err
	}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := codec.MarshalEntry(e)
		if err != nil {
			return err
		}
		if i > 0 {
			if _, err := zw.Write([]byte(",")); err != nil {
				return err
			}
		}
		if _, err := zw.Write(b); err != nil {
			return err
		}
	}
	if _, err := zw.Write([]byte("]")); err != nil {
		return err
	}
	return zw.Close()
}

// WriteParquet writes the entries to a parquet file at path.
func WriteParquet(path string, entries []schema.Entry) error {
	return writeAtomic(path, func(w io.Writer) error {
		return parquet.Write(w, parquet.ConvertEntries(entries))
	})
}

// ReadArchive decodes an archive written by Export.
func ReadArchive(path string) ([]schema.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &contract.ArchiveIOError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, &contract.ArchiveIOError{Path: path, Err: err}
	}
	defer func() { _ = zr.Close() }()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, &contract.ArchiveIOError{Path: path, Err: err}
	}
	return codec.UnmarshalEntries(buf.Bytes())
}
