package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/archive"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReadEntriesFile decodes a plain ".json" or gzipped ".gz" array of entries.
func ReadEntriesFile(path string) ([]schema.Entry, error) {
	if strings.EqualFold(filepath.Ext(path), archive.Extension) {
		return archive.ReadArchive(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return codec.UnmarshalEntries(b)
}

// LoadEntries inserts the entries of a fixture or a previous export into the store.
// A non-nil user rebinds every entry to that user under fresh ids, so one
// file can be loaded for several users.
func LoadEntries(ctx context.Context, series contract.TimeSeries, path string, user uuid.UUID) (int, error) {
	entries, err := ReadEntriesFile(path)
	if err != nil {
		return 0, err
	}
	if user != uuid.Nil {
		for i := range entries {
			entries[i].UserID = user
			entries[i].ID = primitive.NewObjectID()
		}
	}
	if err := series.InsertEntries(ctx, entries...); err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return len(entries), nil
}
