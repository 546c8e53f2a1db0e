package contract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlainLabel(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{name: "negative savings", input: -0.3, expected: PoorValue},
		{name: "just before fair", input: 0.249, expected: PoorValue},
		{name: "exactly fair", input: 0.25, expected: FairValue},
		{name: "just before good", input: 0.499, expected: FairValue},
		{name: "exactly good", input: 0.5, expected: GoodValue},
		{name: "exactly great", input: 0.75, expected: GreatValue},
		{name: "perfect", input: 1.0, expected: GreatValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetPlainLabel(tt.input))
		})
	}
}

func TestGetColorLabel(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		label string
	}{
		{"poor", 0.1, PoorValue},
		{"fair", 0.3, FairValue},
		{"good", 0.6, GoodValue},
		{"great", 0.9, GreatValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, GetColorLabel(tt.score), tt.label)
		})
	}
}

func TestSelectOutputFile(t *testing.T) {
	t.Run("empty path returns stdout", func(t *testing.T) {
		file, err := SelectOutputFile("")
		require.NoError(t, err)
		assert.Equal(t, os.Stdout, file)
	})

	t.Run("valid path creates file", func(t *testing.T) {
		tempFile := filepath.Join(t.TempDir(), "test_output.txt")

		file, err := SelectOutputFile(tempFile)
		require.NoError(t, err)
		assert.NotNil(t, file)
		_ = file.Close()

		_, err = os.Stat(tempFile)
		assert.NoError(t, err)
	})
}

func TestGetDBFilePaths(t *testing.T) {
	store := GetStoreDBFilePath()
	cache := GetCacheDBFilePath()
	assert.True(t, strings.HasSuffix(store, ".emission.db"))
	assert.True(t, strings.HasSuffix(cache, ".emission_cache.db"))
	assert.NotEqual(t, store, cache)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 10))
	assert.Equal(t, "abcdefg...", TruncateID("abcdefghijklmnop", 10))
	assert.Equal(t, "abcdef", TruncateID("abcdef", 3))
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"yes", "TRUE", "1"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	for _, s := range []string{"no", "False", "0"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.False(t, v, s)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"store access", NewStoreAccessError("find", errors.New("conn reset")), true},
		{"wrapped archive io", fmt.Errorf("export: %w", &ArchiveIOError{Path: "/x", Err: os.ErrPermission}), true},
		{"stage running", ErrStageRunning, true},
		{"watermark conflict", fmt.Errorf("advance: %w", ErrWatermarkConflict), true},
		{"deadline", context.DeadlineExceeded, true},
		{"serialization", &SerializationError{Key: "bogus/key", Err: errors.New("unknown key")}, false},
		{"no data", ErrNoData, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNewStoreAccessErrorNil(t *testing.T) {
	assert.NoError(t, NewStoreAccessError("insert", nil))
}

func TestSerializationErrorMessage(t *testing.T) {
	err := &SerializationError{Key: "bogus/key", EntryID: "5f1", Err: errors.New("unknown")}
	assert.Contains(t, err.Error(), "5f1")
	assert.Contains(t, err.Error(), "bogus/key")
	assert.ErrorContains(t, &SerializationError{Key: "k", Err: errors.New("e")}, "cannot serialize key")
}
