package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Score label constants.
const (
	GreatValue = "Great" // Great value
	GoodValue  = "Good"  // Good value
	FairValue  = "Fair"  // Fair value
	PoorValue  = "Poor"  // Poor value
)

// Color variables for console output.
var (
	GreatColor = color.New(color.FgGreen, color.Bold) // GreatColor marks a component at or near its best.
	GoodColor  = color.New(color.FgCyan)              // GoodColor marks a healthy component.
	FairColor  = color.New(color.FgYellow)            // FairColor is standard caution, not bold.
	PoorColor  = color.New(color.FgRed, color.Bold)   // PoorColor is standard danger.
)

// GetPlainLabel returns a plain text label for a score component.
// Components are ratios where 1 is best; savings components may go negative.
func GetPlainLabel(score float64) string {
	switch {
	case score >= 0.75:
		return GreatValue
	case score >= 0.5:
		return GoodValue
	case score >= 0.25:
		return FairValue
	default:
		return PoorValue
	}
}

// GetColorLabel returns a colored text label for console output (table).
func GetColorLabel(score float64) string {
	text := GetPlainLabel(score)

	switch text {
	case GreatValue:
		return GreatColor.Sprint(text)
	case GoodValue:
		return GoodColor.Sprint(text)
	case FairValue:
		return FairColor.Sprint(text)
	default:
		return PoorColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output.
// An empty path selects os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// GetStoreDBFilePath returns the path to the SQLite DB file for the time series store.
func GetStoreDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".emission.db"
	}
	return filepath.Join(homeDir, ".emission.db")
}

// GetCacheDBFilePath returns the path to the SQLite DB file for the score cache.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".emission_cache.db"
	}
	return filepath.Join(homeDir, ".emission_cache.db")
}

// TruncateID shortens an id to maxWidth characters with an ellipsis suffix.
// Requires maxWidth > 3 so there is room for the ellipsis and one character.
func TruncateID(id string, maxWidth int) string {
	runes := []rune(id)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return id
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
