package outwriter

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// userLabel names the selected user, or all users.
func userLabel(user uuid.UUID) string {
	if user == uuid.Nil {
		return "all"
	}
	return user.String()
}

// LogPipelineHeader prints a concise, 2-line header for a pipeline run.
// Headers go to stderr so JSON and CSV on stdout stay parseable.
func LogPipelineHeader(cfg *contract.Config) {
	stages := make([]string, len(cfg.Stages))
	for i, s := range cfg.Stages {
		stages[i] = string(s)
	}
	fmt.Fprintf(os.Stderr, "🚦 Pipeline: %s (User: %s, Workers: %d)\n", strings.Join(stages, " → "), userLabel(cfg.UserID), cfg.Workers)
	fmt.Fprintf(os.Stderr, "⏱️  Lag: %s, Timeout: %s, Axis: %s\n", cfg.Lag, cfg.Timeout, cfg.TimeField)
}

// LogRangeHeader prints the user and date range of a per-user command.
func LogRangeHeader(title string, cfg *contract.Config) {
	fmt.Fprintf(os.Stderr, "🔎 %s: %s\n", title, userLabel(cfg.UserID))
	fmt.Fprintf(os.Stderr, "📅 Range: %s → %s\n", cfg.StartTime.Format(contract.DateTimeFormat), cfg.EndTime.Format(contract.DateTimeFormat))
}

// LogReset reports a forgotten watermark.
func LogReset(user uuid.UUID, stage schema.PipelineStage) {
	fmt.Fprintf(os.Stderr, "🔄 Reset %s for %s\n", stage, user)
}

// LogLoaded reports a loaded fixture file.
func LogLoaded(n int, path string, user uuid.UUID) {
	if user == uuid.Nil {
		fmt.Fprintf(os.Stderr, "📥 Loaded %d entries from %s\n", n, path)
		return
	}
	fmt.Fprintf(os.Stderr, "📥 Loaded %d entries from %s as %s\n", n, path, user)
}

// LogRebound reports entries moved between users.
func LogRebound(n int, from, to uuid.UUID) {
	fmt.Fprintf(os.Stderr, "🔁 Rebound %d entries from %s to %s\n", n, from, to)
}
