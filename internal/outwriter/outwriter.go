// Package outwriter has output and writer logic.
package outwriter

import (
	"os"

	"github.com/jiji14/e-mission-server/internal/contract"
	"golang.org/x/term"
)

// terminalWidth returns the width override or the detected terminal width.
func terminalWidth(cfg *contract.Config) int {
	if cfg.Width > 0 {
		return cfg.Width
	}
	detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || detectedWidth <= 0 {
		return 80 // Conservative default for narrow terminals and CI
	}
	return detectedWidth
}

// getMaxTableIDWidth calculates how wide the trip and section id columns may be
// given the fixed columns of the sections table.
func getMaxTableIDWidth(cfg *contract.Config) int {
	// Rank + Start + Mode + Distance + Duration + Auto, plus borders and padding
	const baseWidth = 95

	available := (terminalWidth(cfg) - baseWidth) / 2
	if available < 8 {
		return 8
	}
	if available > 36 {
		return 36
	}
	return available
}
