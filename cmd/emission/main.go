// main is the entry point for the emission CLI.
package main

import (
	"fmt"
	"os"

	"github.com/jiji14/e-mission-server/cmd"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/iostore"
)

func main() {
	err := cmd.Execute()
	iostore.CloseStores()
	if perr := cmd.StopProfiling(); perr != nil {
		contract.LogWarn("Failed to stop profiling", perr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
