// Command execdiff drives exec-diff experiments across search depths.
package main

import (
	"github.com/khaes-kth/drr-execdiff/cmd"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/internal/ledger"
)

func main() {
	defer ledger.CloseLedger()
	defer func() {
		if err := cmd.StopProfiling(); err != nil {
			contract.LogWarn("Failed to stop profiling", err)
		}
	}()

	if err := cmd.Execute(); err != nil {
		ledger.CloseLedger()
		contract.LogFatal("Command failed", err)
	}
}
