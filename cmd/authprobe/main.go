// File: cmd/authprobe/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/cmd"
	"github.com/xkilldash9x/authprobe/internal/observability"
)

// Allows mocking os.Exit in tests.
var osExit = os.Exit

// execute is replaced in tests.
var execute = cmd.Execute

func main() {
	defer handlePanic()
	osExit(run())
}

// run executes the command tree with a signal-aware context and returns the
// exit code. On SIGINT the context ends, the current wait returns and the
// browser session is still quit by the run command.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := execute(ctx)
	observability.Sync()
	return cmd.ExitCode(err)
}

// handlePanic logs an unexpected panic, flushes the logger and exits 1.
func handlePanic() {
	if r := recover(); r != nil {
		observability.GetLogger().Error("Unrecovered panic.",
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		observability.Sync()
		fmt.Fprintf(os.Stderr, "CRITICAL: authprobe crashed: %v\n", r)
		osExit(cmd.ExitFatal)
	}
}
