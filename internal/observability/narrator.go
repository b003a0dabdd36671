package observability

import (
	"fmt"
	"io"
	"sync"
)

// Status markers printed in front of narration lines.
const (
	markStep = "🔍"
	markPass = "✅"
	markFail = "❌"
	markWarn = "⚠️"
	markInfo = "📊"
)

// Narrator prints the human-facing run narration (one status line per step)
// separately from the structured log stream. A nil *Narrator is silent.
type Narrator struct {
	mu sync.Mutex
	w  io.Writer
}

// NewNarrator returns a narrator writing to w.
func NewNarrator(w io.Writer) *Narrator {
	return &Narrator{w: w}
}

func (n *Narrator) printf(mark, format string, args ...any) {
	if n == nil || n.w == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

// Step announces an action about to happen.
func (n *Narrator) Step(format string, args ...any) { n.printf(markStep, format, args...) }

// Pass reports a successful check.
func (n *Narrator) Pass(format string, args ...any) { n.printf(markPass, format, args...) }

// Fail reports a failed check.
func (n *Narrator) Fail(format string, args ...any) { n.printf(markFail, format, args...) }

// Warn reports something odd that did not fail the step.
func (n *Narrator) Warn(format string, args ...any) { n.printf(markWarn, format, args...) }

// Info prints a neutral line such as a summary figure.
func (n *Narrator) Info(format string, args ...any) { n.printf(markInfo, format, args...) }
