package ui

import (
	"fmt"
	"sync"

	"github.com/BTreeMap/SalesCoach/internal/flow"
)

var levelIcons = map[flow.NotifyLevel]string{
	flow.NotifyInfo:    "i",
	flow.NotifySuccess: "✓",
	flow.NotifyWarning: "!",
	flow.NotifyError:   "✗",
}

// Notifier prints transient notifications and session progress. It implements
// flow.Observer.
type Notifier struct {
	p    *Printer
	mu   sync.Mutex
	last flow.State
}

// NewNotifier creates a Notifier printing through p.
func NewNotifier(p *Printer) *Notifier {
	return &Notifier{p: p}
}

// Notify prints one notification line.
func (n *Notifier) Notify(level flow.NotifyLevel, message string) {
	icon, ok := levelIcons[level]
	if !ok {
		icon = levelIcons[flow.NotifyInfo]
	}
	var style = infoStyle
	switch level {
	case flow.NotifySuccess:
		style = successStyle
	case flow.NotifyWarning:
		style = warningStyle
	case flow.NotifyError:
		style = errorStyle
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.p.out, n.p.render(style, icon+" "+message))
}

// Info, Success, Warning and Error are shorthands for Notify.
func (n *Notifier) Info(format string, args ...interface{}) {
	n.Notify(flow.NotifyInfo, fmt.Sprintf(format, args...))
}

func (n *Notifier) Success(format string, args ...interface{}) {
	n.Notify(flow.NotifySuccess, fmt.Sprintf(format, args...))
}

func (n *Notifier) Warning(format string, args ...interface{}) {
	n.Notify(flow.NotifyWarning, fmt.Sprintf(format, args...))
}

func (n *Notifier) Error(format string, args ...interface{}) {
	n.Notify(flow.NotifyError, fmt.Sprintf(format, args...))
}

// Inline prints a persistent message, such as the pending-payment notice.
func (n *Notifier) Inline(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.p.out, n.p.box(n.p.render(sectionStyle, title)+"\n"+body))
}

// OnNotify implements flow.Observer.
func (n *Notifier) OnNotify(level flow.NotifyLevel, message string) {
	n.Notify(level, message)
}

// OnSnapshot implements flow.Observer. Only state changes are printed.
func (n *Notifier) OnSnapshot(s flow.Snapshot) {
	n.mu.Lock()
	changed := s.State != n.last
	n.last = s.State
	n.mu.Unlock()
	if !changed {
		return
	}
	line := StateLine(s)
	if line == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.p.out, n.p.render(mutedStyle, line))
}

// StateLine describes a snapshot in one line.
func StateLine(s flow.Snapshot) string {
	switch s.State {
	case flow.StateLaunching:
		return "Preparing your simulation..."
	case flow.StateAwaitingEnd:
		if s.Conversation != nil {
			return fmt.Sprintf("Conversation %d in progress. Run `salescoach end %d` or press Ctrl+C to finish.", s.Conversation.ID, s.Conversation.ID)
		}
		return "Conversation in progress."
	case flow.StateAwaitingFeedback:
		return "Conversation ended. Waiting for feedback..."
	case flow.StateReady:
		return "Feedback ready."
	case flow.StateFailed:
		if s.Failure != "" {
			return "Session failed: " + s.Failure
		}
		return "Session failed."
	default:
		return ""
	}
}
