package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Tyrowin/gochat-relay/internal/chatclient"
)

// view is what the printer needs from a session.
type view interface {
	Messages() []chatclient.Message
	Typers() []string
}

// printer writes new log entries and typing changes to the terminal.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
	typers  string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

// render prints messages appended since the last call and the typing line
// when it changed.
func (p *printer) render(v view) {
	msgs := v.Messages()
	line := typersLine(v.Typers())

	p.mu.Lock()
	defer p.mu.Unlock()

	// Join resets the log to the welcome notice.
	if len(msgs) < p.printed {
		p.printed = 0
	}
	for _, m := range msgs[p.printed:] {
		fmt.Fprintf(p.out, "[%s] %s: %s\n", chatclient.FormatTime(m.TS), m.Sender, m.Text)
	}
	p.printed = len(msgs)

	if line != p.typers {
		p.typers = line
		if line != "" {
			fmt.Fprintf(p.out, "  %s\n", line)
		}
	}
}

func (p *printer) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "* "+format+"\n", args...)
}

func typersLine(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	default:
		return strings.Join(names, ", ") + " are typing..."
	}
}
