package chatclient

import (
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

// DefaultTypingStopDelay is the pause after the last edit before typing-stop
// is sent.
const DefaultTypingStopDelay = time.Second

// typingNotifier debounces typing indicators for one participant. A
// typing-start goes out on every non-empty edit; a typing-stop follows once
// edits pause for delay. A stop is only ever sent after a start.
type typingNotifier struct {
	mu     sync.Mutex
	delay  time.Duration
	emit   func(event string)
	timer  *time.Timer
	gen    uint64
	active bool
	closed bool
}

func newTypingNotifier(delay time.Duration, emit func(event string)) *typingNotifier {
	return &typingNotifier{delay: delay, emit: emit}
}

// edited records a change to the text buffer.
func (n *typingNotifier) edited(nonEmpty bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	if nonEmpty {
		n.emit(protocol.EventTypingStart)
		n.active = true
	}
	if !n.active {
		return
	}

	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	gen := n.gen
	n.timer = time.AfterFunc(n.delay, func() { n.fire(gen) })
}

func (n *typingNotifier) fire(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// A newer edit or stop superseded this timer.
	if gen != n.gen || !n.active || n.closed {
		return
	}
	n.active = false
	n.timer = nil
	n.emit(protocol.EventTypingStop)
}

// stop cancels any pending typing-stop.
func (n *typingNotifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.gen++
	n.active = false
	n.closed = true
}
