package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

var (
	// ErrEmptyName is returned by Join when the name is blank.
	ErrEmptyName = errors.New("chatclient: name is empty")
	// ErrAlreadyJoined is returned by a second Join.
	ErrAlreadyJoined = errors.New("chatclient: already joined")
	// ErrNotJoined is returned by Send before Join.
	ErrNotJoined = errors.New("chatclient: not joined")
	// ErrEmptyMessage is returned by Send when the buffer is blank.
	ErrEmptyMessage = errors.New("chatclient: message is empty")
)

const welcomeFormat = "Welcome %s! You have joined the group chat."

// State is where a Session is in its lifecycle.
type State int

const (
	Unjoined State = iota
	Joined
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joined:
		return "joined"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Emitter sends one event to the relay. Implementations must be safe for
// concurrent use and must not block; delivery is best effort.
type Emitter interface {
	Emit(event string, data any) error
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	// TypingStopDelay is the debounce before typing-stop.
	TypingStopDelay time.Duration
	// TyperTTL bounds how long a peer shows as typing without a refresh.
	// Negative disables expiry.
	TyperTTL time.Duration
	// Now is the clock for timestamps and typer expiry.
	Now func() time.Time
	// OnChange is called after the log or typer set changes. It runs
	// without the Session lock held, so it may call back into the Session.
	OnChange func()
	// OnJoinNotice is called with the name of every peer that joins.
	OnJoinNotice func(name string)
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.TypingStopDelay <= 0 {
		o.TypingStopDelay = DefaultTypingStopDelay
	}
	switch {
	case o.TyperTTL == 0:
		o.TyperTTL = DefaultTyperTTL
	case o.TyperTTL < 0:
		o.TyperTTL = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session is one participant's view of the group chat.
type Session struct {
	mu       sync.Mutex
	emitter  Emitter
	opts     Options
	logger   *slog.Logger
	state    State
	name     string
	text     string
	messages []Message
	typers   *TyperSet
	ids      idSource
	typing   *typingNotifier
}

// NewSession returns an unjoined session that emits through emitter.
func NewSession(emitter Emitter, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		emitter: emitter,
		opts:    opts,
		logger:  opts.Logger.With("component", "session"),
		typers:  NewTyperSet(opts.TyperTTL, opts.Now),
	}
	s.ids.reset(uuid.NewString())
	return s
}

// Join enters the group chat under name. The log is reset to a single
// welcome notice.
func (s *Session) Join(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	if s.state == Joined {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.state = Joined
	s.name = trimmed
	s.messages = []Message{{
		ID:     s.ids.next(),
		Sender: SystemSender,
		Text:   fmt.Sprintf(welcomeFormat, trimmed),
		TS:     s.opts.Now().UnixMilli(),
	}}
	s.typing = newTypingNotifier(s.opts.TypingStopDelay, func(event string) {
		s.emit(event, trimmed)
	})
	s.mu.Unlock()

	s.logger.Info("joined group chat", "name", trimmed)
	s.emit(protocol.EventJoin, trimmed)
	s.changed()
	return nil
}

// SetText replaces the outbound buffer and drives the typing indicator.
// Before Join only the buffer changes.
func (s *Session) SetText(text string) {
	s.mu.Lock()
	s.text = text
	typing := s.typing
	s.mu.Unlock()

	if typing != nil {
		typing.edited(strings.TrimSpace(text) != "")
	}
}

// Text returns the outbound buffer.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Send appends the trimmed buffer to the log, emits it and clears the buffer.
func (s *Session) Send() (Message, error) {
	s.mu.Lock()
	if s.state != Joined {
		s.mu.Unlock()
		return Message{}, ErrNotJoined
	}
	text := strings.TrimSpace(s.text)
	if text == "" {
		s.mu.Unlock()
		return Message{}, ErrEmptyMessage
	}

	msg := Message{
		ID:     s.ids.next(),
		Sender: s.name,
		Text:   text,
		TS:     s.opts.Now().UnixMilli(),
	}
	s.messages = append(s.messages, msg)
	s.text = ""
	typing := s.typing
	s.mu.Unlock()

	s.emit(protocol.EventMessage, msg)
	typing.edited(false)
	s.changed()
	return msg, nil
}

// HandleEvent applies one inbound event from the relay.
func (s *Session) HandleEvent(event string, data json.RawMessage) {
	switch event {
	case protocol.EventMessage:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping undecodable message", "err", err)
			return
		}
		s.mu.Lock()
		s.messages = append(s.messages, msg)
		s.mu.Unlock()
		s.changed()

	case protocol.EventTypingStart, protocol.EventTypingStop:
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			s.logger.Warn("dropping undecodable typing event", "event", event, "err", err)
			return
		}
		s.mu.Lock()
		if event == protocol.EventTypingStart {
			s.typers.Add(name)
		} else {
			s.typers.Remove(name)
		}
		s.mu.Unlock()
		s.changed()

	case protocol.EventJoinNotice:
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			s.logger.Warn("dropping undecodable join notice", "err", err)
			return
		}
		s.logger.Info("peer joined the chat", "name", name)
		if s.opts.OnJoinNotice != nil {
			s.opts.OnJoinNotice(name)
		}

	default:
		s.logger.Debug("ignoring unknown event", "event", event)
	}
}

// Connected is called by the transport after every successful connection.
// Message ids restart under sessionID and a joined session joins again.
func (s *Session) Connected(sessionID string) {
	s.ids.reset(sessionID)

	s.mu.Lock()
	joined := s.state == Joined
	name := s.name
	s.mu.Unlock()

	s.logger.Debug("connected", "session", sessionID, "rejoin", joined)
	if joined {
		s.emit(protocol.EventJoin, name)
	}
}

// Messages returns a copy of the log in append order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Typers returns the peers currently typing.
func (s *Session) Typers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typers.Names()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Name returns the joined display name, or "" before Join.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Close cancels a pending typing-stop.
func (s *Session) Close() {
	s.mu.Lock()
	typing := s.typing
	s.mu.Unlock()

	if typing != nil {
		typing.stop()
	}
}

func (s *Session) emit(event string, data any) {
	if err := s.emitter.Emit(event, data); err != nil {
		s.logger.Debug("event not sent", "event", event, "err", err)
	}
}

func (s *Session) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}
