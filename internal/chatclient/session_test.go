package chatclient

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

type emitted struct {
	Event string
	Data  any
}

// fakeEmitter records events instead of sending them.
type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (f *fakeEmitter) Emit(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{Event: event, Data: data})
	return f.err
}

func (f *fakeEmitter) Events() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.events...)
}

func (f *fakeEmitter) Names() []string {
	var names []string
	for _, e := range f.Events() {
		names = append(names, e.Event)
	}
	return names
}

func (f *fakeEmitter) Count(event string) int {
	n := 0
	for _, e := range f.Events() {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeEmitter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, opts Options) (*Session, *fakeEmitter) {
	t.Helper()
	em := &fakeEmitter{}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	s := NewSession(em, opts)
	t.Cleanup(s.Close)
	return s, em
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSession_Join(t *testing.T) {
	clock := newFakeClock()
	s, em := newTestSession(t, Options{Now: clock.Now})

	require.NoError(t, s.Join("  Alice  "))

	assert.Equal(t, Joined, s.State())
	assert.Equal(t, "Alice", s.Name())
	assert.Equal(t, []emitted{{Event: protocol.EventJoin, Data: "Alice"}}, em.Events())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SystemSender, msgs[0].Sender)
	assert.Equal(t, "Welcome Alice! You have joined the group chat.", msgs[0].Text)
	assert.Equal(t, clock.Now().UnixMilli(), msgs[0].TS)
	assert.NotEmpty(t, msgs[0].ID)
}

func TestSession_JoinRejectsEmptyName(t *testing.T) {
	s, em := newTestSession(t, Options{})

	for _, name := range []string{"", "   ", "\t\n"} {
		assert.ErrorIs(t, s.Join(name), ErrEmptyName)
	}

	assert.Equal(t, Unjoined, s.State())
	assert.Empty(t, em.Events())
	assert.Empty(t, s.Messages())
}

func TestSession_JoinTwice(t *testing.T) {
	s, em := newTestSession(t, Options{})

	require.NoError(t, s.Join("Alice"))
	assert.ErrorIs(t, s.Join("Bob"), ErrAlreadyJoined)

	assert.Equal(t, "Alice", s.Name())
	assert.Equal(t, 1, em.Count(protocol.EventJoin))
	assert.Len(t, s.Messages(), 1)
}

func TestSession_JoinSurvivesEmitFailure(t *testing.T) {
	em := &fakeEmitter{err: ErrDisconnected}
	s := NewSession(em, Options{Logger: quietLogger()})
	defer s.Close()

	require.NoError(t, s.Join("Alice"))
	assert.Equal(t, Joined, s.State())
}

func TestSession_SendAppendsLocallyAndEmits(t *testing.T) {
	clock := newFakeClock()
	s, em := newTestSession(t, Options{Now: clock.Now, TypingStopDelay: time.Hour})
	require.NoError(t, s.Join("Alice"))
	s.Connected("sess")
	em.Reset()

	s.SetText("  hello world  ")
	msg, err := s.Send()
	require.NoError(t, err)

	assert.Equal(t, Message{ID: "sess-1", Sender: "Alice", Text: "hello world", TS: clock.Now().UnixMilli()}, msg)
	assert.Equal(t, "", s.Text())

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msg, msgs[1])

	assert.Equal(t, []emitted{
		{Event: protocol.EventTypingStart, Data: "Alice"},
		{Event: protocol.EventMessage, Data: msg},
	}, em.Events())
}

func TestSession_SendIDsAreUniqueAndOrdered(t *testing.T) {
	s, _ := newTestSession(t, Options{TypingStopDelay: time.Hour})
	require.NoError(t, s.Join("Alice"))
	s.Connected("abc")

	var ids []MessageID
	for _, text := range []string{"one", "two", "three"} {
		s.SetText(text)
		msg, err := s.Send()
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	assert.Equal(t, []MessageID{"abc-1", "abc-2", "abc-3"}, ids)

	var texts []string
	for _, m := range s.Messages()[1:] {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"one", "two", "three"}, texts)
}

func TestSession_SendRules(t *testing.T) {
	t.Run("before join", func(t *testing.T) {
		s, em := newTestSession(t, Options{})
		s.SetText("hello")

		_, err := s.Send()
		assert.ErrorIs(t, err, ErrNotJoined)
		assert.Empty(t, em.Events(), "input before join only updates the buffer")
		assert.Equal(t, "hello", s.Text())
	})

	t.Run("blank buffer", func(t *testing.T) {
		s, em := newTestSession(t, Options{TypingStopDelay: time.Hour})
		require.NoError(t, s.Join("Alice"))
		em.Reset()

		s.SetText("   ")
		_, err := s.Send()
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Equal(t, 0, em.Count(protocol.EventMessage))
		assert.Len(t, s.Messages(), 1)
	})
}

func TestSession_HandleMessage(t *testing.T) {
	var changes atomic.Int32
	s, _ := newTestSession(t, Options{OnChange: func() { changes.Add(1) }})
	require.NoError(t, s.Join("Bob"))
	changes.Store(0)

	s.HandleEvent(protocol.EventMessage, json.RawMessage(`{"id":"x-1","sender":"Alice","text":"hi","ts":5}`))
	s.HandleEvent(protocol.EventMessage, json.RawMessage(`{"id":1718000000000,"sender":"Carol","text":"yo","ts":6}`))
	s.HandleEvent(protocol.EventMessage, json.RawMessage(`"not a message"`))

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, Message{ID: "x-1", Sender: "Alice", Text: "hi", TS: 5}, msgs[1])
	assert.Equal(t, MessageID("1718000000000"), msgs[2].ID)
	assert.Equal(t, int32(2), changes.Load())
}

func TestSession_HandleMessageBeforeJoin(t *testing.T) {
	s, _ := newTestSession(t, Options{})

	s.HandleEvent(protocol.EventMessage, json.RawMessage(`{"id":"x-1","sender":"Alice","text":"early","ts":1}`))
	require.NoError(t, s.Join("Bob"))

	msgs := s.Messages()
	require.Len(t, msgs, 1, "join resets the log to the welcome notice")
	assert.Equal(t, SystemSender, msgs[0].Sender)
}

func TestSession_HandleTyping(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestSession(t, Options{Now: clock.Now, TyperTTL: 5 * time.Second})

	s.HandleEvent(protocol.EventTypingStart, raw(t, "Alice"))
	s.HandleEvent(protocol.EventTypingStart, raw(t, "Carol"))
	s.HandleEvent(protocol.EventTypingStart, raw(t, "Alice"))
	assert.Equal(t, []string{"Alice", "Carol"}, s.Typers())

	s.HandleEvent(protocol.EventTypingStop, raw(t, "Alice"))
	s.HandleEvent(protocol.EventTypingStop, raw(t, "Nobody"))
	assert.Equal(t, []string{"Carol"}, s.Typers())

	clock.Advance(5 * time.Second)
	assert.Empty(t, s.Typers(), "lost typing-stop is covered by the TTL")

	s.HandleEvent(protocol.EventTypingStart, raw(t, map[string]string{"bad": "payload"}))
	assert.Empty(t, s.Typers())
}

func TestSession_TyperExpiryCanBeDisabled(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestSession(t, Options{Now: clock.Now, TyperTTL: -1})

	s.HandleEvent(protocol.EventTypingStart, raw(t, "Alice"))
	clock.Advance(time.Hour)

	assert.Equal(t, []string{"Alice"}, s.Typers())
}

func TestSession_HandleJoinNotice(t *testing.T) {
	var got []string
	s, _ := newTestSession(t, Options{OnJoinNotice: func(name string) { got = append(got, name) }})

	s.HandleEvent(protocol.EventJoinNotice, raw(t, "Bob"))
	s.HandleEvent(protocol.EventJoinNotice, json.RawMessage(`{}`))
	s.HandleEvent("something-else", raw(t, "ignored"))

	assert.Equal(t, []string{"Bob"}, got)
	assert.Empty(t, s.Messages())
}

func TestSession_ConnectedRejoins(t *testing.T) {
	s, em := newTestSession(t, Options{})

	s.Connected("first")
	assert.Empty(t, em.Events(), "nothing to re-join before Join")

	require.NoError(t, s.Join("Alice"))
	em.Reset()

	s.Connected("second")
	s.Connected("third")
	assert.Equal(t, []emitted{
		{Event: protocol.EventJoin, Data: "Alice"},
		{Event: protocol.EventJoin, Data: "Alice"},
	}, em.Events())
}

func TestSession_ConnectedRestartsIDs(t *testing.T) {
	s, _ := newTestSession(t, Options{TypingStopDelay: time.Hour})
	require.NoError(t, s.Join("Alice"))

	s.Connected("one")
	s.SetText("a")
	first, err := s.Send()
	require.NoError(t, err)

	s.Connected("two")
	s.SetText("b")
	second, err := s.Send()
	require.NoError(t, err)

	assert.Equal(t, MessageID("one-1"), first.ID)
	assert.Equal(t, MessageID("two-1"), second.ID)
}

func TestSession_OnChangeMayReenter(t *testing.T) {
	var s *Session
	var seen atomic.Int32
	em := &fakeEmitter{}
	s = NewSession(em, Options{
		Logger: quietLogger(),
		OnChange: func() {
			seen.Store(int32(len(s.Messages())))
		},
	})
	defer s.Close()

	require.NoError(t, s.Join("Alice"))
	assert.Equal(t, int32(1), seen.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unjoined", Unjoined.String())
	assert.Equal(t, "joined", Joined.String())
	assert.Equal(t, "State(7)", State(7).String())
}
