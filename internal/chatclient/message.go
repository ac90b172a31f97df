package chatclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// SystemSender is the sender of locally generated notices.
const SystemSender = "System"

// MessageID identifies a message within the log. Ids minted here look like
// "<session>-<n>"; ids from peers are kept as they arrive, and numeric ids
// are accepted and stored in their decimal form.
type MessageID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("message id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = MessageID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = MessageID(n.String())
	return nil
}

// Message is one entry in the chat log. TS is in Unix milliseconds.
type Message struct {
	ID     MessageID `json:"id"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	TS     int64     `json:"ts"`
}

// idSource mints message ids that are unique per connection session.
type idSource struct {
	mu      sync.Mutex
	session string
	n       uint64
}

func (s *idSource) reset(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.n = 0
}

func (s *idSource) next() MessageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return MessageID(s.session + "-" + strconv.FormatUint(s.n, 10))
}
