// Package server defines the hub's internal request types and utility helpers
// that are reused across client and hub logic.
package server

import "strings"

// BroadcastMessage is an encoded frame headed for every member of Room except
// Sender. Sender may be nil for server-originated frames.
type BroadcastMessage struct {
	Room    string
	Sender  *Client
	Payload []byte
}

// Membership asks the hub to add Client to Room and tell the other members
// about it with Notice.
type Membership struct {
	Room   string
	Client *Client
	Notice []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
