// Package chatclient is the client side of the group-chat relay.
//
// A Session holds everything one participant sees: the join state, the
// message log, the set of peers currently typing and the outbound text
// buffer. It turns local input into join, message and typing events and
// applies inbound events to its state. A Client carries those events over a
// websocket, reconnecting with exponential backoff and telling the Session
// about every new connection so it can re-join.
//
//	c := chatclient.NewClient(chatclient.Config{URL: "ws://localhost:3000/ws"}, logger)
//	s := chatclient.NewSession(c, chatclient.Options{})
//	go c.Run(ctx, s)
//	_ = s.Join("Alice")
package chatclient
