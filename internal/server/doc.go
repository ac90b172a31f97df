// Package server implements the group-chat relay: a websocket endpoint that
// puts every connection in one shared room and forwards join notices, chat
// messages and typing indicators from each sender to the other members.
//
// The implementation is organized into specialized files for configuration,
// origin policy, hub management, clients, routing, and HTTP handlers.
package server
